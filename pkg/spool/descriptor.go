package spool

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// TaskFunc is the body of a spoolable task.
type TaskFunc func(ctx context.Context, call *Call) error

// Descriptor declares a spoolable task. It is validated once by
// Spooler.Register and is immutable afterwards.
type Descriptor struct {
	// Name identifies the task across processes and must be unique.
	Name string
	Func TaskFunc

	// Params is the declared parameter list. Arguments are checked against
	// it on every invocation and Call.Bind maps them by these names.
	Params []Param

	// EnvelopeParam optionally names the parameter that receives the
	// execution envelope in Call.Bind. It must be a declared keyword-only
	// parameter unless Params has a VarKwargs catch-all.
	EnvelopeParam string

	// PreCondition gates deferral; nil means always defer when possible.
	PreCondition func(ctx context.Context) bool

	// Retries is the number of automatic retries after a retryable failure.
	// Zero means no retry policy, and Envelope.RetriesLeft reports ok=false.
	Retries int
	// RetryOn lists errors matched with errors.Is that trigger a retry.
	RetryOn []error
	// RetryIf is an optional predicate OR-ed with RetryOn.
	RetryIf func(err error) bool

	// BulkyParams are keyword parameters sent through the job body
	// channel instead of the argument payload.
	BulkyParams []string
}

func (d Descriptor) validate() (*signature, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if d.Func == nil {
		return nil, fmt.Errorf("%w: task %q has no function", ErrInvalidDescriptor, d.Name)
	}
	if d.Retries < 0 {
		return nil, fmt.Errorf("%w: task %q has negative retries", ErrInvalidDescriptor, d.Name)
	}

	sig, err := newSignature(d.Params)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", d.Name, err)
	}

	if p, ok := sig.byName[d.EnvelopeParam]; ok && p.Kind == Positional {
		return nil, fmt.Errorf("%w: task %q envelope %q must be keyword-only, callers could fill it by position",
			ErrInvalidSignature, d.Name, d.EnvelopeParam)
	}
	if d.EnvelopeParam != "" && !sig.acceptsKeyword(d.EnvelopeParam) && sig.varKwargs == "" {
		return nil, fmt.Errorf("%w: task %q cannot receive envelope %q by name or as a keyword catch-all",
			ErrInvalidSignature, d.Name, d.EnvelopeParam)
	}

	var invalid []string
	for _, name := range d.BulkyParams {
		if !sig.acceptsKeyword(name) || name == d.EnvelopeParam {
			invalid = append(invalid, name)
		}
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: task %q bulky params must be keyword arguments: %v",
			ErrInvalidSignature, d.Name, invalid)
	}

	return sig, nil
}

// retryable reports whether err is one of the declared transient failures.
func (d Descriptor) retryable(err error) bool {
	if err == nil || errors.Is(err, ErrTaskPanicked) {
		return false
	}
	if slices.ContainsFunc(d.RetryOn, func(target error) bool { return errors.Is(err, target) }) {
		return true
	}
	return d.RetryIf != nil && d.RetryIf(err)
}
