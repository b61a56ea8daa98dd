package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
)

// Task is a registered spoolable task. Callers invoke it like the function
// it wraps; whether it runs now or in a worker is decided per call.
type Task struct {
	desc    Descriptor
	sig     *signature
	bulky   map[string]struct{}
	spooler *Spooler
}

func (t *Task) Name() string {
	return t.desc.Name
}

// Call invokes the task with positional arguments only.
func (t *Task) Call(ctx context.Context, args ...any) error {
	return t.Invoke(ctx, args, nil)
}

// Invoke runs the task. When the spooler backend can defer and the
// precondition holds, the invocation is queued and only a submission error is
// returned; the task's own outcome is never reported back. Otherwise the task
// runs in the calling goroutine, retrying retryable failures, and its final
// error is returned.
func (t *Task) Invoke(ctx context.Context, args []any, kwargs map[string]any, opts ...InvokeOption) error {
	o := invokeOptions{retries: t.defaultRetries()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := t.sig.bind(args, kwargs, t.desc.EnvelopeParam); err != nil {
		return fmt.Errorf("task %q: %w", t.desc.Name, err)
	}

	if t.deferrable(ctx) {
		return t.spooler.schedule(ctx, t, args, kwargs, o)
	}
	return t.runSync(ctx, args, kwargs, o.retries)
}

func (t *Task) defaultRetries() *int {
	if t.desc.Retries == 0 {
		return nil
	}
	n := t.desc.Retries
	return &n
}

func (t *Task) deferrable(ctx context.Context) bool {
	if !t.spooler.backend.Deferrable() {
		return false
	}
	return t.desc.PreCondition == nil || t.desc.PreCondition(ctx)
}

// runSync executes the task in the caller, retrying retryable errors after a
// short pause until the budget is spent.
func (t *Task) runSync(ctx context.Context, args []any, kwargs map[string]any, retries *int) error {
	enc, err := encodeArgs(args, kwargs, nil)
	if err != nil {
		return fmt.Errorf("task %q: %w", t.desc.Name, err)
	}
	dec, err := decodeArgs(enc)
	if err != nil {
		return fmt.Errorf("task %q: %w", t.desc.Name, err)
	}

	log := t.spooler.logger.With(logger.Task(t.desc.Name))
	left := retries
	for attempt := 1; ; attempt++ {
		err := t.execute(ctx, newCall(t, newEnvelope(false, attempt, left), dec))
		if err == nil {
			return nil
		}

		if t.desc.retryable(err) && left != nil && *left > 0 {
			n := *left - 1
			left = &n
			log.WarnContext(ctx, "spooled task failed, retrying synchronously",
				logger.Attempt(attempt),
				logger.RetriesLeft(n),
				logger.Error(err))
			if serr := t.spooler.pause(ctx); serr != nil {
				return errors.Join(err, serr)
			}
			continue
		}

		log.ErrorContext(ctx, "spooled task failed with uncaught error",
			logger.Attempt(attempt),
			logger.Error(err))
		return err
	}
}

// execute runs the body once, converting panics into ErrTaskPanicked.
func (t *Task) execute(ctx context.Context, call *Call) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			t.spooler.logger.ErrorContext(ctx, "spooled task panicked",
				logger.Task(t.desc.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
		t.spooler.logger.DebugContext(ctx, "spooled task finished",
			logger.Task(t.desc.Name),
			logger.Attempt(call.Envelope.Attempt()),
			logger.Duration(time.Since(start)))
	}()

	return t.desc.Func(ctx, call)
}
