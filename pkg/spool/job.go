package spool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is a serialised deferred invocation. It is produced by Task.Invoke or
// by a retry and consumed once by Spooler.Handle.
type Job struct {
	ID    uuid.UUID `json:"id"`
	Task  string    `json:"task,omitempty"`
	Queue string    `json:"queue,omitempty"`

	// Retries is the remaining retry budget; nil means no retry policy.
	Retries *int `json:"retries,omitempty"`
	// Attempt is the 1-based number of the attempt this job represents.
	Attempt int `json:"attempt,omitempty"`

	Args   json.RawMessage `json:"args,omitempty"`
	Kwargs json.RawMessage `json:"kwargs,omitempty"`

	// Body carries bulky parameters inline; BodyRef points into a BodyStore instead.
	Body    json.RawMessage `json:"body,omitempty"`
	BodyRef string          `json:"body_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EncodeJob serialises a job for a queue.
func EncodeJob(job *Job) ([]byte, error) {
	if job == nil {
		return nil, fmt.Errorf("%w: nil job", ErrMalformedJob)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, errors.Join(ErrMalformedJob, err)
	}
	return data, nil
}

// DecodeJob parses a payload produced by EncodeJob.
func DecodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.Join(ErrMalformedJob, err)
	}
	return &job, nil
}

func (j *Job) attempt() int {
	if j.Attempt < 1 {
		return 1
	}
	return j.Attempt
}

// next returns the job for the following attempt with one retry spent.
func (j *Job) next() *Job {
	n := *j
	n.ID = uuid.New()
	n.Attempt = j.attempt() + 1
	left := *j.Retries - 1
	n.Retries = &left
	n.CreatedAt = time.Now()
	return &n
}

// encodedArgs is the wire form of one invocation's arguments.
type encodedArgs struct {
	args   json.RawMessage
	kwargs json.RawMessage
	body   json.RawMessage
}

// encodeArgs splits bulky keyword arguments into the body and serialises
// each part. Empty parts are left nil. kwargs is not modified.
func encodeArgs(args []any, kwargs map[string]any, bulky map[string]struct{}) (encodedArgs, error) {
	var out encodedArgs
	var err error

	if len(args) > 0 {
		if out.args, err = json.Marshal(args); err != nil {
			return out, errors.Join(ErrEncodeArguments, err)
		}
	}

	plain := make(map[string]any, len(kwargs))
	body := make(map[string]any)
	for name, value := range kwargs {
		if _, ok := bulky[name]; ok {
			body[name] = value
			continue
		}
		plain[name] = value
	}
	if len(plain) > 0 {
		if out.kwargs, err = json.Marshal(plain); err != nil {
			return out, errors.Join(ErrEncodeArguments, err)
		}
	}
	if len(body) > 0 {
		if out.body, err = json.Marshal(body); err != nil {
			return out, errors.Join(ErrEncodeArguments, err)
		}
	}
	return out, nil
}

// decodedArgs holds arguments as raw JSON values, ready to be bound.
type decodedArgs struct {
	args   []json.RawMessage
	kwargs map[string]json.RawMessage
}

// decodeArgs reverses encodeArgs. Body values are merged into kwargs.
func decodeArgs(enc encodedArgs) (decodedArgs, error) {
	out := decodedArgs{kwargs: make(map[string]json.RawMessage)}
	if len(enc.args) > 0 {
		if err := json.Unmarshal(enc.args, &out.args); err != nil {
			return out, fmt.Errorf("%w: args: %w", ErrMalformedJob, err)
		}
	}
	if len(enc.kwargs) > 0 {
		if err := json.Unmarshal(enc.kwargs, &out.kwargs); err != nil {
			return out, fmt.Errorf("%w: kwargs: %w", ErrMalformedJob, err)
		}
	}
	if len(enc.body) > 0 {
		var body map[string]json.RawMessage
		if err := json.Unmarshal(enc.body, &body); err != nil {
			return out, fmt.Errorf("%w: body: %w", ErrMalformedJob, err)
		}
		for name, value := range body {
			out.kwargs[name] = value
		}
	}
	return out, nil
}
