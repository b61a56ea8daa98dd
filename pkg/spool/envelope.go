package spool

import "encoding/json"

// Envelope describes the execution a task body is running in.
// A fresh value is built for every attempt.
type Envelope struct {
	deferred    bool
	attempt     int
	retriesLeft int
	hasRetries  bool
}

func newEnvelope(deferred bool, attempt int, retries *int) Envelope {
	env := Envelope{deferred: deferred, attempt: attempt}
	if retries != nil {
		env.hasRetries = true
		env.retriesLeft = *retries
	}
	return env
}

// Deferred reports whether the task runs out-of-band, in the worker.
func (e Envelope) Deferred() bool {
	return e.deferred
}

// RetriesLeft returns the remaining retry budget.
// ok is false when the invocation has no retry policy.
func (e Envelope) RetriesLeft() (n int, ok bool) {
	return e.retriesLeft, e.hasRetries
}

// Attempt returns the 1-based attempt number.
func (e Envelope) Attempt() int {
	if e.attempt < 1 {
		return 1
	}
	return e.attempt
}

type envelopeJSON struct {
	Deferred    bool `json:"deferred"`
	Attempt     int  `json:"attempt"`
	RetriesLeft *int `json:"retries_left,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	out := envelopeJSON{Deferred: e.deferred, Attempt: e.Attempt()}
	if e.hasRetries {
		n := e.retriesLeft
		out.RetriesLeft = &n
	}
	return json.Marshal(out)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var in envelopeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = newEnvelope(in.Deferred, in.Attempt, in.RetriesLeft)
	return nil
}
