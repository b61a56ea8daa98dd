package spool

import (
	"context"
	"time"
)

// Status is returned to the worker framework for every handled job.
type Status uint8

const (
	// StatusOK means the job was processed, successfully or not, and can be dropped.
	StatusOK Status = iota
	// StatusIgnore means the job could not be handled now, because its task is
	// unknown or its stored body is unreadable, and should be set aside.
	StatusIgnore
)

func (s Status) String() string {
	if s == StatusIgnore {
		return "ignore"
	}
	return "ok"
}

// State is a step of a deferred invocation.
type State string

const (
	StateReceived          State = "received"
	StateArgumentsDecoded  State = "arguments_decoded"
	StateExecuting         State = "executing"
	StateSucceeded         State = "succeeded"
	StateFailedTerminal    State = "failed_terminal"
	StateFailedRescheduled State = "failed_rescheduled"
)

// Event reports the outcome of handling a job: one of the terminal states or
// StateFailedRescheduled.
type Event struct {
	Job   *Job
	State State
	Err   error
	// Next and Delay are set for StateFailedRescheduled.
	Next  *Job
	Delay time.Duration
}

// Observer receives dispatch events. It runs inline in Handle.
type Observer func(ctx context.Context, e Event)
