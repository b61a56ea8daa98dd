package spool

import (
	"context"
	"time"
)

// Backend hands deferred jobs to a worker framework.
type Backend interface {
	// Deferrable reports whether jobs can be submitted at all. When false,
	// tasks run synchronously in the caller.
	Deferrable() bool
	// Submit queues job to run no earlier than delay from now.
	Submit(ctx context.Context, job *Job, delay time.Duration) error
}

// SyncBackend never defers; every invocation runs in the caller.
type SyncBackend struct{}

func (SyncBackend) Deferrable() bool { return false }

func (SyncBackend) Submit(context.Context, *Job, time.Duration) error {
	return ErrNotDeferrable
}

// FuncBackend adapts a submission function into a Backend.
type FuncBackend func(ctx context.Context, job *Job, delay time.Duration) error

func (f FuncBackend) Deferrable() bool { return f != nil }

func (f FuncBackend) Submit(ctx context.Context, job *Job, delay time.Duration) error {
	if f == nil {
		return ErrNotDeferrable
	}
	return f(ctx, job, delay)
}

// BodyStore keeps bulky parameters outside the job payload.
type BodyStore interface {
	// Put stores data under key and returns a reference to put in Job.BodyRef.
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}
