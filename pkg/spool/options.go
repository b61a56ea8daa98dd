package spool

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Spooler.
type Option func(*Spooler)

// WithRegistry injects the task registry. A new one is created by default.
func WithRegistry(r *Registry) Option {
	return func(s *Spooler) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithBackend sets the deferred execution backend. Defaults to SyncBackend.
func WithBackend(b Backend) Option {
	return func(s *Spooler) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithBodyStore routes bulky parameters through store instead of the job payload.
func WithBodyStore(store BodyStore) Option {
	return func(s *Spooler) {
		s.bodies = store
	}
}

// WithLogger sets the logger used for dispatch and task failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Spooler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPeriod sets the base delay for deferred retries. Attempt n is
// rescheduled after n*period.
func WithPeriod(d time.Duration) Option {
	return func(s *Spooler) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithSyncRetryDelay sets the pause between synchronous retries. Zero disables it.
func WithSyncRetryDelay(d time.Duration) Option {
	return func(s *Spooler) {
		if d >= 0 {
			s.syncRetryDelay = d
		}
	}
}

// WithQueue sets the queue name put on new jobs.
func WithQueue(name string) Option {
	return func(s *Spooler) {
		s.queue = name
	}
}

// WithConfig applies period, retry delay and queue from cfg.
func WithConfig(cfg Config) Option {
	return func(s *Spooler) {
		WithPeriod(cfg.Period)(s)
		WithSyncRetryDelay(cfg.SyncRetryDelay)(s)
		WithQueue(cfg.Queue)(s)
	}
}

// WithFallback handles jobs that carry no task name, such as payloads
// produced by another producer sharing the queue.
func WithFallback(fn func(ctx context.Context, job *Job) Status) Option {
	return func(s *Spooler) {
		s.fallback = fn
	}
}

// WithObserver registers a callback for dispatch outcomes.
func WithObserver(fn Observer) Option {
	return func(s *Spooler) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// InvokeOption adjusts a single invocation.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	retries *int
	delay   time.Duration
	queue   string
}

// WithRetries overrides the task's retry budget for one invocation.
// Zero removes the budget, matching a descriptor with Retries 0: the
// envelope then reports no retry policy.
func WithRetries(n int) InvokeOption {
	return func(o *invokeOptions) {
		switch {
		case n == 0:
			o.retries = nil
		case n > 0:
			o.retries = &n
		}
	}
}

// WithDelay postpones the first deferred attempt.
// It has no effect on synchronous runs.
func WithDelay(d time.Duration) InvokeOption {
	return func(o *invokeOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithJobQueue routes one deferred invocation to a named queue.
func WithJobQueue(name string) InvokeOption {
	return func(o *invokeOptions) {
		if name != "" {
			o.queue = name
		}
	}
}
