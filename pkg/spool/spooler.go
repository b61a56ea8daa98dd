package spool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
)

const (
	// DefaultPeriod is the base delay between deferred retries.
	DefaultPeriod = 30 * time.Second
	// DefaultSyncRetryDelay is the pause between synchronous retries.
	DefaultSyncRetryDelay = time.Second
)

// Spooler registers spoolable tasks, schedules deferred invocations through
// a Backend and dispatches the jobs a worker hands back to Handle.
type Spooler struct {
	registry       *Registry
	backend        Backend
	bodies         BodyStore
	logger         *slog.Logger
	period         time.Duration
	syncRetryDelay time.Duration
	queue          string
	fallback       func(ctx context.Context, job *Job) Status
	observers      []Observer
}

// New creates a Spooler. Without WithBackend every task runs synchronously.
func New(opts ...Option) *Spooler {
	s := &Spooler{
		registry:       NewRegistry(),
		backend:        SyncBackend{},
		logger:         slog.Default(),
		period:         DefaultPeriod,
		syncRetryDelay: DefaultSyncRetryDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("spooler"))
	return s
}

// Registry returns the task registry the spooler dispatches from.
func (s *Spooler) Registry() *Registry {
	return s.registry
}

// Deferrable reports whether the configured backend accepts jobs.
func (s *Spooler) Deferrable() bool {
	return s.backend.Deferrable()
}

// Register validates d and adds the task to the registry. Registering a name
// twice logs a warning and replaces the earlier task.
func (s *Spooler) Register(d Descriptor) (*Task, error) {
	sig, err := d.validate()
	if err != nil {
		return nil, err
	}

	bulky := make(map[string]struct{}, len(d.BulkyParams))
	for _, name := range d.BulkyParams {
		bulky[name] = struct{}{}
	}

	t := &Task{desc: d, sig: sig, bulky: bulky, spooler: s}
	if s.registry.put(t) {
		s.logger.Warn("task is already registered as a spooler task, replacing it", logger.Task(d.Name))
	}
	return t, nil
}

// MustRegister is like Register but panics on an invalid descriptor.
func (s *Spooler) MustRegister(d Descriptor) *Task {
	t, err := s.Register(d)
	if err != nil {
		panic(err)
	}
	return t
}

// schedule builds the first job of a deferred invocation and submits it.
func (s *Spooler) schedule(ctx context.Context, t *Task, args []any, kwargs map[string]any, o invokeOptions) error {
	enc, err := encodeArgs(args, kwargs, t.bulky)
	if err != nil {
		return fmt.Errorf("task %q: %w", t.desc.Name, err)
	}

	job := &Job{
		ID:        uuid.New(),
		Task:      t.desc.Name,
		Queue:     s.queue,
		Retries:   o.retries,
		Attempt:   1,
		Args:      enc.args,
		Kwargs:    enc.kwargs,
		Body:      enc.body,
		CreatedAt: time.Now(),
	}
	if o.queue != "" {
		job.Queue = o.queue
	}

	if len(job.Body) > 0 && s.bodies != nil {
		ref, err := s.bodies.Put(ctx, job.ID.String(), job.Body)
		if err != nil {
			return fmt.Errorf("task %q: %w", t.desc.Name, errors.Join(ErrBodyStore, err))
		}
		job.Body = nil
		job.BodyRef = ref
	}

	if err := s.backend.Submit(ctx, job, o.delay); err != nil {
		return fmt.Errorf("failed to spool task %q: %w", t.desc.Name, err)
	}
	return nil
}

// Handle runs one deferred job. It is the single entry point for the worker
// framework and never returns task errors: failures are logged, retryable
// ones are resubmitted with a linearly growing delay, and the returned
// Status only tells the worker whether the job must be set aside. Handling the
// same job twice runs the task twice.
func (s *Spooler) Handle(ctx context.Context, job *Job) Status {
	if job == nil || job.Task == "" {
		if s.fallback != nil {
			return s.fallback(ctx, job)
		}
		s.logger.ErrorContext(ctx, "unknown spooler job, no fallback handler")
		return StatusIgnore
	}

	log := s.logger.With(
		logger.Task(job.Task),
		logger.JobID(job.ID),
		logger.Attempt(job.attempt()),
	)

	// received -> arguments decoded
	dec, err := s.decode(ctx, job)
	if errors.Is(err, ErrBodyStore) {
		return s.bodyUnavailable(ctx, log, job, err)
	}
	if err != nil {
		log.ErrorContext(ctx, "spooled task failed to load arguments; large parameters should be declared as bulky params",
			logger.Error(err))
		s.finish(ctx, job, StateFailedTerminal, err)
		return StatusOK
	}

	// arguments decoded -> executing
	t, ok := s.registry.Get(job.Task)
	if !ok {
		log.ErrorContext(ctx, "spooled task not registered; producer and worker may run different versions")
		s.notify(ctx, Event{Job: job, State: StateFailedTerminal, Err: ErrTaskNotRegistered})
		return StatusIgnore
	}

	err = t.execute(ctx, newCall(t, newEnvelope(true, job.attempt(), job.Retries), dec))
	switch {
	case err == nil:
		s.finish(ctx, job, StateSucceeded, nil)

	case t.desc.retryable(err) && job.Retries != nil && *job.Retries > 0:
		next := job.next()
		delay := time.Duration(job.attempt()) * s.period
		if serr := s.backend.Submit(ctx, next, delay); serr != nil {
			log.ErrorContext(ctx, "spooled task failed and could not be rescheduled",
				logger.Error(errors.Join(err, serr)))
			s.finish(ctx, job, StateFailedTerminal, errors.Join(err, serr))
			return StatusOK
		}
		log.WarnContext(ctx, "spooled task failed, rescheduled",
			logger.RetriesLeft(*next.Retries),
			logger.Delay(delay),
			logger.Error(err))
		s.notify(ctx, Event{Job: job, State: StateFailedRescheduled, Err: err, Next: next, Delay: delay})

	default:
		log.ErrorContext(ctx, "spooled task failed with uncaught error", logger.Error(err))
		s.finish(ctx, job, StateFailedTerminal, err)
	}

	return StatusOK
}

// HandlePayload decodes a payload produced by EncodeJob and handles it.
// An undecodable payload is logged and reported as StatusOK: delivering it
// again cannot succeed. Its Event carries a nil Job.
func (s *Spooler) HandlePayload(ctx context.Context, data []byte) Status {
	job, err := DecodeJob(data)
	if err != nil {
		s.logger.ErrorContext(ctx, "spooled job payload could not be decoded", logger.Error(err))
		s.notify(ctx, Event{State: StateFailedTerminal, Err: err})
		return StatusOK
	}
	return s.Handle(ctx, job)
}

// decode loads the body, if stored out of band, and decodes all arguments.
func (s *Spooler) decode(ctx context.Context, job *Job) (decodedArgs, error) {
	enc := encodedArgs{args: job.Args, kwargs: job.Kwargs, body: job.Body}
	if job.BodyRef != "" {
		if s.bodies == nil {
			return decodedArgs{}, fmt.Errorf("%w: job references body %q but no body store is configured",
				ErrMalformedJob, job.BodyRef)
		}
		body, err := s.bodies.Get(ctx, job.BodyRef)
		if err != nil {
			return decodedArgs{}, errors.Join(ErrBodyStore, err)
		}
		enc.body = body
	}
	return decodeArgs(enc)
}

// bodyUnavailable handles a job whose stored body could not be fetched. The
// read may succeed later, so the body is kept: the job is resubmitted while it
// has retries left and otherwise reported as StatusIgnore for the worker to
// dead-letter.
func (s *Spooler) bodyUnavailable(ctx context.Context, log *slog.Logger, job *Job, err error) Status {
	if job.Retries != nil && *job.Retries > 0 {
		next := job.next()
		delay := time.Duration(job.attempt()) * s.period
		serr := s.backend.Submit(ctx, next, delay)
		if serr == nil {
			log.WarnContext(ctx, "spooled task body unavailable, rescheduled",
				logger.RetriesLeft(*next.Retries),
				logger.Delay(delay),
				logger.Error(err))
			s.notify(ctx, Event{Job: job, State: StateFailedRescheduled, Err: err, Next: next, Delay: delay})
			return StatusOK
		}
		err = errors.Join(err, serr)
	}

	log.ErrorContext(ctx, "spooled task body unavailable, setting job aside", logger.Error(err))
	s.notify(ctx, Event{Job: job, State: StateFailedTerminal, Err: err})
	return StatusIgnore
}

// finish records a terminal outcome and releases the stored body.
func (s *Spooler) finish(ctx context.Context, job *Job, state State, err error) {
	if job.BodyRef != "" && s.bodies != nil {
		if derr := s.bodies.Delete(ctx, job.BodyRef); derr != nil {
			s.logger.WarnContext(ctx, "failed to delete spooled task body",
				logger.Task(job.Task),
				logger.JobID(job.ID),
				logger.Error(derr))
		}
	}
	s.notify(ctx, Event{Job: job, State: state, Err: err})
}

func (s *Spooler) notify(ctx context.Context, e Event) {
	for _, fn := range s.observers {
		fn(ctx, e)
	}
}

// pause sleeps between synchronous retries, returning early on cancellation.
func (s *Spooler) pause(ctx context.Context) error {
	if s.syncRetryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.syncRetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
