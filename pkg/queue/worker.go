package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/spool"
)

// WorkerRepository defines the interface for worker operations
type WorkerRepository interface {
	// ClaimEntry atomically claims the earliest due entry. It returns
	// ErrNoEntryToClaim when nothing is due.
	ClaimEntry(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Entry, error)

	// CompleteEntry marks a claimed entry as completed
	CompleteEntry(ctx context.Context, entryID uuid.UUID) error

	// MoveToDLQ moves an entry to the dead letter queue
	MoveToDLQ(ctx context.Context, entryID uuid.UUID, reason string) error

	// ExtendLock extends the lock timeout for long-running entries
	ExtendLock(ctx context.Context, entryID uuid.UUID, duration time.Duration) error
}

// Worker claims entries and dispatches them to a Handler
type Worker struct {
	repo     WorkerRepository
	handler  Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	stopMu   sync.Mutex // Protects stopping state and WaitGroup operations

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new worker
func NewWorker(repo WorkerRepository, handler Handler, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       5 * time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	id := uuid.New()
	return &Worker{
		repo:         repo,
		handler:      handler,
		queues:       options.queues,
		workerID:     id,
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger.With(logger.Component("worker"), logger.WorkerID(id)),
	}, nil
}

// Start begins processing entries in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerStarted
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)

	go w.run()

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker, waiting for in-flight entries
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for active entries to complete")
	w.wg.Wait()
	w.logger.Info("worker stopped")

	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

// run is the main processing loop
func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				// stopMu keeps wg.Add from racing with Stop's wg.Wait
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if _, err := w.ProcessNext(w.ctx); err != nil {
						w.logger.Error("failed to process entry", logger.Error(err))
					}
				}()
			default:
				w.logger.Debug("all worker slots busy, skipping tick")
			}
		}
	}
}

// ProcessNext claims one due entry and handles it. It reports false when
// no entry was due.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	entry, err := w.repo.ClaimEntry(ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoEntryToClaim) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim entry: %w", err)
	}
	if entry == nil {
		return false, nil
	}

	w.logger.Debug("claimed entry",
		logger.EntryID(entry.ID),
		logger.Task(entry.Name),
		logger.Queue(entry.Queue))

	return true, w.process(ctx, entry)
}

// process runs the handler and settles the entry according to its status
func (w *Worker) process(ctx context.Context, entry *Entry) error {
	start := time.Now()

	// Handlers get their own deadline so shutdown lets in-flight entries finish.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.lockTimeout)
	defer cancel()

	status, perr := w.invoke(hctx, entry)
	duration := time.Since(start)

	if perr != nil {
		w.logger.Error("handler panicked",
			logger.EntryID(entry.ID),
			logger.Task(entry.Name),
			logger.Error(perr))
		return w.bury(ctx, entry, perr.Error())
	}

	if status == spool.StatusIgnore {
		w.logger.Error("entry set aside by handler",
			logger.EntryID(entry.ID),
			logger.Task(entry.Name),
			logger.Queue(entry.Queue))
		return w.bury(ctx, entry, "set aside by handler: "+entry.Name)
	}

	if err := w.repo.CompleteEntry(ctx, entry.ID); err != nil {
		return fmt.Errorf("failed to mark entry %s as completed: %w", entry.ID, err)
	}

	w.logger.Info("entry completed",
		logger.EntryID(entry.ID),
		logger.Task(entry.Name),
		logger.Queue(entry.Queue),
		logger.Duration(duration))

	return nil
}

func (w *Worker) invoke(ctx context.Context, entry *Entry) (status spool.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return w.handler.Handle(ctx, entry), nil
}

// bury moves an entry to the dead letter queue. Redelivery cannot help
// until a handler that recognises it is deployed; the entry can then be
// requeued.
func (w *Worker) bury(ctx context.Context, entry *Entry, reason string) error {
	if err := w.repo.MoveToDLQ(ctx, entry.ID, reason); err != nil {
		return fmt.Errorf("failed to move entry %s to DLQ: %w", entry.ID, err)
	}
	w.logger.Warn("entry moved to dead letter queue",
		logger.EntryID(entry.ID),
		logger.Task(entry.Name))
	return nil
}

// ExtendLock extends the lock of a long-running entry
func (w *Worker) ExtendLock(ctx context.Context, entryID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, entryID, extension)
}

// WorkerInfo returns information about the worker
func (w *Worker) WorkerInfo() (id string, hostname string, pid int) {
	hostname, _ = os.Hostname()
	return w.workerID.String(), hostname, os.Getpid()
}
