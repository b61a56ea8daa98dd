// Package queue is the worker framework deferred spool jobs run on.
//
// The package is organised around three components:
//
//   - Enqueuer  stores payloads as pending entries, optionally delayed
//   - Worker    claims due entries and hands them to a Handler
//   - Backend   adapts an Enqueuer to spool.Backend
//
// Components interact only through small repository interfaces, so the
// queue can be backed by any storage engine. MemoryStorage ships with the
// package; Redis, PostgreSQL and MongoDB repositories live in the
// redisstore, pgstore and mongostore subpackages.
//
// # Entry lifecycle
//
// An entry is claimed by one worker at a time. The claim holds a lock for
// the configured lock timeout; if the worker dies the lock expires and the
// entry becomes claimable again. The Handler's spool.Status decides the
// outcome:
//
//   - spool.StatusOK completes the entry, whatever the task's own result.
//     Retries are separate entries submitted by the spooler.
//   - spool.StatusIgnore moves the entry to the dead letter queue. Dead
//     entries keep their payload and can be revived with RequeueAll once
//     a worker that knows the task is deployed.
//
// A panicking handler also sends its entry to the dead letter queue.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	enqueuer, _ := queue.NewEnqueuer(storage)
//
//	sp := spool.New(spool.WithBackend(queue.NewBackend(enqueuer)))
//	sendEmail := sp.MustRegister(spool.Descriptor{...})
//
//	worker, _ := queue.NewWorker(storage, queue.SpoolHandler(sp),
//		queue.WithPullInterval(time.Second))
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(worker.Run(ctx))
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrNoEntryToClaim, ErrEntryNotFound)
// can be checked with errors.Is.
package queue
