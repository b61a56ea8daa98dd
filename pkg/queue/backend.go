package queue

import (
	"context"
	"time"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/spool"
)

// Backend submits spool jobs as queue entries. It implements spool.Backend.
type Backend struct {
	enqueuer *Enqueuer
}

// NewBackend wraps an enqueuer. A nil enqueuer yields a backend that
// reports itself as not deferrable.
func NewBackend(e *Enqueuer) *Backend {
	return &Backend{enqueuer: e}
}

// Deferrable reports whether jobs can be submitted.
func (b *Backend) Deferrable() bool {
	return b != nil && b.enqueuer != nil
}

// Submit encodes the job and stores it, claimable after delay.
func (b *Backend) Submit(ctx context.Context, job *spool.Job, delay time.Duration) error {
	if !b.Deferrable() {
		return spool.ErrNotDeferrable
	}
	data, err := spool.EncodeJob(job)
	if err != nil {
		return err
	}
	return b.enqueuer.Enqueue(ctx, data,
		WithEntryID(job.ID),
		WithName(job.Task),
		WithQueue(job.Queue),
		WithDelay(delay),
	)
}
