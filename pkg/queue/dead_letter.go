package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DeadLetterRepository lists and revives dead entries
type DeadLetterRepository interface {
	ListDead(ctx context.Context, queue string, limit int) ([]*DeadEntry, error)
	// RequeueDead turns a dead entry back into a pending entry and
	// removes it from the dead letter queue.
	RequeueDead(ctx context.Context, deadID uuid.UUID) error
}

// RequeueAll revives every dead entry of a queue, at most limit per page,
// and returns how many were requeued.
func RequeueAll(ctx context.Context, repo DeadLetterRepository, queue string, limit int) (int, error) {
	if repo == nil {
		return 0, ErrRepositoryNil
	}
	if limit <= 0 {
		limit = 100
	}

	total := 0
	for {
		dead, err := repo.ListDead(ctx, queue, limit)
		if err != nil {
			return total, fmt.Errorf("failed to list dead entries in queue %q: %w", queue, err)
		}
		if len(dead) == 0 {
			return total, nil
		}
		for _, d := range dead {
			if err := repo.RequeueDead(ctx, d.ID); err != nil {
				return total, fmt.Errorf("failed to requeue dead entry %s: %w", d.ID, err)
			}
			total++
		}
	}
}
