package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
)

var _ queue.Repository = (*Store)(nil)

// dbtx is satisfied by both the pool and a transaction
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a queue.Repository backed by PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on a migrated pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const entryColumns = `id, queue, name, payload, status, scheduled_at, locked_until, locked_by, processed_at, created_at`

func scanEntry(row pgx.Row) (*queue.Entry, error) {
	var e queue.Entry
	var status string
	if err := row.Scan(&e.ID, &e.Queue, &e.Name, &e.Payload, &status, &e.ScheduledAt,
		&e.LockedUntil, &e.LockedBy, &e.ProcessedAt, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Status = queue.EntryStatus(status)
	return &e, nil
}

// CreateEntry implements queue.EnqueuerRepository
func (s *Store) CreateEntry(ctx context.Context, entry *queue.Entry) error {
	if entry == nil {
		return errors.New("entry cannot be nil")
	}
	return insertEntry(ctx, s.pool, entry)
}

func insertEntry(ctx context.Context, db dbtx, entry *queue.Entry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.Exec(ctx, `
		INSERT INTO spool_entries (id, queue, name, payload, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)`,
		entry.ID, entry.Queue, entry.Name, entry.Payload, entry.ScheduledAt, createdAt)
	if isDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", queue.ErrEntryExists, entry.ID)
	}
	return err
}

// ClaimEntry implements queue.WorkerRepository. Pending entries and
// entries whose lock expired are both claimable; SKIP LOCKED lets
// concurrent workers pass over rows another transaction is claiming.
func (s *Store) ClaimEntry(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Entry, error) {
	now := time.Now()
	entry, err := scanEntry(s.pool.QueryRow(ctx, `
		UPDATE spool_entries
		SET status = 'processing', locked_until = $3, locked_by = $2
		WHERE id = (
			SELECT id FROM spool_entries
			WHERE queue = ANY($1)
			  AND scheduled_at <= $4
			  AND (status = 'pending' OR (status = 'processing' AND locked_until < $4))
			ORDER BY scheduled_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+entryColumns,
		queues, workerID, now.Add(lockDuration), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, queue.ErrNoEntryToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim entry: %w", err)
	}
	return entry, nil
}

// CompleteEntry implements queue.WorkerRepository
func (s *Store) CompleteEntry(ctx context.Context, entryID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE spool_entries
		SET status = 'completed', processed_at = now(), locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", queue.ErrEntryNotProcessing, entryID)
	}
	return nil
}

// MoveToDLQ implements queue.WorkerRepository
func (s *Store) MoveToDLQ(ctx context.Context, entryID uuid.UUID, reason string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var q, name string
		var payload []byte
		err := tx.QueryRow(ctx, `
			DELETE FROM spool_entries WHERE id = $1
			RETURNING queue, name, payload`, entryID).Scan(&q, &name, &payload)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", queue.ErrEntryNotFound, entryID)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO spool_dead_entries (id, entry_id, queue, name, payload, reason)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), entryID, q, name, payload, reason)
		return err
	})
}

// ExtendLock implements queue.WorkerRepository
func (s *Store) ExtendLock(ctx context.Context, entryID uuid.UUID, duration time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE spool_entries SET locked_until = $2
		WHERE id = $1 AND status = 'processing'`, entryID, time.Now().Add(duration))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", queue.ErrEntryNotProcessing, entryID)
	}
	return nil
}

// ListDead implements queue.DeadLetterRepository. An empty queue lists all
// queues; a non-positive limit lists everything.
func (s *Store) ListDead(ctx context.Context, q string, limit int) ([]*queue.DeadEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entry_id, queue, name, payload, reason, failed_at, created_at
		FROM spool_dead_entries
		WHERE $1 = '' OR queue = $1
		ORDER BY failed_at
		LIMIT NULLIF($2, 0)`, q, max(limit, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*queue.DeadEntry
	for rows.Next() {
		var d queue.DeadEntry
		if err := rows.Scan(&d.ID, &d.EntryID, &d.Queue, &d.Name, &d.Payload, &d.Reason, &d.FailedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// RequeueDead implements queue.DeadLetterRepository
func (s *Store) RequeueDead(ctx context.Context, deadID uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var d queue.DeadEntry
		err := tx.QueryRow(ctx, `
			DELETE FROM spool_dead_entries WHERE id = $1
			RETURNING id, entry_id, queue, name, payload, reason, failed_at, created_at`, deadID).
			Scan(&d.ID, &d.EntryID, &d.Queue, &d.Name, &d.Payload, &d.Reason, &d.FailedAt, &d.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: dead entry %s", queue.ErrEntryNotFound, deadID)
		}
		if err != nil {
			return err
		}
		return insertEntry(ctx, tx, d.Revive())
	})
}

// PurgeCompleted deletes completed entries processed before the cutoff.
func (s *Store) PurgeCompleted(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM spool_entries WHERE status = 'completed' AND processed_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
