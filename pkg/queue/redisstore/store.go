package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
)

// claimAttempts bounds how often ClaimEntry retries after losing a race.
const claimAttempts = 5

var _ queue.Repository = (*Store)(nil)

// Store is a queue.Repository backed by Redis
type Store struct {
	db     redis.UniversalClient
	prefix string
}

// Option configures a Store
type Option func(*Store)

// WithKeyPrefix namespaces the store's keys
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New creates a store on an existing client
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{db: client, prefix: "spool"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) entriesKey() string { return s.prefix + ":entries" }
func (s *Store) pendingKey(q string) string { return s.prefix + ":pending:" + q }
func (s *Store) processingKey() string { return s.prefix + ":processing" }
func (s *Store) deadKey() string { return s.prefix + ":dead" }
func (s *Store) deadIndexKey() string { return s.prefix + ":dead:index" }

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// CreateEntry implements queue.EnqueuerRepository
func (s *Store) CreateEntry(ctx context.Context, entry *queue.Entry) error {
	if entry == nil {
		return errors.New("entry cannot be nil")
	}
	cp := *entry
	cp.Status = queue.EntryStatusPending
	data, err := json.Marshal(&cp)
	if err != nil {
		return err
	}

	created, err := createScript.Run(ctx, s.db,
		[]string{s.entriesKey(), s.pendingKey(cp.Queue)},
		cp.ID.String(), data, score(cp.ScheduledAt),
	).Int()
	if err != nil {
		return err
	}
	if created == 0 {
		return fmt.Errorf("%w: %s", queue.ErrEntryExists, cp.ID)
	}
	return nil
}

// ClaimEntry implements queue.WorkerRepository
func (s *Store) ClaimEntry(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Entry, error) {
	now := time.Now()
	if err := s.releaseExpired(ctx, now); err != nil {
		return nil, err
	}

	for range claimAttempts {
		id, q, err := s.earliestDue(ctx, queues, now)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, queue.ErrNoEntryToClaim
		}

		entry, err := s.load(ctx, id)
		if errors.Is(err, queue.ErrEntryNotFound) {
			// orphaned id, its entry is gone
			s.db.ZRem(ctx, s.pendingKey(q), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		lockUntil := now.Add(lockDuration)
		entry.Status = queue.EntryStatusProcessing
		entry.LockedUntil = &lockUntil
		entry.LockedBy = &workerID
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}

		moved, err := moveScript.Run(ctx, s.db,
			[]string{s.pendingKey(q), s.processingKey(), s.entriesKey()},
			id, data, score(lockUntil), "",
		).Int()
		if err != nil {
			return nil, err
		}
		if moved == 0 {
			continue // another worker won
		}
		return entry, nil
	}

	return nil, queue.ErrNoEntryToClaim
}

// earliestDue finds the due entry with the lowest run-at across queues.
func (s *Store) earliestDue(ctx context.Context, queues []string, now time.Time) (id, q string, err error) {
	best := 0.0
	for _, name := range queues {
		zs, err := s.db.ZRangeByScoreWithScores(ctx, s.pendingKey(name), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(now.UnixMilli(), 10),
			Count: 1,
		}).Result()
		if err != nil {
			return "", "", err
		}
		if len(zs) == 0 {
			continue
		}
		if id == "" || zs[0].Score < best {
			id, q, best = zs[0].Member.(string), name, zs[0].Score
		}
	}
	return id, q, nil
}

// releaseExpired moves entries whose lock has expired back to pending.
func (s *Store) releaseExpired(ctx context.Context, now time.Time) error {
	ids, err := s.db.ZRangeByScore(ctx, s.processingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		entry, err := s.load(ctx, id)
		if errors.Is(err, queue.ErrEntryNotFound) {
			s.db.ZRem(ctx, s.processingKey(), id)
			continue
		}
		if err != nil {
			return err
		}
		entry.Status = queue.EntryStatusPending
		entry.LockedUntil = nil
		entry.LockedBy = nil
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		// A lock extended since the range read is left alone.
		if err := moveScript.Run(ctx, s.db,
			[]string{s.processingKey(), s.pendingKey(entry.Queue), s.entriesKey()},
			id, data, score(now), score(now),
		).Err(); err != nil {
			return err
		}
	}
	return nil
}

// CompleteEntry implements queue.WorkerRepository
func (s *Store) CompleteEntry(ctx context.Context, entryID uuid.UUID) error {
	removed, err := completeScript.Run(ctx, s.db,
		[]string{s.processingKey(), s.entriesKey()},
		entryID.String(),
	).Int()
	if err != nil {
		return err
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", queue.ErrEntryNotProcessing, entryID)
	}
	return nil
}

// MoveToDLQ implements queue.WorkerRepository
func (s *Store) MoveToDLQ(ctx context.Context, entryID uuid.UUID, reason string) error {
	id := entryID.String()
	entry, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	dead := &queue.DeadEntry{
		ID:        uuid.New(),
		EntryID:   entry.ID,
		Queue:     entry.Queue,
		Name:      entry.Name,
		Payload:   entry.Payload,
		Reason:    reason,
		FailedAt:  now,
		CreatedAt: now,
	}
	data, err := json.Marshal(dead)
	if err != nil {
		return err
	}

	_, err = s.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.deadKey(), dead.ID.String(), data)
		pipe.ZAdd(ctx, s.deadIndexKey(), redis.Z{Score: score(now), Member: dead.ID.String()})
		pipe.HDel(ctx, s.entriesKey(), id)
		pipe.ZRem(ctx, s.processingKey(), id)
		pipe.ZRem(ctx, s.pendingKey(entry.Queue), id)
		return nil
	})
	return err
}

// ExtendLock implements queue.WorkerRepository
func (s *Store) ExtendLock(ctx context.Context, entryID uuid.UUID, duration time.Duration) error {
	id := entryID.String()
	if err := s.db.ZScore(ctx, s.processingKey(), id).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", queue.ErrEntryNotProcessing, entryID)
		}
		return err
	}
	lockUntil := time.Now().Add(duration)
	return s.db.ZAddArgs(ctx, s.processingKey(), redis.ZAddArgs{
		XX:      true,
		Members: []redis.Z{{Score: score(lockUntil), Member: id}},
	}).Err()
}

// ListDead implements queue.DeadLetterRepository. An empty queue lists all queues.
func (s *Store) ListDead(ctx context.Context, q string, limit int) ([]*queue.DeadEntry, error) {
	ids, err := s.db.ZRange(ctx, s.deadIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := s.db.HMGet(ctx, s.deadKey(), ids...).Result()
	if err != nil {
		return nil, err
	}

	var out []*queue.DeadEntry
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var dead queue.DeadEntry
		if err := json.Unmarshal([]byte(raw), &dead); err != nil {
			return nil, errors.Join(ErrCorruptEntry, err)
		}
		if q != "" && dead.Queue != q {
			continue
		}
		out = append(out, &dead)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// RequeueDead implements queue.DeadLetterRepository
func (s *Store) RequeueDead(ctx context.Context, deadID uuid.UUID) error {
	id := deadID.String()
	data, err := s.db.HGet(ctx, s.deadKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: dead entry %s", queue.ErrEntryNotFound, deadID)
	}
	if err != nil {
		return err
	}
	var dead queue.DeadEntry
	if err := json.Unmarshal(data, &dead); err != nil {
		return errors.Join(ErrCorruptEntry, err)
	}

	entry := dead.Revive()
	entryData, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	revived, err := reviveScript.Run(ctx, s.db,
		[]string{s.entriesKey(), s.pendingKey(entry.Queue), s.deadKey(), s.deadIndexKey()},
		entry.ID.String(), entryData, score(entry.ScheduledAt), id,
	).Int()
	if err != nil {
		return err
	}
	switch revived {
	case -1:
		return fmt.Errorf("%w: dead entry %s", queue.ErrEntryNotFound, deadID)
	case 0:
		return fmt.Errorf("%w: %s", queue.ErrEntryExists, entry.ID)
	}
	return nil
}

func (s *Store) load(ctx context.Context, id string) (*queue.Entry, error) {
	data, err := s.db.HGet(ctx, s.entriesKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", queue.ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var entry queue.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, errors.Join(ErrCorruptEntry, err)
	}
	return &entry, nil
}
