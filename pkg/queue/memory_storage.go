package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements all queue repository interfaces for tests and local development
type MemoryStorage struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry
	dlq     map[uuid.UUID]*DeadEntry

	// Indexes for efficient queries
	byStatus map[EntryStatus][]uuid.UUID
	dlqOrder []uuid.UUID
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries:  make(map[uuid.UUID]*Entry),
		dlq:      make(map[uuid.UUID]*DeadEntry),
		byStatus: make(map[EntryStatus][]uuid.UUID),
	}
}

// CreateEntry implements EnqueuerRepository
func (ms *MemoryStorage) CreateEntry(_ context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.entries[entry.ID]; exists {
		return fmt.Errorf("%w: %s", ErrEntryExists, entry.ID)
	}

	cp := *entry
	if cp.Status == "" {
		cp.Status = EntryStatusPending
	}
	ms.entries[cp.ID] = &cp
	ms.byStatus[cp.Status] = append(ms.byStatus[cp.Status], cp.ID)

	return nil
}

// ClaimEntry implements WorkerRepository. Entries whose lock expired are
// released before the earliest due entry is picked.
func (ms *MemoryStorage) ClaimEntry(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Entry, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	ms.expireLocks(now)

	var best *Entry
	for _, id := range ms.byStatus[EntryStatusPending] {
		entry := ms.entries[id]
		if !slices.Contains(queues, entry.Queue) {
			continue
		}
		if entry.ScheduledAt.After(now) {
			continue
		}
		if best == nil || entry.ScheduledAt.Before(best.ScheduledAt) {
			best = entry
		}
	}

	if best == nil {
		return nil, ErrNoEntryToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = EntryStatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID
	ms.move(best.ID, EntryStatusPending, EntryStatusProcessing)

	cp := *best
	return &cp, nil
}

// CompleteEntry implements WorkerRepository
func (ms *MemoryStorage) CompleteEntry(_ context.Context, entryID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, exists := ms.entries[entryID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if entry.Status != EntryStatusProcessing {
		return fmt.Errorf("%w: %s", ErrEntryNotProcessing, entryID)
	}

	now := time.Now()
	entry.Status = EntryStatusCompleted
	entry.ProcessedAt = &now
	entry.LockedUntil = nil
	entry.LockedBy = nil
	ms.move(entryID, EntryStatusProcessing, EntryStatusCompleted)

	return nil
}

// MoveToDLQ implements WorkerRepository
func (ms *MemoryStorage) MoveToDLQ(_ context.Context, entryID uuid.UUID, reason string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, exists := ms.entries[entryID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}

	now := time.Now()
	dead := &DeadEntry{
		ID:        uuid.New(),
		EntryID:   entry.ID,
		Queue:     entry.Queue,
		Name:      entry.Name,
		Payload:   entry.Payload,
		Reason:    reason,
		FailedAt:  now,
		CreatedAt: now,
	}
	ms.dlq[dead.ID] = dead
	ms.dlqOrder = append(ms.dlqOrder, dead.ID)

	ms.removeFromStatusIndex(entryID, entry.Status)
	delete(ms.entries, entryID)

	return nil
}

// ExtendLock implements WorkerRepository
func (ms *MemoryStorage) ExtendLock(_ context.Context, entryID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, exists := ms.entries[entryID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if entry.Status != EntryStatusProcessing {
		return fmt.Errorf("%w: %s", ErrEntryNotProcessing, entryID)
	}

	lockUntil := time.Now().Add(duration)
	entry.LockedUntil = &lockUntil

	return nil
}

// ListDead implements DeadLetterRepository. An empty queue lists all queues.
func (ms *MemoryStorage) ListDead(_ context.Context, queue string, limit int) ([]*DeadEntry, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var out []*DeadEntry
	for _, id := range ms.dlqOrder {
		d := ms.dlq[id]
		if queue != "" && d.Queue != queue {
			continue
		}
		cp := *d
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// RequeueDead implements DeadLetterRepository
func (ms *MemoryStorage) RequeueDead(_ context.Context, deadID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	dead, exists := ms.dlq[deadID]
	if !exists {
		return fmt.Errorf("%w: dead entry %s", ErrEntryNotFound, deadID)
	}

	entry := dead.Revive()
	ms.entries[entry.ID] = entry
	ms.byStatus[EntryStatusPending] = append(ms.byStatus[EntryStatusPending], entry.ID)

	delete(ms.dlq, deadID)
	ms.dlqOrder = slices.DeleteFunc(ms.dlqOrder, func(id uuid.UUID) bool { return id == deadID })

	return nil
}

// PurgeCompleted deletes completed entries processed before the cutoff and
// returns how many were removed.
func (ms *MemoryStorage) PurgeCompleted(_ context.Context, before time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var n int64
	for _, id := range slices.Clone(ms.byStatus[EntryStatusCompleted]) {
		entry := ms.entries[id]
		if entry.ProcessedAt == nil || !entry.ProcessedAt.Before(before) {
			continue
		}
		ms.removeFromStatusIndex(id, EntryStatusCompleted)
		delete(ms.entries, id)
		n++
	}
	return n, nil
}

// Get returns a copy of a stored entry
func (ms *MemoryStorage) Get(entryID uuid.UUID) (*Entry, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, ok := ms.entries[entryID]
	if !ok {
		return nil, false
	}
	cp := *entry
	return &cp, true
}

// Count returns the number of entries with the given status
func (ms *MemoryStorage) Count(status EntryStatus) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.byStatus[status])
}

// expireLocks releases entries whose worker died holding the lock.
// Callers must hold ms.mu.
func (ms *MemoryStorage) expireLocks(now time.Time) {
	for _, id := range slices.Clone(ms.byStatus[EntryStatusProcessing]) {
		entry := ms.entries[id]
		if entry.LockedUntil != nil && entry.LockedUntil.Before(now) {
			entry.Status = EntryStatusPending
			entry.LockedUntil = nil
			entry.LockedBy = nil
			ms.move(id, EntryStatusProcessing, EntryStatusPending)
		}
	}
}

func (ms *MemoryStorage) move(id uuid.UUID, from, to EntryStatus) {
	ms.removeFromStatusIndex(id, from)
	ms.byStatus[to] = append(ms.byStatus[to], id)
}

func (ms *MemoryStorage) removeFromStatusIndex(id uuid.UUID, status EntryStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(v uuid.UUID) bool {
		return v == id
	})
}
