package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// EntryStatus represents the status of a queue entry
type EntryStatus string

const (
	EntryStatusPending    EntryStatus = "pending"
	EntryStatusProcessing EntryStatus = "processing"
	EntryStatusCompleted  EntryStatus = "completed"
)

// Entry is one stored job waiting for, or claimed by, a worker.
// Retry state lives in the payload, so an entry is handled exactly once
// unless its lock expires.
type Entry struct {
	ID          uuid.UUID   `json:"id"`
	Queue       string      `json:"queue"`
	Name        string      `json:"name"`
	Payload     []byte      `json:"payload,omitempty"`
	Status      EntryStatus `json:"status"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	LockedUntil *time.Time  `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID  `json:"locked_by,omitempty"`
	ProcessedAt *time.Time  `json:"processed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// DeadEntry is an entry no handler could process.
// It keeps the payload so the entry can be requeued after a redeploy.
type DeadEntry struct {
	ID        uuid.UUID `json:"id"`
	EntryID   uuid.UUID `json:"entry_id"`
	Queue     string    `json:"queue"`
	Name      string    `json:"name"`
	Payload   []byte    `json:"payload,omitempty"`
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Revive builds a fresh pending entry from a dead one.
func (d *DeadEntry) Revive() *Entry {
	now := time.Now()
	return &Entry{
		ID:          uuid.New(),
		Queue:       d.Queue,
		Name:        d.Name,
		Payload:     d.Payload,
		Status:      EntryStatusPending,
		ScheduledAt: now,
		CreatedAt:   now,
	}
}
