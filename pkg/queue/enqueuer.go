package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository defines the interface for entry creation
type EnqueuerRepository interface {
	CreateEntry(ctx context.Context, entry *Entry) error
}

// Enqueuer stores payloads as pending entries
type Enqueuer struct {
	repo         EnqueuerRepository
	defaultQueue string
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue: DefaultQueueName,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:         repo,
		defaultQueue: options.defaultQueue,
	}, nil
}

// Enqueue adds a new entry to the queue. Byte slices and json.RawMessage
// are stored as is; anything else is marshaled to JSON.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	if payload == nil {
		return ErrPayloadNil
	}

	options := &enqueueOptions{
		queue: e.defaultQueue,
	}
	for _, opt := range opts {
		opt(options)
	}

	entry, err := e.buildEntry(payload, options)
	if err != nil {
		return err
	}

	if err := e.repo.CreateEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to create entry %q in queue %q: %w", entry.Name, entry.Queue, errors.Join(ErrEntryCreate, err))
	}

	return nil
}

// buildEntry constructs an Entry from payload and options
func (e *Enqueuer) buildEntry(payload any, options *enqueueOptions) (*Entry, error) {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case json.RawMessage:
		data = p
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("%w: %T: %w", ErrPayloadMarshal, payload, err)
		}
	}

	name := options.name
	if name == "" {
		name = payloadName(payload)
	}

	now := time.Now()
	scheduledAt := now
	if options.scheduledAt != nil {
		scheduledAt = *options.scheduledAt
	} else if options.delay > 0 {
		scheduledAt = scheduledAt.Add(options.delay)
	}

	id := options.id
	if id == uuid.Nil {
		id = uuid.New()
	}

	return &Entry{
		ID:          id,
		Queue:       options.queue,
		Name:        name,
		Payload:     data,
		Status:      EntryStatusPending,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	}, nil
}

func payloadName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
