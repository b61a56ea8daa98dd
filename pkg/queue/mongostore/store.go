package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
)

var _ queue.Repository = (*Store)(nil)

// Store is a queue.Repository backed by MongoDB
type Store struct {
	entries *mongo.Collection
	dead    *mongo.Collection
}

// New creates a store using <prefix>_entries and <prefix>_dead_entries in db.
func New(db *mongo.Database, prefix string) *Store {
	if prefix == "" {
		prefix = "spool"
	}
	return &Store{
		entries: db.Collection(prefix + "_entries"),
		dead:    db.Collection(prefix + "_dead_entries"),
	}
}

// EnsureIndexes creates the indexes claims and dead letter listing rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "queue", Value: 1}, {Key: "scheduled_at", Value: 1}}},
		{Keys: bson.D{{Key: "locked_until", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create entry indexes: %w", err)
	}
	if _, err := s.dead.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "queue", Value: 1}, {Key: "failed_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("failed to create dead entry indexes: %w", err)
	}
	return nil
}

type entryDoc struct {
	ID          string     `bson:"_id"`
	Queue       string     `bson:"queue"`
	Name        string     `bson:"name"`
	Payload     []byte     `bson:"payload,omitempty"`
	Status      string     `bson:"status"`
	ScheduledAt time.Time  `bson:"scheduled_at"`
	LockedUntil *time.Time `bson:"locked_until,omitempty"`
	LockedBy    string     `bson:"locked_by,omitempty"`
	ProcessedAt *time.Time `bson:"processed_at,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"`
}

func (d *entryDoc) entry() (*queue.Entry, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("entry %q: %w", d.ID, err)
	}
	e := &queue.Entry{
		ID:          id,
		Queue:       d.Queue,
		Name:        d.Name,
		Payload:     d.Payload,
		Status:      queue.EntryStatus(d.Status),
		ScheduledAt: d.ScheduledAt,
		LockedUntil: d.LockedUntil,
		ProcessedAt: d.ProcessedAt,
		CreatedAt:   d.CreatedAt,
	}
	if d.LockedBy != "" {
		if by, err := uuid.Parse(d.LockedBy); err == nil {
			e.LockedBy = &by
		}
	}
	return e, nil
}

type deadDoc struct {
	ID        string    `bson:"_id"`
	EntryID   string    `bson:"entry_id"`
	Queue     string    `bson:"queue"`
	Name      string    `bson:"name"`
	Payload   []byte    `bson:"payload,omitempty"`
	Reason    string    `bson:"reason"`
	FailedAt  time.Time `bson:"failed_at"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d *deadDoc) deadEntry() (*queue.DeadEntry, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	entryID, err := uuid.Parse(d.EntryID)
	if err != nil {
		return nil, err
	}
	return &queue.DeadEntry{
		ID:        id,
		EntryID:   entryID,
		Queue:     d.Queue,
		Name:      d.Name,
		Payload:   d.Payload,
		Reason:    d.Reason,
		FailedAt:  d.FailedAt,
		CreatedAt: d.CreatedAt,
	}, nil
}

// CreateEntry implements queue.EnqueuerRepository
func (s *Store) CreateEntry(ctx context.Context, entry *queue.Entry) error {
	if entry == nil {
		return errors.New("entry cannot be nil")
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.entries.InsertOne(ctx, entryDoc{
		ID:          entry.ID.String(),
		Queue:       entry.Queue,
		Name:        entry.Name,
		Payload:     entry.Payload,
		Status:      string(queue.EntryStatusPending),
		ScheduledAt: entry.ScheduledAt,
		CreatedAt:   createdAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", queue.ErrEntryExists, entry.ID)
	}
	return err
}

// ClaimEntry implements queue.WorkerRepository. FindOneAndUpdate is atomic
// per document, so two workers never receive the same entry.
func (s *Store) ClaimEntry(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Entry, error) {
	now := time.Now()
	filter := bson.M{
		"queue":        bson.M{"$in": queues},
		"scheduled_at": bson.M{"$lte": now},
		"$or": bson.A{
			bson.M{"status": string(queue.EntryStatusPending)},
			bson.M{"status": string(queue.EntryStatusProcessing), "locked_until": bson.M{"$lt": now}},
		},
	}
	update := bson.M{"$set": bson.M{
		"status":       string(queue.EntryStatusProcessing),
		"locked_until": now.Add(lockDuration),
		"locked_by":    workerID.String(),
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "scheduled_at", Value: 1}}).
		SetReturnDocument(options.After)

	var doc entryDoc
	err := s.entries.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, queue.ErrNoEntryToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim entry: %w", err)
	}
	return doc.entry()
}

// CompleteEntry implements queue.WorkerRepository
func (s *Store) CompleteEntry(ctx context.Context, entryID uuid.UUID) error {
	res, err := s.entries.UpdateOne(ctx,
		bson.M{"_id": entryID.String(), "status": string(queue.EntryStatusProcessing)},
		bson.M{
			"$set":   bson.M{"status": string(queue.EntryStatusCompleted), "processed_at": time.Now()},
			"$unset": bson.M{"locked_until": "", "locked_by": ""},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", queue.ErrEntryNotProcessing, entryID)
	}
	return nil
}

// MoveToDLQ implements queue.WorkerRepository. The entry is removed before
// the dead entry is written; a crash in between loses the entry.
func (s *Store) MoveToDLQ(ctx context.Context, entryID uuid.UUID, reason string) error {
	var doc entryDoc
	err := s.entries.FindOneAndDelete(ctx, bson.M{"_id": entryID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s", queue.ErrEntryNotFound, entryID)
	}
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = s.dead.InsertOne(ctx, deadDoc{
		ID:        uuid.NewString(),
		EntryID:   doc.ID,
		Queue:     doc.Queue,
		Name:      doc.Name,
		Payload:   doc.Payload,
		Reason:    reason,
		FailedAt:  now,
		CreatedAt: now,
	})
	return err
}

// ExtendLock implements queue.WorkerRepository
func (s *Store) ExtendLock(ctx context.Context, entryID uuid.UUID, duration time.Duration) error {
	res, err := s.entries.UpdateOne(ctx,
		bson.M{"_id": entryID.String(), "status": string(queue.EntryStatusProcessing)},
		bson.M{"$set": bson.M{"locked_until": time.Now().Add(duration)}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", queue.ErrEntryNotProcessing, entryID)
	}
	return nil
}

// ListDead implements queue.DeadLetterRepository. An empty queue lists all queues.
func (s *Store) ListDead(ctx context.Context, q string, limit int) ([]*queue.DeadEntry, error) {
	filter := bson.M{}
	if q != "" {
		filter["queue"] = q
	}
	opts := options.Find().SetSort(bson.D{{Key: "failed_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.dead.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []deadDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]*queue.DeadEntry, 0, len(docs))
	for i := range docs {
		d, err := docs[i].deadEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// RequeueDead implements queue.DeadLetterRepository
func (s *Store) RequeueDead(ctx context.Context, deadID uuid.UUID) error {
	var doc deadDoc
	err := s.dead.FindOneAndDelete(ctx, bson.M{"_id": deadID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: dead entry %s", queue.ErrEntryNotFound, deadID)
	}
	if err != nil {
		return err
	}
	dead, err := doc.deadEntry()
	if err != nil {
		return err
	}
	return s.CreateEntry(ctx, dead.Revive())
}
