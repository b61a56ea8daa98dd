package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue/queuetest"
)

func newEntry(queueName string, at time.Time) *queue.Entry {
	return &queue.Entry{
		ID:          uuid.New(),
		Queue:       queueName,
		Name:        "test",
		Payload:     []byte(`{}`),
		Status:      queue.EntryStatusPending,
		ScheduledAt: at,
		CreatedAt:   time.Now(),
	}
}

func TestMemoryStorage_CreateEntry(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	entry := newEntry(queue.DefaultQueueName, time.Now())

	require.NoError(t, storage.CreateEntry(context.Background(), entry))
	assert.ErrorIs(t, storage.CreateEntry(context.Background(), entry), queue.ErrEntryExists)
	assert.Error(t, storage.CreateEntry(context.Background(), nil))
	assert.Equal(t, 1, storage.Count(queue.EntryStatusPending))
}

func TestMemoryStorage_ClaimEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	worker := uuid.New()

	t.Run("earliest due entry first", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		now := time.Now()
		late := newEntry("default", now.Add(-time.Second))
		early := newEntry("default", now.Add(-time.Minute))
		future := newEntry("default", now.Add(time.Hour))
		other := newEntry("other", now.Add(-time.Hour))
		for _, e := range []*queue.Entry{late, early, future, other} {
			require.NoError(t, storage.CreateEntry(ctx, e))
		}

		got, err := storage.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, early.ID, got.ID)
		assert.Equal(t, queue.EntryStatusProcessing, got.Status)
		require.NotNil(t, got.LockedBy)
		assert.Equal(t, worker, *got.LockedBy)

		got, err = storage.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, late.ID, got.ID)

		_, err = storage.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoEntryToClaim)
	})

	t.Run("expired locks are released", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		entry := newEntry("default", time.Now().Add(-time.Second))
		require.NoError(t, storage.CreateEntry(ctx, entry))

		_, err := storage.ClaimEntry(ctx, worker, []string{"default"}, time.Millisecond)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)

		got, err := storage.ClaimEntry(ctx, uuid.New(), []string{"default"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, got.ID)
	})

	t.Run("concurrent claims hand out each entry once", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		const n = 50
		for range n {
			require.NoError(t, storage.CreateEntry(ctx, newEntry("default", time.Now().Add(-time.Second))))
		}

		var mu sync.Mutex
		seen := make(map[uuid.UUID]int)
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					e, err := storage.ClaimEntry(ctx, uuid.New(), []string{"default"}, time.Minute)
					if err != nil {
						return
					}
					mu.Lock()
					seen[e.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, n)
		for _, count := range seen {
			assert.Equal(t, 1, count)
		}
	})
}

func TestMemoryStorage_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	worker := uuid.New()

	done := newEntry("default", time.Now())
	dead := newEntry("default", time.Now())
	require.NoError(t, storage.CreateEntry(ctx, done))
	require.NoError(t, storage.CreateEntry(ctx, dead))

	assert.ErrorIs(t, storage.CompleteEntry(ctx, done.ID), queue.ErrEntryNotProcessing)
	assert.ErrorIs(t, storage.CompleteEntry(ctx, uuid.New()), queue.ErrEntryNotFound)
	assert.ErrorIs(t, storage.ExtendLock(ctx, done.ID, time.Minute), queue.ErrEntryNotProcessing)

	first, err := storage.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, storage.ExtendLock(ctx, first.ID, time.Hour))
	require.NoError(t, storage.CompleteEntry(ctx, first.ID))

	completed, ok := storage.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, queue.EntryStatusCompleted, completed.Status)
	assert.NotNil(t, completed.ProcessedAt)
	assert.Nil(t, completed.LockedBy)

	second, err := storage.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, storage.MoveToDLQ(ctx, second.ID, "not recognised"))
	_, ok = storage.Get(second.ID)
	assert.False(t, ok)

	list, err := storage.ListDead(ctx, "default", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].EntryID)
	assert.Equal(t, "not recognised", list[0].Reason)
	assert.Equal(t, second.Payload, list[0].Payload)

	empty, err := storage.ListDead(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, storage.RequeueDead(ctx, list[0].ID))
	assert.ErrorIs(t, storage.RequeueDead(ctx, list[0].ID), queue.ErrEntryNotFound)
	assert.Equal(t, 1, storage.Count(queue.EntryStatusPending))

	revived, err := storage.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, second.Name, revived.Name)
	assert.NotEqual(t, second.ID, revived.ID)
}

func TestMemoryStorage_PurgeCompleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	worker := uuid.New()

	for range 3 {
		require.NoError(t, storage.CreateEntry(ctx, newEntry("default", time.Now())))
	}
	var done []uuid.UUID
	for range 2 {
		e, err := storage.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, storage.CompleteEntry(ctx, e.ID))
		done = append(done, e.ID)
	}

	n, err := storage.PurgeCompleted(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "recent completions are retained")
	assert.Equal(t, 2, storage.Count(queue.EntryStatusCompleted))

	n, err = storage.PurgeCompleted(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Zero(t, storage.Count(queue.EntryStatusCompleted))
	for _, id := range done {
		_, ok := storage.Get(id)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, storage.Count(queue.EntryStatusPending), "pending entries are untouched")
}

func TestRequeueAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	for range 5 {
		e := newEntry("mail", time.Now())
		require.NoError(t, storage.CreateEntry(ctx, e))
		require.NoError(t, storage.MoveToDLQ(ctx, e.ID, "unknown"))
	}

	n, err := queue.RequeueAll(ctx, storage, "mail", 2)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, storage.Count(queue.EntryStatusPending))

	_, err = queue.RequeueAll(ctx, nil, "mail", 2)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)
}

func TestMemoryStorage_Contract(t *testing.T) {
	t.Parallel()

	queuetest.Run(t, func(*testing.T) queue.Repository {
		return queue.NewMemoryStorage()
	})
}
