// Package queuetest holds a behaviour suite every queue.Repository must pass.
package queuetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
)

// Factory returns an empty repository. Each call must be isolated from
// the others, for example by using a fresh key prefix or schema.
type Factory func(t *testing.T) queue.Repository

// Entry builds a pending entry for q scheduled at at.
func Entry(q string, at time.Time) *queue.Entry {
	return &queue.Entry{
		ID:          uuid.New(),
		Queue:       q,
		Name:        "send_email",
		Payload:     []byte(`{"task":"send_email"}`),
		Status:      queue.EntryStatusPending,
		ScheduledAt: at,
		CreatedAt:   time.Now(),
	}
}

// Run exercises the repository contract.
func Run(t *testing.T, newRepo Factory) {
	t.Helper()
	ctx := context.Background()
	worker := uuid.New()

	t.Run("claims earliest due entry", func(t *testing.T) {
		repo := newRepo(t)
		now := time.Now()
		late := Entry("default", now.Add(-time.Second))
		early := Entry("default", now.Add(-time.Minute))
		future := Entry("default", now.Add(time.Hour))
		other := Entry("other", now.Add(-time.Hour))
		for _, e := range []*queue.Entry{late, early, future, other} {
			require.NoError(t, repo.CreateEntry(ctx, e))
		}
		assert.ErrorIs(t, repo.CreateEntry(ctx, late), queue.ErrEntryExists)

		got, err := repo.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, early.ID, got.ID)
		assert.Equal(t, queue.EntryStatusProcessing, got.Status)
		assert.Equal(t, early.Payload, got.Payload)

		got, err = repo.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, late.ID, got.ID)

		_, err = repo.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoEntryToClaim)

		got, err = repo.ClaimEntry(ctx, worker, []string{"default", "other"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, other.ID, got.ID)
	})

	t.Run("complete and extend", func(t *testing.T) {
		repo := newRepo(t)
		e := Entry("default", time.Now().Add(-time.Second))
		require.NoError(t, repo.CreateEntry(ctx, e))
		assert.ErrorIs(t, repo.CompleteEntry(ctx, e.ID), queue.ErrEntryNotProcessing)

		got, err := repo.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, repo.ExtendLock(ctx, got.ID, time.Hour))
		require.NoError(t, repo.CompleteEntry(ctx, got.ID))
		assert.Error(t, repo.CompleteEntry(ctx, got.ID))
		assert.Error(t, repo.ExtendLock(ctx, got.ID, time.Hour))

		_, err = repo.ClaimEntry(ctx, worker, []string{"default"}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoEntryToClaim)
	})

	t.Run("expired lock makes entry claimable", func(t *testing.T) {
		repo := newRepo(t)
		e := Entry("default", time.Now().Add(-time.Second))
		require.NoError(t, repo.CreateEntry(ctx, e))

		_, err := repo.ClaimEntry(ctx, worker, []string{"default"}, 10*time.Millisecond)
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)

		got, err := repo.ClaimEntry(ctx, uuid.New(), []string{"default"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
	})

	t.Run("dead letter round trip", func(t *testing.T) {
		repo := newRepo(t)
		e := Entry("mail", time.Now().Add(-time.Second))
		require.NoError(t, repo.CreateEntry(ctx, e))
		got, err := repo.ClaimEntry(ctx, worker, []string{"mail"}, time.Minute)
		require.NoError(t, err)

		require.NoError(t, repo.MoveToDLQ(ctx, got.ID, "set aside by handler: send_email"))
		assert.ErrorIs(t, repo.MoveToDLQ(ctx, got.ID, "again"), queue.ErrEntryNotFound)

		dead, err := repo.ListDead(ctx, "mail", 10)
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, e.ID, dead[0].EntryID)
		assert.Equal(t, e.Name, dead[0].Name)
		assert.Equal(t, e.Payload, dead[0].Payload)
		assert.Equal(t, "set aside by handler: send_email", dead[0].Reason)

		none, err := repo.ListDead(ctx, "default", 10)
		require.NoError(t, err)
		assert.Empty(t, none)

		n, err := queue.RequeueAll(ctx, repo, "", 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.ErrorIs(t, repo.RequeueDead(ctx, dead[0].ID), queue.ErrEntryNotFound)

		revived, err := repo.ClaimEntry(ctx, worker, []string{"mail"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, e.Payload, revived.Payload)
	})

	t.Run("concurrent claims hand out each entry once", func(t *testing.T) {
		repo := newRepo(t)
		const n = 20
		for range n {
			require.NoError(t, repo.CreateEntry(ctx, Entry("default", time.Now().Add(-time.Second))))
		}

		var mu sync.Mutex
		seen := make(map[uuid.UUID]int)
		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					e, err := repo.ClaimEntry(ctx, uuid.New(), []string{"default"}, time.Minute)
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
		for id, count := range seen {
			assert.Equal(t, 1, count, "entry %s claimed more than once", id)
		}
	})
}
