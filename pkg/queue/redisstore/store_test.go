package redisstore_test

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue/queuetest"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue/redisstore"
)

func connect(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("SPOOL_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SPOOL_TEST_REDIS_URL is not set")
	}

	client, err := redisstore.Connect(context.Background(), redisstore.Config{
		ConnectionURL:  url,
		RetryAttempts:  1,
		RetryInterval:  time.Second,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStore_Contract(t *testing.T) {
	client := connect(t)
	require.NoError(t, redisstore.Healthcheck(client)(context.Background()))

	queuetest.Run(t, func(t *testing.T) queue.Repository {
		prefix := "spooltest:" + uuid.NewString()
		t.Cleanup(func() {
			keys, _ := client.Keys(context.Background(), prefix+":*").Result()
			if len(keys) > 0 {
				client.Del(context.Background(), keys...)
			}
		})
		return redisstore.New(client, redisstore.WithKeyPrefix(prefix))
	})
}

func TestStore_Transitions(t *testing.T) {
	client := connect(t)
	ctx := context.Background()

	newStore := func(t *testing.T) (*redisstore.Store, string) {
		prefix := "spooltest:" + uuid.NewString()
		t.Cleanup(func() {
			keys, _ := client.Keys(context.Background(), prefix+":*").Result()
			if len(keys) > 0 {
				client.Del(context.Background(), keys...)
			}
		})
		return redisstore.New(client, redisstore.WithKeyPrefix(prefix)), prefix
	}

	newEntry := func() *queue.Entry {
		return &queue.Entry{
			ID:          uuid.New(),
			Queue:       "default",
			Name:        "send_email",
			Payload:     []byte(`{}`),
			ScheduledAt: time.Now().Add(-time.Second),
			CreatedAt:   time.Now(),
		}
	}

	t.Run("claim moves the id and rewrites the entry together", func(t *testing.T) {
		store, prefix := newStore(t)
		entry := newEntry()
		require.NoError(t, store.CreateEntry(ctx, entry))

		id := entry.ID.String()
		_, err := client.ZScore(ctx, prefix+":pending:default", id).Result()
		require.NoError(t, err, "a created entry is scheduled")

		claimed, err := store.ClaimEntry(ctx, uuid.New(), []string{"default"}, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, claimed.ID)

		_, err = client.ZScore(ctx, prefix+":pending:default", id).Result()
		assert.ErrorIs(t, err, redis.Nil)
		_, err = client.ZScore(ctx, prefix+":processing", id).Result()
		assert.NoError(t, err)

		raw, err := client.HGet(ctx, prefix+":entries", id).Bytes()
		require.NoError(t, err)
		var stored queue.Entry
		require.NoError(t, json.Unmarshal(raw, &stored))
		assert.Equal(t, queue.EntryStatusProcessing, stored.Status)
		assert.NotNil(t, stored.LockedBy)

		require.NoError(t, store.CompleteEntry(ctx, entry.ID))
		exists, err := client.HExists(ctx, prefix+":entries", id).Result()
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("concurrent claims hand the entry to one worker", func(t *testing.T) {
		store, _ := newStore(t)
		require.NoError(t, store.CreateEntry(ctx, newEntry()))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.ClaimEntry(ctx, uuid.New(), []string{"default"}, time.Minute); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("an extended lock is not released", func(t *testing.T) {
		store, prefix := newStore(t)
		entry := newEntry()
		require.NoError(t, store.CreateEntry(ctx, entry))

		_, err := store.ClaimEntry(ctx, uuid.New(), []string{"default"}, time.Millisecond)
		require.NoError(t, err)
		require.NoError(t, store.ExtendLock(ctx, entry.ID, time.Minute))
		time.Sleep(5 * time.Millisecond)

		_, err = store.ClaimEntry(ctx, uuid.New(), []string{"default"}, time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoEntryToClaim)
		_, err = client.ZScore(ctx, prefix+":processing", entry.ID.String()).Result()
		assert.NoError(t, err)
	})
}

func TestConnect_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := redisstore.Connect(context.Background(), redisstore.Config{
		ConnectionURL:  "://not-a-url",
		ConnectTimeout: time.Second,
	})
	assert.ErrorIs(t, err, redisstore.ErrFailedToParseRedisConnString)
}
