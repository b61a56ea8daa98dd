package mongostore_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue/mongostore"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue/queuetest"
)

func TestStore_Contract(t *testing.T) {
	url := os.Getenv("SPOOL_TEST_MONGO_URL")
	if url == "" {
		t.Skip("SPOOL_TEST_MONGO_URL is not set")
	}

	ctx := context.Background()
	client, err := mongostore.Connect(ctx, mongostore.Config{
		ConnectionURL:  url,
		ConnectTimeout: 5 * time.Second,
		RetryAttempts:  1,
		RetryInterval:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	require.NoError(t, mongostore.Healthcheck(client)(ctx))

	db := client.Database("spooltest_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	queuetest.Run(t, func(t *testing.T) queue.Repository {
		store := mongostore.New(db, "c"+strings.ReplaceAll(uuid.NewString(), "-", ""))
		require.NoError(t, store.EnsureIndexes(ctx))
		return store
	})
}

func TestConnect_Unreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := mongostore.Connect(ctx, mongostore.Config{
		ConnectionURL:  "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=100",
		ConnectTimeout: 100 * time.Millisecond,
		RetryAttempts:  1,
		RetryInterval:  10 * time.Millisecond,
	})
	assert.ErrorIs(t, err, mongostore.ErrFailedToConnectToMongo)
}
