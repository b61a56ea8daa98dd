package pgstore_test

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue/pgstore"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue/queuetest"
)

func testURL(t *testing.T) string {
	t.Helper()
	u := os.Getenv("SPOOL_TEST_PG_URL")
	if u == "" {
		t.Skip("SPOOL_TEST_PG_URL is not set")
	}
	return u
}

// isolated connects to a fresh schema and applies the migrations there.
func isolated(t *testing.T, base string) *pgstore.Store {
	t.Helper()
	ctx := context.Background()
	cfg := pgstore.Config{ConnectionString: base, RetryAttempts: 1, RetryInterval: time.Second}

	admin, err := pgstore.Connect(ctx, cfg)
	require.NoError(t, err)
	defer admin.Close()

	schema := "spooltest_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		cleanup, err := pgstore.Connect(context.Background(), cfg)
		if err != nil {
			return
		}
		defer cleanup.Close()
		_, _ = cleanup.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	u, err := url.Parse(base)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	cfg.ConnectionString = u.String()

	pool, err := pgstore.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgstore.Healthcheck(pool)(ctx))
	require.NoError(t, pgstore.Migrate(ctx, pool, cfg, logger.Discard()))
	// Applying twice is a no-op.
	require.NoError(t, pgstore.Migrate(ctx, pool, cfg, logger.Discard()))

	return pgstore.New(pool)
}

func TestStore_Contract(t *testing.T) {
	base := testURL(t)
	queuetest.Run(t, func(t *testing.T) queue.Repository {
		return isolated(t, base)
	})
}

func TestStore_PurgeCompleted(t *testing.T) {
	store := isolated(t, testURL(t))
	ctx := context.Background()

	for range 3 {
		require.NoError(t, store.CreateEntry(ctx, queuetest.Entry("default", time.Now().Add(-time.Second))))
	}
	for range 2 {
		e, err := store.ClaimEntry(ctx, uuid.New(), []string{"default"}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.CompleteEntry(ctx, e.ID))
	}

	n, err := store.PurgeCompleted(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = store.ClaimEntry(ctx, uuid.New(), []string{"default"}, time.Minute)
	assert.NoError(t, err, "pending entry must survive the purge")
}

func TestConnect_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := pgstore.Connect(context.Background(), pgstore.Config{ConnectionString: "postgres://%zz"})
	assert.ErrorIs(t, err, pgstore.ErrFailedToParseDBConfig)
}
