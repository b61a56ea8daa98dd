package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/environment"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
)

func TestOpenStore(t *testing.T) {
	t.Parallel()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()

		st, err := openStore(context.Background(), "memory", environment.Development, logger.Discard())
		require.NoError(t, err)
		defer st.close()

		assert.IsType(t, &queue.MemoryStorage{}, st.repo)
		assert.NotNil(t, st.purge, "completed entries are purged")
		assert.Nil(t, st.healthcheck)
	})

	t.Run("memory is refused outside development", func(t *testing.T) {
		t.Parallel()

		for _, env := range []environment.Environment{environment.Staging, environment.Production} {
			_, err := openStore(context.Background(), "memory", env, logger.Discard())
			assert.ErrorContains(t, err, "refused in "+env.String())
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()

		_, err := openStore(context.Background(), "sqlite", environment.Development, logger.Discard())
		assert.ErrorContains(t, err, `unknown SPOOL_STORE "sqlite"`)
	})
}

func TestOpenBodyStore(t *testing.T) {
	t.Parallel()

	bodies, err := openBodyStore(context.Background(), "inline")
	require.NoError(t, err)
	assert.Nil(t, bodies)

	_, err = openBodyStore(context.Background(), "ftp")
	assert.ErrorContains(t, err, `unknown SPOOL_BODY_STORE "ftp"`)
}
