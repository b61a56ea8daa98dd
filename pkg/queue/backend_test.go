package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/queue"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/spool"
)

var errTransient = errors.New("temporary failure")

func TestBackend_Submit(t *testing.T) {
	t.Parallel()

	assert.False(t, queue.NewBackend(nil).Deferrable())
	assert.ErrorIs(t, queue.NewBackend(nil).Submit(context.Background(), &spool.Job{}, 0), spool.ErrNotDeferrable)

	storage := queue.NewMemoryStorage()
	enqueuer, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)
	backend := queue.NewBackend(enqueuer)
	require.True(t, backend.Deferrable())

	sp := spool.New(spool.WithLogger(logger.Discard()), spool.WithBackend(backend), spool.WithQueue("mail"))
	task := sp.MustRegister(spool.Descriptor{Name: "send", Func: func(context.Context, *spool.Call) error { return nil }})

	require.NoError(t, task.Invoke(context.Background(), nil, nil, spool.WithDelay(time.Hour)))

	w := quietWorker(t, storage, queue.SpoolHandler(sp), queue.WithQueues("mail"))
	ok, err := w.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "delayed entry must not be claimable yet")
	assert.Equal(t, 1, storage.Count(queue.EntryStatusPending))
}

func TestSpoolHandler(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T, opts ...spool.Option) (*queue.MemoryStorage, *spool.Spooler, *queue.Worker) {
		t.Helper()
		storage := queue.NewMemoryStorage()
		enqueuer, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)
		base := []spool.Option{
			spool.WithLogger(logger.Discard()),
			spool.WithBackend(queue.NewBackend(enqueuer)),
			spool.WithPeriod(time.Millisecond),
		}
		sp := spool.New(append(base, opts...)...)
		return storage, sp, quietWorker(t, storage, queue.SpoolHandler(sp))
	}

	drain := func(t *testing.T, w *queue.Worker) {
		t.Helper()
		require.Eventually(t, func() bool {
			ok, err := w.ProcessNext(context.Background())
			return err == nil && !ok
		}, 2*time.Second, 2*time.Millisecond)
	}

	t.Run("deferred task runs in the worker", func(t *testing.T) {
		t.Parallel()

		storage, sp, w := setup(t)
		var got []string
		task := sp.MustRegister(spool.Descriptor{
			Name:   "send",
			Params: []spool.Param{spool.Arg("to")},
			Func: func(_ context.Context, call *spool.Call) error {
				var to string
				if err := call.Arg(0, &to); err != nil {
					return err
				}
				assert.True(t, call.Envelope.Deferred())
				got = append(got, to)
				return nil
			},
		})

		require.NoError(t, task.Call(context.Background(), "user@example.com"))
		assert.Empty(t, got)
		drain(t, w)

		assert.Equal(t, []string{"user@example.com"}, got)
		assert.Equal(t, 1, storage.Count(queue.EntryStatusCompleted))
	})

	t.Run("retries become new entries", func(t *testing.T) {
		t.Parallel()

		storage, sp, w := setup(t)
		attempts := 0
		task := sp.MustRegister(spool.Descriptor{
			Name:    "flaky",
			Retries: 2,
			RetryOn: []error{errTransient},
			Func: func(context.Context, *spool.Call) error {
				attempts++
				return errTransient
			},
		})

		require.NoError(t, task.Call(context.Background()))
		require.Eventually(t, func() bool {
			_, err := w.ProcessNext(context.Background())
			return err == nil && storage.Count(queue.EntryStatusCompleted) == 3
		}, 2*time.Second, 2*time.Millisecond)

		assert.Equal(t, 3, attempts)
		assert.Zero(t, storage.Count(queue.EntryStatusPending))
	})

	t.Run("unknown tasks are dead lettered and can be requeued", func(t *testing.T) {
		t.Parallel()

		producerStorage, producer, _ := setup(t)
		producer.MustRegister(spool.Descriptor{Name: "report", Func: func(context.Context, *spool.Call) error { return nil }})
		task, ok := producer.Registry().Get("report")
		require.True(t, ok)
		require.NoError(t, task.Call(context.Background()))

		// An outdated worker that has never heard of the task.
		stale := spool.New(spool.WithLogger(logger.Discard()))
		w := quietWorker(t, producerStorage, queue.SpoolHandler(stale))
		handled, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
		require.True(t, handled)

		dead, err := producerStorage.ListDead(context.Background(), "", 0)
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, "report", dead[0].Name)

		n, err := queue.RequeueAll(context.Background(), producerStorage, "", 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		runs := 0
		current := spool.New(spool.WithLogger(logger.Discard()))
		current.MustRegister(spool.Descriptor{Name: "report", Func: func(context.Context, *spool.Call) error {
			runs++
			return nil
		}})
		w = quietWorker(t, producerStorage, queue.SpoolHandler(current))
		handled, err = w.ProcessNext(context.Background())
		require.NoError(t, err)
		require.True(t, handled)
		assert.Equal(t, 1, runs)
	})

	t.Run("undecodable payload is completed", func(t *testing.T) {
		t.Parallel()

		storage, _, w := setup(t)
		require.NoError(t, storage.CreateEntry(context.Background(), &queue.Entry{
			ID: uuid.New(), Queue: "default", Name: "junk",
			Payload: []byte("not json"), ScheduledAt: time.Now(),
		}))

		handled, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.True(t, handled)
		assert.Equal(t, 1, storage.Count(queue.EntryStatusCompleted))
	})
}
