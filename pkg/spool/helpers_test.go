package spool_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/bodystore"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/logger"
	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/spool"
)

// submitted is a job captured by recorder together with its delay.
type submitted struct {
	job   *spool.Job
	delay time.Duration
}

// recorder is an in-test worker queue: it captures submitted jobs and
// replays them through Handle after a JSON round trip.
type recorder struct {
	mu   sync.Mutex
	jobs []submitted
	all  []submitted
}

func (r *recorder) backend() spool.FuncBackend {
	return func(_ context.Context, job *spool.Job, delay time.Duration) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.jobs = append(r.jobs, submitted{job: job, delay: delay})
		r.all = append(r.all, submitted{job: job, delay: delay})
		return nil
	}
}

func (r *recorder) pop() (submitted, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.jobs) == 0 {
		return submitted{}, false
	}
	s := r.jobs[0]
	r.jobs = r.jobs[1:]
	return s, true
}

func (r *recorder) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// drain handles queued jobs, including resubmitted ones, until none remain.
func (r *recorder) drain(t *testing.T, sp *spool.Spooler) []spool.Status {
	t.Helper()
	var statuses []spool.Status
	for {
		s, ok := r.pop()
		if !ok {
			return statuses
		}
		data, err := spool.EncodeJob(s.job)
		require.NoError(t, err)
		job, err := spool.DecodeJob(data)
		require.NoError(t, err)
		statuses = append(statuses, sp.Handle(context.Background(), job))
	}
}

// events collects observer events.
type events struct {
	mu   sync.Mutex
	list []spool.Event
}

func (e *events) observe(_ context.Context, ev spool.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, ev)
}

func (e *events) states() []spool.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]spool.State, 0, len(e.list))
	for _, ev := range e.list {
		out = append(out, ev.State)
	}
	return out
}

// safeBuffer is a bytes.Buffer usable as a log sink from several goroutines.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func quietSpooler(opts ...spool.Option) *spool.Spooler {
	base := []spool.Option{
		spool.WithLogger(logger.Discard()),
		spool.WithSyncRetryDelay(0),
	}
	return spool.New(append(base, opts...)...)
}

func noop(context.Context, *spool.Call) error { return nil }

func slogTo(buf *safeBuffer) *slog.Logger {
	return logger.New(logger.WithOutput(buf))
}

var errSlowDown = errors.New("503 SlowDown")

// flakyStore is a memory body store whose first reads fail.
type flakyStore struct {
	*bodystore.Memory

	mu      sync.Mutex
	fails   int
	deleted []string
}

func (f *flakyStore) Get(ctx context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return nil, errSlowDown
	}
	f.mu.Unlock()
	return f.Memory.Get(ctx, ref)
}

func (f *flakyStore) Delete(ctx context.Context, ref string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, ref)
	f.mu.Unlock()
	return f.Memory.Delete(ctx, ref)
}

func (f *flakyStore) deletedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}
