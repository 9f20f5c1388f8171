package docstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBatcher struct {
	mu   sync.Mutex
	ops  []string
	fail error
}

func (r *recordingBatcher) batch(ops []*queueOp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	for _, op := range ops {
		prefix := "+"
		if op.typ == queueDelete {
			prefix = "-"
		}
		r.ops = append(r.ops, prefix+op.docID)
	}
	return nil
}

func (r *recordingBatcher) applied() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func TestIndexQueue_FlushAppliesInOrder(t *testing.T) {
	t.Parallel()

	rec := &recordingBatcher{}
	q := newIndexQueue(queueConfig{BatchSize: 2, FlushInterval: time.Hour}, slog.Default(), rec.batch)
	defer q.close()

	ctx := context.Background()
	require.NoError(t, q.index(ctx, "1", nil))
	require.NoError(t, q.index(ctx, "2", nil))
	require.NoError(t, q.delete(ctx, "1"))
	require.NoError(t, q.flush(ctx))

	assert.Equal(t, []string{"+1", "+2", "-1"}, rec.applied())

	stats := q.stats()
	assert.Equal(t, int64(4), stats.Enqueued, "flush sentinel is enqueued too")
	assert.Equal(t, int64(3), stats.Processed)
	assert.Equal(t, int64(2), stats.Batches)
}

func TestIndexQueue_FlushReportsFailuresOnce(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	rec := &recordingBatcher{fail: boom}
	q := newIndexQueue(queueConfig{FlushInterval: time.Hour}, slog.Default(), rec.batch)
	defer q.close()

	ctx := context.Background()
	require.NoError(t, q.index(ctx, "1", nil))

	assert.ErrorIs(t, q.flush(ctx), boom)
	assert.NoError(t, q.flush(ctx))
	assert.Equal(t, int64(1), q.stats().Failed)
}

func TestIndexQueue_CloseDrains(t *testing.T) {
	t.Parallel()

	rec := &recordingBatcher{}
	q := newIndexQueue(queueConfig{FlushInterval: time.Hour}, slog.Default(), rec.batch)

	ctx := context.Background()
	require.NoError(t, q.index(ctx, "1", nil))
	require.NoError(t, q.close())
	require.NoError(t, q.close())

	assert.Equal(t, []string{"+1"}, rec.applied())
	assert.ErrorIs(t, q.index(ctx, "2", nil), ErrQueueClosed)
}

func TestIndexQueue_TimerFlush(t *testing.T) {
	t.Parallel()

	rec := &recordingBatcher{}
	q := newIndexQueue(queueConfig{FlushInterval: 10 * time.Millisecond}, slog.Default(), rec.batch)
	defer q.close()

	require.NoError(t, q.index(context.Background(), "1", nil))
	assert.Eventually(t, func() bool {
		return len(rec.applied()) == 1
	}, time.Second, 5*time.Millisecond)
}
