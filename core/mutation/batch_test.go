package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/docgraph/core/docstore"
	errs "github.com/adalundhe/docgraph/core/errors"
)

// failingClient rejects every bulk request.
type failingClient struct {
	docstore.Client
	calls int
}

func (f *failingClient) Bulk(context.Context, []docstore.BulkOperation) (*docstore.BulkResponse, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func newEngine(t *testing.T) *docstore.Engine {
	t.Helper()
	opts := docstore.DefaultOptions()
	opts.FlushInterval = time.Hour
	e, err := docstore.Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func create(id string) docstore.BulkOperation {
	return docstore.CreateOp(docstore.IndexRequest{Index: "v", ID: id, Type: "person", Source: map[string]any{"name": id}})
}

func TestBatch_NothingVisibleUntilCommit(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	ctx := context.Background()
	b := NewBatch(engine, nil)

	b.Stage(create("1"))
	b.Stage(create("2"))
	assert.Equal(t, 2, b.Len())

	docs, err := engine.MultiGet(ctx, []docstore.GetItem{{Index: "v", ID: "1"}})
	require.NoError(t, err)
	assert.False(t, docs[0].Found)

	resp, err := b.Commit(ctx)
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2)
	assert.Zero(t, b.Len())

	docs, err = engine.MultiGet(ctx, []docstore.GetItem{{Index: "v", ID: "1"}, {Index: "v", ID: "2"}})
	require.NoError(t, err)
	assert.True(t, docs[0].Found)
	assert.True(t, docs[1].Found)
}

func TestBatch_CommitOrder(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	ctx := context.Background()
	b := NewBatch(engine, nil)

	b.Stage(create("1"))
	b.Stage(docstore.UpdateOp(docstore.UpdateRequest{Index: "v", ID: "1", Doc: map[string]any{"age": 29}}))
	b.Stage(docstore.UpdateOp(docstore.UpdateRequest{Index: "v", ID: "1", Remove: []string{"name"}}))

	_, err := b.Commit(ctx)
	require.NoError(t, err)

	docs, err := engine.MultiGet(ctx, []docstore.GetItem{{Index: "v", ID: "1"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"age": int64(29)}, docs[0].Source)
}

func TestBatch_EmptyCommitIsNoop(t *testing.T) {
	t.Parallel()
	client := &failingClient{}
	b := NewBatch(client, nil)

	_, err := b.Commit(context.Background())
	require.NoError(t, err)
	assert.Zero(t, client.calls)
}

func TestBatch_FailedCommitClearsBuffer(t *testing.T) {
	t.Parallel()
	client := &failingClient{}
	b := NewBatch(client, nil)

	b.Stage(create("1"))
	_, err := b.Commit(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindBackend))
	assert.Zero(t, b.Len(), "failed operations are not retained")

	_, err = b.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls, "no replay")
}

func TestBatch_ItemFailuresReported(t *testing.T) {
	t.Parallel()
	engine := newEngine(t)
	ctx := context.Background()
	b := NewBatch(engine, nil)

	b.Stage(create("1"))
	b.Stage(create("1"))

	resp, err := b.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrConflict)
	require.NotNil(t, resp)
	assert.NoError(t, resp.Items[0].Err)
	assert.Error(t, resp.Items[1].Err)
}

func TestBatch_ConcurrentStaging(t *testing.T) {
	t.Parallel()
	b := NewBatch(&failingClient{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Stage(docstore.DeleteOp("v", "x"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, b.Len())
}
