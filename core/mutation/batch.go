// Package mutation accumulates writes for deferred, bulk execution.
package mutation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/adalundhe/docgraph/core/docstore"
	errs "github.com/adalundhe/docgraph/core/errors"
)

// Batch is an ordered buffer of staged writes. Nothing staged is visible in
// the store until Commit. Staging and committing may be called concurrently;
// operations commit in staging order.
type Batch struct {
	backend docstore.Client
	logger  *slog.Logger

	mu  sync.Mutex
	ops []docstore.BulkOperation
}

func NewBatch(backend docstore.Client, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{backend: backend, logger: logger}
}

// Stage appends op. It performs no I/O.
func (b *Batch) Stage(op docstore.BulkOperation) {
	b.mu.Lock()
	b.ops = append(b.ops, op)
	b.mu.Unlock()
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}

// Commit sends every staged operation as one bulk request. The buffer is
// emptied before the request is sent, so a failed commit is never replayed;
// re-staging is the caller's decision. Item failures are joined into a
// single backend error.
func (b *Batch) Commit(ctx context.Context) (*docstore.BulkResponse, error) {
	b.mu.Lock()
	ops := b.ops
	b.ops = nil
	b.mu.Unlock()

	if len(ops) == 0 {
		return &docstore.BulkResponse{}, nil
	}

	resp, err := b.backend.Bulk(ctx, ops)
	if err != nil {
		return nil, errs.Backend("commit", err)
	}
	if resp.HasFailures() {
		b.logger.Warn("bulk commit had failures", slog.Int("operations", len(ops)))
		return resp, errs.Backend("commit", resp.Err())
	}

	b.logger.Debug("bulk commit", slog.Int("operations", len(ops)), slog.Duration("took", resp.Took))
	return resp, nil
}
