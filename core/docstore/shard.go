package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
)

// shard is the search side of one index.
type shard struct {
	name  string
	index bleve.Index
	queue *indexQueue
}

// openShard opens the bleve index at dir, creating it when absent. An empty
// dir opens a memory-only index.
func openShard(name, dir string, config queueConfig, logger *slog.Logger) (*shard, error) {
	var (
		index bleve.Index
		err   error
	)

	switch {
	case dir == "":
		index, err = bleve.NewMemOnly(BuildIndexMapping())
	default:
		index, err = bleve.Open(dir)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			if err = os.MkdirAll(filepath.Dir(dir), 0755); err == nil {
				index, err = bleve.New(dir, BuildIndexMapping())
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open shard %s: %w", name, err)
	}
	index.SetName(name)

	s := &shard{name: name, index: index}
	s.queue = newIndexQueue(config, logger.With(slog.String("index", name)), s.batch)
	return s, nil
}

// batch commits queued operations as one bleve batch.
func (s *shard) batch(ops []*queueOp) error {
	b := s.index.NewBatch()
	for _, op := range ops {
		switch op.typ {
		case queueIndex:
			if err := b.Index(op.docID, op.doc); err != nil {
				return fmt.Errorf("index %s: %w", op.docID, err)
			}
		case queueDelete:
			b.Delete(op.docID)
		}
	}
	return s.index.Batch(b)
}

func (s *shard) put(ctx context.Context, id, docType string, source map[string]any) error {
	return s.queue.index(ctx, id, shardDocument(docType, source))
}

func (s *shard) remove(ctx context.Context, id string) error {
	return s.queue.delete(ctx, id)
}

func (s *shard) refresh(ctx context.Context) error {
	return s.queue.flush(ctx)
}

func (s *shard) close() error {
	return errors.Join(s.queue.close(), s.index.Close())
}
