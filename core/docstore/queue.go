package docstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Errors
// =============================================================================

// ErrQueueClosed indicates an operation was attempted on a closed queue.
var ErrQueueClosed = errors.New("index queue is closed")

// =============================================================================
// Operations
// =============================================================================

type queueOpType int

const (
	queueIndex queueOpType = iota
	queueDelete
	queueFlush
)

// queueOp is a pending shard write. Flush sentinels carry a result channel.
type queueOp struct {
	typ   queueOpType
	docID string
	doc   map[string]any
	done  chan error
}

// =============================================================================
// Configuration
// =============================================================================

type queueConfig struct {
	// MaxQueueSize is the maximum number of pending operations (default 10000).
	MaxQueueSize int

	// BatchSize is the number of operations committed per batch (default 500).
	BatchSize int

	// FlushInterval is the maximum time before a forced flush (default 1s).
	FlushInterval time.Duration
}

func (c *queueConfig) validate() {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
}

// QueueStats contains queue statistics.
type QueueStats struct {
	QueueLength int
	Enqueued    int64
	Processed   int64
	Failed      int64
	Batches     int64
}

// =============================================================================
// indexQueue
// =============================================================================

// indexQueue applies shard writes in submission order on a single processor
// goroutine, committing them in batches. A write is searchable once the batch
// holding it is committed.
type indexQueue struct {
	queue   chan *queueOp
	pending []*queueOp

	// failures accumulates batch errors until the next flush reports them.
	failures []error

	config queueConfig
	logger *slog.Logger

	wg sync.WaitGroup

	// closeMu protects the queue channel from concurrent close/send.
	closeMu sync.RWMutex
	closed  atomic.Bool

	batchFn func(ops []*queueOp) error

	enqueued  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	batches   atomic.Int64
}

func newIndexQueue(config queueConfig, logger *slog.Logger, batchFn func(ops []*queueOp) error) *indexQueue {
	config.validate()

	q := &indexQueue{
		queue:   make(chan *queueOp, config.MaxQueueSize),
		pending: make([]*queueOp, 0, config.BatchSize),
		config:  config,
		logger:  logger,
		batchFn: batchFn,
	}

	q.wg.Add(1)
	go q.processor()

	return q
}

// =============================================================================
// Submit, Flush and Close
// =============================================================================

// submit enqueues op, blocking while the queue is full.
func (q *indexQueue) submit(ctx context.Context, op *queueOp) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()

	if q.closed.Load() {
		return ErrQueueClosed
	}

	select {
	case q.queue <- op:
		q.enqueued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *indexQueue) index(ctx context.Context, docID string, doc map[string]any) error {
	return q.submit(ctx, &queueOp{typ: queueIndex, docID: docID, doc: doc})
}

func (q *indexQueue) delete(ctx context.Context, docID string) error {
	return q.submit(ctx, &queueOp{typ: queueDelete, docID: docID})
}

// flush blocks until every operation submitted before it is committed, and
// returns the batch failures accumulated since the previous flush.
func (q *indexQueue) flush(ctx context.Context) error {
	sentinel := &queueOp{typ: queueFlush, done: make(chan error, 1)}
	if err := q.submit(ctx, sentinel); err != nil {
		return err
	}

	select {
	case err := <-sentinel.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close drains and commits the remaining operations, then stops the processor.
func (q *indexQueue) close() error {
	q.closeMu.Lock()
	if q.closed.Swap(true) {
		q.closeMu.Unlock()
		return nil
	}
	close(q.queue)
	q.closeMu.Unlock()

	q.wg.Wait()

	return errors.Join(q.failures...)
}

func (q *indexQueue) stats() QueueStats {
	return QueueStats{
		QueueLength: len(q.queue),
		Enqueued:    q.enqueued.Load(),
		Processed:   q.processed.Load(),
		Failed:      q.failed.Load(),
		Batches:     q.batches.Load(),
	}
}

// =============================================================================
// Internal: Processor
// =============================================================================

func (q *indexQueue) processor() {
	defer q.wg.Done()

	flushTimer := time.NewTimer(q.config.FlushInterval)
	defer flushTimer.Stop()

	for {
		select {
		case op, ok := <-q.queue:
			if !ok {
				q.flushPending()
				return
			}

			if op.typ == queueFlush {
				q.flushPending()
				op.done <- errors.Join(q.failures...)
				q.failures = nil
				continue
			}

			q.pending = append(q.pending, op)
			if len(q.pending) >= q.config.BatchSize {
				q.flushPending()
				if !flushTimer.Stop() {
					select {
					case <-flushTimer.C:
					default:
					}
				}
				flushTimer.Reset(q.config.FlushInterval)
			}

		case <-flushTimer.C:
			q.flushPending()
			flushTimer.Reset(q.config.FlushInterval)
		}
	}
}

func (q *indexQueue) flushPending() {
	if len(q.pending) == 0 {
		return
	}

	batch := q.pending
	q.pending = make([]*queueOp, 0, q.config.BatchSize)

	q.batches.Add(1)
	if err := q.batchFn(batch); err != nil {
		q.failed.Add(int64(len(batch)))
		q.failures = append(q.failures, err)
		q.logger.Warn("index batch failed",
			slog.Int("operations", len(batch)),
			slog.String("error", err.Error()))
		return
	}
	q.processed.Add(int64(len(batch)))
}
