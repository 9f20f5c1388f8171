package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/sync/errgroup"

	"github.com/adalundhe/docgraph/core/database"
	errs "github.com/adalundhe/docgraph/core/errors"
	"github.com/adalundhe/docgraph/core/storage"
)

// DefaultSearchSize is the hit window of a search that names no size.
const DefaultSearchSize = 10

// Engine is the embedded Client implementation.
type Engine struct {
	opts   Options
	dir    string
	pool   *database.Pool
	lock   *database.AdvisoryLock
	logger *slog.Logger

	mu     sync.RWMutex
	shards map[string]*shard
	closed bool
}

var _ Client = (*Engine)(nil)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// shardWrite is a committed source change still to be applied to a shard.
type shardWrite struct {
	index   string
	id      string
	docType string
	source  map[string]any
	delete  bool
}

// =============================================================================
// Lifecycle
// =============================================================================

// Open starts an engine in the configured mode. Node mode takes an exclusive
// lock on its data directory for the lifetime of the engine.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	const op = "open"

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ClusterName == "" {
		opts.ClusterName = "docgraph"
	}

	e := &Engine{
		opts:   opts,
		logger: opts.Logger.With(slog.String("component", "docstore")),
		shards: make(map[string]*shard),
	}

	poolCfg := database.DefaultPoolConfig()
	if opts.Driver != "" {
		poolCfg.Driver = opts.Driver
	}

	switch opts.Mode {
	case ModeMemory:
		pool, err := database.Open(database.MemoryPath, poolCfg)
		if err != nil {
			return nil, errs.Backend(op, err)
		}
		e.pool = pool

	case ModeNode:
		e.dir = opts.Path
		if e.dir == "" {
			e.dir = storage.ResolveDirs().DataDir(opts.ClusterName)
		}
		if err := e.acquireLock(); err != nil {
			return nil, err
		}
		pool, err := database.Open(filepath.Join(e.dir, "documents.db"), poolCfg)
		if err != nil {
			_ = e.lock.Release()
			return nil, errs.Backend(op, err)
		}
		e.pool = pool

	case ModeTransport:
		return nil, errs.Configuration(op, "client mode %q needs a remote cluster; use %q or %q", opts.Mode, ModeNode, ModeMemory)

	default:
		return nil, errs.Configuration(op, "unsupported client mode %q", opts.Mode)
	}

	if err := database.NewMigrator(e.pool, migrations).Migrate(ctx); err != nil {
		e.abort()
		return nil, errs.Backend(op, err)
	}
	if err := e.loadShards(ctx); err != nil {
		e.abort()
		return nil, errs.Backend(op, err)
	}

	e.logger.Debug("engine opened",
		slog.String("mode", string(opts.Mode)),
		slog.String("path", e.dir),
		slog.Int("indices", len(e.shards)))

	return e, nil
}

func (e *Engine) acquireLock() error {
	lock, err := database.NewAdvisoryLock(e.dir, "docgraph")
	if err != nil {
		return errs.Backend("open", err)
	}
	ok, err := lock.TryAcquire()
	if err != nil {
		return errs.Backend("open", err)
	}
	if !ok {
		return errs.New(errs.KindLifecycle, "open", "data directory %s is in use by another process", e.dir)
	}
	e.lock = lock
	return nil
}

// loadShards opens a shard for every index recorded in the source table.
func (e *Engine) loadShards(ctx context.Context) error {
	names, err := e.listIndices(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		s, err := openShard(name, e.shardDir(name), e.queueConfig(), e.logger)
		if err != nil {
			return err
		}
		e.shards[name] = s
	}
	return nil
}

func (e *Engine) abort() {
	for _, s := range e.shards {
		_ = s.close()
	}
	if e.pool != nil {
		_ = e.pool.Close()
	}
	if e.lock != nil {
		_ = e.lock.Release()
	}
}

// Close flushes every shard and releases the store. Closing twice is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	var closeErrs []error
	for name, s := range e.shards {
		stats := s.queue.stats()
		e.logger.Debug("closing index",
			slog.String("index", name),
			slog.Int64("processed", stats.Processed),
			slog.Int64("failed", stats.Failed))
		if err := s.close(); err != nil {
			closeErrs = append(closeErrs, fmt.Errorf("index %s: %w", name, err))
		}
	}
	if err := e.pool.Close(); err != nil {
		closeErrs = append(closeErrs, err)
	}
	if e.lock != nil {
		if err := e.lock.Release(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}

	return errs.Backend("close", errors.Join(closeErrs...))
}

func (e *Engine) String() string {
	if e.dir == "" {
		return fmt.Sprintf("docstore[%s]", e.opts.Mode)
	}
	return fmt.Sprintf("docstore[%s:%s]", e.opts.Mode, e.dir)
}

// QueueStats returns the indexing queue statistics of every index.
func (e *Engine) QueueStats() map[string]QueueStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := make(map[string]QueueStats, len(e.shards))
	for name, s := range e.shards {
		stats[name] = s.queue.stats()
	}
	return stats
}

// =============================================================================
// Shards
// =============================================================================

func (e *Engine) checkOpen(op string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return errs.New(errs.KindLifecycle, op, "engine is closed")
	}
	return nil
}

func (e *Engine) shardDir(name string) string {
	if e.dir == "" {
		return ""
	}
	return filepath.Join(e.dir, "indices", name)
}

func (e *Engine) queueConfig() queueConfig {
	return queueConfig{
		MaxQueueSize:  e.opts.QueueSize,
		BatchSize:     e.opts.BatchSize,
		FlushInterval: e.opts.FlushInterval,
	}
}

func (e *Engine) shard(name string) (*shard, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.shards[name]
	return s, ok
}

// ensureShard returns the shard of an index, creating the index on first use.
// It must not be called while a transaction holds the pool.
func (e *Engine) ensureShard(ctx context.Context, name string) (*shard, error) {
	if s, ok := e.shard(name); ok {
		return s, nil
	}
	if !ValidIndexName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIndexName, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.shards[name]; ok {
		return s, nil
	}

	if _, err := e.pool.Exec(ctx, sqlInsertIndex, name, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("register index %s: %w", name, err)
	}
	s, err := openShard(name, e.shardDir(name), e.queueConfig(), e.logger)
	if err != nil {
		return nil, err
	}
	e.shards[name] = s

	e.logger.Debug("index created", slog.String("index", name))
	return s, nil
}

// applyWrites forwards committed source changes to their shards in order.
func (e *Engine) applyWrites(ctx context.Context, writes []*shardWrite) error {
	for _, w := range writes {
		s, ok := e.shard(w.index)
		if !ok {
			continue
		}
		var err error
		if w.delete {
			err = s.remove(ctx, w.id)
		} else {
			err = s.put(ctx, w.id, w.docType, w.source)
		}
		if err != nil {
			return fmt.Errorf("queue %s/%s: %w", w.index, w.id, err)
		}
	}
	return nil
}

// =============================================================================
// Source Operations
// =============================================================================

func (e *Engine) createDocument(ctx context.Context, x execer, index, id, docType string, source map[string]any) (*shardWrite, error) {
	if id == "" {
		return nil, errors.New("document id is required")
	}
	data, canonical, err := canonicalSource(source)
	if err != nil {
		return nil, err
	}

	res, err := x.ExecContext(ctx, sqlCreateDocument, index, id, docType, string(data))
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrConflict, index, id)
	}

	return &shardWrite{index: index, id: id, docType: docType, source: canonical}, nil
}

func (e *Engine) deleteDocument(ctx context.Context, x execer, index, id string) (*shardWrite, error) {
	res, err := x.ExecContext(ctx, sqlDeleteDocument, index, id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return &shardWrite{index: index, id: id, delete: true}, nil
}

func (e *Engine) updateDocument(ctx context.Context, x execer, req UpdateRequest) (*shardWrite, error) {
	doc, found, err := e.getDocument(ctx, x, req.Index, req.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s/%s", ErrDocumentMissing, req.Index, req.ID)
	}

	for k, v := range req.Doc {
		doc.Source[k] = v
	}
	for _, field := range req.Remove {
		delete(doc.Source, field)
	}

	data, canonical, err := canonicalSource(doc.Source)
	if err != nil {
		return nil, err
	}
	if _, err := x.ExecContext(ctx, sqlUpdateDocument, string(data), req.Index, req.ID); err != nil {
		return nil, err
	}

	return &shardWrite{index: req.Index, id: req.ID, docType: doc.Type, source: canonical}, nil
}

func (e *Engine) getDocument(ctx context.Context, x execer, index, id string) (Document, bool, error) {
	doc := Document{Index: index, ID: id}

	var data string
	err := x.QueryRowContext(ctx, sqlGetDocument, index, id).Scan(&doc.Type, &data, &doc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, err
	}

	source, err := decodeSource([]byte(data))
	if err != nil {
		return doc, false, err
	}
	doc.Source = source
	doc.Found = true
	return doc, true, nil
}

// =============================================================================
// Client
// =============================================================================

// Index creates a document, creating its index on first use.
func (e *Engine) Index(ctx context.Context, req IndexRequest) (*Document, error) {
	const op = "index"
	if err := e.checkOpen(op); err != nil {
		return nil, err
	}

	if _, err := e.ensureShard(ctx, req.Index); err != nil {
		return nil, errs.Backend(op, err)
	}

	w, err := e.createDocument(ctx, e.pool.DB(), req.Index, req.ID, req.Type, req.Source)
	if err != nil {
		return nil, errs.Backend(op, err)
	}
	if err := e.applyWrites(ctx, []*shardWrite{w}); err != nil {
		return nil, errs.Backend(op, err)
	}

	return &Document{
		Index:   req.Index,
		ID:      req.ID,
		Type:    req.Type,
		Version: 1,
		Found:   true,
		Source:  w.source,
	}, nil
}

// Delete removes a document.
func (e *Engine) Delete(ctx context.Context, index, id string) error {
	const op = "delete"
	if err := e.checkOpen(op); err != nil {
		return err
	}

	w, err := e.deleteDocument(ctx, e.pool.DB(), index, id)
	if err != nil {
		return errs.Backend(op, err)
	}
	if w == nil {
		return nil
	}
	return errs.Backend(op, e.applyWrites(ctx, []*shardWrite{w}))
}

// Update reads, patches and rewrites a document in one transaction.
func (e *Engine) Update(ctx context.Context, req UpdateRequest) error {
	const op = "update"
	if err := e.checkOpen(op); err != nil {
		return err
	}

	var w *shardWrite
	err := e.pool.Transaction(ctx, func(tx *sql.Tx) error {
		var err error
		w, err = e.updateDocument(ctx, tx, req)
		return err
	})
	if err != nil {
		return errs.Backend(op, err)
	}
	return errs.Backend(op, e.applyWrites(ctx, []*shardWrite{w}))
}

// MultiGet reads sources directly, so it sees writes that are not yet searchable.
func (e *Engine) MultiGet(ctx context.Context, items []GetItem) ([]Document, error) {
	const op = "multi get"
	if err := e.checkOpen(op); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, errs.Backend(op, err)
		}
		doc, _, err := e.getDocument(ctx, e.pool.DB(), item.Index, item.ID)
		if err != nil {
			return nil, errs.Backend(op, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Search runs req against every named index that exists. Hits whose source
// has been deleted since they were indexed are dropped.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	const op = "search"
	if err := e.checkOpen(op); err != nil {
		return nil, err
	}
	start := time.Now()

	var targets []bleve.Index
	for _, name := range req.Indices {
		if s, ok := e.shard(name); ok {
			targets = append(targets, s.index)
		}
	}
	if len(targets) == 0 {
		return &SearchResponse{Took: time.Since(start)}, nil
	}

	size := req.Size
	if size <= 0 {
		size = DefaultSearchSize
	}

	sr := bleve.NewSearchRequestOptions(typedQuery(req.Query, req.Types), size, 0, false)
	sr.SortBy([]string{"_id"})

	var searcher bleve.Index = targets[0]
	if len(targets) > 1 {
		searcher = bleve.NewIndexAlias(targets...)
	}

	result, err := searcher.SearchInContext(ctx, sr)
	if err != nil {
		return nil, errs.Backend(op, err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, match := range result.Hits {
		index := match.Index
		if index == "" {
			index = targets[0].Name()
		}
		doc, found, err := e.getDocument(ctx, e.pool.DB(), index, match.ID)
		if err != nil {
			return nil, errs.Backend(op, err)
		}
		if !found {
			continue
		}
		hits = append(hits, Hit{
			Index:  index,
			ID:     match.ID,
			Type:   doc.Type,
			Score:  match.Score,
			Source: doc.Source,
		})
	}

	return &SearchResponse{
		Hits:  hits,
		Total: result.Total,
		Took:  time.Since(start),
	}, nil
}

// typedQuery restricts q to documents of the given types.
func typedQuery(q query.Query, types []string) query.Query {
	if q == nil {
		q = bleve.NewMatchAllQuery()
	}
	if len(types) == 0 {
		return q
	}

	byType := make([]query.Query, 0, len(types))
	for _, t := range types {
		tq := bleve.NewTermQuery(t)
		tq.SetField(TypeField)
		byType = append(byType, tq)
	}
	return bleve.NewConjunctionQuery(q, bleve.NewDisjunctionQuery(byType...))
}

// Bulk applies ops in one source transaction. Creates register their index
// before the transaction starts.
func (e *Engine) Bulk(ctx context.Context, ops []BulkOperation) (*BulkResponse, error) {
	const op = "bulk"
	if err := e.checkOpen(op); err != nil {
		return nil, err
	}
	start := time.Now()

	resp := &BulkResponse{Items: make([]BulkItem, len(ops))}
	for i, o := range ops {
		resp.Items[i] = BulkItem{Type: o.Type, Index: o.Index, ID: o.ID}
		if o.Type == OpCreate {
			if _, err := e.ensureShard(ctx, o.Index); err != nil {
				resp.Items[i].Err = err
			}
		}
	}

	writes := make([]*shardWrite, 0, len(ops))
	err := e.pool.Transaction(ctx, func(tx *sql.Tx) error {
		for i, o := range ops {
			if resp.Items[i].Err != nil {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			var (
				w   *shardWrite
				err error
			)
			switch o.Type {
			case OpCreate:
				w, err = e.createDocument(ctx, tx, o.Index, o.ID, o.DocType, o.Source)
			case OpDelete:
				w, err = e.deleteDocument(ctx, tx, o.Index, o.ID)
			case OpUpdate:
				w, err = e.updateDocument(ctx, tx, UpdateRequest{Index: o.Index, ID: o.ID, Doc: o.Source, Remove: o.Remove})
			default:
				err = fmt.Errorf("unknown bulk operation %d", o.Type)
			}

			if err != nil {
				resp.Items[i].Err = err
				continue
			}
			if w != nil {
				writes = append(writes, w)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Backend(op, err)
	}

	if err := e.applyWrites(ctx, writes); err != nil {
		return nil, errs.Backend(op, err)
	}

	resp.Took = time.Since(start)
	return resp, nil
}

// Refresh flushes the indexing queues of the named indices concurrently.
func (e *Engine) Refresh(ctx context.Context, indices ...string) error {
	const op = "refresh"
	if err := e.checkOpen(op); err != nil {
		return err
	}

	var targets []*shard
	if len(indices) == 0 {
		e.mu.RLock()
		for _, s := range e.shards {
			targets = append(targets, s)
		}
		e.mu.RUnlock()
	} else {
		for _, name := range indices {
			if s, ok := e.shard(name); ok {
				targets = append(targets, s)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range targets {
		g.Go(func() error {
			if err := s.refresh(gctx); err != nil {
				return fmt.Errorf("index %s: %w", s.name, err)
			}
			return nil
		})
	}
	return errs.Backend(op, g.Wait())
}

// Indices lists index names in order.
func (e *Engine) Indices(ctx context.Context) ([]string, error) {
	const op = "indices"
	if err := e.checkOpen(op); err != nil {
		return nil, err
	}

	names, err := e.listIndices(ctx)
	if err != nil {
		return nil, errs.Backend(op, err)
	}
	return names, nil
}

func (e *Engine) listIndices(ctx context.Context) ([]string, error) {
	rows, err := e.pool.Query(ctx, sqlListIndices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
