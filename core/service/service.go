// Package service is the public surface of docgraph: graph operations
// translated into document store requests.
//
// A Service owns one backend client, one routing strategy and, when batching
// is enabled, one mutation batch. Writes are either executed immediately or
// staged until Commit. Reads go through the query planner.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/adalundhe/docgraph/core/config"
	"github.com/adalundhe/docgraph/core/docstore"
	errs "github.com/adalundhe/docgraph/core/errors"
	"github.com/adalundhe/docgraph/core/filter"
	"github.com/adalundhe/docgraph/core/graph"
	"github.com/adalundhe/docgraph/core/metrics"
	"github.com/adalundhe/docgraph/core/mutation"
	"github.com/adalundhe/docgraph/core/planner"
	"github.com/adalundhe/docgraph/core/routing"
)

// Service translates graph operations into document store operations. It is
// safe for concurrent use.
type Service struct {
	cfgMu    sync.Mutex
	cfg      config.Config
	backend  docstore.Client
	strategy routing.Strategy
	planner  *planner.Planner
	batch    *mutation.Batch
	metrics  *metrics.Recorder
	logger   *slog.Logger
	closed   atomic.Bool
}

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	backend    docstore.Client
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the service's collectors with reg. Without it
// the collectors stay unregistered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithBackend uses an already open client instead of opening one from the
// configuration. The service takes ownership and closes it.
func WithBackend(backend docstore.Client) Option {
	return func(o *options) { o.backend = backend }
}

// New opens the backend, constructs and initializes the configured routing
// strategy, and creates the batch when batching is enabled.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (s *Service, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rec := metrics.New(o.registerer, o.logger)
	defer rec.Start(metrics.Initialization).Done(&err)

	backend := o.backend
	if backend == nil {
		if len(cfg.Backend.Addresses) > 0 {
			o.logger.Debug("cluster addresses are unused by embedded modes",
				slog.Any("addresses", cfg.Backend.Addresses))
		}
		backend, err = docstore.Open(ctx, BackendOptions(cfg, o.logger))
		if err != nil {
			return nil, err
		}
	}

	strategy, err := routing.New(cfg.Routing.Strategy)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	if err = strategy.Init(ctx, backend, cfg.Routing); err != nil {
		_ = backend.Close()
		return nil, err
	}

	s = &Service{
		cfg:      *cfg,
		backend:  backend,
		strategy: strategy,
		planner: planner.New(backend, strategy, planner.Options{
			Refresh: cfg.Refresh,
			Window:  cfg.SearchWindow,
			Logger:  o.logger,
		}),
		metrics: rec,
		logger:  o.logger,
	}
	if cfg.Batch {
		s.batch = mutation.NewBatch(backend, o.logger)
	}

	o.logger.Info("graph service started",
		slog.String("backend", backend.String()),
		slog.String("strategy", strategy.Name()),
		slog.Bool("batch", cfg.Batch),
		slog.Bool("refresh", cfg.Refresh))

	return s, nil
}

// BackendOptions maps the backend configuration onto engine options.
func BackendOptions(cfg *config.Config, logger *slog.Logger) docstore.Options {
	opts := docstore.DefaultOptions()
	opts.Mode = docstore.Mode(cfg.Backend.Mode)
	opts.Path = cfg.Backend.Path
	opts.ClusterName = cfg.Backend.ClusterName
	opts.Driver = cfg.Backend.Driver
	if cfg.Backend.FlushInterval > 0 {
		opts.FlushInterval = cfg.Backend.FlushInterval
	}
	opts.Logger = logger
	return opts
}

func (s *Service) checkOpen(op string) error {
	if s.closed.Load() {
		return errs.New(errs.KindLifecycle, op, "service is closed")
	}
	return nil
}

// Metrics returns the service's recorder.
func (s *Service) Metrics() *metrics.Recorder { return s.metrics }

// Backend returns the underlying client.
func (s *Service) Backend() docstore.Client { return s.backend }

// Batching reports whether writes are staged until Commit.
func (s *Service) Batching() bool { return s.batch != nil }

// =============================================================================
// Writes
// =============================================================================

// write executes op now, or stages it when batching.
func (s *Service) write(ctx context.Context, op docstore.BulkOperation) error {
	if s.batch != nil {
		s.batch.Stage(op)
		return nil
	}

	switch op.Type {
	case docstore.OpCreate:
		_, err := s.backend.Index(ctx, docstore.IndexRequest{
			Index:  op.Index,
			ID:     op.ID,
			Type:   op.DocType,
			Source: op.Source,
		})
		return errs.Backend("index", err)
	case docstore.OpDelete:
		return errs.Backend("delete", s.backend.Delete(ctx, op.Index, op.ID))
	case docstore.OpUpdate:
		return errs.Backend("update", s.backend.Update(ctx, docstore.UpdateRequest{
			Index:  op.Index,
			ID:     op.ID,
			Doc:    op.Source,
			Remove: op.Remove,
		}))
	}
	return errs.New(errs.KindBackend, "write", "unknown operation %d", op.Type)
}

// AddElement creates a vertex or edge and returns its id. Properties are
// validated before any I/O; an absent id is generated. The write is
// create-only, so an existing id fails (at Commit when batching).
func (s *Service) AddElement(ctx context.Context, req graph.AddRequest) (id string, err error) {
	const op = "add element"
	defer s.metrics.Start(metrics.AddElement).Done(&err)

	if err := s.checkOpen(op); err != nil {
		return "", err
	}
	if err := graph.ValidateProperties(req.Kind, req.Properties); err != nil {
		return "", err
	}

	res, err := s.strategy.ResolveForCreate(req)
	if err != nil {
		return "", err
	}
	err = s.write(ctx, docstore.CreateOp(docstore.IndexRequest{
		Index:  res.Index,
		ID:     res.ID,
		Type:   res.Type,
		Source: res.Source,
	}))
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

// AddVertex is AddElement for a vertex.
func (s *Service) AddVertex(ctx context.Context, label, id string, props ...graph.Property) (string, error) {
	return s.AddElement(ctx, graph.AddRequest{Kind: graph.VertexKind, Label: label, ID: id, Properties: props})
}

// AddEdge is AddElement for an edge from outID to inID.
func (s *Service) AddEdge(ctx context.Context, label, id, outID, inID string, props ...graph.Property) (string, error) {
	return s.AddElement(ctx, graph.AddRequest{
		Kind:       graph.EdgeKind,
		Label:      label,
		ID:         id,
		OutID:      outID,
		InID:       inID,
		Properties: props,
	})
}

// DeleteElement removes el. Deleting an element that does not exist is not
// an error.
func (s *Service) DeleteElement(ctx context.Context, el graph.Element) (err error) {
	const op = "delete element"
	defer s.metrics.Start(metrics.RemoveElement).Done(&err)

	if err := s.checkOpen(op); err != nil {
		return err
	}
	index, err := s.strategy.IndexFor(graph.RefOf(el))
	if err != nil {
		return err
	}
	return s.write(ctx, docstore.DeleteOp(index, el.ID()))
}

// DeleteElements removes every element of els in one bulk request, or stages
// the deletions when batching.
func (s *Service) DeleteElements(ctx context.Context, els ...graph.Element) (err error) {
	const op = "delete elements"
	defer s.metrics.Start(metrics.BulkExecute).Done(&err)

	if err := s.checkOpen(op); err != nil {
		return err
	}
	if len(els) == 0 {
		return nil
	}

	ops := make([]docstore.BulkOperation, 0, len(els))
	for _, el := range els {
		index, err := s.strategy.IndexFor(graph.RefOf(el))
		if err != nil {
			return err
		}
		ops = append(ops, docstore.DeleteOp(index, el.ID()))
	}

	if s.batch != nil {
		for _, o := range ops {
			s.batch.Stage(o)
		}
		return nil
	}

	resp, err := s.backend.Bulk(ctx, ops)
	if err != nil {
		return errs.Backend(op, err)
	}
	return errs.Backend(op, resp.Err())
}

// AddProperty sets key to value on el. The value is written as given.
func (s *Service) AddProperty(ctx context.Context, el graph.Element, key string, value any) (err error) {
	const op = "add property"
	defer s.metrics.Start(metrics.UpdateProperty).Done(&err)

	if err := s.checkOpen(op); err != nil {
		return err
	}
	index, err := s.strategy.IndexFor(graph.RefOf(el))
	if err != nil {
		return err
	}
	return s.write(ctx, docstore.UpdateOp(docstore.UpdateRequest{
		Index: index,
		ID:    el.ID(),
		Doc:   map[string]any{key: value},
	}))
}

// RemoveProperty deletes key from el. The key is passed to the store as data,
// never spliced into an expression. An empty key, or an edge endpoint key,
// is rejected.
func (s *Service) RemoveProperty(ctx context.Context, el graph.Element, key string) (err error) {
	const op = "remove property"
	defer s.metrics.Start(metrics.RemoveProperty).Done(&err)

	if err := s.checkOpen(op); err != nil {
		return err
	}
	if key == "" {
		return errs.Validation(op, "property key must not be empty")
	}
	if el.Kind() == graph.EdgeKind && (key == graph.OutIDKey || key == graph.InIDKey) {
		return errs.Validation(op, "edge endpoint %q cannot be removed", key)
	}

	index, err := s.strategy.IndexFor(graph.RefOf(el))
	if err != nil {
		return err
	}
	return s.write(ctx, docstore.UpdateOp(docstore.UpdateRequest{
		Index:  index,
		ID:     el.ID(),
		Remove: []string{key},
	}))
}

// Commit sends every staged write. Without batching it does nothing.
func (s *Service) Commit(ctx context.Context) (err error) {
	const op = "commit"
	if err := s.checkOpen(op); err != nil {
		return err
	}
	if s.batch == nil {
		return nil
	}

	defer s.metrics.Start(metrics.BulkExecute).Done(&err)
	_, err = s.batch.Commit(ctx)
	return err
}

// =============================================================================
// Reads
// =============================================================================

// GetVertices returns the vertices with the given ids. Ids that do not exist
// are left out of the result.
func (s *Service) GetVertices(ctx context.Context, label string, ids ...string) (vs []*graph.Vertex, err error) {
	const op = "get vertices"
	defer s.metrics.Start(metrics.Get).Done(&err)

	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	res, err := s.planner.Run(ctx, planner.Query{Kind: graph.VertexKind, IDs: ids, Labels: labelList(label)})
	if err != nil {
		return nil, err
	}
	return collect[*graph.Vertex](graph.VertexKind, res.Matches)
}

// GetEdges returns the edges with the given ids. Unlike GetVertices, any id
// that does not exist fails the whole call with a not-found error.
func (s *Service) GetEdges(ctx context.Context, label string, ids ...string) (es []*graph.Edge, err error) {
	const op = "get edges"
	defer s.metrics.Start(metrics.Get).Done(&err)

	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	res, err := s.planner.Run(ctx, planner.Query{Kind: graph.EdgeKind, IDs: ids, Labels: labelList(label)})
	if err != nil {
		return nil, err
	}
	if err := missingEdges(op, res.Missing); err != nil {
		return nil, err
	}
	return collect[*graph.Edge](graph.EdgeKind, res.Matches)
}

// SearchVertices finds vertices matching f, restricted to ids and labels
// when given. The search runs before SearchVertices returns; elements are
// materialized as the stream is consumed.
func (s *Service) SearchVertices(ctx context.Context, f filter.Filter, ids, labels []string) (*graph.Stream[*graph.Vertex], error) {
	res, err := s.search(ctx, "search vertices", planner.Query{Kind: graph.VertexKind, Filter: f, IDs: ids, Labels: labels})
	if err != nil {
		return nil, err
	}
	return stream[*graph.Vertex](graph.VertexKind, res.Matches), nil
}

// SearchEdges finds edges matching f, restricted to ids and labels when
// given. A lookup by ids alone behaves like GetEdges, missing ids included.
func (s *Service) SearchEdges(ctx context.Context, f filter.Filter, ids, labels []string) (*graph.Stream[*graph.Edge], error) {
	const op = "search edges"
	res, err := s.search(ctx, op, planner.Query{Kind: graph.EdgeKind, Filter: f, IDs: ids, Labels: labels})
	if err != nil {
		return nil, err
	}
	if err := missingEdges(op, res.Missing); err != nil {
		return nil, err
	}
	return stream[*graph.Edge](graph.EdgeKind, res.Matches), nil
}

func (s *Service) search(ctx context.Context, op string, q planner.Query) (res *planner.Result, err error) {
	defer s.metrics.Start(metrics.Search).Done(&err)

	if err := s.checkOpen(op); err != nil {
		return nil, err
	}
	return s.planner.Run(ctx, q)
}

func labelList(label string) []string {
	if label == "" {
		return nil
	}
	return []string{label}
}

func missingEdges(op string, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return errs.NotFound(op, graph.EdgeKind.String(), missing[0])
}

func materialize[T graph.Element](kind graph.Kind, m planner.Match) (T, error) {
	var zero T
	el, err := graph.Materialize(kind, m.ID, m.Label, m.Source)
	if err != nil {
		return zero, err
	}
	typed, ok := el.(T)
	if !ok {
		return zero, errs.Materialization("materialize", "element %s is a %s", m.ID, el.Kind())
	}
	return typed, nil
}

func collect[T graph.Element](kind graph.Kind, matches []planner.Match) ([]T, error) {
	out := make([]T, 0, len(matches))
	for _, m := range matches {
		el, err := materialize[T](kind, m)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

func stream[T graph.Element](kind graph.Kind, matches []planner.Match) *graph.Stream[T] {
	if len(matches) == 0 {
		return graph.EmptyStream[T]()
	}
	i := 0
	return graph.NewStream(func() (T, bool, error) {
		var zero T
		if i >= len(matches) {
			return zero, false, nil
		}
		m := matches[i]
		i++
		el, err := materialize[T](kind, m)
		if err != nil {
			return zero, false, err
		}
		return el, true, nil
	})
}

// =============================================================================
// Lifecycle
// =============================================================================

// Close closes the backend, then the strategy, then logs the timing summary.
// Staged writes that were never committed are discarded. Closing twice is
// an error.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return errs.New(errs.KindLifecycle, "close", "service already closed")
	}

	if s.batch != nil {
		if n := s.batch.Len(); n > 0 {
			s.logger.Warn("discarding uncommitted writes", slog.Int("operations", n))
		}
	}

	var result error
	if err := s.backend.Close(); err != nil {
		result = errors.Join(result, fmt.Errorf("close backend: %w", err))
	}
	if err := s.strategy.Close(); err != nil {
		result = errors.Join(result, fmt.Errorf("close strategy: %w", err))
	}
	s.metrics.LogSummary()
	return result
}

// queueReporter is implemented by backends with background indexing queues.
type queueReporter interface {
	QueueStats() map[string]docstore.QueueStats
}

// CollectData logs the timing summary gathered so far and, when the backend
// indexes asynchronously, the queue statistics of every index.
func (s *Service) CollectData() {
	s.metrics.LogSummary()

	qr, ok := s.backend.(queueReporter)
	if !ok {
		return
	}
	stats := qr.QueueStats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := stats[name]
		s.logger.Info("index queue",
			slog.String("index", name),
			slog.Int("pending", st.QueueLength),
			slog.Int64("enqueued", st.Enqueued),
			slog.Int64("processed", st.Processed),
			slog.Int64("failed", st.Failed),
			slog.Int64("batches", st.Batches))
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config returns the settings the service is running with.
func (s *Service) Config() config.Config {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg
}

// Reconfigure applies the settings of cfg that can change while the service
// is open: refresh and the search window. Backend, routing and batching
// changes take effect only when the service is reopened; they are logged and
// otherwise ignored.
func (s *Service) Reconfigure(cfg *config.Config) error {
	const op = "reconfigure"
	if err := s.checkOpen(op); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	if restart := restartFields(&s.cfg, cfg); len(restart) > 0 {
		s.logger.Warn("configuration change needs a restart", slog.Any("fields", restart))
	}
	if s.cfg.Refresh == cfg.Refresh && s.cfg.SearchWindow == cfg.SearchWindow {
		return nil
	}

	s.cfg.Refresh = cfg.Refresh
	s.cfg.SearchWindow = cfg.SearchWindow
	s.planner.Configure(cfg.Refresh, cfg.SearchWindow)
	s.logger.Info("configuration applied",
		slog.Bool("refresh", cfg.Refresh),
		slog.Int("search_window", cfg.SearchWindow))
	return nil
}

func restartFields(running, next *config.Config) []string {
	var fields []string
	rb, nb := running.Backend, next.Backend
	if rb.Mode != nb.Mode || rb.Path != nb.Path || rb.Driver != nb.Driver ||
		rb.ClusterName != nb.ClusterName || rb.FlushInterval != nb.FlushInterval {
		fields = append(fields, "backend")
	}
	if running.Routing != next.Routing {
		fields = append(fields, "routing")
	}
	if running.Batch != next.Batch {
		fields = append(fields, "batch")
	}
	return fields
}

func (s *Service) String() string {
	return fmt.Sprintf("Service{strategy=%v, backend=%s}", s.strategy, s.backend.String())
}
