// Package planner turns element lookups into backend requests. A lookup by
// ids alone, for at most one label, is answered by a direct multi-get; any
// other lookup becomes a filtered search over the indices the routing
// strategy selects.
package planner

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/adalundhe/docgraph/core/config"
	"github.com/adalundhe/docgraph/core/docstore"
	errs "github.com/adalundhe/docgraph/core/errors"
	"github.com/adalundhe/docgraph/core/filter"
	"github.com/adalundhe/docgraph/core/graph"
	"github.com/adalundhe/docgraph/core/routing"
)

// Options configures a Planner.
type Options struct {
	// Refresh makes every general-path search refresh its indices first, so
	// that it observes all completed writes.
	Refresh bool

	// Window caps the hits of one search (default 2,000,000).
	Window int

	Logger *slog.Logger
}

// Planner is safe for concurrent use.
type Planner struct {
	backend  docstore.Client
	strategy routing.Strategy
	opts     atomic.Pointer[Options]
	logger   *slog.Logger
}

// Query is one element lookup.
type Query struct {
	Kind   graph.Kind
	Filter filter.Filter
	IDs    []string
	Labels []string
}

// Plan is the chosen execution of a Query.
type Plan struct {
	// FastPath selects a multi-get of IDs against Index, keeping only
	// documents of type Label when Label is set.
	FastPath bool
	Index    string
	Label    string
	IDs      []string

	// Search is the general-path scope, set when FastPath is false.
	Search *routing.SearchResult

	// ReportMissing marks an id lookup that had to be answered by a search.
	// Requested IDs without a hit are reported as missing, as on the fast
	// path.
	ReportMissing bool
}

// Match is one document found by a plan.
type Match struct {
	ID     string
	Label  string
	Source map[string]any
}

// Result holds the matches of a plan. Missing lists the requested ids an
// id lookup did not find.
type Result struct {
	Matches []Match
	Missing []string
}

func New(backend docstore.Client, strategy routing.Strategy, opts Options) *Planner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Planner{
		backend:  backend,
		strategy: strategy,
		logger:   opts.Logger,
	}
	p.Configure(opts.Refresh, opts.Window)
	return p
}

// Configure replaces the refresh and window settings. Plans already running
// keep the settings they started with.
func (p *Planner) Configure(refresh bool, window int) {
	if window <= 0 {
		window = config.DefaultSearchWindow
	}
	p.opts.Store(&Options{Refresh: refresh, Window: window, Logger: p.logger})
}

// Options returns the current settings.
func (p *Planner) Options() Options {
	return *p.opts.Load()
}

// Plan chooses between the fast path and a general search.
//
// The fast path applies when the filter is empty, at most one label is
// given, ids are present and the strategy can name the index those ids live
// in. Otherwise the ids are conjoined with the filter and the strategy plans
// a search. Duplicate ids are requested once.
func (p *Planner) Plan(ctx context.Context, q Query) (*Plan, error) {
	f := q.Filter
	if f == nil {
		f = filter.Empty()
	}
	ids := uniqueIDs(q.IDs)

	idLookup := f.IsEmpty() && len(q.Labels) <= 1 && len(ids) > 0
	if idLookup {
		ref := graph.Ref{Kind: q.Kind}
		if len(q.Labels) == 1 {
			ref.Label = q.Labels[0]
		}
		index, err := p.strategy.IndexFor(ref)
		switch {
		case err == nil:
			return &Plan{FastPath: true, Index: index, Label: ref.Label, IDs: ids}, nil
		case len(q.Labels) == 1:
			return nil, err
		}
		// No label and no single index to read from: search instead.
	}

	search, err := p.strategy.PlanSearch(ctx, filter.WithIDs(f, ids), q.Kind, q.Labels)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Search: search, ReportMissing: idLookup}
	if idLookup {
		plan.IDs = ids
	}
	return plan, nil
}

// Execute runs a plan.
func (p *Planner) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	if plan.FastPath {
		return p.multiGet(ctx, plan)
	}
	res, err := p.search(ctx, plan.Search)
	if err != nil {
		return nil, err
	}
	if plan.ReportMissing {
		res.Missing = missingIDs(plan.IDs, res.Matches)
	}
	return res, nil
}

// Run plans and executes q.
func (p *Planner) Run(ctx context.Context, q Query) (*Result, error) {
	plan, err := p.Plan(ctx, q)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, plan)
}

func (p *Planner) multiGet(ctx context.Context, plan *Plan) (*Result, error) {
	items := make([]docstore.GetItem, len(plan.IDs))
	for i, id := range plan.IDs {
		items[i] = docstore.GetItem{Index: plan.Index, ID: id}
	}

	docs, err := p.backend.MultiGet(ctx, items)
	if err != nil {
		return nil, errs.Backend("get", err)
	}

	result := &Result{Matches: make([]Match, 0, len(docs))}
	for _, doc := range docs {
		if !doc.Found || (plan.Label != "" && doc.Type != plan.Label) {
			result.Missing = append(result.Missing, doc.ID)
			continue
		}
		result.Matches = append(result.Matches, Match{ID: doc.ID, Label: doc.Type, Source: doc.Source})
	}

	p.logger.Debug("fast path lookup",
		slog.String("index", plan.Index),
		slog.Int("requested", len(plan.IDs)),
		slog.Int("found", len(result.Matches)))

	return result, nil
}

func (p *Planner) search(ctx context.Context, scope *routing.SearchResult) (*Result, error) {
	if len(scope.Indices) == 0 {
		return &Result{}, nil
	}

	opts := p.opts.Load()
	if opts.Refresh {
		if err := p.backend.Refresh(ctx, scope.Indices...); err != nil {
			return nil, errs.Backend("refresh", err)
		}
	}

	f := scope.Filter
	if f == nil {
		f = filter.Empty()
	}
	resp, err := p.backend.Search(ctx, docstore.SearchRequest{
		Indices: scope.Indices,
		Types:   scope.Types,
		Query:   f.Query(),
		Size:    opts.Window,
	})
	if err != nil {
		return nil, errs.Backend("search", err)
	}

	result := &Result{Matches: make([]Match, 0, len(resp.Hits))}
	for _, hit := range resp.Hits {
		result.Matches = append(result.Matches, Match{ID: hit.ID, Label: hit.Type, Source: hit.Source})
	}

	p.logger.Debug("search",
		slog.Any("indices", scope.Indices),
		slog.String("filter", f.String()),
		slog.Int("hits", len(result.Matches)),
		slog.Duration("took", resp.Took))

	return result, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// missingIDs returns the ids with no match, in request order.
func missingIDs(ids []string, matches []Match) []string {
	found := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		found[m.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
