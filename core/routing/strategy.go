// Package routing decides which index holds an element and which indices a
// search must visit.
//
// Strategies are selected by name from a registry. Two are built in:
//
//   - "default": one index per element kind, <prefix>_vertices and <prefix>_edges,
//     with the label stored as the document type.
//   - "label": one index per kind and label, <prefix>_<kind>_<label>.
package routing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/adalundhe/docgraph/core/config"
	"github.com/adalundhe/docgraph/core/docstore"
	errs "github.com/adalundhe/docgraph/core/errors"
	"github.com/adalundhe/docgraph/core/filter"
	"github.com/adalundhe/docgraph/core/graph"
)

// Strategy maps elements to indices. Implementations must be safe for
// concurrent use once Init has returned.
type Strategy interface {
	// Init binds the strategy to a backend. It is called once, before any
	// other method.
	Init(ctx context.Context, backend docstore.Client, cfg config.RoutingConfig) error

	// ResolveForCreate decides where a new element is stored and what is
	// stored. It never mutates req.
	ResolveForCreate(req graph.AddRequest) (*AddElementResult, error)

	// IndexFor returns the index holding ref. It agrees with ResolveForCreate.
	IndexFor(ref graph.Ref) (string, error)

	// PlanSearch returns every index that may hold a match of f among
	// elements of kind with one of labels. No labels means any label.
	PlanSearch(ctx context.Context, f filter.Filter, kind graph.Kind, labels []string) (*SearchResult, error)

	// Close releases the strategy. Closing twice is a no-op.
	Close() error

	Name() string
}

// AddElementResult is the resolved placement of a new element.
type AddElementResult struct {
	Index string
	ID    string
	Type  string

	// Source is the document to store. Edge endpoints are merged in.
	Source map[string]any
}

// SearchResult is the resolved scope of a search.
type SearchResult struct {
	Indices []string
	Filter  filter.Filter

	// Types restricts hits to documents of these types. Empty means any.
	Types []string
}

// =============================================================================
// Registry
// =============================================================================

// Factory constructs an uninitialized strategy.
type Factory func() (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a strategy available by name. It panics if the name is
// taken or factory is nil.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("routing: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("routing: Register called twice for strategy " + name)
	}
	registry[name] = factory
}

// New constructs the named strategy.
func New(name string) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errs.Configuration("routing", "unknown routing strategy %q (available: %v)", name, Names())
	}
	s, err := factory()
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "routing", fmt.Errorf("construct strategy %q: %w", name, err))
	}
	return s, nil
}

// Names lists the registered strategies in order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(DefaultStrategyName, func() (Strategy, error) { return &DefaultStrategy{}, nil })
	Register(LabelStrategyName, func() (Strategy, error) { return &LabelStrategy{}, nil })
}

// =============================================================================
// Shared helpers
// =============================================================================

// buildSource assembles the stored document of a creation request into a
// fresh map, assigning an id when none was supplied.
func buildSource(req graph.AddRequest) (string, map[string]any, error) {
	const op = "resolve"

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	source := make(map[string]any, len(req.Properties)+2)
	for _, p := range req.Properties {
		source[p.Key] = p.Value
	}

	if req.Kind == graph.EdgeKind {
		if req.OutID == "" || req.InID == "" {
			return "", nil, errs.Validation(op, "edge %s needs both endpoint ids", id)
		}
		source[graph.OutIDKey] = req.OutID
		source[graph.InIDKey] = req.InID
	}

	return id, source, nil
}

func kindSuffix(kind graph.Kind) (string, error) {
	switch kind {
	case graph.VertexKind:
		return "vertices", nil
	case graph.EdgeKind:
		return "edges", nil
	default:
		return "", errs.Configuration("routing", "unknown element kind %d", kind)
	}
}

func prefixOf(cfg config.RoutingConfig) string {
	if cfg.IndexPrefix == "" {
		return config.DefaultConfig().Routing.IndexPrefix
	}
	return cfg.IndexPrefix
}
