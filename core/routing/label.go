package routing

import (
	"context"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/gobwas/glob"

	"github.com/adalundhe/docgraph/core/config"
	"github.com/adalundhe/docgraph/core/docstore"
	errs "github.com/adalundhe/docgraph/core/errors"
	"github.com/adalundhe/docgraph/core/filter"
	"github.com/adalundhe/docgraph/core/graph"
)

const LabelStrategyName = "label"

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]*$`)

// LabelStrategy keeps each (kind, label) pair in its own index. A search
// without labels visits every existing index of the kind.
type LabelStrategy struct {
	prefix  string
	backend docstore.Client
	globs   map[graph.Kind]glob.Glob
	closed  atomic.Bool
}

func (s *LabelStrategy) Name() string { return LabelStrategyName }

func (s *LabelStrategy) Init(_ context.Context, backend docstore.Client, cfg config.RoutingConfig) error {
	if backend == nil {
		return errs.Configuration("routing", "label strategy needs a backend")
	}
	s.prefix = prefixOf(cfg)
	s.backend = backend
	s.globs = make(map[graph.Kind]glob.Glob, 2)

	for _, kind := range []graph.Kind{graph.VertexKind, graph.EdgeKind} {
		pattern := glob.QuoteMeta(s.prefix+"_"+kind.String()+"_") + "*"
		g, err := glob.Compile(pattern)
		if err != nil {
			return errs.Wrap(errs.KindConfiguration, "routing", err)
		}
		s.globs[kind] = g
	}
	return nil
}

func (s *LabelStrategy) indexFor(kind graph.Kind, label string) (string, error) {
	if kind != graph.VertexKind && kind != graph.EdgeKind {
		return "", errs.Configuration("routing", "unknown element kind %d", kind)
	}
	if !labelPattern.MatchString(label) {
		return "", errs.Configuration("routing", "label %q is not usable as an index name", label)
	}
	return s.prefix + "_" + kind.String() + "_" + label, nil
}

func (s *LabelStrategy) ResolveForCreate(req graph.AddRequest) (*AddElementResult, error) {
	index, err := s.indexFor(req.Kind, req.Label)
	if err != nil {
		return nil, err
	}
	id, source, err := buildSource(req)
	if err != nil {
		return nil, err
	}
	return &AddElementResult{Index: index, ID: id, Type: req.Label, Source: source}, nil
}

func (s *LabelStrategy) IndexFor(ref graph.Ref) (string, error) {
	return s.indexFor(ref.Kind, ref.Label)
}

func (s *LabelStrategy) PlanSearch(ctx context.Context, f filter.Filter, kind graph.Kind, labels []string) (*SearchResult, error) {
	if s.closed.Load() {
		return nil, errs.New(errs.KindLifecycle, "plan search", "strategy is closed")
	}

	if len(labels) > 0 {
		indices := make([]string, 0, len(labels))
		for _, label := range labels {
			index, err := s.indexFor(kind, label)
			if err != nil {
				return nil, err
			}
			indices = append(indices, index)
		}
		return &SearchResult{Indices: indices, Filter: f}, nil
	}

	g, ok := s.globs[kind]
	if !ok {
		return nil, errs.Configuration("routing", "unknown element kind %d", kind)
	}
	existing, err := s.backend.Indices(ctx)
	if err != nil {
		return nil, errs.Backend("plan search", err)
	}

	var indices []string
	for _, name := range existing {
		if g.Match(name) {
			indices = append(indices, name)
		}
	}
	return &SearchResult{Indices: indices, Filter: f}, nil
}

func (s *LabelStrategy) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *LabelStrategy) String() string {
	return fmt.Sprintf("%s[%s]", LabelStrategyName, s.prefix)
}
