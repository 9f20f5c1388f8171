package routing

import (
	"context"
	"fmt"

	"github.com/adalundhe/docgraph/core/config"
	"github.com/adalundhe/docgraph/core/docstore"
	errs "github.com/adalundhe/docgraph/core/errors"
	"github.com/adalundhe/docgraph/core/filter"
	"github.com/adalundhe/docgraph/core/graph"
)

const DefaultStrategyName = "default"

// DefaultStrategy keeps all vertices in one index and all edges in another.
type DefaultStrategy struct {
	prefix string
}

func (s *DefaultStrategy) Name() string { return DefaultStrategyName }

func (s *DefaultStrategy) Init(_ context.Context, _ docstore.Client, cfg config.RoutingConfig) error {
	s.prefix = prefixOf(cfg)
	return nil
}

func (s *DefaultStrategy) indexFor(kind graph.Kind) (string, error) {
	suffix, err := kindSuffix(kind)
	if err != nil {
		return "", err
	}
	return s.prefix + "_" + suffix, nil
}

func (s *DefaultStrategy) ResolveForCreate(req graph.AddRequest) (*AddElementResult, error) {
	if req.Label == "" {
		return nil, errs.Configuration("resolve", "element label must not be empty")
	}
	index, err := s.indexFor(req.Kind)
	if err != nil {
		return nil, err
	}
	id, source, err := buildSource(req)
	if err != nil {
		return nil, err
	}
	return &AddElementResult{Index: index, ID: id, Type: req.Label, Source: source}, nil
}

func (s *DefaultStrategy) IndexFor(ref graph.Ref) (string, error) {
	return s.indexFor(ref.Kind)
}

func (s *DefaultStrategy) PlanSearch(_ context.Context, f filter.Filter, kind graph.Kind, labels []string) (*SearchResult, error) {
	index, err := s.indexFor(kind)
	if err != nil {
		return nil, err
	}
	return &SearchResult{
		Indices: []string{index},
		Filter:  f,
		Types:   append([]string(nil), labels...),
	}, nil
}

func (s *DefaultStrategy) Close() error { return nil }

func (s *DefaultStrategy) String() string {
	return fmt.Sprintf("%s[%s]", DefaultStrategyName, s.prefix)
}
