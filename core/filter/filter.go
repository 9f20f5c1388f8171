// Package filter provides the composable predicate tree used to constrain
// element searches. Filters are opaque to callers; the document backend
// compiles them into bleve queries.
package filter

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Filter is a predicate over stored documents.
type Filter interface {
	// IsEmpty reports whether the filter has no clauses. An empty filter
	// matches every document.
	IsEmpty() bool

	// Query compiles the filter into a bleve query.
	Query() query.Query

	String() string
}

// =============================================================================
// Leaves
// =============================================================================

type emptyFilter struct{}

// Empty returns the no-op filter.
func Empty() Filter { return emptyFilter{} }

func (emptyFilter) IsEmpty() bool       { return true }
func (emptyFilter) Query() query.Query { return bleve.NewMatchAllQuery() }
func (emptyFilter) String() string     { return "*" }

type matchAll struct{}

// MatchAll returns a non-empty filter that matches every document.
// Unlike Empty it counts as a clause, so it disables the id fast path.
func MatchAll() Filter { return matchAll{} }

func (matchAll) IsEmpty() bool       { return false }
func (matchAll) Query() query.Query { return bleve.NewMatchAllQuery() }
func (matchAll) String() string     { return "all()" }

type idsFilter struct {
	ids []string
}

// IDs matches documents whose id is one of ids.
func IDs(ids ...string) Filter {
	cp := make([]string, len(ids))
	copy(cp, ids)
	return idsFilter{ids: cp}
}

func (f idsFilter) IsEmpty() bool { return false }

func (f idsFilter) Query() query.Query {
	if len(f.ids) == 0 {
		return bleve.NewMatchNoneQuery()
	}
	return bleve.NewDocIDQuery(f.ids)
}

func (f idsFilter) String() string {
	return "ids(" + strings.Join(f.ids, ",") + ")"
}

type termFilter struct {
	field string
	value any
}

// Term matches documents whose field equals value. Strings match exactly,
// numbers match numerically and booleans match as booleans.
func Term(field string, value any) Filter {
	return termFilter{field: field, value: value}
}

func (f termFilter) IsEmpty() bool { return false }

func (f termFilter) Query() query.Query {
	if n, ok := toFloat(f.value); ok {
		inclusive := true
		q := bleve.NewNumericRangeInclusiveQuery(&n, &n, &inclusive, &inclusive)
		q.SetField(f.field)
		return q
	}
	if b, ok := f.value.(bool); ok {
		q := bleve.NewBoolFieldQuery(b)
		q.SetField(f.field)
		return q
	}
	q := bleve.NewTermQuery(fmt.Sprint(f.value))
	q.SetField(f.field)
	return q
}

func (f termFilter) String() string {
	return fmt.Sprintf("%s=%v", f.field, f.value)
}

type rangeFilter struct {
	field    string
	min, max *float64
}

// Range matches documents whose numeric field lies in [min, max].
// A nil bound is open.
func Range(field string, min, max *float64) Filter {
	return rangeFilter{field: field, min: min, max: max}
}

func (f rangeFilter) IsEmpty() bool { return false }

func (f rangeFilter) Query() query.Query {
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(f.min, f.max, &inclusive, &inclusive)
	q.SetField(f.field)
	return q
}

func (f rangeFilter) String() string {
	return fmt.Sprintf("%s in [%s, %s]", f.field, bound(f.min), bound(f.max))
}

func bound(v *float64) string {
	if v == nil {
		return "*"
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

type prefixFilter struct {
	field, prefix string
}

// Prefix matches documents whose string field starts with prefix.
func Prefix(field, prefix string) Filter {
	return prefixFilter{field: field, prefix: prefix}
}

func (f prefixFilter) IsEmpty() bool { return false }

func (f prefixFilter) Query() query.Query {
	q := bleve.NewPrefixQuery(f.prefix)
	q.SetField(f.field)
	return q
}

func (f prefixFilter) String() string {
	return fmt.Sprintf("%s=%s*", f.field, f.prefix)
}

// =============================================================================
// Composition
// =============================================================================

type andFilter struct {
	clauses []Filter
}

// And returns the conjunction of filters. Empty operands are dropped and
// nested conjunctions are flattened; no operand is ever replaced.
func And(filters ...Filter) Filter {
	clauses := collect(filters, func(f Filter) ([]Filter, bool) {
		a, ok := f.(andFilter)
		return a.clauses, ok
	})
	switch len(clauses) {
	case 0:
		return Empty()
	case 1:
		return clauses[0]
	}
	return andFilter{clauses: clauses}
}

func (f andFilter) IsEmpty() bool { return false }

func (f andFilter) Query() query.Query {
	qs := make([]query.Query, len(f.clauses))
	for i, c := range f.clauses {
		qs[i] = c.Query()
	}
	return bleve.NewConjunctionQuery(qs...)
}

func (f andFilter) String() string { return join("and", f.clauses) }

type orFilter struct {
	clauses []Filter
}

// Or returns the disjunction of filters. An empty operand matches everything,
// which makes the whole disjunction empty.
func Or(filters ...Filter) Filter {
	for _, f := range filters {
		if f == nil || f.IsEmpty() {
			return Empty()
		}
	}
	clauses := collect(filters, func(f Filter) ([]Filter, bool) {
		o, ok := f.(orFilter)
		return o.clauses, ok
	})
	switch len(clauses) {
	case 0:
		return Empty()
	case 1:
		return clauses[0]
	}
	return orFilter{clauses: clauses}
}

func (f orFilter) IsEmpty() bool { return false }

func (f orFilter) Query() query.Query {
	qs := make([]query.Query, len(f.clauses))
	for i, c := range f.clauses {
		qs[i] = c.Query()
	}
	return bleve.NewDisjunctionQuery(qs...)
}

func (f orFilter) String() string { return join("or", f.clauses) }

type notFilter struct {
	inner Filter
}

// Not negates f. Negating the empty filter matches nothing.
func Not(f Filter) Filter {
	if f == nil {
		f = Empty()
	}
	return notFilter{inner: f}
}

func (f notFilter) IsEmpty() bool { return false }

func (f notFilter) Query() query.Query {
	if f.inner.IsEmpty() {
		return bleve.NewMatchNoneQuery()
	}
	q := bleve.NewBooleanQuery()
	q.AddMust(bleve.NewMatchAllQuery())
	q.AddMustNot(f.inner.Query())
	return q
}

func (f notFilter) String() string { return "not(" + f.inner.String() + ")" }

// WithIDs restricts f to the given ids. An empty f becomes a bare id filter;
// anything else becomes the conjunction of f and the id filter.
func WithIDs(f Filter, ids []string) Filter {
	if len(ids) == 0 {
		if f == nil {
			return Empty()
		}
		return f
	}
	if f == nil || f.IsEmpty() {
		return IDs(ids...)
	}
	return And(f, IDs(ids...))
}

// IsEmpty reports whether f is nil or has no clauses.
func IsEmpty(f Filter) bool {
	return f == nil || f.IsEmpty()
}

func collect(filters []Filter, flatten func(Filter) ([]Filter, bool)) []Filter {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f == nil || f.IsEmpty() {
			continue
		}
		if nested, ok := flatten(f); ok {
			out = append(out, nested...)
			continue
		}
		out = append(out, f)
	}
	return out
}

func join(op string, clauses []Filter) string {
	parts := make([]string, len(clauses))
	for i, c := range clauses {
		parts[i] = c.String()
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// =============================================================================
// Parsing
// =============================================================================

// ParseTerms builds the conjunction of "key=value" assignments. Values that
// parse as integers, floats or booleans are matched with their typed value.
func ParseTerms(assignments []string) (Filter, error) {
	sorted := make([]string, len(assignments))
	copy(sorted, assignments)
	sort.Strings(sorted)

	terms := make([]Filter, 0, len(sorted))
	for _, a := range sorted {
		key, raw, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid term %q: expected key=value", a)
		}
		terms = append(terms, Term(key, ParseValue(raw)))
	}
	return And(terms...), nil
}

// ParseValue converts a textual value into int64, float64, bool or string.
func ParseValue(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
