package graph

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/adalundhe/docgraph/core/errors"
)

// =============================================================================
// Elements
// =============================================================================

func TestParseKind(t *testing.T) {
	t.Parallel()

	k, err := ParseKind("Vertex")
	require.NoError(t, err)
	assert.Equal(t, VertexKind, k)

	k, err = ParseKind("edges")
	require.NoError(t, err)
	assert.Equal(t, EdgeKind, k)

	_, err = ParseKind("hyperedge")
	assert.Error(t, err)
}

func TestVertex_PropertiesAreCopied(t *testing.T) {
	t.Parallel()

	props := []Property{{Key: "name", Value: "marko"}}
	v := NewVertex("1", "person", props)
	props[0].Value = "changed"

	got, ok := v.Property("name")
	require.True(t, ok)
	assert.Equal(t, "marko", got)

	out := v.Properties()
	out[0].Value = "changed"
	got, _ = v.Property("name")
	assert.Equal(t, "marko", got)

	assert.Equal(t, Ref{ID: "1", Label: "person", Kind: VertexKind}, RefOf(v))
	assert.Equal(t, "v[person:1]", v.String())
}

// =============================================================================
// Validation
// =============================================================================

func TestValidateProperty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		key   string
		value any
		ok    bool
	}{
		{"string", "name", "marko", true},
		{"int", "age", 29, true},
		{"float", "weight", 0.4, true},
		{"bool", "active", true, true},
		{"list", "tags", []any{"a", 1}, true},
		{"map", "meta", map[string]any{"k": "v"}, true},
		{"empty key", "", "x", false},
		{"blank key", "  ", "x", false},
		{"reserved prefix", "_type", "x", false},
		{"nil value", "name", nil, false},
		{"nan", "weight", math.NaN(), false},
		{"channel", "ch", make(chan int), false},
		{"struct", "s", struct{}{}, false},
		{"nil in list", "tags", []any{nil}, false},
		{"int keyed map", "m", map[int]string{1: "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProperty(tt.key, tt.value)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrValidation))
		})
	}
}

func TestValidateProperties(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateProperties(VertexKind, []Property{{Key: "outId", Value: "x"}}),
		"endpoint keys are only reserved on edges")

	err := ValidateProperties(EdgeKind, []Property{{Key: InIDKey, Value: "x"}})
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	err = ValidateProperties(VertexKind, []Property{{Key: "a", Value: 1}, {Key: "a", Value: 2}})
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

// =============================================================================
// Materialization
// =============================================================================

func TestMaterialize_Vertex(t *testing.T) {
	t.Parallel()

	el, err := Materialize(VertexKind, "1", "person", map[string]any{"name": "marko", "age": int64(29)})
	require.NoError(t, err)

	v, ok := el.(*Vertex)
	require.True(t, ok)
	assert.Equal(t, "1", v.ID())
	assert.Equal(t, "person", v.Label())
	assert.Equal(t, []Property{{Key: "age", Value: int64(29)}, {Key: "name", Value: "marko"}}, v.Properties())
}

func TestMaterialize_EdgeKeepsEndpointProperties(t *testing.T) {
	t.Parallel()

	el, err := Materialize(EdgeKind, "7", "knows", map[string]any{OutIDKey: "1", InIDKey: "2", "weight": 0.5})
	require.NoError(t, err)

	e, ok := el.(*Edge)
	require.True(t, ok)
	assert.Equal(t, "1", e.OutID())
	assert.Equal(t, "2", e.InID())

	out, ok := e.Property(OutIDKey)
	require.True(t, ok)
	assert.Equal(t, "1", out)
	in, ok := e.Property(InIDKey)
	require.True(t, ok)
	assert.Equal(t, "2", in)
	assert.Len(t, e.Properties(), 3)
}

func TestMaterialize_MalformedEdge(t *testing.T) {
	t.Parallel()

	tests := map[string]map[string]any{
		"missing out":    {InIDKey: "2"},
		"missing in":     {OutIDKey: "1"},
		"non-string out": {OutIDKey: int64(1), InIDKey: "2"},
		"empty in":       {OutIDKey: "1", InIDKey: ""},
	}

	for name, fields := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Materialize(EdgeKind, "7", "knows", fields)
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.KindMaterialization))
		})
	}
}

// =============================================================================
// Stream
// =============================================================================

func sliceStream[T any](items []T) *Stream[T] {
	i := 0
	return NewStream(func() (T, bool, error) {
		var zero T
		if i >= len(items) {
			return zero, false, nil
		}
		i++
		return items[i-1], true, nil
	})
}

func TestStream_OneShot(t *testing.T) {
	t.Parallel()

	s := sliceStream([]int{1, 2, 3})

	var got []int
	for v := range s.All() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2, 3}, got)
	require.NoError(t, s.Err())

	again, err := s.Collect()
	require.NoError(t, err)
	assert.Empty(t, again, "second consumption yields nothing")
}

func TestStream_EarlyBreakResumes(t *testing.T) {
	t.Parallel()

	s := sliceStream([]string{"a", "b", "c"})
	for v := range s.All() {
		assert.Equal(t, "a", v)
		break
	}

	rest, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, rest)
}

func TestStream_ErrorEndsStream(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	s := NewStream(func() (int, bool, error) {
		calls++
		if calls == 2 {
			return 0, false, boom
		}
		return calls, true, nil
	})

	items, err := s.Collect()
	assert.Equal(t, []int{1}, items)
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.Next())
	assert.Equal(t, 2, calls)
}

func TestEmptyStream(t *testing.T) {
	t.Parallel()

	s := EmptyStream[*Vertex]()
	assert.False(t, s.Next())
	assert.Nil(t, s.Value())
	assert.NoError(t, s.Err())
}
