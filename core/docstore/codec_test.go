package docstore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalSource(t *testing.T) {
	t.Parallel()

	data, source, err := canonicalSource(map[string]any{
		"int":    int32(7),
		"big":    int64(1) << 60,
		"float":  float32(1.5),
		"text":   "lop",
		"flag":   true,
		"list":   []int{1, 2},
		"nested": map[string]any{"n": 3},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	assert.Equal(t, int64(7), source["int"])
	assert.Equal(t, int64(1)<<60, source["big"])
	assert.Equal(t, 1.5, source["float"])
	assert.Equal(t, "lop", source["text"])
	assert.Equal(t, true, source["flag"])
	assert.Equal(t, []any{int64(1), int64(2)}, source["list"])
	assert.Equal(t, map[string]any{"n": int64(3)}, source["nested"])
}

func TestCanonicalSource_NumericTypes(t *testing.T) {
	t.Parallel()

	data, source, err := canonicalSource(map[string]any{
		"integral": 2.0,
		"zero":     0.0,
		"small":    float32(3),
		"tiny":     1e-9,
		"huge":     1e21,
		"int32":    int32(math.MinInt32),
		"uint64":   uint64(math.MaxUint64),
		"floats":   []float64{1, 2.5},
		"scores":   map[string]float32{"a": 4},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"integral":2.0`)

	assert.Equal(t, 2.0, source["integral"])
	assert.Equal(t, 0.0, source["zero"])
	assert.Equal(t, 3.0, source["small"])
	assert.Equal(t, 1e-9, source["tiny"])
	assert.Equal(t, 1e21, source["huge"])
	assert.Equal(t, int64(math.MinInt32), source["int32"])
	assert.Equal(t, uint64(math.MaxUint64), source["uint64"])
	assert.Equal(t, []any{1.0, 2.5}, source["floats"])
	assert.Equal(t, map[string]any{"a": 4.0}, source["scores"])
}

func TestNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want any
	}{
		{"7", int64(7)},
		{"-7", int64(-7)},
		{"7.0", 7.0},
		{"7e0", 7.0},
		{"18446744073709551615", uint64(math.MaxUint64)},
		{"184467440737095516150", 1.8446744073709552e20},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, number(tt.in))
		})
	}
}

func TestEncodeSource_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := encodeSource(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestDecodeSource_Empty(t *testing.T) {
	t.Parallel()

	source, err := decodeSource([]byte("null"))
	require.NoError(t, err)
	assert.Empty(t, source)
	assert.NotNil(t, source)
}
