package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// encodeSource serializes a document source. Floating point values always
// carry a fraction or exponent, so 2.0 is stored as 2.0 and not as 2.
func encodeSource(source map[string]any) ([]byte, error) {
	if source == nil {
		source = map[string]any{}
	}
	data, err := json.Marshal(markFloats(source))
	if err != nil {
		return nil, fmt.Errorf("encode source: %w", err)
	}
	return data, nil
}

// decodeSource parses a stored source. Numbers written with a fraction or
// exponent decode as float64, integers as int64, and integers beyond int64
// as uint64.
func decodeSource(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var source map[string]any
	if err := dec.Decode(&source); err != nil {
		return nil, fmt.Errorf("decode source: %w", err)
	}
	if source == nil {
		source = map[string]any{}
	}
	for k, v := range source {
		source[k] = normalize(v)
	}
	return source, nil
}

// canonicalSource round-trips source through the codec so that indexed values
// have the same types a later get returns.
func canonicalSource(source map[string]any) ([]byte, map[string]any, error) {
	data, err := encodeSource(source)
	if err != nil {
		return nil, nil, err
	}
	decoded, err := decodeSource(data)
	if err != nil {
		return nil, nil, err
	}
	return data, decoded, nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		return number(val.String())
	case map[string]any:
		for k, inner := range val {
			val[k] = normalize(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normalize(inner)
		}
		return val
	default:
		return v
	}
}

func number(s string) any {
	if !isFloatLiteral(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func isFloatLiteral(s string) bool {
	return bytes.ContainsAny([]byte(s), ".eE")
}

// =============================================================================
// Floats
// =============================================================================

// jsonFloat marshals like encoding/json but keeps integral values
// recognizable as floats.
type jsonFloat struct {
	v    float64
	bits int
}

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
		return nil, fmt.Errorf("unsupported float value %v", f.v)
	}

	format := byte('f')
	if abs := math.Abs(f.v); abs != 0 {
		if f.bits == 32 {
			abs32 := float32(abs)
			if abs32 < 1e-6 || abs32 >= 1e21 {
				format = 'e'
			}
		} else if abs < 1e-6 || abs >= 1e21 {
			format = 'e'
		}
	}

	b := strconv.AppendFloat(nil, f.v, format, -1, f.bits)
	if !isFloatLiteral(string(b)) {
		b = append(b, '.', '0')
	}
	return b, nil
}

// markFloats replaces the floats in v, at any depth, with jsonFloat. Values
// without floats are returned unchanged.
func markFloats(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		return jsonFloat{v: val, bits: 64}
	case float32:
		return jsonFloat{v: float64(val), bits: 32}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = markFloats(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = markFloats(inner)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if !mayHoldFloat(rv.Type().Elem()) {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = markFloats(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || !mayHoldFloat(rv.Type().Elem()) {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = markFloats(iter.Value().Interface())
		}
		return out
	case reflect.Float32:
		return jsonFloat{v: rv.Float(), bits: 32}
	case reflect.Float64:
		return jsonFloat{v: rv.Float(), bits: 64}
	}
	return v
}

func mayHoldFloat(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Interface,
		reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}
