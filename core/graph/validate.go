package graph

import (
	"math"
	"reflect"
	"strings"

	errs "github.com/adalundhe/docgraph/core/errors"
)

// ValidateProperty checks a single user property. Keys must be non-empty and
// must not start with an underscore, which the document store reserves.
// Values must be scalars, or lists and string-keyed maps of scalars.
func ValidateProperty(key string, value any) error {
	const op = "validate property"

	if strings.TrimSpace(key) == "" {
		return errs.Validation(op, "property key must not be empty")
	}
	if strings.HasPrefix(key, "_") {
		return errs.Validation(op, "property key %q is reserved", key)
	}
	if value == nil {
		return errs.Validation(op, "property %q has a nil value", key)
	}
	if !validValue(reflect.ValueOf(value)) {
		return errs.Validation(op, "property %q has unsupported value type %T", key, value)
	}
	return nil
}

// ValidateProperties checks every property of a creation request. Keys must
// be unique and, for edges, must not collide with the endpoint keys.
func ValidateProperties(kind Kind, props []Property) error {
	seen := make(map[string]struct{}, len(props))
	for _, p := range props {
		if kind == EdgeKind && (p.Key == OutIDKey || p.Key == InIDKey) {
			return errs.Validation("validate property", "property key %q is reserved for edge endpoints", p.Key)
		}
		if _, dup := seen[p.Key]; dup {
			return errs.Validation("validate property", "duplicate property key %q", p.Key)
		}
		seen[p.Key] = struct{}{}

		if err := ValidateProperty(p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

func validValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if !validValue(v.Index(i)) {
				return false
			}
		}
		return true
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return false
		}
		iter := v.MapRange()
		for iter.Next() {
			if !validValue(iter.Value()) {
				return false
			}
		}
		return true
	case reflect.Interface:
		if v.IsNil() {
			return false
		}
		return validValue(v.Elem())
	default:
		return false
	}
}
