// Package canon implements ReplayKit's canonicalization layer: a single,
// byte-exact serialization of the constrained JSON value domain, suitable
// for content-addressed hashing.
package canon

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Value is a sealed interface over the constrained JSON value domain:
// null, boolean, number, string, array, and mapping from string to Value.
// Only the types in this file implement it.
type Value interface {
	value()
}

// Null represents a JSON null.
type Null struct{}

func (Null) value() {}

// String represents a JSON string.
type String string

func (String) value() {}

// Bool represents a JSON boolean.
type Bool bool

func (Bool) value() {}

// Number represents a JSON number. Exactly one of the two fields is
// meaningful, selected by IsInt: integers are carried in Int (no decimal
// point on output); everything else is carried in Float and emitted with
// the shortest round-trip decimal form.
type Number struct {
	Int   int64
	Float float64
	IsInt bool
}

func (Number) value() {}

// Int constructs an integer Number.
func Int(n int64) Number { return Number{Int: n, IsInt: true} }

// Float constructs a floating-point Number. Callers must not pass
// NaN or +/-Inf; Canonicalize rejects them per §4.1's failure modes.
func Float(f float64) Number { return Number{Float: f, IsInt: false} }

// Array represents a JSON array. Element order is significant and
// preserved verbatim.
type Array []Value

func (Array) value() {}

// Object represents a JSON mapping from string keys to Value. Duplicate
// keys cannot be represented (Go maps already exclude them), matching
// §4.1's "duplicate keys are rejected" rule at the parse boundary.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns the object's keys in codepoint order. For
// well-formed UTF-8, Go's native byte-wise string ordering coincides
// with ordering by decoded code point, which is what §4.1 requires.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// FromAny converts an unconstrained Go value (as produced by
// encoding/json.Unmarshal into `any`, or hand-built map[string]any /
// []any / primitives) into the constrained Value domain. It is the
// inverse of the encoding produced elsewhere by ToAny.
//
// json.Number is accepted so callers that decode with
// json.Decoder.UseNumber() can distinguish integers from floats.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case float64:
		// Plain JSON numbers decoded without UseNumber always arrive as
		// float64, even integer-valued ones; callers that need exact
		// integer round-tripping should decode with
		// json.Decoder.UseNumber() and pass json.Number instead.
		return Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("canon: invalid number %q: %w", val.String(), err)
		}
		return Float(f), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			cv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("canon: array[%d]: %w", i, err)
			}
			arr[i] = cv
		}
		return arr, nil
	case []Value:
		return Array(val), nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			cv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("canon: object[%q]: %w", k, err)
			}
			obj[k] = cv
		}
		return obj, nil
	case map[string]Value:
		return Object(val), nil
	default:
		return nil, fmt.Errorf("canon: unsupported type %T", v)
	}
}

// ToAny converts a Value back to an unconstrained Go value, suitable for
// encoding/json.Marshal or further inspection. Numbers round-trip through
// int64 or float64 depending on Number.IsInt.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Null:
		return nil
	case String:
		return string(val)
	case Bool:
		return bool(val)
	case Number:
		if val.IsInt {
			return val.Int
		}
		return val.Float
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}
