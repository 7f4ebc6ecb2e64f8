// internal/types/value.go
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

/*
 * Structured values for records and match operands.
 *
 * Value is a closed tagged variant (missing, null, bool, number, string,
 * array, object). Records and rule operands are converted into it once at the
 * boundary so the compiler and the accessors never reflect over host types.
 *
 * Missing vs null: Missing is what path resolution yields for an absent field.
 * Null is an explicit null in the document. They never compare equal.
 *
 * Numbers are float64, matching what encoding/json produces for documents.
 */

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable structured value. The zero Value is Missing.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

// Missing returns the value of an absent field.
func Missing() Value { return Value{} }

// Null returns an explicit null.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a number.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array wraps a list of values. The slice is owned by the returned Value.
func Array(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindArray, arr: elems}
}

// Object wraps a field map. The map is owned by the returned Value.
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindObject, obj: fields}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsMissing() bool { return v.kind == KindMissing }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsAbsent reports whether v is missing or null.
func (v Value) IsAbsent() bool { return v.kind == KindMissing || v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Elems returns the elements of an array, nil for any other kind.
// Callers must not modify the returned slice.
func (v Value) Elems() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// Len returns the element count of an array or the field count of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

// Field returns the named field of an object, Missing otherwise.
func (v Value) Field(key string) Value {
	if v.kind != KindObject {
		return Missing()
	}
	f, ok := v.obj[key]
	if !ok {
		return Missing()
	}
	return f
}

// Index returns the i-th element of an array, Missing otherwise.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Missing()
	}
	return v.arr[i]
}

// Keys returns the field names of an object in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep equality. NaN equals NaN; Missing equals only Missing.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindMissing, KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if math.IsNaN(v.n) && math.IsNaN(o.n) {
			return true
		}
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, fv := range v.obj {
			ov, ok := o.obj[k]
			if !ok || !fv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Contains reports whether an array holds an element deep-equal to elem.
// Always false for non-arrays.
func (v Value) Contains(elem Value) bool {
	for _, e := range v.Elems() {
		if e.Equal(elem) {
			return true
		}
	}
	return false
}

// FromAny converts a decoded document (encoding/json, yaml.v3 or plain Go
// literals) into a Value. Other types go through a JSON round trip; values
// JSON cannot represent return ErrUnsupportedValue.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return Number(f), nil
	case []any:
		elems := make([]Value, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			elems[i] = ev
		}
		return Array(elems...), nil
	case []string:
		elems := make([]Value, len(t))
		for i, e := range t {
			elems[i] = String(e)
		}
		return Array(elems...), nil
	case []Value:
		return Array(append([]Value(nil), t...)...), nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			fields[k] = ev
		}
		return Object(fields), nil
	case map[string]Value:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			fields[k] = e
		}
		return Object(fields), nil
	case map[any]any:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return Value{}, fmt.Errorf("%w: non-string key %v", ErrUnsupportedValue, k)
			}
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			fields[ks] = ev
		}
		return Object(fields), nil
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, x)
		}
		return FromAny(decoded)
	}
}

// MustFromAny is FromAny for literals known to be representable.
// Panics on error.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// ToAny converts v back to the encoding/json generic form
// (nil, bool, float64, string, []any, map[string]any). Missing maps to nil.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler. Missing encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.n) || math.IsInf(v.n, 0)) {
		return []byte("null"), nil
	}
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	parsed, err := FromAny(decoded)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String renders v as compact JSON, for diagnostics.
func (v Value) String() string {
	if v.kind == KindMissing {
		return "<missing>"
	}
	raw, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(raw)
}
