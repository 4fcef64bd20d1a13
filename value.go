package kvmirror

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Kind identifies the payload carried by a Value.
type Kind uint8

const (
	// KindAbsent is the zero Kind: no value is stored under the key.
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindDate
	// KindObject holds any JSON structure: objects and arrays.
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a stored item. The zero Value is absent.
type Value struct {
	kind Kind
	num  float64
	str  string
	t    time.Time
	b    bool
	obj  any // normalized JSON: map[string]any, []any, float64, string, bool, nil
}

// Null returns an explicit null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float64. NaN and infinities are allowed.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Date wraps a point in time. Precision beyond milliseconds is dropped
// so that a stored date compares equal to its decoded form.
func Date(t time.Time) Value {
	return Value{kind: KindDate, t: time.UnixMilli(t.UnixMilli()).UTC()}
}

// Object wraps any JSON-serializable structure. The value is normalized
// through a JSON round trip, so structs and the maps decoded from them
// compare equal.
func Object(v any) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return objectFromJSON(raw)
}

// MustObject is like Object but panics on error.
func MustObject(v any) Value {
	val, err := Object(v)
	if err != nil {
		panic(err)
	}
	return val
}

// ValueOf picks the Value variant matching a Go value. Values that are
// already a Value are returned unchanged.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case time.Time:
		return Date(x), nil
	case *time.Time:
		if x == nil {
			return Null(), nil
		}
		return Date(*x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return Number(f), nil
	default:
		return Object(v)
	}
}

func objectFromJSON(raw []byte) (Value, error) {
	var obj any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	switch x := obj.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case string:
		return String(x), nil
	}
	return Value{kind: KindObject, obj: obj}, nil
}

// Kind reports the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v carries no value at all.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsNull reports whether v is an explicit null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Float returns the number held by v.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Text returns the string held by v.
func (v Value) Text() (string, bool) { return v.str, v.kind == KindString }

// Time returns the date held by v.
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == KindDate }

// Boolean returns the bool held by v.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBool }

// Interface returns v as a plain Go value: nil for absent and null,
// float64, string, bool, time.Time, or the normalized JSON structure.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindDate:
		return v.t
	case KindObject:
		return v.obj
	default:
		return nil
	}
}

// Unmarshal decodes v into dst the way encoding/json would decode the
// stored payload.
func (v Value) Unmarshal(dst any) error {
	if v.kind == KindAbsent {
		return ErrNotFound
	}
	raw, err := v.payloadJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// Equal reports deep equality. NaN equals NaN and dates compare by instant.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindAbsent, KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if math.IsNaN(v.num) {
			return math.IsNaN(o.num)
		}
		return v.num == o.num
	case KindString:
		return v.str == o.str
	case KindDate:
		return v.t.Equal(o.t)
	case KindObject:
		return reflect.DeepEqual(v.obj, o.obj)
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindAbsent:
		return "<absent>"
	case KindString:
		return v.str
	case KindDate:
		return v.t.Format(dateLayout)
	case KindNumber:
		return formatNumber(v.num)
	}
	raw, err := v.payloadJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", v.kind)
	}
	return string(raw)
}

// payloadJSON renders v as plain JSON, ignoring the envelope.
func (v Value) payloadJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case KindDate:
		return json.Marshal(v.t.Format(dateLayout))
	default:
		return json.Marshal(v.Interface())
	}
}
