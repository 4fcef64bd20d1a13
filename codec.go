package kvmirror

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Type tags written to the envelope. They are part of the persisted format.
const (
	TypeNumber  = "number"
	TypeString  = "string"
	TypeDate    = "date"
	TypeBoolean = "boolean"
	TypeObject  = "object"
)

// dateLayout matches the ISO-8601 form used by JSON dates: UTC, milliseconds.
const dateLayout = "2006-01-02T15:04:05.000Z"

// Envelope is the persisted form of every value.
type Envelope struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Encode builds the envelope for v.
func Encode(v Value) (Envelope, error) {
	switch v.kind {
	case KindNull:
		return Envelope{Type: TypeObject, Value: "null"}, nil
	case KindBool:
		return Envelope{Type: TypeBoolean, Value: strconv.FormatBool(v.b)}, nil
	case KindNumber:
		return Envelope{Type: TypeNumber, Value: formatNumber(v.num)}, nil
	case KindString:
		return Envelope{Type: TypeString, Value: v.str}, nil
	case KindDate:
		return Envelope{Type: TypeDate, Value: strconv.Quote(v.t.UTC().Format(dateLayout))}, nil
	case KindObject:
		raw, err := json.Marshal(v.obj)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return Envelope{Type: TypeObject, Value: string(raw)}, nil
	default:
		return Envelope{}, fmt.Errorf("%w: cannot encode %s value", ErrInvalidValue, v.kind)
	}
}

// Decode rebuilds the value held by e. Unknown tags fall back to a
// generic JSON parse.
func Decode(e Envelope) (Value, error) {
	switch e.Type {
	case TypeString:
		return String(e.Value), nil
	case TypeNumber:
		return Number(parseNumber(e.Value)), nil
	case TypeDate:
		return decodeDate(e.Value)
	default:
		if e.Value == "" {
			return Value{}, fmt.Errorf("%w: empty %q payload", ErrDecode, e.Type)
		}
		return objectFromJSON([]byte(e.Value))
	}
}

// Marshal encodes v into the persisted envelope bytes.
func Marshal(v Value) ([]byte, error) {
	e, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Unmarshal decodes persisted envelope bytes. Empty input yields the
// absent value.
func Unmarshal(data []byte) (Value, error) {
	if len(data) == 0 {
		return Value{}, nil
	}
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Value{}, fmt.Errorf("%w: envelope: %v", ErrDecode, err)
	}
	return Decode(e)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	raw, _ := json.Marshal(f)
	return string(raw)
}

var numberPrefix = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

// parseNumber reads the longest numeric prefix of s. Payloads without one,
// such as "NaN" or the "null" older writers produced for NaN, yield NaN.
func parseNumber(s string) float64 {
	m := numberPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return math.NaN()
	}
	switch strings.TrimLeft(m, "+") {
	case "Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func decodeDate(payload string) (Value, error) {
	var raw any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Value{}, fmt.Errorf("%w: date: %v", ErrDecode, err)
	}
	switch x := raw.(type) {
	case nil:
		// Invalid dates serialize as null.
		return Null(), nil
	case float64:
		return Date(time.UnixMilli(int64(x))), nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return Date(t), nil
			}
		}
		return Value{}, fmt.Errorf("%w: date %q", ErrDecode, x)
	default:
		return Value{}, fmt.Errorf("%w: date payload %s", ErrDecode, payload)
	}
}
