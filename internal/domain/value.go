package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind enumerates the JSON-safe scalar shapes a metadata value can take.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "null"
	}
}

// Value is a JSON-safe scalar. The zero value is null and a Number is never NaN or infinite.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps s without inspecting it; use Sanitize for untrusted input.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps f. NaN and infinities collapse to null.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, num: f}
}

// Int wraps an integer as a Number.
func Int(i int64) Value { return Value{kind: KindNumber, num: float64(i)} }

// Bool wraps b.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

// AsString returns the text of a String value.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the float of a Number value.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the flag of a Bool value.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// Interface returns the plain Go value: nil, string, float64 or bool.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// Text renders the value the way a spreadsheet user would read it back.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "null"
	}
	return v.Text()
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler. Only scalars are accepted.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.(type) {
	case nil, string, float64, bool:
		*v = Sanitize(raw)
		return nil
	default:
		return fmt.Errorf("metadata value must be a scalar, got %T", raw)
	}
}

// Metadata is the open per-record field mapping.
type Metadata map[string]Value

// Clone returns an independent copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// missingMarkers are the cell texts that spreadsheet tooling conventionally treats as "no value".
var missingMarkers = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// IsMissingMarker reports whether s denotes an empty cell.
func IsMissingMarker(s string) bool {
	_, ok := missingMarkers[strings.TrimSpace(s)]
	return ok
}

// Sanitize converts any parsed cell value into a JSON-safe scalar.
// Missing markers, NaN and infinities become null; everything else is kept.
func Sanitize(value any) Value {
	switch v := value.(type) {
	case nil:
		return Null()
	case Value:
		return Sanitize(v.Interface())
	case string:
		if IsMissingMarker(v) {
			return Null()
		}
		return String(v)
	case float64:
		return Number(v)
	case float32:
		return Number(float64(v))
	case int:
		return Int(int64(v))
	case int8:
		return Int(int64(v))
	case int16:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint:
		return Number(float64(v))
	case uint8:
		return Int(int64(v))
	case uint16:
		return Int(int64(v))
	case uint32:
		return Int(int64(v))
	case uint64:
		return Number(float64(v))
	case bool:
		return Bool(v)
	case time.Time:
		if v.IsZero() {
			return Null()
		}
		return String(FormatDate(v))
	case *string:
		if v == nil {
			return Null()
		}
		return Sanitize(*v)
	case *float64:
		if v == nil {
			return Null()
		}
		return Number(*v)
	case fmt.Stringer:
		return Sanitize(v.String())
	default:
		return Sanitize(fmt.Sprint(v))
	}
}

// SanitizeMetadata sanitizes every value of a raw mapping.
func SanitizeMetadata(raw map[string]any) Metadata {
	out := make(Metadata, len(raw))
	for k, v := range raw {
		out[k] = Sanitize(v)
	}
	return out
}

// FormatDate renders a date-only value as ISO date and anything with a clock part as RFC 3339.
func FormatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}
