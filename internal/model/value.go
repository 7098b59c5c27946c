// Package model defines the typed records and tables the broadband pipeline
// reads from and writes back to the attribute store.
package model

import (
	"math"
	"strconv"

	"github.com/rotisserie/eris"
)

// Kind identifies the type of a field or value.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindText
	KindInteger
	KindFloat
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	default:
		return "null"
	}
}

// ParseKind maps a store column type name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "text", "TEXT", "string":
		return KindText, nil
	case "integer", "INTEGER", "int", "short", "long":
		return KindInteger, nil
	case "float", "REAL", "double", "DOUBLE PRECISION":
		return KindFloat, nil
	default:
		return KindNull, eris.Errorf("model: unknown field kind %q", s)
	}
}

// Value is a single typed cell. The zero value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
}

// Null returns the null value.
func Null() Value { return Value{} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the text payload, or the formatted number for numeric values.
// Null renders as the empty string.
func (v Value) Str() string {
	switch v.kind {
	case KindText:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	default:
		return ""
	}
}

// Float64 returns the numeric payload. ok is false for null and text values.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Int64 returns the integer payload, truncating floats. ok is false for null
// and text values.
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInteger:
		return v.i, true
	case KindFloat:
		return int64(v.f), true
	default:
		return 0, false
	}
}

// Any returns the payload as a Go value suitable for a database driver.
func (v Value) Any() any {
	switch v.kind {
	case KindText:
		return v.s
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	default:
		return nil
	}
}

// Key is the comparable form of a value used for hash lookups. Integral
// floats share the integer key so REAL and INTEGER foreign keys match.
type Key struct {
	kind Kind
	s    string
	i    int64
	f    float64
}

// Key returns the comparable lookup key for v.
func (v Value) Key() Key {
	if v.kind == KindFloat && v.f == math.Trunc(v.f) && math.Abs(v.f) < 1<<53 {
		return Key{kind: KindInteger, i: int64(v.f)}
	}
	return Key(v)
}

// String renders the key with a kind prefix so distinct kinds never collide.
func (k Key) String() string {
	switch k.kind {
	case KindText:
		return "t:" + k.s
	case KindInteger:
		return "i:" + strconv.FormatInt(k.i, 10)
	case KindFloat:
		return "f:" + strconv.FormatFloat(k.f, 'g', -1, 64)
	default:
		return "n:"
	}
}

// Equal reports whether two values have the same lookup key.
func (v Value) Equal(o Value) bool { return v.Key() == o.Key() }

// Coerce converts v to kind k. Null always stays null. Text is parsed for
// numeric kinds; numbers are formatted for text.
func Coerce(v Value, k Kind) (Value, error) {
	if v.IsNull() || v.kind == k {
		return v, nil
	}
	switch k {
	case KindText:
		return Text(v.Str()), nil
	case KindFloat:
		if f, ok := v.Float64(); ok {
			return Float(f), nil
		}
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return Null(), eris.Wrapf(err, "model: parse %q as float", v.s)
		}
		return Float(f), nil
	case KindInteger:
		if v.kind == KindFloat {
			return Int(int64(v.f)), nil
		}
		i, err := strconv.ParseInt(v.s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(v.s, 64)
			if ferr != nil {
				return Null(), eris.Wrapf(err, "model: parse %q as integer", v.s)
			}
			return Int(int64(f)), nil
		}
		return Int(i), nil
	default:
		return Null(), nil
	}
}

// FromAny builds a Value from a database driver value.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case string:
		return Text(t)
	case []byte:
		return Text(string(t))
	case int:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case bool:
		if t {
			return Int(1)
		}
		return Int(0)
	default:
		return Null()
	}
}
