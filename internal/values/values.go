// Package values implements the typed value layer: per-cell semantic
// types, string coercion rules, and the NaN policy shared by every
// component that touches cell data.
package values

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DType is a semantic column type.
type DType string

const (
	TypeString    DType = "string"
	TypeInt       DType = "int"
	TypeFloat     DType = "float"
	TypeNumber    DType = "number" // superset of int/float, signature-only
	TypeBool      DType = "bool"
	TypeDatetime  DType = "datetime"
	TypeTimedelta DType = "timedelta"
)

// NaNPlaceholder is the string form treated as equivalent to a missing
// value for set membership (filters, fill-nan, dedupe).
const NaNPlaceholder = "NaN"

// Value is one cell. The zero Value is a null string cell.
type Value struct {
	kind DType
	null bool
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	d    time.Duration
}

// Constructors.

func String(s string) Value          { return Value{kind: TypeString, s: s} }
func Int(i int64) Value              { return Value{kind: TypeInt, i: i} }
func Float(f float64) Value          { return Value{kind: TypeFloat, f: f} }
func Bool(b bool) Value              { return Value{kind: TypeBool, b: b} }
func Datetime(t time.Time) Value     { return Value{kind: TypeDatetime, t: t} }
func Timedelta(d time.Duration) Value { return Value{kind: TypeTimedelta, d: d} }

// Null returns the missing value of the given dtype.
func Null(kind DType) Value { return Value{kind: kind, null: true} }

// NaN returns a float null, the generic missing value.
func NaN() Value { return Null(TypeFloat) }

// Kind reports the value's dtype.
func (v Value) Kind() DType { return v.kind }

// IsNull reports whether the cell is missing. Float NaN payloads and the
// NaN placeholder string count as missing.
func (v Value) IsNull() bool {
	if v.null {
		return true
	}
	switch v.kind {
	case TypeFloat:
		return math.IsNaN(v.f)
	case TypeString:
		return v.s == NaNPlaceholder
	}
	return false
}

// Payload accessors. Callers check Kind first; a mismatched accessor
// returns the zero payload.

func (v Value) Str() string             { return v.s }
func (v Value) IntVal() int64           { return v.i }
func (v Value) FloatVal() float64       { return v.f }
func (v Value) BoolVal() bool           { return v.b }
func (v Value) TimeVal() time.Time      { return v.t }
func (v Value) DurVal() time.Duration   { return v.d }

// Float64 returns the value as a float64 when it is numeric or bool.
func (v Value) Float64() (float64, bool) {
	if v.IsNull() {
		return 0, false
	}
	switch v.kind {
	case TypeInt:
		return float64(v.i), true
	case TypeFloat:
		return v.f, true
	case TypeBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Equal reports structural equality. Two nulls of any dtype are equal,
// matching how dedupe and filters treat missing cells.
func (v Value) Equal(o Value) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() && o.IsNull()
	}
	if vf, ok := v.Float64(); ok {
		if of, ok2 := o.Float64(); ok2 {
			return vf == of
		}
		return false
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case TypeString:
		return v.s == o.s
	case TypeDatetime:
		return v.t.Equal(o.t)
	case TypeTimedelta:
		return v.d == o.d
	}
	return false
}

// Compare orders two non-null values of compatible dtypes. Numeric kinds
// compare as floats; strings lexically; datetimes chronologically.
// Incomparable pairs order by their string forms so sorts stay total.
func (v Value) Compare(o Value) int {
	if vf, ok := v.Float64(); ok {
		if of, ok2 := o.Float64(); ok2 {
			switch {
			case vf < of:
				return -1
			case vf > of:
				return 1
			}
			return 0
		}
	}
	if v.kind == TypeDatetime && o.kind == TypeDatetime {
		switch {
		case v.t.Before(o.t):
			return -1
		case v.t.After(o.t):
			return 1
		}
		return 0
	}
	if v.kind == TypeTimedelta && o.kind == TypeTimedelta {
		switch {
		case v.d < o.d:
			return -1
		case v.d > o.d:
			return 1
		}
		return 0
	}
	return strings.Compare(v.String(), o.String())
}

// String renders the cell for display and for emitted code literals.
func (v Value) String() string {
	if v.IsNull() {
		return NaNPlaceholder
	}
	switch v.kind {
	case TypeString:
		return v.s
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeFloat:
		return formatFloat(v.f)
	case TypeBool:
		if v.b {
			return "True"
		}
		return "False"
	case TypeDatetime:
		return v.t.Format("2006-01-02 15:04:05")
	case TypeTimedelta:
		return v.d.String()
	}
	return ""
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// PyLiteral renders the value as a Python literal for transpiled code.
func (v Value) PyLiteral() string {
	if v.IsNull() {
		return "None"
	}
	switch v.kind {
	case TypeString:
		return PyString(v.s)
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case TypeBool:
		if v.b {
			return "True"
		}
		return "False"
	case TypeDatetime:
		return fmt.Sprintf("pd.to_datetime(%s)", PyString(v.t.Format("2006-01-02 15:04:05")))
	case TypeTimedelta:
		return fmt.Sprintf("pd.to_timedelta(%s)", PyString(v.d.String()))
	}
	return "None"
}

// PyString quotes s as a Python single-quoted string literal.
func PyString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// ZeroOf returns the zero value of a dtype, used by GETPREVIOUSVALUE and
// friends when no prior row satisfies the condition.
func ZeroOf(kind DType) Value {
	switch kind {
	case TypeString:
		return String("")
	case TypeInt:
		return Int(0)
	case TypeFloat, TypeNumber:
		return Float(0)
	case TypeBool:
		return Bool(false)
	case TypeDatetime:
		return Datetime(time.Time{})
	case TypeTimedelta:
		return Timedelta(0)
	}
	return NaN()
}
