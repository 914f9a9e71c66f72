package values

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// String->number coercion. The rules mirror what users paste out of
// spreadsheets and bank exports: currency prefixes, parenthesized
// negatives, thousands separators, and unit suffixes.

var numberSuffixes = []struct {
	suffix string
	factor float64
}{
	{"million", 1e9},
	{"billion", 1e12},
	{"mil", 1e9},
	{"bil", 1e12},
	{"m", 1e9},
	{"b", 1e12},
}

// ParseNumber coerces a string to a float64 per the coercion rules.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-$") {
		neg = !neg
		s = s[2:]
	} else if strings.HasPrefix(s, "$-") {
		neg = !neg
		s = s[2:]
	} else if strings.HasPrefix(s, "$") {
		s = s[1:]
	} else if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	}
	s = strings.TrimSpace(s)

	factor := 1.0
	lower := strings.ToLower(s)
	for _, suf := range numberSuffixes {
		if strings.HasSuffix(lower, suf.suffix) {
			trimmed := s[:len(s)-len(suf.suffix)]
			// Only treat it as a unit suffix when what remains still
			// looks numeric, so "Mim" or bare "M" do not coerce.
			if trimmed != "" && isDigitish(trimmed) {
				factor = suf.factor
				s = strings.TrimSpace(trimmed)
			}
			break
		}
	}

	s = normalizeSeparators(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f * factor, true
}

func isDigitish(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' {
			return false
		}
	}
	return s != ""
}

// normalizeSeparators resolves commas. A single comma with no dot whose
// fractional part is not exactly 3 digits is a decimal point; otherwise
// commas are thousands separators and are removed.
func normalizeSeparators(s string) string {
	commas := strings.Count(s, ",")
	if commas == 0 {
		return s
	}
	if commas == 1 && !strings.Contains(s, ".") {
		idx := strings.Index(s, ",")
		frac := s[idx+1:]
		if len(frac) != 3 {
			return s[:idx] + "." + frac
		}
	}
	return strings.ReplaceAll(s, ",", "")
}

// String->bool mapping. Fixed enumeration; anything else is null.

var boolStrings = map[string]bool{
	"1": true, "TRUE": true, "True": true, "T": true, "Y": true,
	"Yes": true, "true": true, "t": true, "y": true, "yes": true,
	"0": false, "FALSE": false, "False": false, "F": false, "N": false,
	"No": false, "false": false, "f": false, "n": false, "no": false,
	"None": false, "none": false,
}

// ParseBool coerces a string to bool. The second return is false when
// the string is outside the fixed mapping (the result is null).
func ParseBool(s string) (bool, bool) {
	b, ok := boolStrings[strings.TrimSpace(s)]
	return b, ok
}

// IsNaNLike reports whether v counts as missing for set membership:
// nulls, float NaN, and the literal placeholder string.
func IsNaNLike(v Value) bool {
	if v.IsNull() {
		return true
	}
	return v.Kind() == TypeString && v.Str() == NaNPlaceholder
}

var intPattern = regexp.MustCompile(`^-?\d+$`)

// InferDType guesses the dtype of a column of raw strings, in the order
// int, float, bool, datetime, string. Empty strings are skipped.
func InferDType(samples []string) DType {
	seen := 0
	allInt, allFloat, allBool, allDate := true, true, true, true
	layout := ""
	for _, s := range samples {
		s = strings.TrimSpace(s)
		if s == "" || s == NaNPlaceholder {
			continue
		}
		seen++
		if allInt && !intPattern.MatchString(s) {
			allInt = false
		}
		if allFloat {
			if _, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err != nil {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := boolStrings[s]; !ok {
				allBool = false
			}
		}
		if allDate {
			if layout == "" {
				layout = matchDatetimeLayout(s)
				if layout == "" {
					allDate = false
				}
			} else if _, err := parseWithLayout(s, layout); err != nil {
				allDate = false
			}
		}
	}
	if seen == 0 {
		return TypeString
	}
	switch {
	case allInt:
		return TypeInt
	case allFloat:
		return TypeFloat
	case allBool:
		return TypeBool
	case allDate:
		return TypeDatetime
	}
	return TypeString
}

// Cast coerces v to the target dtype. The second return is false when
// the value cannot be represented, in which case the cell becomes null.
func Cast(v Value, to DType) (Value, bool) {
	if v.IsNull() {
		return Null(to), true
	}
	switch to {
	case TypeString:
		return String(v.String()), true
	case TypeInt:
		if f, ok := v.Float64(); ok {
			return Int(int64(f)), true
		}
		if v.Kind() == TypeString {
			if f, ok := ParseNumber(v.Str()); ok {
				return Int(int64(f)), true
			}
		}
		if v.Kind() == TypeDatetime {
			return Int(v.TimeVal().Unix()), true
		}
		return Null(TypeInt), false
	case TypeFloat, TypeNumber:
		if f, ok := v.Float64(); ok {
			return Float(f), true
		}
		if v.Kind() == TypeString {
			if f, ok := ParseNumber(v.Str()); ok {
				return Float(f), true
			}
		}
		if v.Kind() == TypeDatetime {
			return Float(float64(v.TimeVal().Unix())), true
		}
		if v.Kind() == TypeTimedelta {
			return Float(v.DurVal().Seconds()), true
		}
		return NaN(), false
	case TypeBool:
		switch v.Kind() {
		case TypeBool:
			return v, true
		case TypeInt:
			return Bool(v.IntVal() != 0), true
		case TypeFloat:
			return Bool(v.FloatVal() != 0), true
		case TypeString:
			if b, ok := ParseBool(v.Str()); ok {
				return Bool(b), true
			}
			return Null(TypeBool), false
		}
		return Null(TypeBool), false
	case TypeDatetime:
		switch v.Kind() {
		case TypeDatetime:
			return v, true
		case TypeString:
			if t, ok := ParseDatetime(v.Str(), ""); ok {
				return Datetime(t), true
			}
			return Null(TypeDatetime), false
		case TypeInt:
			return Datetime(unixTime(v.IntVal())), true
		case TypeFloat:
			return Datetime(unixTime(int64(v.FloatVal()))), true
		}
		return Null(TypeDatetime), false
	case TypeTimedelta:
		switch v.Kind() {
		case TypeTimedelta:
			return v, true
		case TypeString:
			if d, ok := ParseTimedelta(v.Str()); ok {
				return Timedelta(d), true
			}
			return Null(TypeTimedelta), false
		case TypeInt:
			return Timedelta(secondsDur(float64(v.IntVal()))), true
		case TypeFloat:
			return Timedelta(secondsDur(v.FloatVal())), true
		}
		return Null(TypeTimedelta), false
	}
	return Null(to), false
}

// CoerceSeriesToFloat converts a whole column to floats, returning NaN
// where coercion fails. Used by numeric formula functions.
func CoerceSeriesToFloat(cells []Value) []float64 {
	out := make([]float64, len(cells))
	for i, v := range cells {
		if f, ok := v.Float64(); ok {
			out[i] = f
			continue
		}
		if v.Kind() == TypeString && !v.IsNull() {
			if f, ok := ParseNumber(v.Str()); ok {
				out[i] = f
				continue
			}
		}
		out[i] = math.NaN()
	}
	return out
}
