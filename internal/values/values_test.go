package values

import (
	"math"
	"testing"
	"time"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"123", 123, true},
		{"  42.5  ", 42.5, true},
		{"(100)", -100, true},
		{"$1,234.50", 1234.50, true},
		{"-$25", -25, true},
		{"$-25", -25, true},
		{"1,234,567", 1234567, true},
		// one comma, no dot, fractional length != 3 -> decimal comma
		{"12,5", 12.5, true},
		{"12,50", 12.50, true},
		// fractional length == 3 -> thousands separator
		{"12,500", 12500, true},
		{"2M", 2e9, true},
		{"2Mil", 2e9, true},
		{"1.5Million", 1.5e9, true},
		{"3B", 3e12, true},
		{"3Billion", 3e12, true},
		{"abc", 0, false},
		{"", 0, false},
		{"M", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if ok != tt.ok {
			t.Errorf("ParseNumber(%q) ok=%v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseNumber(%q)=%v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseBool(t *testing.T) {
	truthy := []string{"1", "TRUE", "True", "T", "Y", "Yes", "true", "t", "y", "yes"}
	falsy := []string{"0", "FALSE", "False", "F", "N", "No", "false", "f", "n", "no", "None", "none"}
	for _, s := range truthy {
		if b, ok := ParseBool(s); !ok || !b {
			t.Errorf("ParseBool(%q) = %v,%v, want true,true", s, b, ok)
		}
	}
	for _, s := range falsy {
		if b, ok := ParseBool(s); !ok || b {
			t.Errorf("ParseBool(%q) = %v,%v, want false,true", s, b, ok)
		}
	}
	if _, ok := ParseBool("maybe"); ok {
		t.Error("ParseBool(maybe) should be null")
	}
}

func TestNaNEquivalence(t *testing.T) {
	if !IsNaNLike(NaN()) {
		t.Error("float NaN should be NaN-like")
	}
	if !IsNaNLike(String("NaN")) {
		t.Error("placeholder string should be NaN-like")
	}
	if !IsNaNLike(Float(math.NaN())) {
		t.Error("NaN payload should be NaN-like")
	}
	if IsNaNLike(String("nan!")) {
		t.Error("arbitrary string should not be NaN-like")
	}
	if !NaN().Equal(Null(TypeString)) {
		t.Error("nulls of different dtypes should compare equal")
	}
}

func TestInferDType(t *testing.T) {
	tests := []struct {
		samples []string
		want    DType
	}{
		{[]string{"1", "2", "3"}, TypeInt},
		// 0/1 columns read as ints, not bools.
		{[]string{"1", "0", ""}, TypeInt},
		{[]string{"1.5", "2"}, TypeFloat},
		{[]string{"true", "false"}, TypeBool},
		{[]string{"2023-01-01", "2023-06-15"}, TypeDatetime},
		{[]string{"a", "b"}, TypeString},
		{[]string{"", ""}, TypeString},
	}
	for _, tt := range tests {
		if got := InferDType(tt.samples); got != tt.want {
			t.Errorf("InferDType(%v)=%v, want %v", tt.samples, got, tt.want)
		}
	}
}

func TestCast(t *testing.T) {
	v, ok := Cast(String("$1,000"), TypeFloat)
	if !ok || v.FloatVal() != 1000 {
		t.Errorf("cast currency string to float: got %v ok=%v", v, ok)
	}
	v, ok = Cast(Float(3.9), TypeInt)
	if !ok || v.IntVal() != 3 {
		t.Errorf("cast float to int truncates: got %v", v)
	}
	v, ok = Cast(String("yes"), TypeBool)
	if !ok || !v.BoolVal() {
		t.Errorf("cast yes to bool: got %v", v)
	}
	v, _ = Cast(String("not a date"), TypeDatetime)
	if !v.IsNull() {
		t.Errorf("unparseable datetime should be null, got %v", v)
	}
	v, ok = Cast(String("2023-04-01"), TypeDatetime)
	if !ok || v.TimeVal().Year() != 2023 {
		t.Errorf("date cast failed: %v", v)
	}
}

func TestParseTimedelta(t *testing.T) {
	d, ok := ParseTimedelta("1 days 02:30:00")
	if !ok || d != 26*time.Hour+30*time.Minute {
		t.Errorf("pandas timedelta form: got %v ok=%v", d, ok)
	}
	d, ok = ParseTimedelta("01:30:00")
	if !ok || d != 90*time.Minute {
		t.Errorf("clock form: got %v", d)
	}
	d, ok = ParseTimedelta("90")
	if !ok || d != 90*time.Second {
		t.Errorf("seconds form: got %v", d)
	}
}

func TestValueCompare(t *testing.T) {
	if Int(1).Compare(Float(2)) >= 0 {
		t.Error("1 < 2.0")
	}
	if String("b").Compare(String("a")) <= 0 {
		t.Error("b > a")
	}
	d1 := Datetime(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	d2 := Datetime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if d1.Compare(d2) >= 0 {
		t.Error("2023 < 2024")
	}
}
