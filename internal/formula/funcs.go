package formula

import (
	"math"
	"sort"

	"sheetflow/internal/errs"
	"sheetflow/internal/values"
)

func errFormula(code, format string, args ...interface{}) error {
	return errs.Formula(code, format, args...)
}

// Function is one entry in the runtime function registry.
type Function struct {
	Name    string
	Family  string // number, string, date, bool
	MinArgs int
	MaxArgs int // -1 means variadic
	// Eval computes the result against realized arguments.
	Eval func(e *Env, args []Result) (Result, error)
	// Emit renders the pandas expression for transpiled code. Args are
	// already-rendered python expressions.
	Emit func(args []string) string
	// Imports lists python import lines the emission needs.
	Imports []string
	// PyDef, when set, is a python helper definition the emitted script
	// must carry once if this function is used.
	PyDef string
}

// Registry is the fixed function table. Populated by the per-family
// register calls in this package's init functions.
var Registry = map[string]Function{}

func register(fn Function) {
	Registry[fn.Name] = fn
}

// FunctionNames returns the registry's names, sorted.
func FunctionNames() []string {
	out := make([]string, 0, len(Registry))
	for name := range Registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// lift1 applies f elementwise over one argument, propagating nulls.
func lift1(e *Env, x Result, f func(values.Value) (values.Value, error)) (Result, error) {
	return e.mapElementwise(func(v values.Value) (values.Value, error) {
		if v.IsNull() {
			return values.NaN(), nil
		}
		return f(v)
	}, x)
}

// liftN applies f rowwise over many arguments. Scalar-only input stays
// scalar; otherwise the result is a column of the sheet's length.
func liftN(e *Env, args []Result, f func([]values.Value) (values.Value, error)) (Result, error) {
	allScalar := true
	for _, a := range args {
		if !a.Scalar {
			allScalar = false
			break
		}
	}
	if allScalar {
		row := make([]values.Value, len(args))
		for i, a := range args {
			row[i] = a.Value
		}
		v, err := f(row)
		if err != nil {
			return Result{}, err
		}
		return scalar(v), nil
	}
	n := e.rows()
	out := make([]values.Value, n)
	row := make([]values.Value, len(args))
	for i := 0; i < n; i++ {
		for j, a := range args {
			row[j] = a.CellAt(i)
		}
		v, err := f(row)
		if err != nil {
			return Result{}, err
		}
		out[i] = v
	}
	return column(out), nil
}

// gatherFloats flattens every argument into one float slice, treating
// missing and non-coercible cells as absent. This is the NaN-as-absent
// policy of the aggregate functions.
func gatherFloats(e *Env, args []Result) []float64 {
	var out []float64
	for _, a := range args {
		for _, v := range a.ToCells(maxRows(e, a)) {
			if values.IsNaNLike(v) {
				continue
			}
			if f, ok := asFloat(v); ok && !math.IsNaN(f) {
				out = append(out, f)
			}
		}
	}
	return out
}

func maxRows(e *Env, a Result) int {
	if a.Scalar {
		return 1
	}
	return len(a.Cells)
}

// countPresent counts the non-missing cells across all arguments.
func countPresent(e *Env, args []Result) int64 {
	n := int64(0)
	for _, a := range args {
		for _, v := range a.ToCells(maxRows(e, a)) {
			if !values.IsNaNLike(v) {
				n++
			}
		}
	}
	return n
}

func meanOf(fs []float64) (float64, bool) {
	if len(fs) == 0 {
		return 0, false
	}
	t := 0.0
	for _, f := range fs {
		t += f
	}
	return t / float64(len(fs)), true
}

func stdOf(fs []float64) (float64, bool) {
	if len(fs) < 2 {
		return 0, false
	}
	m, _ := meanOf(fs)
	t := 0.0
	for _, f := range fs {
		d := f - m
		t += d * d
	}
	return math.Sqrt(t / float64(len(fs)-1)), true
}

// floatScalar wraps a float as a scalar result, using NaN for "absent".
func floatScalar(f float64, ok bool) (Result, error) {
	if !ok {
		return scalar(values.NaN()), nil
	}
	return scalar(values.Float(f)), nil
}

// needFloat coerces one cell, erroring with the function name on failure.
func needFloat(fname string, v values.Value) (float64, error) {
	f, ok := asFloat(v)
	if !ok {
		return 0, typeError(fname, v)
	}
	return f, nil
}

func typeError(fname string, v values.Value) error {
	return errFormula("incompatible_types",
		"%s cannot use %q as a number", fname, v.String())
}
