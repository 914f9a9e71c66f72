package formula

import (
	"math"

	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
	"sheetflow/internal/values"
)

// Result is an intermediate evaluation value: either a scalar broadcast
// over the sheet or a realized column.
type Result struct {
	Scalar bool
	Value  values.Value
	Cells  []values.Value
}

func scalar(v values.Value) Result { return Result{Scalar: true, Value: v} }
func column(cells []values.Value) Result { return Result{Cells: cells} }

// CellAt reads the result at row i.
func (r Result) CellAt(i int) values.Value {
	if r.Scalar {
		return r.Value
	}
	return r.Cells[i]
}

// ToCells realizes the result as a column of n rows.
func (r Result) ToCells(n int) []values.Value {
	if !r.Scalar {
		return r.Cells
	}
	out := make([]values.Value, n)
	for i := range out {
		out[i] = r.Value
	}
	return out
}

// Evaluate runs a parsed formula against a dataframe and returns the
// resulting column plus its inferred dtype.
func Evaluate(node Node, df *frame.DataFrame) ([]values.Value, values.DType, error) {
	env := &Env{DF: df}
	r, err := env.eval(node)
	if err != nil {
		return nil, "", err
	}
	cells := r.ToCells(df.NumRows())
	return cells, dtypeOf(cells), nil
}

// Env carries evaluation context.
type Env struct {
	DF *frame.DataFrame
}

func (e *Env) rows() int { return e.DF.NumRows() }

func (e *Env) eval(node Node) (Result, error) {
	switch n := node.(type) {
	case NumberLit:
		if n.Val == math.Trunc(n.Val) {
			return scalar(values.Int(int64(n.Val))), nil
		}
		return scalar(values.Float(n.Val)), nil
	case StringLit:
		return scalar(values.String(n.Val)), nil
	case BoolLit:
		return scalar(values.Bool(n.Val)), nil
	case Ref:
		return e.evalRef(n)
	case Unary:
		x, err := e.eval(n.X)
		if err != nil {
			return Result{}, err
		}
		return e.mapUnary(x)
	case Binary:
		l, err := e.eval(n.L)
		if err != nil {
			return Result{}, err
		}
		r, err := e.eval(n.R)
		if err != nil {
			return Result{}, err
		}
		return e.evalBinary(n.Op, l, r)
	case Call:
		fn := Registry[n.Name]
		args := make([]Result, len(n.Args))
		for i, a := range n.Args {
			r, err := e.eval(a)
			if err != nil {
				return Result{}, err
			}
			args[i] = r
		}
		return fn.Eval(e, args)
	}
	return Result{}, errs.Invariant("formula_bad_node", "unknown AST node %T", node)
}

func (e *Env) evalRef(r Ref) (Result, error) {
	col := e.DF.Col(r.Header)
	if col == nil {
		return Result{}, errs.Formula("unresolved_reference",
			"%q does not match any column in this sheet", r.Header)
	}
	if r.Offset == 0 {
		return column(col.Cells), nil
	}
	n := len(col.Cells)
	cells := make([]values.Value, n)
	for i := range cells {
		src := i - r.Offset
		if src < 0 || src >= n {
			cells[i] = values.Null(col.DType)
		} else {
			cells[i] = col.Cells[src]
		}
	}
	return column(cells), nil
}

func (e *Env) mapUnary(x Result) (Result, error) {
	apply := func(v values.Value) (values.Value, error) {
		if v.IsNull() {
			return values.NaN(), nil
		}
		f, ok := asFloat(v)
		if !ok {
			return values.Value{}, errs.Formula("incompatible_types",
				"cannot negate %q", v.String())
		}
		return values.Float(-f), nil
	}
	return e.mapElementwise(apply, x)
}

func (e *Env) mapElementwise(f func(values.Value) (values.Value, error), x Result) (Result, error) {
	if x.Scalar {
		v, err := f(x.Value)
		if err != nil {
			return Result{}, err
		}
		return scalar(v), nil
	}
	out := make([]values.Value, len(x.Cells))
	for i, c := range x.Cells {
		v, err := f(c)
		if err != nil {
			return Result{}, err
		}
		out[i] = v
	}
	return column(out), nil
}

// asFloat coerces a non-null value to float64 per the typed-value rules.
func asFloat(v values.Value) (float64, bool) {
	if f, ok := v.Float64(); ok {
		return f, true
	}
	if v.Kind() == values.TypeString {
		return values.ParseNumber(v.Str())
	}
	return 0, false
}

func (e *Env) evalBinary(op string, l, r Result) (Result, error) {
	n := e.rows()
	if l.Scalar && r.Scalar {
		v, err := applyBinary(op, l.Value, r.Value)
		if err != nil {
			return Result{}, err
		}
		return scalar(v), nil
	}
	out := make([]values.Value, n)
	for i := 0; i < n; i++ {
		v, err := applyBinary(op, l.CellAt(i), r.CellAt(i))
		if err != nil {
			return Result{}, err
		}
		out[i] = v
	}
	return column(out), nil
}

func applyBinary(op string, a, b values.Value) (values.Value, error) {
	switch op {
	case "&":
		if a.IsNull() || b.IsNull() {
			return values.Null(values.TypeString), nil
		}
		return values.String(a.String() + b.String()), nil
	case "==", "!=", ">", "<", ">=", "<=":
		return compareValues(op, a, b)
	}

	// Arithmetic. Nulls propagate; temporal kinds get their own algebra.
	if a.IsNull() || b.IsNull() {
		return values.NaN(), nil
	}
	if v, ok, err := temporalArith(op, a, b); ok {
		return v, err
	}
	fa, okA := asFloat(a)
	fb, okB := asFloat(b)
	if !okA || !okB {
		bad := a
		if okA {
			bad = b
		}
		return values.Value{}, errs.Formula("incompatible_types",
			"operator %q cannot be applied to %q", op, bad.String())
	}
	switch op {
	case "+":
		return values.Float(fa + fb), nil
	case "-":
		return values.Float(fa - fb), nil
	case "*":
		return values.Float(fa * fb), nil
	case "/":
		if fb == 0 {
			// Division by zero yields infinity, never an error.
			if fa == 0 {
				return values.NaN(), nil
			}
			return values.Float(math.Inf(sign(fa))), nil
		}
		return values.Float(fa / fb), nil
	}
	return values.Value{}, errs.Formula("formula_unsupported_operator",
		"operator %q is not supported", op)
}

func sign(f float64) int {
	if f < 0 {
		return -1
	}
	return 1
}

func temporalArith(op string, a, b values.Value) (values.Value, bool, error) {
	aDT, bDT := a.Kind() == values.TypeDatetime, b.Kind() == values.TypeDatetime
	aTD, bTD := a.Kind() == values.TypeTimedelta, b.Kind() == values.TypeTimedelta
	if !aDT && !bDT && !aTD && !bTD {
		return values.Value{}, false, nil
	}
	switch {
	case aDT && bDT && op == "-":
		return values.Timedelta(a.TimeVal().Sub(b.TimeVal())), true, nil
	case aDT && bTD && op == "+":
		return values.Datetime(a.TimeVal().Add(b.DurVal())), true, nil
	case aTD && bDT && op == "+":
		return values.Datetime(b.TimeVal().Add(a.DurVal())), true, nil
	case aDT && bTD && op == "-":
		return values.Datetime(a.TimeVal().Add(-b.DurVal())), true, nil
	case aTD && bTD && (op == "+" || op == "-"):
		if op == "+" {
			return values.Timedelta(a.DurVal() + b.DurVal()), true, nil
		}
		return values.Timedelta(a.DurVal() - b.DurVal()), true, nil
	}
	return values.Value{}, true, errs.Formula("incompatible_types",
		"operator %q cannot combine %s and %s", op, a.Kind(), b.Kind())
}

func compareValues(op string, a, b values.Value) (values.Value, error) {
	if a.IsNull() || b.IsNull() {
		// Comparisons with missing values are false, except != which
		// matches only a present counterpart.
		if op == "!=" {
			return values.Bool(!(a.IsNull() && b.IsNull())), nil
		}
		if op == "==" {
			return values.Bool(a.IsNull() && b.IsNull()), nil
		}
		return values.Bool(false), nil
	}
	var cmp int
	fa, okA := a.Float64()
	fb, okB := b.Float64()
	switch {
	case okA && okB:
		switch {
		case fa < fb:
			cmp = -1
		case fa > fb:
			cmp = 1
		}
	case a.Kind() == values.TypeString && b.Kind() == values.TypeString:
		cmp = a.Compare(b)
	case a.Kind() == values.TypeDatetime && b.Kind() == values.TypeDatetime,
		a.Kind() == values.TypeTimedelta && b.Kind() == values.TypeTimedelta:
		cmp = a.Compare(b)
	default:
		if op == "==" {
			return values.Bool(false), nil
		}
		if op == "!=" {
			return values.Bool(true), nil
		}
		return values.Value{}, errs.Formula("incompatible_types",
			"cannot order %s against %s", a.Kind(), b.Kind())
	}
	switch op {
	case "==":
		return values.Bool(cmp == 0), nil
	case "!=":
		return values.Bool(cmp != 0), nil
	case ">":
		return values.Bool(cmp > 0), nil
	case "<":
		return values.Bool(cmp < 0), nil
	case ">=":
		return values.Bool(cmp >= 0), nil
	case "<=":
		return values.Bool(cmp <= 0), nil
	}
	return values.Value{}, errs.Formula("formula_unsupported_operator", "operator %q", op)
}

func dtypeOf(cells []values.Value) values.DType {
	var dt values.DType
	for _, c := range cells {
		if c.IsNull() {
			continue
		}
		if dt == "" {
			dt = c.Kind()
			continue
		}
		if dt == c.Kind() {
			continue
		}
		num := func(d values.DType) bool { return d == values.TypeInt || d == values.TypeFloat }
		if num(dt) && num(c.Kind()) {
			dt = values.TypeFloat
			continue
		}
		return values.TypeString
	}
	if dt == "" {
		return values.TypeFloat
	}
	return dt
}
