package formula

import (
	"fmt"

	"sheetflow/internal/values"
)

// asBool coerces a cell to bool for the logical family. Missing cells
// coerce to false; unmappable strings too.
func asBool(v values.Value) bool {
	if v.IsNull() {
		return false
	}
	switch v.Kind() {
	case values.TypeBool:
		return v.BoolVal()
	case values.TypeInt:
		return v.IntVal() != 0
	case values.TypeFloat:
		return v.FloatVal() != 0
	case values.TypeString:
		b, ok := values.ParseBool(v.Str())
		return ok && b
	}
	return false
}

func init() {
	register(Function{
		Name: "AND", Family: "bool", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				for _, v := range row {
					if !asBool(v) {
						return values.Bool(false), nil
					}
				}
				return values.Bool(true), nil
			})
		},
		Emit: emitJoin(" & "),
	})

	register(Function{
		Name: "BOOL", Family: "bool", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return e.mapElementwise(func(v values.Value) (values.Value, error) {
				if v.IsNull() {
					return values.Null(values.TypeBool), nil
				}
				if v.Kind() == values.TypeString {
					if b, ok := values.ParseBool(v.Str()); ok {
						return values.Bool(b), nil
					}
					return values.Null(values.TypeBool), nil
				}
				return values.Bool(asBool(v)), nil
			}, args[0])
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).astype(bool)", a[0]) },
	})

	register(Function{
		Name: "FILLNAN", Family: "bool", MinArgs: 2, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				if values.IsNaNLike(row[0]) {
					return row[1], nil
				}
				return row[0], nil
			})
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).fillna(%s)", a[0], a[1]) },
	})

	register(Function{
		Name: "GETPREVIOUSVALUE", Family: "bool", MinArgs: 2, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			return scanValues(e, args, false)
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("(%s).where((%s).astype(bool)).ffill().fillna(0)", a[0], a[1])
		},
	})

	register(Function{
		Name: "GETNEXTVALUE", Family: "bool", MinArgs: 2, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			return scanValues(e, args, true)
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("(%s).where((%s).astype(bool)).bfill().fillna(0)", a[0], a[1])
		},
	})

	register(Function{
		Name: "IF", Family: "bool", MinArgs: 3, MaxArgs: 3,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				if asBool(row[0]) {
					return row[1], nil
				}
				return row[2], nil
			})
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("np.where(%s, %s, %s)", a[0], a[1], a[2])
		},
		Imports: []string{"import numpy as np"},
	})

	register(Function{
		Name: "NOT", Family: "bool", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				return values.Bool(!asBool(row[0])), nil
			})
		},
		Emit: func(a []string) string { return fmt.Sprintf("~(%s)", a[0]) },
	})

	register(Function{
		Name: "OFFSET", Family: "bool", MinArgs: 2, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			if !args[1].Scalar {
				return Result{}, errFormula("incompatible_types",
					"OFFSET shift must be a single number")
			}
			f, err := needFloat("OFFSET", args[1].Value)
			if err != nil {
				return Result{}, err
			}
			shift := int(f)
			n := e.rows()
			src := args[0].ToCells(n)
			out := make([]values.Value, n)
			for i := range out {
				j := i - shift
				if j < 0 || j >= n {
					out[i] = values.NaN()
				} else {
					out[i] = src[j]
				}
			}
			return column(out), nil
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).shift(%s)", a[0], a[1]) },
	})

	register(Function{
		Name: "OR", Family: "bool", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				for _, v := range row {
					if asBool(v) {
						return values.Bool(true), nil
					}
				}
				return values.Bool(false), nil
			})
		},
		Emit: emitJoin(" | "),
	})

	register(Function{
		Name: "TYPE", Family: "bool", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return e.mapElementwise(func(v values.Value) (values.Value, error) {
				return values.String(string(v.Kind())), nil
			}, args[0])
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("(%s).apply(lambda v: type(v).__name__)", a[0])
		},
	})
}

// scanValues implements GETPREVIOUSVALUE / GETNEXTVALUE: for each row,
// the nearest value (upwards or downwards) whose condition cell is true,
// defaulting to the value column's type zero.
func scanValues(e *Env, args []Result, forward bool) (Result, error) {
	n := e.rows()
	vals := args[0].ToCells(n)
	conds := args[1].ToCells(n)
	dtype := values.TypeFloat
	for _, v := range vals {
		if !v.IsNull() {
			dtype = v.Kind()
			break
		}
	}
	out := make([]values.Value, n)
	carry := values.ZeroOf(dtype)
	if forward {
		for i := n - 1; i >= 0; i-- {
			if asBool(conds[i]) {
				carry = vals[i]
			}
			out[i] = carry
		}
	} else {
		for i := 0; i < n; i++ {
			if asBool(conds[i]) {
				carry = vals[i]
			}
			out[i] = carry
		}
	}
	return column(out), nil
}
