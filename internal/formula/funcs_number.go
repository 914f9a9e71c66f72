package formula

import (
	"fmt"
	"math"
	"strings"

	"sheetflow/internal/values"
)

func init() {
	register(Function{
		Name: "ABS", Family: "number", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				f, err := needFloat("ABS", v)
				if err != nil {
					return values.Value{}, err
				}
				return values.Float(math.Abs(f)), nil
			})
		},
		Emit: func(a []string) string { return fmt.Sprintf("abs(%s)", a[0]) },
	})

	avg := Function{
		Name: "AVG", Family: "number", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			f, ok := meanOf(gatherFloats(e, args))
			return floatScalar(f, ok)
		},
		Emit:    emitNanAgg("np.nanmean"),
		Imports: []string{"import numpy as np"},
	}
	register(avg)
	avg.Name = "AVERAGE"
	register(avg)

	register(Function{
		Name: "CORR", Family: "number", MinArgs: 2, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			xs := gatherPairs(e, args[0], args[1])
			if len(xs) < 2 {
				return scalar(values.NaN()), nil
			}
			var a, b []float64
			for _, p := range xs {
				a = append(a, p[0])
				b = append(b, p[1])
			}
			ma, _ := meanOf(a)
			mb, _ := meanOf(b)
			var cov, va, vb float64
			for i := range a {
				cov += (a[i] - ma) * (b[i] - mb)
				va += (a[i] - ma) * (a[i] - ma)
				vb += (b[i] - mb) * (b[i] - mb)
			}
			if va == 0 || vb == 0 {
				return scalar(values.NaN()), nil
			}
			return scalar(values.Float(cov / math.Sqrt(va*vb))), nil
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).corr(%s)", a[0], a[1]) },
	})

	register(Function{
		Name: "COUNT", Family: "number", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return scalar(values.Int(countPresent(e, args))), nil
		},
		Emit: func(a []string) string {
			parts := make([]string, len(a))
			for i, s := range a {
				parts[i] = fmt.Sprintf("(%s).count()", s)
			}
			return strings.Join(parts, " + ")
		},
	})

	register(Function{
		Name: "EXP", Family: "number", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				f, err := needFloat("EXP", v)
				if err != nil {
					return values.Value{}, err
				}
				return values.Float(math.Exp(f)), nil
			})
		},
		Emit:    func(a []string) string { return fmt.Sprintf("np.exp(%s)", a[0]) },
		Imports: []string{"import numpy as np"},
	})

	toFloat := Function{
		Name: "FLOAT", Family: "number", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				if f, ok := asFloat(v); ok {
					return values.Float(f), nil
				}
				return values.NaN(), nil
			})
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("pd.to_numeric(%s, errors='coerce')", a[0])
		},
	}
	register(toFloat)
	toFloat.Name = "VALUE"
	register(toFloat)

	register(Function{
		Name: "INT", Family: "number", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				if f, ok := asFloat(v); ok {
					return values.Int(int64(f)), nil
				}
				return values.Null(values.TypeInt), nil
			})
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("pd.to_numeric(%s, errors='coerce').fillna(0).astype(int)", a[0])
		},
	})

	register(Function{
		Name: "KURT", Family: "number", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			fs := gatherFloats(e, args)
			n := float64(len(fs))
			if n < 4 {
				return scalar(values.NaN()), nil
			}
			m, _ := meanOf(fs)
			s, _ := stdOf(fs)
			if s == 0 {
				return scalar(values.NaN()), nil
			}
			var m4 float64
			for _, f := range fs {
				m4 += math.Pow(f-m, 4)
			}
			g2 := (n*(n+1))/((n-1)*(n-2)*(n-3))*(m4/math.Pow(s, 4)) -
				3*(n-1)*(n-1)/((n-2)*(n-3))
			return scalar(values.Float(g2)), nil
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).kurt()", a[0]) },
	})

	register(Function{
		Name: "LOG", Family: "number", MinArgs: 1, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			base := math.E
			if len(args) == 2 {
				if !args[1].Scalar {
					return Result{}, errFormula("incompatible_types",
						"LOG base must be a number, not a column")
				}
				b, err := needFloat("LOG", args[1].Value)
				if err != nil {
					return Result{}, err
				}
				base = b
			}
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				f, err := needFloat("LOG", v)
				if err != nil {
					return values.Value{}, err
				}
				return values.Float(math.Log(f) / math.Log(base)), nil
			})
		},
		Emit: func(a []string) string {
			if len(a) == 2 {
				return fmt.Sprintf("np.log(%s) / np.log(%s)", a[0], a[1])
			}
			return fmt.Sprintf("np.log(%s)", a[0])
		},
		Imports: []string{"import numpy as np"},
	})

	register(Function{
		Name: "MAX", Family: "number", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			fs := gatherFloats(e, args)
			if len(fs) == 0 {
				return scalar(values.NaN()), nil
			}
			best := fs[0]
			for _, f := range fs[1:] {
				if f > best {
					best = f
				}
			}
			return scalar(values.Float(best)), nil
		},
		Emit:    emitNanAgg("np.nanmax"),
		Imports: []string{"import numpy as np"},
	})

	register(Function{
		Name: "MIN", Family: "number", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			fs := gatherFloats(e, args)
			if len(fs) == 0 {
				return scalar(values.NaN()), nil
			}
			best := fs[0]
			for _, f := range fs[1:] {
				if f < best {
					best = f
				}
			}
			return scalar(values.Float(best)), nil
		},
		Emit:    emitNanAgg("np.nanmin"),
		Imports: []string{"import numpy as np"},
	})

	register(Function{
		Name: "MULTIPLY", Family: "number", MinArgs: 2, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				p := 1.0
				for _, v := range row {
					if v.IsNull() {
						return values.NaN(), nil
					}
					f, err := needFloat("MULTIPLY", v)
					if err != nil {
						return values.Value{}, err
					}
					p *= f
				}
				return values.Float(p), nil
			})
		},
		Emit: emitJoin(" * "),
	})

	register(Function{
		Name: "NPV", Family: "number", MinArgs: 2, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			if !args[0].Scalar {
				return Result{}, errFormula("incompatible_types",
					"NPV rate must be a single number")
			}
			rate, err := needFloat("NPV", args[0].Value)
			if err != nil {
				return Result{}, err
			}
			flows := gatherFloats(e, args[1:])
			total := 0.0
			for i, f := range flows {
				total += f / math.Pow(1+rate, float64(i+1))
			}
			return scalar(values.Float(total)), nil
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("_sf_npv(%s, %s)", a[0], strings.Join(a[1:], ", "))
		},
		PyDef: `def _sf_npv(rate, *flows):
    import numpy as np
    cells = np.concatenate([np.ravel(f) for f in flows])
    cells = cells[~np.isnan(cells)]
    return float(sum(c / (1 + rate) ** (i + 1) for i, c in enumerate(cells)))`,
	})

	register(Function{
		Name: "POWER", Family: "number", MinArgs: 2, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				if row[0].IsNull() || row[1].IsNull() {
					return values.NaN(), nil
				}
				base, err := needFloat("POWER", row[0])
				if err != nil {
					return values.Value{}, err
				}
				exp, err := needFloat("POWER", row[1])
				if err != nil {
					return values.Value{}, err
				}
				return values.Float(math.Pow(base, exp)), nil
			})
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s) ** (%s)", a[0], a[1]) },
	})

	register(Function{
		Name: "ROUND", Family: "number", MinArgs: 1, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			decimals := 0.0
			if len(args) == 2 {
				if !args[1].Scalar {
					return Result{}, errFormula("incompatible_types",
						"ROUND decimals must be a single number")
				}
				d, err := needFloat("ROUND", args[1].Value)
				if err != nil {
					return Result{}, err
				}
				decimals = d
			}
			mult := math.Pow(10, decimals)
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				f, err := needFloat("ROUND", v)
				if err != nil {
					return values.Value{}, err
				}
				return values.Float(math.Round(f*mult) / mult), nil
			})
		},
		Emit: func(a []string) string {
			if len(a) == 2 {
				return fmt.Sprintf("(%s).round(%s)", a[0], a[1])
			}
			return fmt.Sprintf("(%s).round(0)", a[0])
		},
	})

	register(Function{
		Name: "SKEW", Family: "number", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			fs := gatherFloats(e, args)
			n := float64(len(fs))
			if n < 3 {
				return scalar(values.NaN()), nil
			}
			m, _ := meanOf(fs)
			s, _ := stdOf(fs)
			if s == 0 {
				return scalar(values.NaN()), nil
			}
			var m3 float64
			for _, f := range fs {
				m3 += math.Pow(f-m, 3)
			}
			g1 := n / ((n - 1) * (n - 2)) * (m3 / math.Pow(s, 3))
			return scalar(values.Float(g1)), nil
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).skew()", a[0]) },
	})

	register(Function{
		Name: "STDEV", Family: "number", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			f, ok := stdOf(gatherFloats(e, args))
			return floatScalar(f, ok)
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).std()", strings.Join(a, ", ")) },
	})

	register(Function{
		Name: "SUM", Family: "number", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			fs := gatherFloats(e, args)
			t := 0.0
			for _, f := range fs {
				t += f
			}
			return scalar(values.Float(t)), nil
		},
		Emit: func(a []string) string {
			parts := make([]string, len(a))
			for i, s := range a {
				parts[i] = fmt.Sprintf("(%s).sum()", s)
			}
			return strings.Join(parts, " + ")
		},
	})

	register(Function{
		Name: "SUMPRODUCT", Family: "number", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			n := e.rows()
			total := 0.0
			for i := 0; i < n; i++ {
				p := 1.0
				absent := false
				for _, a := range args {
					v := a.CellAt(i)
					if values.IsNaNLike(v) {
						absent = true
						break
					}
					f, err := needFloat("SUMPRODUCT", v)
					if err != nil {
						return Result{}, err
					}
					p *= f
				}
				if !absent {
					total += p
				}
			}
			return scalar(values.Float(total)), nil
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("(%s).sum()", strings.Join(wrapAll(a), " * "))
		},
	})

	register(Function{
		Name: "VAR", Family: "number", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			s, ok := stdOf(gatherFloats(e, args))
			return floatScalar(s*s, ok)
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).var()", a[0]) },
	})
}

// gatherPairs aligns two column arguments rowwise, keeping rows where
// both sides coerce to numbers.
func gatherPairs(e *Env, a, b Result) [][2]float64 {
	n := e.rows()
	var out [][2]float64
	for i := 0; i < n; i++ {
		va, vb := a.CellAt(i), b.CellAt(i)
		if values.IsNaNLike(va) || values.IsNaNLike(vb) {
			continue
		}
		fa, okA := asFloat(va)
		fb, okB := asFloat(vb)
		if okA && okB {
			out = append(out, [2]float64{fa, fb})
		}
	}
	return out
}

func wrapAll(a []string) []string {
	out := make([]string, len(a))
	for i, s := range a {
		out[i] = "(" + s + ")"
	}
	return out
}

func emitJoin(sep string) func([]string) string {
	return func(a []string) string {
		return strings.Join(wrapAll(a), sep)
	}
}

// emitNanAgg renders np.nanmean-style aggregation over every argument
// flattened together, which handles scalar and column args alike.
func emitNanAgg(npFunc string) func([]string) string {
	return func(a []string) string {
		if len(a) == 1 {
			return fmt.Sprintf("%s(%s)", npFunc, a[0])
		}
		return fmt.Sprintf("%s(np.concatenate([%s]))",
			npFunc, strings.Join(ravelAll(a), ", "))
	}
}

func ravelAll(a []string) []string {
	out := make([]string, len(a))
	for i, s := range a {
		out[i] = fmt.Sprintf("np.ravel(%s)", s)
	}
	return out
}
