package formula

import (
	"fmt"
	"strings"
	"unicode"

	"sheetflow/internal/values"
)

// asText renders a non-null cell as its string form for the string
// functions, which accept any dtype and work on the display text.
func asText(v values.Value) string { return v.String() }

func init() {
	register(Function{
		Name: "CLEAN", Family: "string", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				var b strings.Builder
				for _, r := range asText(v) {
					if unicode.IsPrint(r) {
						b.WriteRune(r)
					}
				}
				return values.String(b.String()), nil
			})
		},
		Emit: func(a []string) string {
			return fmt.Sprintf(`(%s).astype(str).str.replace(r'[\x00-\x1f]', '', regex=True)`, a[0])
		},
	})

	register(Function{
		Name: "CONCAT", Family: "string", MinArgs: 1, MaxArgs: -1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				var b strings.Builder
				for _, v := range row {
					if v.IsNull() {
						continue
					}
					b.WriteString(asText(v))
				}
				return values.String(b.String()), nil
			})
		},
		Emit: func(a []string) string {
			cur := a[0]
			for _, next := range a[1:] {
				cur = fmt.Sprintf("_sf_concat(%s, %s)", cur, next)
			}
			if len(a) == 1 {
				return fmt.Sprintf("(%s).astype(str)", a[0])
			}
			return cur
		},
		PyDef: pyConcatDef,
	})

	register(Function{
		Name: "FIND", Family: "string", MinArgs: 2, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				if row[0].IsNull() || row[1].IsNull() {
					return values.Null(values.TypeInt), nil
				}
				// 1-based position, 0 when absent.
				return values.Int(int64(strings.Index(asText(row[0]), asText(row[1])) + 1)), nil
			})
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("(%s).astype(str).str.find(%s) + 1", a[0], a[1])
		},
	})

	register(Function{
		Name: "LEFT", Family: "string", MinArgs: 1, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			n, err := optionalCount(args, 1, "LEFT")
			if err != nil {
				return Result{}, err
			}
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				s := asText(v)
				if n < len(s) {
					return values.String(s[:n]), nil
				}
				return values.String(s), nil
			})
		},
		Emit: func(a []string) string {
			n := "1"
			if len(a) == 2 {
				n = a[1]
			}
			return fmt.Sprintf("(%s).astype(str).str[:%s]", a[0], n)
		},
	})

	register(Function{
		Name: "LEN", Family: "string", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				return values.Int(int64(len(asText(v)))), nil
			})
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).astype(str).str.len()", a[0]) },
	})

	register(Function{
		Name: "LOWER", Family: "string", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				return values.String(strings.ToLower(asText(v))), nil
			})
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).astype(str).str.lower()", a[0]) },
	})

	register(Function{
		Name: "MID", Family: "string", MinArgs: 3, MaxArgs: 3,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				if row[0].IsNull() {
					return values.Null(values.TypeString), nil
				}
				start, err := needFloat("MID", row[1])
				if err != nil {
					return values.Value{}, err
				}
				length, err := needFloat("MID", row[2])
				if err != nil {
					return values.Value{}, err
				}
				s := asText(row[0])
				from := int(start) - 1
				if from < 0 {
					from = 0
				}
				if from >= len(s) {
					return values.String(""), nil
				}
				to := from + int(length)
				if to > len(s) {
					to = len(s)
				}
				return values.String(s[from:to]), nil
			})
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("(%s).astype(str).str.slice((%s) - 1, (%s) - 1 + (%s))",
				a[0], a[1], a[1], a[2])
		},
	})

	register(Function{
		Name: "PROPER", Family: "string", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				return values.String(titleCase(asText(v))), nil
			})
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).astype(str).str.title()", a[0]) },
	})

	register(Function{
		Name: "RIGHT", Family: "string", MinArgs: 1, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			n, err := optionalCount(args, 1, "RIGHT")
			if err != nil {
				return Result{}, err
			}
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				s := asText(v)
				if n < len(s) {
					return values.String(s[len(s)-n:]), nil
				}
				return values.String(s), nil
			})
		},
		Emit: func(a []string) string {
			n := "1"
			if len(a) == 2 {
				n = a[1]
			}
			return fmt.Sprintf("(%s).astype(str).str[-(%s):]", a[0], n)
		},
	})

	register(Function{
		Name: "SUBSTITUTE", Family: "string", MinArgs: 3, MaxArgs: 4,
		Eval: func(e *Env, args []Result) (Result, error) {
			count := -1
			if len(args) == 4 {
				if !args[3].Scalar {
					return Result{}, errFormula("incompatible_types",
						"SUBSTITUTE count must be a single number")
				}
				f, err := needFloat("SUBSTITUTE", args[3].Value)
				if err != nil {
					return Result{}, err
				}
				count = int(f)
			}
			return liftN(e, args[:3], func(row []values.Value) (values.Value, error) {
				if row[0].IsNull() {
					return values.Null(values.TypeString), nil
				}
				return values.String(strings.Replace(
					asText(row[0]), asText(row[1]), asText(row[2]), count)), nil
			})
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("(%s).astype(str).str.replace(%s, %s, regex=False)", a[0], a[1], a[2])
		},
	})

	register(Function{
		Name: "TEXT", Family: "string", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				return values.String(asText(v)), nil
			})
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).astype(str)", a[0]) },
	})

	register(Function{
		Name: "TRIM", Family: "string", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				return values.String(strings.TrimSpace(asText(v))), nil
			})
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).astype(str).str.strip()", a[0]) },
	})

	register(Function{
		Name: "UPPER", Family: "string", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				return values.String(strings.ToUpper(asText(v))), nil
			})
		},
		Emit: func(a []string) string { return fmt.Sprintf("(%s).astype(str).str.upper()", a[0]) },
	})
}

const pyConcatDef = `def _sf_concat(a, b):
    import pandas as pd
    a = a.astype(str) if isinstance(a, pd.Series) else str(a)
    b = b.astype(str) if isinstance(b, pd.Series) else str(b)
    return a + b`

func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}

// optionalCount reads an optional trailing scalar count argument.
func optionalCount(args []Result, def int, fname string) (int, error) {
	if len(args) < 2 {
		return def, nil
	}
	if !args[1].Scalar {
		return 0, errFormula("incompatible_types",
			"%s count must be a single number", fname)
	}
	f, err := needFloat(fname, args[1].Value)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
