package formula

import (
	"fmt"
	"time"

	"sheetflow/internal/values"
)

// needTime coerces a cell to a datetime for the date family.
func needTime(fname string, v values.Value) (time.Time, error) {
	if v.Kind() == values.TypeDatetime {
		return v.TimeVal(), nil
	}
	if v.Kind() == values.TypeString {
		if t, ok := values.ParseDatetime(v.Str(), ""); ok {
			return t, nil
		}
	}
	return time.Time{}, errFormula("incompatible_types",
		"%s cannot use %q as a date", fname, v.String())
}

// datePart registers a single-argument datetime accessor.
func datePart(name string, get func(time.Time) values.Value, emit func([]string) string) {
	register(Function{
		Name: name, Family: "date", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				t, err := needTime(name, v)
				if err != nil {
					return values.Value{}, err
				}
				return get(t), nil
			})
		},
		Emit: emit,
	})
}

func dtEmit(attr string) func([]string) string {
	return func(a []string) string { return fmt.Sprintf("(%s).dt.%s", a[0], attr) }
}

func init() {
	register(Function{
		Name: "DATEVALUE", Family: "date", MinArgs: 1, MaxArgs: 1,
		Eval: func(e *Env, args []Result) (Result, error) {
			return lift1(e, args[0], func(v values.Value) (values.Value, error) {
				if v.Kind() == values.TypeDatetime {
					return v, nil
				}
				if t, ok := values.ParseDatetime(v.String(), ""); ok {
					return values.Datetime(t), nil
				}
				return values.Null(values.TypeDatetime), nil
			})
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("pd.to_datetime(%s, errors='coerce')", a[0])
		},
	})

	datePart("DAY", func(t time.Time) values.Value {
		return values.Int(int64(t.Day()))
	}, dtEmit("day"))

	register(Function{
		Name: "DAYS", Family: "date", MinArgs: 2, MaxArgs: 2,
		Eval: func(e *Env, args []Result) (Result, error) {
			return liftN(e, args, func(row []values.Value) (values.Value, error) {
				if row[0].IsNull() || row[1].IsNull() {
					return values.Null(values.TypeInt), nil
				}
				a, err := needTime("DAYS", row[0])
				if err != nil {
					return values.Value{}, err
				}
				b, err := needTime("DAYS", row[1])
				if err != nil {
					return values.Value{}, err
				}
				return values.Int(int64(a.Sub(b).Hours() / 24)), nil
			})
		},
		Emit: func(a []string) string {
			return fmt.Sprintf("((%s) - (%s)).dt.days", a[0], a[1])
		},
	})

	datePart("ENDOFBUSINESSMONTH", func(t time.Time) values.Value {
		d := endOfMonth(t)
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, -1)
		}
		return values.Datetime(d)
	}, func(a []string) string {
		return fmt.Sprintf("(%s) + pd.offsets.BMonthEnd(0)", a[0])
	})

	datePart("ENDOFMONTH", func(t time.Time) values.Value {
		return values.Datetime(endOfMonth(t))
	}, func(a []string) string {
		return fmt.Sprintf("(%s) + pd.offsets.MonthEnd(0)", a[0])
	})

	datePart("HOUR", func(t time.Time) values.Value {
		return values.Int(int64(t.Hour()))
	}, dtEmit("hour"))

	datePart("MINUTE", func(t time.Time) values.Value {
		return values.Int(int64(t.Minute()))
	}, dtEmit("minute"))

	datePart("MONTH", func(t time.Time) values.Value {
		return values.Int(int64(t.Month()))
	}, dtEmit("month"))

	datePart("QUARTER", func(t time.Time) values.Value {
		return values.Int(int64((int(t.Month())-1)/3 + 1))
	}, dtEmit("quarter"))

	datePart("SECOND", func(t time.Time) values.Value {
		return values.Int(int64(t.Second()))
	}, dtEmit("second"))

	datePart("STARTOFBUSINESSMONTH", func(t time.Time) values.Value {
		d := startOfMonth(t)
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		return values.Datetime(d)
	}, func(a []string) string {
		return fmt.Sprintf("(%s) - pd.offsets.BMonthBegin(1)", a[0])
	})

	datePart("STARTOFMONTH", func(t time.Time) values.Value {
		return values.Datetime(startOfMonth(t))
	}, func(a []string) string {
		return fmt.Sprintf("(%s).dt.to_period('M').dt.to_timestamp()", a[0])
	})

	datePart("STRIPTIMETOMINUTES", func(t time.Time) values.Value {
		return values.Datetime(t.Truncate(time.Minute))
	}, func(a []string) string { return fmt.Sprintf("(%s).dt.floor('min')", a[0]) })

	datePart("STRIPTIMETOHOURS", func(t time.Time) values.Value {
		return values.Datetime(t.Truncate(time.Hour))
	}, func(a []string) string { return fmt.Sprintf("(%s).dt.floor('h')", a[0]) })

	datePart("STRIPTIMETODAYS", func(t time.Time) values.Value {
		return values.Datetime(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()))
	}, func(a []string) string { return fmt.Sprintf("(%s).dt.floor('D')", a[0]) })

	datePart("STRIPTIMETOMONTHS", func(t time.Time) values.Value {
		return values.Datetime(startOfMonth(t))
	}, func(a []string) string {
		return fmt.Sprintf("(%s).dt.to_period('M').dt.to_timestamp()", a[0])
	})

	datePart("STRIPTIMETOYEARS", func(t time.Time) values.Value {
		return values.Datetime(time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location()))
	}, func(a []string) string {
		return fmt.Sprintf("(%s).dt.to_period('Y').dt.to_timestamp()", a[0])
	})

	datePart("WEEK", func(t time.Time) values.Value {
		_, week := t.ISOWeek()
		return values.Int(int64(week))
	}, func(a []string) string {
		return fmt.Sprintf("(%s).dt.isocalendar().week", a[0])
	})

	datePart("WEEKDAY", func(t time.Time) values.Value {
		// Monday = 1 .. Sunday = 7.
		wd := int(t.Weekday())
		if wd == 0 {
			wd = 7
		}
		return values.Int(int64(wd))
	}, func(a []string) string {
		return fmt.Sprintf("(%s).dt.weekday + 1", a[0])
	})

	datePart("YEAR", func(t time.Time) values.Value {
		return values.Int(int64(t.Year()))
	}, dtEmit("year"))
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func endOfMonth(t time.Time) time.Time {
	return startOfMonth(t).AddDate(0, 1, -1)
}
