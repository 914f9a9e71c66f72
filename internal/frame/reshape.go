package frame

import (
	"strings"

	"sheetflow/internal/errs"
	"sheetflow/internal/values"
)

// ConcatRows stacks frames vertically. join is "inner" (shared columns
// only) or "outer" (union, missing cells null). ignoreIndex renumbers
// the result 0..n-1; otherwise source labels are kept.
func ConcatRows(dfs []*DataFrame, join string, ignoreIndex bool) *DataFrame {
	if len(dfs) == 0 {
		return Empty()
	}
	var headers []string
	if join == "inner" {
		for _, h := range dfs[0].Headers {
			inAll := true
			for _, df := range dfs[1:] {
				if df.ColIndex(h) < 0 {
					inAll = false
					break
				}
			}
			if inAll {
				headers = append(headers, h)
			}
		}
	} else {
		seen := make(map[string]bool)
		for _, df := range dfs {
			for _, h := range df.Headers {
				if !seen[h] {
					seen[h] = true
					headers = append(headers, h)
				}
			}
		}
	}

	total := 0
	for _, df := range dfs {
		total += df.NumRows()
	}
	cols := make([]*Series, len(headers))
	for ci, h := range headers {
		cells := make([]values.Value, 0, total)
		var dtype values.DType
		for _, df := range dfs {
			src := df.Col(h)
			if src == nil {
				for i := 0; i < df.NumRows(); i++ {
					cells = append(cells, values.NaN())
				}
				continue
			}
			if dtype == "" {
				dtype = src.DType
			} else if dtype != src.DType {
				dtype = values.TypeString
			}
			cells = append(cells, src.Cells...)
		}
		if dtype == "" {
			dtype = values.TypeFloat
		}
		cols[ci] = &Series{DType: dtype, Cells: cells}
	}

	idx := make([]values.Value, 0, total)
	if ignoreIndex {
		idx = defaultIndex(total)
	} else {
		for _, df := range dfs {
			idx = append(idx, df.Index...)
		}
	}
	return &DataFrame{Headers: headers, Cols: cols, Index: idx}
}

// Melt unpivots valueVars into (variable, value) pairs keyed by idVars.
func (df *DataFrame) Melt(idVars, valueVars []string) (*DataFrame, error) {
	for _, h := range append(append([]string{}, idVars...), valueVars...) {
		if df.ColIndex(h) < 0 {
			return nil, errs.UserConfig("column_not_found", "no column named %q", h)
		}
	}
	if len(valueVars) == 0 {
		ids := toSet(idVars)
		for _, h := range df.Headers {
			if !ids[h] {
				valueVars = append(valueVars, h)
			}
		}
	}
	n := df.NumRows() * len(valueVars)
	headers := append(append([]string{}, idVars...), "variable", "value")
	cols := make([]*Series, len(headers))
	for i, h := range idVars {
		src := df.Col(h)
		cells := make([]values.Value, 0, n)
		for range valueVars {
			cells = append(cells, src.Cells...)
		}
		cols[i] = &Series{DType: src.DType, Cells: cells}
	}
	varCells := make([]values.Value, 0, n)
	valCells := make([]values.Value, 0, n)
	for _, vv := range valueVars {
		src := df.Col(vv)
		for _, c := range src.Cells {
			varCells = append(varCells, values.String(vv))
			valCells = append(valCells, c)
		}
	}
	cols[len(idVars)] = &Series{DType: values.TypeString, Cells: varCells}
	cols[len(idVars)+1] = &Series{DType: commonDType(valCells), Cells: valCells}
	return &DataFrame{Headers: headers, Cols: cols, Index: defaultIndex(n)}, nil
}

// PivotValue aggregates one source column with one or more functions.
type PivotValue struct {
	Header string
	Aggs   []AggFunc
}

// PivotSpec describes a pivot-table build.
type PivotSpec struct {
	Rows    []string
	Columns []string
	Values  []PivotValue
}

// Pivot groups by Rows, fans Columns values out into separate output
// columns, and aggregates Values. Output headers are flattened with
// space separators, and the row keys become leading columns with a
// fresh index.
func (df *DataFrame) Pivot(spec PivotSpec) (*DataFrame, error) {
	if len(spec.Rows) == 0 && len(spec.Columns) == 0 {
		return nil, errs.UserConfig("pivot_spec_empty",
			"a pivot needs at least one row or column key")
	}
	if len(spec.Values) == 0 {
		return nil, errs.UserConfig("pivot_spec_empty", "a pivot needs at least one value")
	}
	for _, h := range spec.Rows {
		if df.ColIndex(h) < 0 {
			return nil, errs.UserConfig("column_not_found", "no column named %q", h)
		}
	}
	for _, h := range spec.Columns {
		if df.ColIndex(h) < 0 {
			return nil, errs.UserConfig("column_not_found", "no column named %q", h)
		}
	}
	for _, v := range spec.Values {
		if df.ColIndex(v.Header) < 0 {
			return nil, errs.UserConfig("column_not_found", "no column named %q", v.Header)
		}
	}

	keyOf := func(headers []string, ri int) string {
		parts := make([]string, len(headers))
		for i, h := range headers {
			parts[i] = df.Col(h).Cells[ri].String()
		}
		return strings.Join(parts, "\x00")
	}

	// Group rows by the row-key; remember column-key order of appearance.
	type group struct {
		rowVals []values.Value
		rows    map[string][]int // colKey -> source row positions
	}
	var rowOrder []string
	groups := make(map[string]*group)
	var colOrder []string
	colSeen := make(map[string]bool)
	colVals := make(map[string][]values.Value)
	for ri := 0; ri < df.NumRows(); ri++ {
		rk := keyOf(spec.Rows, ri)
		g, ok := groups[rk]
		if !ok {
			rv := make([]values.Value, len(spec.Rows))
			for i, h := range spec.Rows {
				rv[i] = df.Col(h).Cells[ri]
			}
			g = &group{rowVals: rv, rows: make(map[string][]int)}
			groups[rk] = g
			rowOrder = append(rowOrder, rk)
		}
		ck := keyOf(spec.Columns, ri)
		if !colSeen[ck] {
			colSeen[ck] = true
			colOrder = append(colOrder, ck)
			cv := make([]values.Value, len(spec.Columns))
			for i, h := range spec.Columns {
				cv[i] = df.Col(h).Cells[ri]
			}
			colVals[ck] = cv
		}
		g.rows[ck] = append(g.rows[ck], ri)
	}

	headers := append([]string{}, spec.Rows...)
	cols := make([]*Series, len(spec.Rows))
	for i, h := range spec.Rows {
		src := df.Col(h)
		cells := make([]values.Value, len(rowOrder))
		for j, rk := range rowOrder {
			cells[j] = groups[rk].rowVals[i]
		}
		cols[i] = &Series{DType: src.DType, Cells: cells}
	}

	for _, pv := range spec.Values {
		src := df.Col(pv.Header)
		for _, agg := range pv.Aggs {
			for _, ck := range colOrder {
				name := flatHeader(pv.Header, agg, colVals[ck])
				cells := make([]values.Value, len(rowOrder))
				for j, rk := range rowOrder {
					rows := groups[rk].rows[ck]
					var sub []values.Value
					for _, ri := range rows {
						sub = append(sub, src.Cells[ri])
					}
					cells[j] = Aggregate(agg, sub)
				}
				for n := 1; ; n++ {
					dup := false
					for _, h := range headers {
						if h == name {
							dup = true
							break
						}
					}
					if !dup {
						break
					}
					name = name + " " + strings.Repeat("_", n)
				}
				headers = append(headers, name)
				cols = append(cols, &Series{DType: commonDType(cells), Cells: cells})
			}
		}
	}

	return &DataFrame{Headers: headers, Cols: cols, Index: defaultIndex(len(rowOrder))}, nil
}

func flatHeader(valueHeader string, agg AggFunc, colVals []values.Value) string {
	parts := []string{valueHeader, string(agg)}
	for _, cv := range colVals {
		parts = append(parts, cv.String())
	}
	return strings.Join(parts, " ")
}
