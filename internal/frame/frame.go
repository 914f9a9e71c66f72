// Package frame implements the in-memory tabular data structure the
// pipeline edits: ordered typed columns over a labeled row index, with
// the reshaping operations steps need (sort, filter, merge, concat,
// pivot, melt, transpose, dedupe).
package frame

import (
	"sheetflow/internal/errs"
	"sheetflow/internal/values"
)

// Series is one column: a dtype plus its cells.
type Series struct {
	DType values.DType
	Cells []values.Value
}

// NewSeries builds a column from cells, trusting the declared dtype.
func NewSeries(dtype values.DType, cells []values.Value) *Series {
	return &Series{DType: dtype, Cells: cells}
}

// Repeat builds a column of n copies of v.
func Repeat(v values.Value, n int) *Series {
	cells := make([]values.Value, n)
	for i := range cells {
		cells[i] = v
	}
	return &Series{DType: v.Kind(), Cells: cells}
}

// Copy deep-copies the series.
func (s *Series) Copy() *Series {
	cells := make([]values.Value, len(s.Cells))
	copy(cells, s.Cells)
	return &Series{DType: s.DType, Cells: cells}
}

// DataFrame is an ordered collection of named columns over a row index.
// Headers and Cols are aligned; Index holds row labels, which survive
// sorts and filters until a reset-index.
type DataFrame struct {
	Headers []string
	Cols    []*Series
	Index   []values.Value
}

// New builds a dataframe, validating that headers, columns, and rows
// line up. The index defaults to 0..n-1.
func New(headers []string, cols []*Series) (*DataFrame, error) {
	if len(headers) != len(cols) {
		return nil, errs.Invariant("frame_shape",
			"%d headers but %d columns", len(headers), len(cols))
	}
	n := -1
	for i, c := range cols {
		if n == -1 {
			n = len(c.Cells)
		} else if len(c.Cells) != n {
			return nil, errs.Invariant("frame_shape",
				"column %q has %d rows, expected %d", headers[i], len(c.Cells), n)
		}
	}
	if n == -1 {
		n = 0
	}
	seen := make(map[string]bool, len(headers))
	for _, h := range headers {
		if seen[h] {
			return nil, errs.Invariant("frame_shape", "duplicate header %q", h)
		}
		seen[h] = true
	}
	return &DataFrame{Headers: headers, Cols: cols, Index: defaultIndex(n)}, nil
}

// Empty returns a dataframe with no columns and no rows.
func Empty() *DataFrame {
	return &DataFrame{}
}

func defaultIndex(n int) []values.Value {
	idx := make([]values.Value, n)
	for i := range idx {
		idx[i] = values.Int(int64(i))
	}
	return idx
}

// NumRows reports the row count.
func (df *DataFrame) NumRows() int {
	return len(df.Index)
}

// NumCols reports the column count.
func (df *DataFrame) NumCols() int {
	return len(df.Cols)
}

// ColIndex returns the position of header, or -1.
func (df *DataFrame) ColIndex(header string) int {
	for i, h := range df.Headers {
		if h == header {
			return i
		}
	}
	return -1
}

// Col returns the series for header, or nil.
func (df *DataFrame) Col(header string) *Series {
	if i := df.ColIndex(header); i >= 0 {
		return df.Cols[i]
	}
	return nil
}

// Copy deep-copies the dataframe. Steps never mutate a previous state's
// frames; they copy first.
func (df *DataFrame) Copy() *DataFrame {
	headers := make([]string, len(df.Headers))
	copy(headers, df.Headers)
	cols := make([]*Series, len(df.Cols))
	for i, c := range df.Cols {
		cols[i] = c.Copy()
	}
	idx := make([]values.Value, len(df.Index))
	copy(idx, df.Index)
	return &DataFrame{Headers: headers, Cols: cols, Index: idx}
}

// Row materializes row i (positional) across all columns.
func (df *DataFrame) Row(i int) []values.Value {
	out := make([]values.Value, len(df.Cols))
	for c, col := range df.Cols {
		out[c] = col.Cells[i]
	}
	return out
}

// RowPosForLabel finds the position of a row label, or -1.
func (df *DataFrame) RowPosForLabel(label values.Value) int {
	for i, l := range df.Index {
		if l.Equal(label) {
			return i
		}
	}
	return -1
}

// Equal reports structural equality: same headers, dtypes, index, and
// cell values.
func (df *DataFrame) Equal(o *DataFrame) bool {
	if df.NumCols() != o.NumCols() || df.NumRows() != o.NumRows() {
		return false
	}
	for i, h := range df.Headers {
		if o.Headers[i] != h {
			return false
		}
		if df.Cols[i].DType != o.Cols[i].DType {
			return false
		}
		for j, v := range df.Cols[i].Cells {
			if !v.Equal(o.Cols[i].Cells[j]) {
				return false
			}
		}
	}
	for i, l := range df.Index {
		if !l.Equal(o.Index[i]) {
			return false
		}
	}
	return true
}

// FromRecords builds a dataframe from headers and row-major raw strings,
// inferring each column's dtype. Used by the CSV and Excel importers.
func FromRecords(headers []string, rows [][]string) (*DataFrame, error) {
	headers = append([]string(nil), headers...)
	cols := make([]*Series, len(headers))
	for c := range headers {
		raw := make([]string, len(rows))
		for r := range rows {
			if c < len(rows[r]) {
				raw[r] = rows[r][c]
			}
		}
		cols[c] = seriesFromStrings(raw)
	}
	return New(headers, cols)
}

func seriesFromStrings(raw []string) *Series {
	dtype := values.InferDType(raw)
	cells := make([]values.Value, len(raw))
	for i, s := range raw {
		cells[i] = cellFromString(s, dtype)
	}
	if dtype == values.TypeDatetime {
		layout := values.InferDatetimeFormat(raw)
		for i, s := range raw {
			if t, ok := values.ParseDatetime(s, layout); ok {
				cells[i] = values.Datetime(t)
			} else {
				cells[i] = values.Null(values.TypeDatetime)
			}
		}
	}
	return &Series{DType: dtype, Cells: cells}
}

func cellFromString(s string, dtype values.DType) values.Value {
	if s == "" || s == values.NaNPlaceholder {
		return values.Null(dtype)
	}
	v, ok := values.Cast(values.String(s), dtype)
	if !ok {
		return values.Null(dtype)
	}
	return v
}
