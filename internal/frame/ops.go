package frame

import (
	"regexp"
	"strconv"

	"sheetflow/internal/errs"
	"sheetflow/internal/values"
)

// Column-level edits. These mutate the receiver; callers Copy first when
// the frame belongs to a committed state.

// InsertColumn places a new column at pos (clamped to the column range).
func (df *DataFrame) InsertColumn(pos int, header string, s *Series) error {
	if df.ColIndex(header) >= 0 {
		return errs.UserConfig("duplicate_header", "a column named %q already exists", header)
	}
	if len(s.Cells) != df.NumRows() && df.NumCols() > 0 {
		return errs.Invariant("frame_shape",
			"new column %q has %d rows, frame has %d", header, len(s.Cells), df.NumRows())
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(df.Cols) {
		pos = len(df.Cols)
	}
	df.Headers = append(df.Headers[:pos], append([]string{header}, df.Headers[pos:]...)...)
	df.Cols = append(df.Cols[:pos], append([]*Series{s}, df.Cols[pos:]...)...)
	if df.NumCols() == 1 {
		df.Index = defaultIndex(len(s.Cells))
	}
	return nil
}

// DropColumns removes the named columns; unknown headers are ignored.
func (df *DataFrame) DropColumns(headers []string) {
	drop := make(map[string]bool, len(headers))
	for _, h := range headers {
		drop[h] = true
	}
	var outH []string
	var outC []*Series
	for i, h := range df.Headers {
		if !drop[h] {
			outH = append(outH, h)
			outC = append(outC, df.Cols[i])
		}
	}
	df.Headers, df.Cols = outH, outC
}

// RenameColumn renames old to new.
func (df *DataFrame) RenameColumn(old, new string) error {
	i := df.ColIndex(old)
	if i < 0 {
		return errs.UserConfig("column_not_found", "no column named %q", old)
	}
	if old != new && df.ColIndex(new) >= 0 {
		return errs.UserConfig("duplicate_header", "a column named %q already exists", new)
	}
	df.Headers[i] = new
	return nil
}

// ReorderColumn moves header to position newIdx.
func (df *DataFrame) ReorderColumn(header string, newIdx int) error {
	i := df.ColIndex(header)
	if i < 0 {
		return errs.UserConfig("column_not_found", "no column named %q", header)
	}
	if newIdx < 0 {
		newIdx = 0
	}
	if newIdx >= len(df.Cols) {
		newIdx = len(df.Cols) - 1
	}
	h, c := df.Headers[i], df.Cols[i]
	df.Headers = append(df.Headers[:i], df.Headers[i+1:]...)
	df.Cols = append(df.Cols[:i], df.Cols[i+1:]...)
	df.Headers = append(df.Headers[:newIdx], append([]string{h}, df.Headers[newIdx:]...)...)
	df.Cols = append(df.Cols[:newIdx], append([]*Series{c}, df.Cols[newIdx:]...)...)
	return nil
}

// SetCell writes a value at (row label, header).
func (df *DataFrame) SetCell(label values.Value, header string, v values.Value) error {
	ci := df.ColIndex(header)
	if ci < 0 {
		return errs.UserConfig("column_not_found", "no column named %q", header)
	}
	ri := df.RowPosForLabel(label)
	if ri < 0 {
		return errs.UserConfig("row_not_found", "no row with label %v", label)
	}
	df.Cols[ci].Cells[ri] = v
	return nil
}

// FillNaN replaces missing cells in the named columns with v. An empty
// header list means every column.
func (df *DataFrame) FillNaN(headers []string, v values.Value) {
	target := headers
	if len(target) == 0 {
		target = df.Headers
	}
	for _, h := range target {
		col := df.Col(h)
		if col == nil {
			continue
		}
		for i, cell := range col.Cells {
			if values.IsNaNLike(cell) {
				col.Cells[i] = v
			}
		}
	}
}

// DeleteRowsByLabel removes the rows with the given labels.
func (df *DataFrame) DeleteRowsByLabel(labels []values.Value) {
	doomed := func(l values.Value) bool {
		for _, d := range labels {
			if l.Equal(d) {
				return true
			}
		}
		return false
	}
	keep := make([]bool, df.NumRows())
	for i, l := range df.Index {
		keep[i] = !doomed(l)
	}
	df.applyRowMask(keep)
}

func (df *DataFrame) applyRowMask(keep []bool) {
	var idx []values.Value
	for i, k := range keep {
		if k {
			idx = append(idx, df.Index[i])
		}
	}
	for _, col := range df.Cols {
		var cells []values.Value
		for i, k := range keep {
			if k {
				cells = append(cells, col.Cells[i])
			}
		}
		col.Cells = cells
	}
	df.Index = idx
}

// PromoteRowToHeader replaces the headers with the string forms of the
// row at label and removes that row. Callers deduplicate afterwards.
func (df *DataFrame) PromoteRowToHeader(label values.Value) ([]string, error) {
	ri := df.RowPosForLabel(label)
	if ri < 0 {
		return nil, errs.UserConfig("row_not_found", "no row with label %v", label)
	}
	raw := make([]string, len(df.Cols))
	for c, col := range df.Cols {
		raw[c] = col.Cells[ri].String()
	}
	keep := make([]bool, df.NumRows())
	for i := range keep {
		keep[i] = i != ri
	}
	df.applyRowMask(keep)
	return raw, nil
}

// ResetIndex renumbers rows 0..n-1. With drop=false the old labels are
// kept as a leading "index" column.
func (df *DataFrame) ResetIndex(drop bool) {
	if !drop {
		old := make([]values.Value, len(df.Index))
		copy(old, df.Index)
		header := "index"
		for n := 0; df.ColIndex(header) >= 0; n++ {
			header = "level_" + strconv.Itoa(n)
		}
		dtype := values.TypeInt
		if len(old) > 0 {
			dtype = old[0].Kind()
		}
		_ = df.InsertColumn(0, header, &Series{DType: dtype, Cells: old})
	}
	df.Index = defaultIndex(df.NumRows())
}

// Transpose flips the frame: row labels become headers, headers become
// row labels.
func (df *DataFrame) Transpose() *DataFrame {
	headers := make([]string, df.NumRows())
	for i, l := range df.Index {
		headers[i] = l.String()
	}
	headers = dedupeLocal(headers)
	cols := make([]*Series, len(headers))
	for i := range headers {
		cells := make([]values.Value, df.NumCols())
		for c, col := range df.Cols {
			cells[c] = col.Cells[i]
		}
		cols[i] = &Series{DType: commonDType(cells), Cells: cells}
	}
	idx := make([]values.Value, df.NumCols())
	for c, h := range df.Headers {
		idx[c] = values.String(h)
	}
	return &DataFrame{Headers: headers, Cols: cols, Index: idx}
}

func dedupeLocal(headers []string) []string {
	seen := make(map[string]int, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			out[i] = h + "." + strconv.Itoa(n)
		} else {
			seen[h] = 1
			out[i] = h
		}
	}
	return out
}

func commonDType(cells []values.Value) values.DType {
	var dt values.DType
	for _, c := range cells {
		if c.IsNull() {
			continue
		}
		if dt == "" {
			dt = c.Kind()
		} else if dt != c.Kind() {
			return values.TypeString
		}
	}
	if dt == "" {
		return values.TypeString
	}
	return dt
}

// ReplaceRegex rewrites matching substrings in the named string columns.
// Non-string columns are replaced only on whole-cell string-form matches
// that still parse back into the column's dtype.
func (df *DataFrame) ReplaceRegex(re *regexp.Regexp, replacement string, headers []string) {
	target := headers
	if len(target) == 0 {
		target = df.Headers
	}
	for _, h := range target {
		col := df.Col(h)
		if col == nil {
			continue
		}
		for i, cell := range col.Cells {
			if cell.IsNull() {
				continue
			}
			if col.DType == values.TypeString {
				col.Cells[i] = values.String(re.ReplaceAllString(cell.Str(), replacement))
				continue
			}
			replaced := re.ReplaceAllString(cell.String(), replacement)
			if replaced == cell.String() {
				continue
			}
			if v, ok := values.Cast(values.String(replaced), col.DType); ok {
				col.Cells[i] = v
			}
		}
	}
}

// UniqueValues returns the distinct values of a column in first-seen
// order. Nulls collapse to a single entry.
func (df *DataFrame) UniqueValues(header string) []values.Value {
	col := df.Col(header)
	if col == nil {
		return nil
	}
	var out []values.Value
	for _, v := range col.Cells {
		dup := false
		for _, u := range out {
			if u.Equal(v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

// OneHot appends an indicator column per distinct value of header.
func (df *DataFrame) OneHot(header string) error {
	col := df.Col(header)
	if col == nil {
		return errs.UserConfig("column_not_found", "no column named %q", header)
	}
	uniques := df.UniqueValues(header)
	pos := df.ColIndex(header) + 1
	for _, u := range uniques {
		if u.IsNull() {
			continue
		}
		cells := make([]values.Value, df.NumRows())
		for i, v := range col.Cells {
			cells[i] = values.Bool(v.Equal(u))
		}
		name := u.String()
		for df.ColIndex(name) >= 0 {
			name += "_"
		}
		if err := df.InsertColumn(pos, name, &Series{DType: values.TypeBool, Cells: cells}); err != nil {
			return err
		}
		pos++
	}
	return nil
}
