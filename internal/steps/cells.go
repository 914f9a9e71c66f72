package steps

import (
	"fmt"
	"strings"

	"sheetflow/internal/chunks"
	"sheetflow/internal/columns"
	"sheetflow/internal/errs"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

func init() {
	register(setCellValue{}, "column_id")
	register(fillNaN{}, "column_ids")
	register(deleteRow{})
	register(promoteRowToHeader{})
}

// ---------------------------------------------------------------------
// set-cell-value
// ---------------------------------------------------------------------

// set-cell-value writes one cell, casting the raw text to the column's
// dtype, then re-evaluates every formula column downstream.
type setCellValue struct{}

func (setCellValue) Type() string    { return "set_cell_value" }
func (setCellValue) Version() int    { return 2 }
func (setCellValue) Refinable() bool { return false }

func (setCellValue) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colID, err := p.Str("column_id")
	if err != nil {
		return nil, nil, err
	}
	label, err := p.Value("row_index")
	if err != nil {
		return nil, nil, err
	}
	raw, err := p.Str("new_value")
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	header, err := meta.Columns.HeaderFor(colID)
	if err != nil {
		return nil, nil, err
	}
	if meta.Formulas[colID] != "" {
		return nil, nil, errs.UserConfig("column_has_formula",
			"column %q is formula-driven; edit the formula instead", header)
	}

	col := df.Col(header)
	v, ok := castCell(raw, col.DType)
	if !ok {
		return nil, nil, errs.UserConfig("bad_cell_value",
			"%q is not a valid %s value", raw, col.DType)
	}
	if err := df.SetCell(label, header, v); err != nil {
		return nil, nil, err
	}
	if err := recomputeDownstream(df, meta, []string{header}); err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"header": header, "typed_value": v}, nil
}

func (setCellValue) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	header, _ := step.ExecData["header"].(string)
	v, _ := step.ExecData["typed_value"].(values.Value)
	label, _ := step.Params.Value("row_index")

	out := []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Set cell value",
		Desc: fmt.Sprintf("Set %q at row %s in %s", header, label.String(), dfName),
		Lines: []string{fmt.Sprintf("%s.at[%s, %s] = %s",
			dfName, label.PyLiteral(), values.PyString(header), v.PyLiteral())},
		Edited: []int{sheet},
	}}
	return append(out, downstreamChunks(step, sheet, []string{header})...)
}

// castCell parses raw edit text into a cell of the column's dtype.
// Empty or NaN-marker text clears the cell.
func castCell(raw string, dtype values.DType) (values.Value, bool) {
	if raw == "" || raw == values.NaNPlaceholder {
		return values.Null(dtype), true
	}
	return values.Cast(values.String(raw), dtype)
}

// ---------------------------------------------------------------------
// fill-nan
// ---------------------------------------------------------------------

type fillNaN struct{}

func (fillNaN) Type() string    { return "fill_nan" }
func (fillNaN) Version() int    { return 3 }
func (fillNaN) Refinable() bool { return true }

func (fillNaN) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colIDs, err := p.StrList("column_ids")
	if err != nil {
		return nil, nil, err
	}
	fill, err := p.Value("fill_value")
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	headers := make([]string, len(colIDs))
	for i, id := range colIDs {
		h, err := meta.Columns.HeaderFor(id)
		if err != nil {
			return nil, nil, err
		}
		headers[i] = h
	}
	df.FillNaN(headers, fill)
	if err := recomputeDownstream(df, meta, headers); err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"headers": headers}, nil
}

func (fillNaN) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	headers, _ := step.ExecData["headers"].([]string)
	fill, _ := step.Params.Value("fill_value")
	cols := quoteHeaders(headers)

	out := []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Filled NaN values",
		Desc: fmt.Sprintf("Filled NaN in %d columns of %s", len(headers), dfName),
		Lines: []string{fmt.Sprintf("%s[[%s]] = %s[[%s]].fillna(%s)",
			dfName, cols, dfName, cols, fill.PyLiteral())},
		Edited: []int{sheet},
	}}
	return append(out, downstreamChunks(step, sheet, headers)...)
}

func quoteHeaders(headers []string) string {
	quoted := make([]string, len(headers))
	for i, h := range headers {
		quoted[i] = values.PyString(h)
	}
	return strings.Join(quoted, ", ")
}

// ---------------------------------------------------------------------
// delete-row
// ---------------------------------------------------------------------

type deleteRow struct{}

func (deleteRow) Type() string    { return "delete_row" }
func (deleteRow) Version() int    { return 2 }
func (deleteRow) Refinable() bool { return false }

func (deleteRow) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	rawLabels, ok := p["labels"].([]any)
	if !ok {
		return nil, nil, badParam("labels", "a list of row labels")
	}
	labels := make([]values.Value, len(rawLabels))
	for i, l := range rawLabels {
		labels[i] = anyToValue(l)
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	df.DeleteRowsByLabel(labels)
	if err := recomputeDownstream(df, meta, df.Headers); err != nil {
		return nil, nil, err
	}
	return ns, nil, nil
}

func (deleteRow) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	rawLabels, _ := step.Params["labels"].([]any)
	lits := make([]string, len(rawLabels))
	for i, l := range rawLabels {
		lits[i] = anyToValue(l).PyLiteral()
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Deleted rows",
		Desc: fmt.Sprintf("Deleted %d rows from %s", len(lits), dfName),
		Lines: []string{fmt.Sprintf("%s.drop(labels=[%s], inplace=True)",
			dfName, strings.Join(lits, ", "))},
		Edited: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// promote-row-to-header
// ---------------------------------------------------------------------

// promote-row-to-header replaces the headers with a row's values and
// drops the row. Column identity does not survive a wholesale header
// rewrite, so the registry is rebuilt and formulas are discarded.
type promoteRowToHeader struct{}

func (promoteRowToHeader) Type() string    { return "promote_row_to_header" }
func (promoteRowToHeader) Version() int    { return 2 }
func (promoteRowToHeader) Refinable() bool { return false }

func (promoteRowToHeader) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	label, err := p.Value("row_index")
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	raw, err := df.PromoteRowToHeader(label)
	if err != nil {
		return nil, nil, err
	}
	headers := columns.DeduplicateHeaders(raw)
	for i, h := range headers {
		df.Headers[i] = h
	}
	if err := resetColumnTracking(meta, headers); err != nil {
		return nil, nil, err
	}
	return ns, nil, nil
}

func (promoteRowToHeader) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	label, _ := step.Params.Value("row_index")
	lit := label.PyLiteral()
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Promoted row to header",
		Desc: fmt.Sprintf("Used row %s as the headers of %s", label.String(), dfName),
		Lines: []string{
			fmt.Sprintf("%s.columns = %s.loc[%s].astype(str)", dfName, dfName, lit),
			fmt.Sprintf("%s.drop(labels=[%s], inplace=True)", dfName, lit),
		},
		Edited: []int{sheet},
	}}
}
