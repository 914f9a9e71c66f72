// Package api implements the read-only introspection surface shells
// call: the shared-state blob they render, and the query handlers for
// dtypes, summary statistics, search, importable files, and warehouse
// catalogs.
package api

import (
	"sheetflow/internal/frame"
	"sheetflow/internal/manager"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

// defaultPageRows caps how many rows a sheet contributes to one
// shared-state payload when the shell does not ask for a limit.
const defaultPageRows = 1500

// ColumnJSON is one column of a rendered sheet.
type ColumnJSON struct {
	ID      string              `json:"column_id"`
	Header  string              `json:"column_header"`
	DType   string              `json:"column_dtype"`
	Formula string              `json:"column_formula,omitempty"`
	Format  *state.ColumnFormat `json:"column_format,omitempty"`
}

// SheetJSON is the paginated JSON form of one sheet.
type SheetJSON struct {
	DFName    string                `json:"df_name"`
	Source    state.Source          `json:"df_source"`
	Columns   []ColumnJSON          `json:"columns"`
	RowOffset int                   `json:"row_offset"`
	TotalRows int                   `json:"total_rows"`
	Index     []values.Value        `json:"index"`
	Rows      [][]values.Value      `json:"rows"`
	DFFormat  state.DataframeFormat `json:"df_format"`
}

// SharedState is the blob shells render after every message.
type SharedState struct {
	AnalysisName           string                `json:"analysis_name"`
	PublicInterfaceVersion int                   `json:"public_interface_version"`
	RenderCount            int                   `json:"render_count"`
	CursorIndex            int                   `json:"curr_step_idx"`
	Sheets                 []SheetJSON           `json:"sheets"`
	Graphs                 []*state.GraphData    `json:"graphs"`
	Steps                  []manager.StepSummary `json:"steps"`
}

// BuildSharedState renders the manager's current state with row
// pagination. Offset skips rows in every sheet; limit caps rows per
// sheet, defaulting to a renderable page.
func BuildSharedState(m *manager.Manager, offset, limit int) *SharedState {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageRows
	}
	st := m.CurrState()
	out := &SharedState{
		AnalysisName:           m.AnalysisName(),
		PublicInterfaceVersion: manager.PublicInterfaceVersion,
		RenderCount:            m.RenderCount(),
		CursorIndex:            m.CursorIndex(),
		Graphs:                 st.Graphs,
		Steps:                  m.StepSummaries(),
	}
	for i, df := range st.DFs {
		out.Sheets = append(out.Sheets, buildSheet(df, st.Metas[i], offset, limit))
	}
	return out
}

func buildSheet(df *frame.DataFrame, meta *state.SheetMeta, offset, limit int) SheetJSON {
	sheet := SheetJSON{
		DFName:    meta.DFName,
		Source:    meta.Source,
		RowOffset: offset,
		TotalRows: df.NumRows(),
		DFFormat:  meta.DFFormat,
	}
	for i, h := range df.Headers {
		id, err := meta.Columns.IDFor(h)
		if err != nil {
			id = h
		}
		col := ColumnJSON{
			ID:      id,
			Header:  h,
			DType:   string(columnDType(df.Cols[i], meta, id)),
			Formula: meta.Formulas[id],
		}
		if f, ok := meta.Formats[id]; ok {
			fc := f
			col.Format = &fc
		}
		sheet.Columns = append(sheet.Columns, col)
	}

	end := offset + limit
	if end > df.NumRows() {
		end = df.NumRows()
	}
	for r := offset; r < end; r++ {
		sheet.Index = append(sheet.Index, df.Index[r])
		row := make([]values.Value, len(df.Cols))
		for c, s := range df.Cols {
			row[c] = s.Cells[r]
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

// columnDType prefers the declared dtype override from a
// change-column-dtype step over the stored series dtype.
func columnDType(s *frame.Series, meta *state.SheetMeta, colID string) values.DType {
	if dt, ok := meta.DTypes[colID]; ok {
		return dt
	}
	return s.DType
}
