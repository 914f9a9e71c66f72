package steps

import (
	"fmt"
	"strings"

	"sheetflow/internal/chunks"
	"sheetflow/internal/errs"
	"sheetflow/internal/formula"
	"sheetflow/internal/frame"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

func init() {
	register(addColumn{})
	register(deleteColumn{}, "column_ids")
	register(renameColumn{}, "column_id")
	register(reorderColumn{}, "column_id")
}

// ---------------------------------------------------------------------
// add-column
// ---------------------------------------------------------------------

type addColumn struct{}

func (addColumn) Type() string    { return "add_column" }
func (addColumn) Version() int    { return 2 }
func (addColumn) Refinable() bool { return false }

func (addColumn) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	header, err := p.Str("column_header")
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	if df.ColIndex(header) >= 0 {
		return nil, nil, errs.UserConfig("duplicate_column",
			"%s already has a column %q", meta.DFName, header)
	}

	pos := p.IntOr("column_header_index", df.NumCols())
	if pos < 0 || pos > df.NumCols() {
		pos = df.NumCols()
	}
	zeros := frame.Repeat(values.Int(0), df.NumRows())
	if err := df.InsertColumn(pos, header, zeros); err != nil {
		return nil, nil, err
	}
	colID, err := meta.Columns.Add(header)
	if err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"column_id": colID, "column_index": pos}, nil
}

func (addColumn) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	colID, _ := step.ExecData["column_id"].(string)
	pos, _ := step.ExecData["column_index"].(int)
	return []chunks.Chunk{&chunks.AddColumnChunk{
		Base:       chunks.Base{Prev: step.Prev, Post: step.Post},
		SheetIndex: sheet,
		DFName:     step.Prev.Metas[sheet].DFName,
		ColumnID:   colID,
		Header:     step.Params.StrOr("column_header", ""),
		Pos:        pos,
	}}
}

// ---------------------------------------------------------------------
// delete-column
// ---------------------------------------------------------------------

type deleteColumn struct{}

func (deleteColumn) Type() string    { return "delete_column" }
func (deleteColumn) Version() int    { return 3 }
func (deleteColumn) Refinable() bool { return false }

func (deleteColumn) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colIDs, err := p.StrList("column_ids")
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
	// Columns still referenced by another column's formula must stay.
	for _, h := range headers {
		for formulaCol, refs := range dependentsOf(meta, h) {
			if !contains(headers, formulaCol) {
				return nil, nil, errs.UserConfig("column_in_use",
					"cannot delete %q: column %q references it (%s)", h, formulaCol, refs)
			}
		}
	}

	df.DropColumns(headers)
	for i, id := range colIDs {
		dropFormulaTracking(meta, id, headers[i])
	}
	meta.Columns.Drop(headers)
	return ns, map[string]any{"deleted_headers": headers}, nil
}

func (deleteColumn) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	headers, _ := step.ExecData["deleted_headers"].([]string)
	quoted := make([]string, len(headers))
	for i, h := range headers {
		quoted[i] = values.PyString(h)
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Deleted columns",
		Desc: fmt.Sprintf("Deleted %d columns from %s", len(headers), dfName),
		Lines: []string{fmt.Sprintf("%s.drop([%s], axis=1, inplace=True)",
			dfName, strings.Join(quoted, ", "))},
		Edited: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// rename-column
// ---------------------------------------------------------------------

type renameColumn struct{}

func (renameColumn) Type() string    { return "rename_column" }
func (renameColumn) Version() int    { return 2 }
func (renameColumn) Refinable() bool { return false }

func (renameColumn) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colID, err := p.Str("column_id")
	if err != nil {
		return nil, nil, err
	}
	newHeader, err := p.Str("new_column_header")
	if err != nil {
		return nil, nil, err
	}
	if newHeader == "" {
		return nil, nil, errs.UserConfig("empty_header", "the new column name cannot be empty")
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	oldHeader, err := meta.Columns.HeaderFor(colID)
	if err != nil {
		return nil, nil, err
	}
	if oldHeader == newHeader {
		return ns, map[string]any{"old_header": oldHeader}, nil
	}
	if df.ColIndex(newHeader) >= 0 {
		return nil, nil, errs.UserConfig("duplicate_column",
			"%s already has a column %q", meta.DFName, newHeader)
	}

	if err := df.RenameColumn(oldHeader, newHeader); err != nil {
		return nil, nil, err
	}
	if err := meta.Columns.Rename(colID, newHeader); err != nil {
		return nil, nil, err
	}
	if err := renameInFormulas(df, meta, oldHeader, newHeader); err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"old_header": oldHeader}, nil
}

func (renameColumn) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	colID := step.Params.StrOr("column_id", "")
	oldHeader, _ := step.ExecData["old_header"].(string)
	return []chunks.Chunk{&chunks.RenameColumnsChunk{
		Base:       chunks.Base{Prev: step.Prev, Post: step.Post},
		SheetIndex: sheet,
		DFName:     step.Prev.Metas[sheet].DFName,
		ColumnIDs:  []string{colID},
		OldNames:   []string{oldHeader},
		NewNames:   []string{step.Params.StrOr("new_column_header", oldHeader)},
	}}
}

// ---------------------------------------------------------------------
// reorder-column
// ---------------------------------------------------------------------

type reorderColumn struct{}

func (reorderColumn) Type() string    { return "reorder_column" }
func (reorderColumn) Version() int    { return 2 }
func (reorderColumn) Refinable() bool { return false }

func (reorderColumn) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colID, err := p.Str("column_id")
	if err != nil {
		return nil, nil, err
	}
	newIdx, err := p.Int("new_column_index")
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
	if err := df.ReorderColumn(header, newIdx); err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"header": header}, nil
}

func (reorderColumn) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	header, _ := step.ExecData["header"].(string)
	newIdx := step.Params.IntOr("new_column_index", 0)
	py := values.PyString(header)
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Reordered column",
		Desc: fmt.Sprintf("Moved %q to position %d in %s", header, newIdx, dfName),
		Lines: []string{
			fmt.Sprintf("%s_columns = [col for col in %s.columns if col != %s]", dfName, dfName, py),
			fmt.Sprintf("%s_columns.insert(%d, %s)", dfName, newIdx, py),
			fmt.Sprintf("%s = %s[%s_columns]", dfName, dfName, dfName),
		},
		Edited: []int{sheet},
	}}
}

// renameInFormulas rewrites stored formula texts that reference a
// renamed column. The dependency graph is keyed by header, so its edges
// move too.
func renameInFormulas(df *frame.DataFrame, meta *state.SheetMeta, oldHeader, newHeader string) error {
	// The universe formulas were written against still had the old name.
	universe := headerSet(df)
	delete(universe, newHeader)
	universe[oldHeader] = true

	for colID, text := range meta.Formulas {
		node, err := formula.Parse(text, universe)
		if err != nil {
			return err
		}
		if !contains(formula.ReferencedHeaders(node), oldHeader) {
			continue
		}
		rewritten, err := formula.RenameHeader(text, universe, oldHeader, newHeader)
		if err != nil {
			return err
		}
		meta.Formulas[colID] = rewritten
	}
	meta.Deps.RenameNode(oldHeader, newHeader)
	return nil
}

func dependentsOf(meta *state.SheetMeta, header string) map[string]string {
	out := map[string]string{}
	for _, col := range meta.Deps.Columns() {
		if contains(meta.Deps.Refs(col), header) {
			out[col] = header
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
