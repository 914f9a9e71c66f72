package steps

import (
	"sheetflow/internal/columns"
	"sheetflow/internal/errs"
	"sheetflow/internal/formula"
	"sheetflow/internal/frame"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

func headerSet(df *frame.DataFrame) map[string]bool {
	m := make(map[string]bool, len(df.Headers))
	for _, h := range df.Headers {
		m[h] = true
	}
	return m
}

// applyFormula parses, cycle-checks, and evaluates a formula onto its
// column, recording the text and the dependency edges. df and meta must
// already be the successor's mutable copies.
func applyFormula(df *frame.DataFrame, meta *state.SheetMeta, colID, text string) error {
	header, err := meta.Columns.HeaderFor(colID)
	if err != nil {
		return err
	}
	node, err := formula.Parse(text, headerSet(df))
	if err != nil {
		return err
	}

	refs := formula.ReferencedHeaders(node)
	meta.Deps.Set(header, refs)
	if err := meta.Deps.CheckCycles(); err != nil {
		meta.Deps.Remove(header)
		return err
	}

	if err := evalOnto(df, header, node); err != nil {
		return err
	}
	meta.Formulas[colID] = text
	return nil
}

// recomputeDownstream re-evaluates every formula column downstream of
// the changed headers, in dependency order. Any failure aborts the
// whole step.
func recomputeDownstream(df *frame.DataFrame, meta *state.SheetMeta, changed []string) error {
	for _, header := range meta.Deps.Downstream(changed) {
		colID, err := meta.Columns.IDFor(header)
		if err != nil {
			return err
		}
		text := meta.Formulas[colID]
		if text == "" {
			continue
		}
		node, err := formula.Parse(text, headerSet(df))
		if err != nil {
			return err
		}
		if err := evalOnto(df, header, node); err != nil {
			return err
		}
	}
	return nil
}

func evalOnto(df *frame.DataFrame, header string, node formula.Node) error {
	cells, dtype, err := formula.Evaluate(node, df)
	if err != nil {
		return err
	}
	idx := df.ColIndex(header)
	if idx < 0 {
		return errs.Invariant("formula_target_missing",
			"formula target column %q does not exist", header)
	}
	df.Cols[idx] = frame.NewSeries(dtype, cells)
	return nil
}

// dropFormulaTracking clears formula state for a removed column.
func dropFormulaTracking(meta *state.SheetMeta, colID, header string) {
	delete(meta.Formulas, colID)
	meta.Deps.Remove(header)
}

// resetColumnTracking rebuilds the column registry after an operation
// that rewrote the headers wholesale (promote-row, transpose, pivot,
// melt). Per-column state keyed by the old IDs is discarded with them.
func resetColumnTracking(meta *state.SheetMeta, headers []string) error {
	reg, err := columns.NewRegistry(headers)
	if err != nil {
		return err
	}
	meta.Columns = reg
	meta.Formulas = make(map[string]string)
	meta.Deps = formula.NewDepGraph()
	meta.DTypes = make(map[string]values.DType)
	meta.Formats = make(map[string]state.ColumnFormat)
	meta.Filters = make(map[string]state.FilterGroup)
	return nil
}
