package steps

import (
	"sheetflow/internal/chunks"
	"sheetflow/internal/formula"
	"sheetflow/internal/state"
)

func init() {
	register(setColumnFormula{}, "column_id")
}

// set-column-formula writes a formula onto a column, re-evaluating it
// and everything downstream of it.
type setColumnFormula struct{}

func (setColumnFormula) Type() string    { return "set_column_formula" }
func (setColumnFormula) Version() int    { return 2 }
func (setColumnFormula) Refinable() bool { return true }

func (setColumnFormula) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colID, err := p.Str("column_id")
	if err != nil {
		return nil, nil, err
	}
	text, err := p.Str("new_formula")
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	if err := applyFormula(df, meta, colID, text); err != nil {
		return nil, nil, err
	}
	header, err := meta.Columns.HeaderFor(colID)
	if err != nil {
		return nil, nil, err
	}
	if err := recomputeDownstream(df, meta, []string{header}); err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"header": header}, nil
}

func (setColumnFormula) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	colID := step.Params.StrOr("column_id", "")
	text := step.Params.StrOr("new_formula", "")
	meta := step.Post.Metas[sheet]
	dfName := meta.DFName
	header, _ := step.ExecData["header"].(string)

	node, err := formula.Parse(text, postHeaderSet(step.Post, sheet))
	if err != nil {
		// Execute already validated the text; an error here means the
		// step was never committed.
		return nil
	}
	emitted := formula.Emit(node, dfName)

	out := []chunks.Chunk{&chunks.SetFormulaChunk{
		Base:       chunks.Base{Prev: step.Prev, Post: step.Post},
		SheetIndex: sheet,
		DFName:     dfName,
		ColumnID:   colID,
		Header:     header,
		Expr:       emitted.Expr,
		Imp:        emitted.Imports,
		Help:       emitted.Helpers,
	}}

	return append(out, downstreamChunks(step, sheet, []string{header})...)
}

// downstreamChunks re-emits the assignment of every formula column
// downstream of the changed headers, so the script reproduces the
// in-session recomputation.
func downstreamChunks(step *Step, sheet int, changed []string) []chunks.Chunk {
	meta := step.Post.Metas[sheet]
	var out []chunks.Chunk
	for _, downHeader := range meta.Deps.Downstream(changed) {
		downID, err := meta.Columns.IDFor(downHeader)
		if err != nil {
			continue
		}
		downText := meta.Formulas[downID]
		if downText == "" {
			continue
		}
		downNode, err := formula.Parse(downText, postHeaderSet(step.Post, sheet))
		if err != nil {
			continue
		}
		downEmit := formula.Emit(downNode, meta.DFName)
		out = append(out, &chunks.SetFormulaChunk{
			Base:       chunks.Base{Prev: step.Prev, Post: step.Post},
			SheetIndex: sheet,
			DFName:     meta.DFName,
			ColumnID:   downID,
			Header:     downHeader,
			Expr:       downEmit.Expr,
			Imp:        downEmit.Imports,
			Help:       downEmit.Helpers,
		})
	}
	return out
}

func postHeaderSet(s *state.State, sheet int) map[string]bool {
	m := make(map[string]bool)
	for _, h := range s.DFs[sheet].Headers {
		m[h] = true
	}
	return m
}
