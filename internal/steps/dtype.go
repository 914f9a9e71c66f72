package steps

import (
	"fmt"

	"sheetflow/internal/chunks"
	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

func init() {
	register(changeColumnDtype{}, "column_ids")
}

// change-column-dtype casts one or more columns to a new declared type.
// Cells that do not survive the cast become missing, matching how the
// importers treat unparseable raw text.
type changeColumnDtype struct{}

func (changeColumnDtype) Type() string    { return "change_column_dtype" }
func (changeColumnDtype) Version() int    { return 4 }
func (changeColumnDtype) Refinable() bool { return true }

func (changeColumnDtype) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colIDs, err := p.StrList("column_ids")
	if err != nil {
		return nil, nil, err
	}
	newDtype := values.DType(p.StrOr("new_dtype", ""))
	if !castableDtype(newDtype) {
		return nil, nil, errs.UserConfig("bad_dtype",
			"cannot change a column to type %q", newDtype)
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	headers := make([]string, len(colIDs))
	oldDtypes := make([]values.DType, len(colIDs))
	for i, id := range colIDs {
		h, err := meta.Columns.HeaderFor(id)
		if err != nil {
			return nil, nil, err
		}
		headers[i] = h
		col := df.Col(h)
		oldDtypes[i] = col.DType
		castSeries(col, newDtype)
		meta.DTypes[id] = newDtype
	}
	if err := recomputeDownstream(df, meta, headers); err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"headers": headers, "old_dtypes": oldDtypes}, nil
}

func (changeColumnDtype) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	headers, _ := step.ExecData["headers"].([]string)
	newDtype := values.DType(step.Params.StrOr("new_dtype", ""))

	lines := make([]string, len(headers))
	var imports []string
	for i, h := range headers {
		expr, extra := castExpr(dfName, h, newDtype)
		lines[i] = fmt.Sprintf("%s[%s] = %s", dfName, values.PyString(h), expr)
		imports = append(imports, extra...)
	}
	out := []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Changed dtype",
		Desc: fmt.Sprintf("Changed %d columns of %s to %s", len(headers), dfName, newDtype),
		Lines: lines,
		Imp:   imports,
		Edited: []int{sheet},
	}}
	return append(out, downstreamChunks(step, sheet, headers)...)
}

func castableDtype(dt values.DType) bool {
	switch dt {
	case values.TypeString, values.TypeInt, values.TypeFloat, values.TypeBool,
		values.TypeDatetime, values.TypeTimedelta:
		return true
	}
	return false
}

func castSeries(col *frame.Series, to values.DType) {
	for i, v := range col.Cells {
		if v.IsNull() {
			col.Cells[i] = values.Null(to)
			continue
		}
		cast, ok := values.Cast(v, to)
		if !ok {
			cast = values.Null(to)
		}
		col.Cells[i] = cast
	}
	col.DType = to
}

// castExpr renders the pandas conversion for one column, returning the
// expression and any import lines it needs.
func castExpr(dfName, header string, to values.DType) (string, []string) {
	ref := fmt.Sprintf("%s[%s]", dfName, values.PyString(header))
	switch to {
	case values.TypeString:
		return ref + ".astype(str)", nil
	case values.TypeInt:
		return fmt.Sprintf("%s.fillna(0).astype('int64')", ref), nil
	case values.TypeFloat:
		return ref + ".astype('float64')", nil
	case values.TypeBool:
		return ref + ".astype(bool)", nil
	case values.TypeDatetime:
		return fmt.Sprintf("pd.to_datetime(%s, errors='coerce')", ref),
			[]string{"import pandas as pd"}
	case values.TypeTimedelta:
		return fmt.Sprintf("pd.to_timedelta(%s, errors='coerce')", ref),
			[]string{"import pandas as pd"}
	}
	return ref, nil
}
