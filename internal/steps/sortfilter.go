package steps

import (
	"fmt"
	"regexp"
	"strings"

	"sheetflow/internal/chunks"
	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

func init() {
	register(sortStep{}, "column_id")
	register(filterStep{}, "column_id")
	register(bulkFilter{}, "column_id")
	register(dropDuplicates{}, "column_ids")
	register(replaceStep{}, "column_ids")
}

// ---------------------------------------------------------------------
// sort
// ---------------------------------------------------------------------

type sortStep struct{}

func (sortStep) Type() string    { return "sort" }
func (sortStep) Version() int    { return 2 }
func (sortStep) Refinable() bool { return true }

func (sortStep) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colID, err := p.Str("column_id")
	if err != nil {
		return nil, nil, err
	}
	dir := p.StrOr("sort_direction", "ascending")
	if dir != "ascending" && dir != "descending" {
		return nil, nil, errs.UserConfig("bad_sort_direction",
			"sort direction must be ascending or descending, got %q", dir)
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
	if err := df.SortValues([]frame.SortKey{{Header: header, Ascending: dir == "ascending"}}); err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"header": header}, nil
}

func (sortStep) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	header, _ := step.ExecData["header"].(string)
	ascending := step.Params.StrOr("sort_direction", "ascending") == "ascending"
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Sorted column",
		Desc: fmt.Sprintf("Sorted %q in %s", header, dfName),
		Lines: []string{fmt.Sprintf(
			"%s = %s.sort_values(by=%s, ascending=%s, na_position='last')",
			dfName, dfName, values.PyString(header), pyBool(ascending))},
		Edited: []int{sheet},
	}}
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ---------------------------------------------------------------------
// filter
// ---------------------------------------------------------------------

// Filter conditions. Missing cells fail every condition except "empty".
const (
	CondEqual       = "equal"
	CondNotEqual    = "not_equal"
	CondGreater     = "greater"
	CondGreaterEq   = "greater_than_or_equal"
	CondLess        = "less"
	CondLessEq      = "less_than_or_equal"
	CondContains    = "contains"
	CondNotContains = "not_contains"
	CondStartsWith  = "starts_with"
	CondEndsWith    = "ends_with"
	CondBoolTrue    = "boolean_is_true"
	CondBoolFalse   = "boolean_is_false"
	CondEmpty       = "empty"
	CondNotEmpty    = "not_empty"
)

type filterStep struct{}

func (filterStep) Type() string    { return "filter_column" }
func (filterStep) Version() int    { return 4 }
func (filterStep) Refinable() bool { return true }

func (filterStep) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colID, err := p.Str("column_id")
	if err != nil {
		return nil, nil, err
	}
	group, err := filterGroupParam(p)
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
	col := df.Col(header)

	mask := make([]bool, df.NumRows())
	for i, cell := range col.Cells {
		m, err := matchGroup(cell, group)
		if err != nil {
			return nil, nil, err
		}
		mask[i] = m
	}
	ns.DFs[sheet] = df.FilterMask(mask)
	meta.Filters[colID] = group
	return ns, map[string]any{"header": header}, nil
}

func (filterStep) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	header, _ := step.ExecData["header"].(string)
	group, err := filterGroupParam(step.Params)
	if err != nil || len(group.Filters) == 0 {
		return nil
	}

	exprs := make([]string, len(group.Filters))
	for i, c := range group.Filters {
		exprs[i] = filterExpr(dfName, header, c)
	}
	op := " & "
	if strings.EqualFold(group.Operator, "Or") {
		op = " | "
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Filtered column",
		Desc: fmt.Sprintf("Filtered %q in %s", header, dfName),
		Lines: []string{fmt.Sprintf("%s = %s[%s]",
			dfName, dfName, strings.Join(exprs, op))},
		Edited: []int{sheet},
	}}
}

// filterGroupParam decodes the nested filters object.
func filterGroupParam(p Params) (state.FilterGroup, error) {
	obj, err := p.Map("filters")
	if err != nil {
		return state.FilterGroup{}, err
	}
	group := state.FilterGroup{Operator: "And"}
	if op, ok := obj["operator"].(string); ok {
		group.Operator = op
	}
	raw, ok := obj["filters"].([]any)
	if !ok {
		if typed, ok2 := obj["filters"].([]state.FilterClause); ok2 {
			group.Filters = append(group.Filters, typed...)
			return group, nil
		}
		return state.FilterGroup{}, badParam("filters", "an object with a filters list")
	}
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			return state.FilterGroup{}, badParam("filters", "a list of condition objects")
		}
		cond, _ := m["condition"].(string)
		group.Filters = append(group.Filters, state.FilterClause{
			Condition: cond,
			Value:     anyToValue(m["value"]),
		})
	}
	return group, nil
}

func matchGroup(cell values.Value, g state.FilterGroup) (bool, error) {
	if len(g.Filters) == 0 {
		return true, nil
	}
	or := strings.EqualFold(g.Operator, "Or")
	result := !or
	for _, c := range g.Filters {
		m, err := matchClause(cell, c)
		if err != nil {
			return false, err
		}
		if or {
			result = result || m
		} else {
			result = result && m
		}
	}
	return result, nil
}

func matchClause(cell values.Value, c state.FilterClause) (bool, error) {
	switch c.Condition {
	case CondEmpty:
		return cell.IsNull(), nil
	case CondNotEmpty:
		return !cell.IsNull(), nil
	}
	if cell.IsNull() {
		return false, nil
	}
	switch c.Condition {
	case CondEqual:
		return cell.Equal(c.Value), nil
	case CondNotEqual:
		return !cell.Equal(c.Value), nil
	case CondGreater:
		return compareCells(cell, c.Value) > 0, nil
	case CondGreaterEq:
		return compareCells(cell, c.Value) >= 0, nil
	case CondLess:
		return compareCells(cell, c.Value) < 0, nil
	case CondLessEq:
		return compareCells(cell, c.Value) <= 0, nil
	case CondContains:
		return strings.Contains(cell.String(), c.Value.String()), nil
	case CondNotContains:
		return !strings.Contains(cell.String(), c.Value.String()), nil
	case CondStartsWith:
		return strings.HasPrefix(cell.String(), c.Value.String()), nil
	case CondEndsWith:
		return strings.HasSuffix(cell.String(), c.Value.String()), nil
	case CondBoolTrue:
		return cell.Kind() == values.TypeBool && cell.BoolVal(), nil
	case CondBoolFalse:
		return cell.Kind() == values.TypeBool && !cell.BoolVal(), nil
	}
	return false, errs.UserConfig("bad_filter_condition",
		"unknown filter condition %q", c.Condition)
}

func compareCells(a, b values.Value) int {
	if af, aok := a.Float64(); aok {
		if bf, bok := b.Float64(); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return a.Compare(b)
}

// filterExpr renders one clause as a pandas boolean expression.
func filterExpr(dfName, header string, c state.FilterClause) string {
	ref := fmt.Sprintf("%s[%s]", dfName, values.PyString(header))
	lit := c.Value.PyLiteral()
	switch c.Condition {
	case CondEqual:
		return fmt.Sprintf("(%s == %s)", ref, lit)
	case CondNotEqual:
		return fmt.Sprintf("(%s != %s)", ref, lit)
	case CondGreater:
		return fmt.Sprintf("(%s > %s)", ref, lit)
	case CondGreaterEq:
		return fmt.Sprintf("(%s >= %s)", ref, lit)
	case CondLess:
		return fmt.Sprintf("(%s < %s)", ref, lit)
	case CondLessEq:
		return fmt.Sprintf("(%s <= %s)", ref, lit)
	case CondContains:
		return fmt.Sprintf("(%s.str.contains(%s, na=False, regex=False))", ref, lit)
	case CondNotContains:
		return fmt.Sprintf("(~%s.str.contains(%s, na=False, regex=False))", ref, lit)
	case CondStartsWith:
		return fmt.Sprintf("(%s.str.startswith(%s, na=False))", ref, lit)
	case CondEndsWith:
		return fmt.Sprintf("(%s.str.endswith(%s, na=False))", ref, lit)
	case CondBoolTrue:
		return fmt.Sprintf("(%s == True)", ref)
	case CondBoolFalse:
		return fmt.Sprintf("(%s == False)", ref)
	case CondEmpty:
		return fmt.Sprintf("(%s.isna())", ref)
	case CondNotEmpty:
		return fmt.Sprintf("(%s.notnull())", ref)
	}
	return fmt.Sprintf("(%s == %s)", ref, lit)
}

// ---------------------------------------------------------------------
// bulk-filter
// ---------------------------------------------------------------------

// bulk-filter keeps or drops rows whose value appears in a chosen set,
// driven from the unique-value list in the UI.
type bulkFilter struct{}

func (bulkFilter) Type() string    { return "bulk_filter" }
func (bulkFilter) Version() int    { return 3 }
func (bulkFilter) Refinable() bool { return true }

func (bulkFilter) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colID, err := p.Str("column_id")
	if err != nil {
		return nil, nil, err
	}
	rawVals, ok := p["values"].([]any)
	if !ok {
		return nil, nil, badParam("values", "a list of cell values")
	}
	exclude := p.BoolOr("exclude", true)

	chosen := make([]values.Value, len(rawVals))
	for i, v := range rawVals {
		chosen[i] = anyToValue(v)
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
	col := df.Col(header)
	mask := make([]bool, df.NumRows())
	for i, cell := range col.Cells {
		in := false
		for _, v := range chosen {
			if cell.Equal(v) {
				in = true
				break
			}
		}
		mask[i] = in != exclude
	}
	ns.DFs[sheet] = df.FilterMask(mask)
	return ns, map[string]any{"header": header}, nil
}

func (bulkFilter) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	header, _ := step.ExecData["header"].(string)
	rawVals, _ := step.Params["values"].([]any)
	exclude := step.Params.BoolOr("exclude", true)

	lits := make([]string, len(rawVals))
	for i, v := range rawVals {
		lits[i] = anyToValue(v).PyLiteral()
	}
	neg := ""
	if exclude {
		neg = "~"
	}
	ref := fmt.Sprintf("%s[%s]", dfName, values.PyString(header))
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Filtered by values",
		Desc: fmt.Sprintf("Filtered %q in %s by value list", header, dfName),
		Lines: []string{fmt.Sprintf("%s = %s[%s%s.isin([%s])]",
			dfName, dfName, neg, ref, strings.Join(lits, ", "))},
		Edited: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// drop-duplicates
// ---------------------------------------------------------------------

type dropDuplicates struct{}

func (dropDuplicates) Type() string    { return "drop_duplicates" }
func (dropDuplicates) Version() int    { return 2 }
func (dropDuplicates) Refinable() bool { return false }

func (dropDuplicates) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colIDs, err := p.StrList("column_ids")
	if err != nil {
		return nil, nil, err
	}
	keep := keepParam(p)

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
	ns.DFs[sheet] = df.DropDuplicates(headers, keep)
	return ns, map[string]any{"headers": headers}, nil
}

func (dropDuplicates) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	headers, _ := step.ExecData["headers"].([]string)
	keep := keepParam(step.Params)

	keepLit := "'" + keep + "'"
	if keep == "none" {
		keepLit = "False"
	}
	subset := ""
	if len(headers) > 0 {
		subset = fmt.Sprintf("subset=[%s], ", quoteHeaders(headers))
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Dropped duplicates",
		Desc: fmt.Sprintf("Dropped duplicate rows in %s", dfName),
		Lines: []string{fmt.Sprintf("%s = %s.drop_duplicates(%skeep=%s)",
			dfName, dfName, subset, keepLit)},
		Edited: []int{sheet},
	}}
}

// keepParam reads the keep policy, which arrives as "first", "last", or
// JSON false for drop-all.
func keepParam(p Params) string {
	switch v := p["keep"].(type) {
	case string:
		if v == "first" || v == "last" {
			return v
		}
	case bool:
		if !v {
			return "none"
		}
	}
	return "first"
}

// ---------------------------------------------------------------------
// replace
// ---------------------------------------------------------------------

// replace rewrites literal text across the chosen columns, the whole
// sheet when none are chosen.
type replaceStep struct{}

func (replaceStep) Type() string    { return "replace" }
func (replaceStep) Version() int    { return 2 }
func (replaceStep) Refinable() bool { return true }

func (replaceStep) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	search, err := p.Str("search_value")
	if err != nil {
		return nil, nil, err
	}
	if search == "" {
		return nil, nil, errs.UserConfig("empty_search", "the search text cannot be empty")
	}
	replacement := p.StrOr("replace_value", "")
	colIDs, _ := p.StrList("column_ids")

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	var headers []string
	for _, id := range colIDs {
		h, err := meta.Columns.HeaderFor(id)
		if err != nil {
			return nil, nil, err
		}
		headers = append(headers, h)
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(search))
	if err != nil {
		return nil, nil, errs.UserConfig("bad_search", "cannot search for %q: %v", search, err)
	}
	df.ReplaceRegex(re, replacement, headers)

	recompute := headers
	if len(recompute) == 0 {
		recompute = df.Headers
	}
	if err := recomputeDownstream(df, meta, recompute); err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"headers": headers}, nil
}

func (replaceStep) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	headers, _ := step.ExecData["headers"].([]string)
	search := values.PyString("(?i)" + regexp.QuoteMeta(step.Params.StrOr("search_value", "")))
	replacement := values.PyString(step.Params.StrOr("replace_value", ""))

	target := dfName
	if len(headers) > 0 {
		target = fmt.Sprintf("%s[[%s]]", dfName, quoteHeaders(headers))
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Replaced values",
		Desc: fmt.Sprintf("Replaced text in %s", dfName),
		Lines: []string{fmt.Sprintf("%s = %s.replace(%s, %s, regex=True)",
			target, target, search, replacement)},
		Edited: []int{sheet},
	}}
}
