package steps

import (
	"fmt"
	"sort"
	"strings"

	"sheetflow/internal/chunks"
	"sheetflow/internal/errs"
	"sheetflow/internal/formula"
	"sheetflow/internal/frame"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

func init() {
	register(pivotStep{}, "pivot_rows_column_ids", "pivot_columns_column_ids")
	register(mergeStep{}, "selected_column_ids_one", "selected_column_ids_two")
	register(concatStep{})
	register(meltStep{}, "id_var_column_ids", "value_var_column_ids")
	register(oneHotEncoding{}, "column_id")
	register(columnHeadersTransform{})
}

// ---------------------------------------------------------------------
// pivot
// ---------------------------------------------------------------------

// pivot builds a pivot table into a new sheet, or back into the sheet a
// previous refinement of the same step created.
type pivotStep struct{}

func (pivotStep) Type() string    { return "pivot" }
func (pivotStep) Version() int    { return 9 }
func (pivotStep) Refinable() bool { return true }

func (pivotStep) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	ns := prev.Copy()
	if sheet < 0 || sheet >= ns.NumSheets() {
		return nil, nil, badParam("sheet_index", "a valid sheet index")
	}
	src := ns.DFs[sheet]
	meta := ns.Metas[sheet]

	rows, err := headersForIDs(meta, p, "pivot_rows_column_ids")
	if err != nil {
		return nil, nil, err
	}
	colKeys, err := headersForIDs(meta, p, "pivot_columns_column_ids")
	if err != nil {
		return nil, nil, err
	}
	pivotValues, err := pivotValuesParam(meta, p)
	if err != nil {
		return nil, nil, err
	}

	working, err := applyPivotFilters(src, meta, p)
	if err != nil {
		return nil, nil, err
	}
	out, err := working.Pivot(frame.PivotSpec{Rows: rows, Columns: colKeys, Values: pivotValues})
	if err != nil {
		return nil, nil, err
	}

	dest := p.IntOr("destination_sheet_index", -1)
	if dest >= 0 && dest < ns.NumSheets() {
		newMeta, err := state.NewSheetMeta(ns.Metas[dest].DFName, state.SourcePivoted, out.Headers)
		if err != nil {
			return nil, nil, err
		}
		ns.DFs[dest] = out
		ns.Metas[dest] = newMeta
		return ns, map[string]any{"new_sheet_index": dest}, nil
	}
	newIdx, err := ns.AddDF(out, state.SourcePivoted, meta.DFName+"_pivot")
	if err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"new_sheet_index": newIdx}, nil
}

func (pivotStep) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	srcMeta := step.Prev.Metas[sheet]
	srcName := srcMeta.DFName
	newIdx, _ := step.ExecData["new_sheet_index"].(int)
	newName := step.Post.Metas[newIdx].DFName

	rows, _ := headersForIDs(srcMeta, step.Params, "pivot_rows_column_ids")
	colKeys, _ := headersForIDs(srcMeta, step.Params, "pivot_columns_column_ids")
	pivotValues, _ := pivotValuesParam(srcMeta, step.Params)

	var used []string
	used = append(used, rows...)
	used = append(used, colKeys...)
	aggParts := make([]string, len(pivotValues))
	valHeaders := make([]string, len(pivotValues))
	for i, pv := range pivotValues {
		used = append(used, pv.Header)
		valHeaders[i] = pv.Header
		aggs := make([]string, len(pv.Aggs))
		for j, a := range pv.Aggs {
			aggs[j] = values.PyString(string(a))
		}
		aggParts[i] = fmt.Sprintf("%s: [%s]", values.PyString(pv.Header), strings.Join(aggs, ", "))
	}

	lines := []string{
		fmt.Sprintf("tmp_df = %s[[%s]]", srcName, quoteHeaders(dedupeStrings(used))),
	}
	lines = append(lines, pivotFilterLines(srcMeta, step.Params)...)
	lines = append(lines,
		fmt.Sprintf("pivot_table = tmp_df.pivot_table(index=[%s], columns=[%s], values=[%s], aggfunc={%s})",
			quoteHeaders(rows), quoteHeaders(colKeys), quoteHeaders(valHeaders),
			strings.Join(aggParts, ", ")),
		"pivot_table.columns = [' '.join([str(c) for c in col if str(c) != '']).strip() for col in pivot_table.columns.values]",
		fmt.Sprintf("%s = pivot_table.reset_index()", newName),
	)
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:    chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:    "Pivoted dataframe",
		Desc:    fmt.Sprintf("Created %s by pivoting %s", newName, srcName),
		Lines:   lines,
		Created: []int{newIdx},
		Sources: []int{sheet},
	}}
}

func pivotValuesParam(meta *state.SheetMeta, p Params) ([]frame.PivotValue, error) {
	obj, err := p.Map("values_column_ids_map")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(obj))
	for id := range obj {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []frame.PivotValue
	for _, id := range ids {
		header, err := meta.Columns.HeaderFor(id)
		if err != nil {
			return nil, err
		}
		var aggs []frame.AggFunc
		switch raw := obj[id].(type) {
		case []any:
			for _, a := range raw {
				s, ok := a.(string)
				if !ok {
					return nil, badParam("values_column_ids_map", "lists of aggregation names")
				}
				aggs = append(aggs, frame.AggFunc(s))
			}
		case []string:
			for _, s := range raw {
				aggs = append(aggs, frame.AggFunc(s))
			}
		default:
			return nil, badParam("values_column_ids_map", "lists of aggregation names")
		}
		out = append(out, frame.PivotValue{Header: header, Aggs: aggs})
	}
	return out, nil
}

// applyPivotFilters pre-filters the source rows before pivoting.
func applyPivotFilters(df *frame.DataFrame, meta *state.SheetMeta, p Params) (*frame.DataFrame, error) {
	raw, ok := p["pivot_filters"].([]any)
	if !ok || len(raw) == 0 {
		return df, nil
	}
	working := df
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, badParam("pivot_filters", "a list of column filters")
		}
		id, _ := m["column_id"].(string)
		header, err := meta.Columns.HeaderFor(id)
		if err != nil {
			return nil, err
		}
		fm, _ := m["filter"].(map[string]any)
		cond, _ := fm["condition"].(string)
		clause := state.FilterClause{Condition: cond, Value: anyToValue(fm["value"])}

		col := working.Col(header)
		mask := make([]bool, working.NumRows())
		for i, cell := range col.Cells {
			keep, err := matchClause(cell, clause)
			if err != nil {
				return nil, err
			}
			mask[i] = keep
		}
		working = working.FilterMask(mask)
	}
	return working, nil
}

func pivotFilterLines(meta *state.SheetMeta, p Params) []string {
	raw, ok := p["pivot_filters"].([]any)
	if !ok {
		return nil
	}
	var lines []string
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["column_id"].(string)
		header, err := meta.Columns.HeaderFor(id)
		if err != nil {
			continue
		}
		fm, _ := m["filter"].(map[string]any)
		cond, _ := fm["condition"].(string)
		clause := state.FilterClause{Condition: cond, Value: anyToValue(fm["value"])}
		lines = append(lines, fmt.Sprintf("tmp_df = tmp_df[%s]",
			filterExpr("tmp_df", header, clause)))
	}
	return lines
}

func headersForIDs(meta *state.SheetMeta, p Params, key string) ([]string, error) {
	ids, err := p.StrList(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		h, err := meta.Columns.HeaderFor(id)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func dedupeStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// ---------------------------------------------------------------------
// merge
// ---------------------------------------------------------------------

type mergeStep struct{}

func (mergeStep) Type() string    { return "merge" }
func (mergeStep) Version() int    { return 4 }
func (mergeStep) Refinable() bool { return true }

func (mergeStep) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	one, err := p.Int("sheet_index_one")
	if err != nil {
		return nil, nil, err
	}
	two, err := p.Int("sheet_index_two")
	if err != nil {
		return nil, nil, err
	}
	how := p.StrOr("how", frame.MergeLookup)

	ns := prev.Copy()
	if one < 0 || one >= ns.NumSheets() || two < 0 || two >= ns.NumSheets() {
		return nil, nil, badParam("sheet_index_one", "valid sheet indexes")
	}
	metaOne, metaTwo := ns.Metas[one], ns.Metas[two]

	keyPairs, err := mergeKeyPairs(metaOne, metaTwo, p)
	if err != nil {
		return nil, nil, err
	}
	keepOne, err := headersForIDs(metaOne, p, "selected_column_ids_one")
	if err != nil {
		return nil, nil, err
	}
	keepTwo, err := headersForIDs(metaTwo, p, "selected_column_ids_two")
	if err != nil {
		return nil, nil, err
	}

	out, err := ns.DFs[one].Merge(ns.DFs[two], frame.MergeSpec{
		How:       how,
		KeyPairs:  keyPairs,
		LeftKeep:  keepOne,
		RightKeep: keepTwo,
	})
	if err != nil {
		return nil, nil, err
	}
	newIdx, err := ns.AddDF(out, state.SourceMerged, "df_merge")
	if err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"new_sheet_index": newIdx}, nil
}

func (mergeStep) Transpile(step *Step) []chunks.Chunk {
	one := step.Params.IntOr("sheet_index_one", 0)
	two := step.Params.IntOr("sheet_index_two", 0)
	metaOne, metaTwo := step.Prev.Metas[one], step.Prev.Metas[two]
	nameOne, nameTwo := metaOne.DFName, metaTwo.DFName
	newIdx, _ := step.ExecData["new_sheet_index"].(int)
	newName := step.Post.Metas[newIdx].DFName
	how := step.Params.StrOr("how", frame.MergeLookup)

	keyPairs, err := mergeKeyPairs(metaOne, metaTwo, step.Params)
	if err != nil {
		return nil
	}
	leftKeys := make([]string, len(keyPairs))
	rightKeys := make([]string, len(keyPairs))
	for i, kp := range keyPairs {
		leftKeys[i] = kp[0]
		rightKeys[i] = kp[1]
	}

	var lines []string
	switch how {
	case frame.MergeUniqueInLeft:
		lines = []string{fmt.Sprintf("%s = %s[~%s[%s].isin(%s[%s])]",
			newName, nameOne, nameOne, values.PyString(leftKeys[0]),
			nameTwo, values.PyString(rightKeys[0]))}
	case frame.MergeUniqueInRight:
		lines = []string{fmt.Sprintf("%s = %s[~%s[%s].isin(%s[%s])]",
			newName, nameTwo, nameTwo, values.PyString(rightKeys[0]),
			nameOne, values.PyString(leftKeys[0]))}
	case frame.MergeLookup:
		lines = []string{
			fmt.Sprintf("tmp_df = %s.drop_duplicates(subset=[%s])",
				nameTwo, quoteHeaders(rightKeys)),
			fmt.Sprintf("%s = %s.merge(tmp_df, left_on=[%s], right_on=[%s], how='left', suffixes=['_%s', '_%s'])",
				newName, nameOne, quoteHeaders(leftKeys), quoteHeaders(rightKeys), nameOne, nameTwo),
		}
	default:
		lines = []string{fmt.Sprintf("%s = %s.merge(%s, left_on=[%s], right_on=[%s], how=%s, suffixes=['_%s', '_%s'])",
			newName, nameOne, nameTwo, quoteHeaders(leftKeys), quoteHeaders(rightKeys),
			values.PyString(how), nameOne, nameTwo)}
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:    chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:    "Merged dataframes",
		Desc:    fmt.Sprintf("Created %s by merging %s and %s", newName, nameOne, nameTwo),
		Lines:   lines,
		Created: []int{newIdx},
		Sources: []int{one, two},
	}}
}

func mergeKeyPairs(metaOne, metaTwo *state.SheetMeta, p Params) ([][2]string, error) {
	raw, ok := p["merge_key_column_ids"].([]any)
	if !ok {
		return nil, badParam("merge_key_column_ids", "a list of column-id pairs")
	}
	out := make([][2]string, 0, len(raw))
	for _, e := range raw {
		pair, ok := e.([]any)
		if !ok || len(pair) != 2 {
			return nil, badParam("merge_key_column_ids", "a list of column-id pairs")
		}
		idOne, ok1 := pair[0].(string)
		idTwo, ok2 := pair[1].(string)
		if !ok1 || !ok2 {
			return nil, badParam("merge_key_column_ids", "a list of column-id pairs")
		}
		hOne, err := metaOne.Columns.HeaderFor(idOne)
		if err != nil {
			return nil, err
		}
		hTwo, err := metaTwo.Columns.HeaderFor(idTwo)
		if err != nil {
			return nil, err
		}
		out = append(out, [2]string{hOne, hTwo})
	}
	return out, nil
}

// ---------------------------------------------------------------------
// concat
// ---------------------------------------------------------------------

type concatStep struct{}

func (concatStep) Type() string    { return "concat" }
func (concatStep) Version() int    { return 3 }
func (concatStep) Refinable() bool { return true }

func (concatStep) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	raw, ok := p["sheet_indexes"].([]any)
	if !ok {
		if ints, ok2 := p["sheet_indexes"].([]int); ok2 {
			raw = make([]any, len(ints))
			for i, n := range ints {
				raw[i] = n
			}
		} else {
			return nil, nil, badParam("sheet_indexes", "a list of sheet indexes")
		}
	}
	join := p.StrOr("join", "inner")
	ignoreIndex := p.BoolOr("ignore_index", true)

	ns := prev.Copy()
	var dfs []*frame.DataFrame
	var sources []int
	for _, e := range raw {
		idx := int(anyToValue(e).IntVal())
		if f, ok := e.(float64); ok {
			idx = int(f)
		}
		if idx < 0 || idx >= ns.NumSheets() {
			return nil, nil, badParam("sheet_indexes", "valid sheet indexes")
		}
		dfs = append(dfs, ns.DFs[idx])
		sources = append(sources, idx)
	}
	if len(dfs) == 0 {
		return nil, nil, errs.UserConfig("concat_empty", "concatenation needs at least one sheet")
	}

	out := frame.ConcatRows(dfs, join, ignoreIndex)
	newIdx, err := ns.AddDF(out, state.SourceConcated, "df_concat")
	if err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"new_sheet_index": newIdx, "source_sheets": sources}, nil
}

func (concatStep) Transpile(step *Step) []chunks.Chunk {
	sources, _ := step.ExecData["source_sheets"].([]int)
	newIdx, _ := step.ExecData["new_sheet_index"].(int)
	newName := step.Post.Metas[newIdx].DFName
	join := step.Params.StrOr("join", "inner")
	ignoreIndex := step.Params.BoolOr("ignore_index", true)

	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = step.Prev.Metas[s].DFName
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Concatenated dataframes",
		Desc: fmt.Sprintf("Created %s by concatenating %s", newName, strings.Join(names, ", ")),
		Lines: []string{fmt.Sprintf("%s = pd.concat([%s], join=%s, ignore_index=%s)",
			newName, strings.Join(names, ", "), values.PyString(join), pyBool(ignoreIndex))},
		Imp:     []string{"import pandas as pd"},
		Created: []int{newIdx},
		Sources: sources,
	}}
}

// ---------------------------------------------------------------------
// melt
// ---------------------------------------------------------------------

type meltStep struct{}

func (meltStep) Type() string    { return "melt" }
func (meltStep) Version() int    { return 3 }
func (meltStep) Refinable() bool { return true }

func (meltStep) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	ns := prev.Copy()
	if sheet < 0 || sheet >= ns.NumSheets() {
		return nil, nil, badParam("sheet_index", "a valid sheet index")
	}
	meta := ns.Metas[sheet]
	idVars, err := headersForIDs(meta, p, "id_var_column_ids")
	if err != nil {
		return nil, nil, err
	}
	valueVars, err := headersForIDs(meta, p, "value_var_column_ids")
	if err != nil {
		return nil, nil, err
	}

	out, err := ns.DFs[sheet].Melt(idVars, valueVars)
	if err != nil {
		return nil, nil, err
	}
	newIdx, err := ns.AddDF(out, state.SourceMelted, meta.DFName+"_melt")
	if err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"new_sheet_index": newIdx}, nil
}

func (meltStep) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	srcMeta := step.Prev.Metas[sheet]
	newIdx, _ := step.ExecData["new_sheet_index"].(int)
	newName := step.Post.Metas[newIdx].DFName

	idVars, _ := headersForIDs(srcMeta, step.Params, "id_var_column_ids")
	valueVars, _ := headersForIDs(srcMeta, step.Params, "value_var_column_ids")
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Melted dataframe",
		Desc: fmt.Sprintf("Created %s by unpivoting %s", newName, srcMeta.DFName),
		Lines: []string{fmt.Sprintf("%s = %s.melt(id_vars=[%s], value_vars=[%s])",
			newName, srcMeta.DFName, quoteHeaders(idVars), quoteHeaders(valueVars))},
		Created: []int{newIdx},
		Sources: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// one-hot-encoding
// ---------------------------------------------------------------------

type oneHotEncoding struct{}

func (oneHotEncoding) Type() string    { return "one_hot_encoding" }
func (oneHotEncoding) Version() int    { return 2 }
func (oneHotEncoding) Refinable() bool { return true }

func (oneHotEncoding) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	colID, err := p.Str("column_id")
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
	before := headerSet(df)
	if err := df.OneHot(header); err != nil {
		return nil, nil, err
	}
	var added []string
	for _, h := range df.Headers {
		if !before[h] {
			added = append(added, h)
			if _, err := meta.Columns.Add(h); err != nil {
				return nil, nil, err
			}
		}
	}
	return ns, map[string]any{"header": header, "added_headers": added}, nil
}

func (oneHotEncoding) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	header, _ := step.ExecData["header"].(string)
	py := values.PyString(header)

	pos := step.Prev.DFs[sheet].ColIndex(header)
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "One-hot encoded column",
		Desc: fmt.Sprintf("One-hot encoded %q in %s", header, dfName),
		Lines: []string{
			fmt.Sprintf("tmp_df = pd.get_dummies(%s[%s])", dfName, py),
			fmt.Sprintf("%s = pd.concat([%s.iloc[:, :%d], tmp_df, %s.iloc[:, %d:]], axis=1)",
				dfName, dfName, pos+1, dfName, pos+1),
		},
		Imp:    []string{"import pandas as pd"},
		Edited: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// column-headers-transform
// ---------------------------------------------------------------------

// column-headers-transform rewrites every header at once: uppercase,
// lowercase, or a literal find/replace. Column IDs survive, so stored
// formulas are rewritten through a two-phase rename to dodge transient
// collisions like a case swap.
type columnHeadersTransform struct{}

func (columnHeadersTransform) Type() string    { return "column_headers_transform" }
func (columnHeadersTransform) Version() int    { return 2 }
func (columnHeadersTransform) Refinable() bool { return false }

func (columnHeadersTransform) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	kind, oldText, newText, err := headerTransformParams(p)
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	transformed := make([]string, len(df.Headers))
	for i, h := range df.Headers {
		transformed[i] = transformHeader(h, kind, oldText, newText)
	}
	transformed = dedupeTransformed(transformed)

	if err := renameHeadersBulk(df, meta, transformed); err != nil {
		return nil, nil, err
	}
	return ns, nil, nil
}

func (columnHeadersTransform) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	kind, oldText, newText, err := headerTransformParams(step.Params)
	if err != nil {
		return nil
	}

	var line string
	switch kind {
	case "uppercase":
		line = fmt.Sprintf("%s.columns = [str(col).upper() for col in %s.columns]", dfName, dfName)
	case "lowercase":
		line = fmt.Sprintf("%s.columns = [str(col).lower() for col in %s.columns]", dfName, dfName)
	default:
		line = fmt.Sprintf("%s.columns = [str(col).replace(%s, %s) for col in %s.columns]",
			dfName, values.PyString(oldText), values.PyString(newText), dfName)
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:   chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:   "Transformed headers",
		Desc:   fmt.Sprintf("Applied %s to the headers of %s", kind, dfName),
		Lines:  []string{line},
		Edited: []int{sheet},
	}}
}

func headerTransformParams(p Params) (kind, oldText, newText string, err error) {
	obj, err := p.Map("transformation")
	if err != nil {
		return "", "", "", err
	}
	kind, _ = obj["type"].(string)
	switch kind {
	case "uppercase", "lowercase":
		return kind, "", "", nil
	case "replace":
		oldText, _ = obj["old"].(string)
		newText, _ = obj["new"].(string)
		if oldText == "" {
			return "", "", "", badParam("transformation", "a replace with non-empty old text")
		}
		return kind, oldText, newText, nil
	}
	return "", "", "", errs.UserConfig("bad_header_transform",
		"unknown header transformation %q", kind)
}

func transformHeader(h, kind, oldText, newText string) string {
	switch kind {
	case "uppercase":
		return strings.ToUpper(h)
	case "lowercase":
		return strings.ToLower(h)
	default:
		return strings.ReplaceAll(h, oldText, newText)
	}
}

func dedupeTransformed(headers []string) []string {
	seen := make(map[string]bool, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		candidate := h
		for n := 1; seen[candidate]; n++ {
			candidate = fmt.Sprintf("%s (%d)", h, n)
		}
		seen[candidate] = true
		out[i] = candidate
	}
	return out
}

// renameHeadersBulk renames every column to its new header in one
// logical operation, keeping column IDs and rewriting stored formulas.
// Renames go through temporary names so overlapping old and new sets
// never collide mid-flight.
func renameHeadersBulk(df *frame.DataFrame, meta *state.SheetMeta, newHeaders []string) error {
	old := append([]string(nil), df.Headers...)
	if len(newHeaders) != len(old) {
		return errs.Invariant("rename_shape", "expected %d headers, got %d", len(old), len(newHeaders))
	}

	temps := make([]string, len(old))
	for i := range old {
		temps[i] = fmt.Sprintf("__hdr_tmp_%d__", i)
	}
	phases := [][2][]string{{old, temps}, {temps, newHeaders}}
	for _, phase := range phases {
		from, to := phase[0], phase[1]
		universe := make(map[string]bool, len(from))
		for _, h := range from {
			universe[h] = true
		}
		for i := range from {
			if from[i] == to[i] {
				continue
			}
			id, err := meta.Columns.IDFor(from[i])
			if err != nil {
				return err
			}
			if err := df.RenameColumn(from[i], to[i]); err != nil {
				return err
			}
			if err := meta.Columns.Rename(id, to[i]); err != nil {
				return err
			}
			for colID, text := range meta.Formulas {
				rewritten, err := formula.RenameHeader(text, universe, from[i], to[i])
				if err != nil {
					continue
				}
				meta.Formulas[colID] = rewritten
			}
			meta.Deps.RenameNode(from[i], to[i])
			universe[to[i]] = true
			delete(universe, from[i])
		}
	}
	return nil
}
