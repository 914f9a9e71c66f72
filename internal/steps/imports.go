package steps

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"sheetflow/internal/chunks"
	"sheetflow/internal/errs"
	"sheetflow/internal/exports"
	"sheetflow/internal/frame"
	"sheetflow/internal/imports"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

func init() {
	register(simpleImport{})
	register(excelImport{})
	register(excelRangeImport{})
	register(dataframeImport{})
	register(snowflakeImport{})
	register(userDefinedImport{})
	register(aiTransformation{})
	register(userDefinedEdit{})
	register(exportToFile{})
}

// ---------------------------------------------------------------------
// simple-import (CSV)
// ---------------------------------------------------------------------

type simpleImport struct{}

func (simpleImport) Type() string    { return "simple_import" }
func (simpleImport) Version() int    { return 2 }
func (simpleImport) Refinable() bool { return false }

func (simpleImport) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	fileNames, err := p.StrList("file_names")
	if err != nil {
		return nil, nil, err
	}
	delimiters, _ := p.StrList("delimeters")
	encodings, _ := p.StrList("encodings")

	ns := prev.Copy()
	var created []int
	for i, path := range fileNames {
		opts := imports.CSVOptions{HasHeaders: true}
		if i < len(delimiters) {
			opts.Delimiter = delimiters[i]
		}
		if i < len(encodings) {
			opts.Encoding = encodings[i]
		}
		df, err := imports.ReadCSV(path, opts)
		if err != nil {
			return nil, nil, err
		}
		idx, err := ns.AddDF(df, state.SourceImported, fileBase(path))
		if err != nil {
			return nil, nil, err
		}
		created = append(created, idx)
	}
	return ns, map[string]any{"new_sheet_indexes": created}, nil
}

func (simpleImport) Transpile(step *Step) []chunks.Chunk {
	fileNames, err := step.Params.StrList("file_names")
	if err != nil {
		return nil
	}
	delimiters, _ := step.Params.StrList("delimeters")
	encodings, _ := step.Params.StrList("encodings")
	created, _ := step.ExecData["new_sheet_indexes"].([]int)

	lines := make([]string, 0, len(fileNames))
	for i, path := range fileNames {
		if i >= len(created) {
			break
		}
		dfName := step.Post.Metas[created[i]].DFName
		args := []string{pyRawString(path)}
		if i < len(delimiters) && delimiters[i] != "" && delimiters[i] != "," {
			args = append(args, "sep="+values.PyString(delimiters[i]))
		}
		if i < len(encodings) && encodings[i] != "" && encodings[i] != imports.EncodingUTF8 {
			args = append(args, "encoding="+values.PyString(encodings[i]))
		}
		lines = append(lines, fmt.Sprintf("%s = pd.read_csv(%s)", dfName, strings.Join(args, ", ")))
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:    chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:    "Imported CSV files",
		Desc:    fmt.Sprintf("Imported %d CSV files", len(fileNames)),
		Lines:   lines,
		Imp:     []string{"import pandas as pd"},
		Created: created,
	}}
}

func fileBase(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// pyRawString quotes a path as a Python raw string, so Windows
// separators survive.
func pyRawString(s string) string {
	return "r" + values.PyString(s)
}

// ---------------------------------------------------------------------
// excel-import
// ---------------------------------------------------------------------

type excelImport struct{}

func (excelImport) Type() string    { return "excel_import" }
func (excelImport) Version() int    { return 2 }
func (excelImport) Refinable() bool { return false }

func (excelImport) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	path, err := p.Str("file_name")
	if err != nil {
		return nil, nil, err
	}
	sheetNames, _ := p.StrList("sheet_names")
	opts := imports.ExcelOptions{
		SheetNames: sheetNames,
		HasHeaders: p.BoolOr("has_headers", true),
		Skiprows:   p.IntOr("skiprows", 0),
	}
	sheets, err := imports.ReadExcel(context.Background(), path, opts)
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	var created []int
	var names []string
	for _, sh := range sheets {
		idx, err := ns.AddDF(sh.DF, state.SourceImported, sh.Name)
		if err != nil {
			return nil, nil, err
		}
		created = append(created, idx)
		names = append(names, sh.Name)
	}
	return ns, map[string]any{"new_sheet_indexes": created, "sheet_names": names}, nil
}

func (excelImport) Transpile(step *Step) []chunks.Chunk {
	path := step.Params.StrOr("file_name", "")
	created, _ := step.ExecData["new_sheet_indexes"].([]int)
	names, _ := step.ExecData["sheet_names"].([]string)
	hasHeaders := step.Params.BoolOr("has_headers", true)
	skiprows := step.Params.IntOr("skiprows", 0)

	header := "0"
	if !hasHeaders {
		header = "None"
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = values.PyString(n)
	}
	lines := []string{fmt.Sprintf(
		"sheet_df_dictionary = pd.read_excel(%s, sheet_name=[%s], header=%s, skiprows=%d)",
		pyRawString(path), strings.Join(quoted, ", "), header, skiprows)}
	for i, n := range names {
		if i >= len(created) {
			break
		}
		lines = append(lines, fmt.Sprintf("%s = sheet_df_dictionary[%s]",
			step.Post.Metas[created[i]].DFName, values.PyString(n)))
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:    chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:    "Imported Excel sheets",
		Desc:    fmt.Sprintf("Imported %d sheets from %s", len(names), filepath.Base(path)),
		Lines:   lines,
		Imp:     []string{"import pandas as pd"},
		Created: created,
	}}
}

// ---------------------------------------------------------------------
// excel-range-import
// ---------------------------------------------------------------------

// excel-range-import pulls rectangular ranges out of one worksheet,
// each into its own sheet.
type excelRangeImport struct{}

func (excelRangeImport) Type() string    { return "excel_range_import" }
func (excelRangeImport) Version() int    { return 6 }
func (excelRangeImport) Refinable() bool { return true }

func (excelRangeImport) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	path, err := p.Str("file_name")
	if err != nil {
		return nil, nil, err
	}
	sheetName, err := rangeImportSheet(path, p)
	if err != nil {
		return nil, nil, err
	}
	ranges, err := rangeImportSpecs(p)
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	var created []int
	for _, ri := range ranges {
		df, err := imports.ReadExcelRange(path, sheetName, ri.cellRange, true)
		if err != nil {
			return nil, nil, err
		}
		idx, err := ns.AddDF(df, state.SourceImported, ri.dfName)
		if err != nil {
			return nil, nil, err
		}
		created = append(created, idx)
	}
	return ns, map[string]any{"new_sheet_indexes": created, "sheet_name": sheetName}, nil
}

func (excelRangeImport) Transpile(step *Step) []chunks.Chunk {
	path := step.Params.StrOr("file_name", "")
	sheetName, _ := step.ExecData["sheet_name"].(string)
	created, _ := step.ExecData["new_sheet_indexes"].([]int)
	ranges, err := rangeImportSpecs(step.Params)
	if err != nil {
		return nil
	}

	var lines []string
	for i, ri := range ranges {
		if i >= len(created) {
			break
		}
		dfName := step.Post.Metas[created[i]].DFName
		skiprows, nrows, usecols, perr := rangeReadArgs(ri.cellRange)
		if perr != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf(
			"%s = pd.read_excel(%s, sheet_name=%s, skiprows=%d, nrows=%d, usecols=%s)",
			dfName, pyRawString(path), values.PyString(sheetName),
			skiprows, nrows, values.PyString(usecols)))
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:    chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:    "Imported Excel ranges",
		Desc:    fmt.Sprintf("Imported %d ranges from %s", len(ranges), filepath.Base(path)),
		Lines:   lines,
		Imp:     []string{"import pandas as pd"},
		Created: created,
	}}
}

type rangeImport struct {
	dfName    string
	cellRange string
}

func rangeImportSheet(path string, p Params) (string, error) {
	obj, err := p.Map("sheet")
	if err != nil {
		return "", err
	}
	kind, _ := obj["type"].(string)
	switch kind {
	case "sheet name":
		name, _ := obj["value"].(string)
		if name == "" {
			return "", badParam("sheet", "a sheet name")
		}
		return name, nil
	case "sheet index":
		idx := intFromAny(obj["value"], -1)
		names, err := imports.SheetNames(path)
		if err != nil {
			return "", err
		}
		if idx < 0 || idx >= len(names) {
			return "", badParam("sheet", "a valid sheet index")
		}
		return names[idx], nil
	}
	return "", errs.UserConfig("bad_sheet_selector", "unknown sheet selector type %q", kind)
}

func rangeImportSpecs(p Params) ([]rangeImport, error) {
	raw, ok := p["range_imports"].([]any)
	if !ok {
		return nil, badParam("range_imports", "a list of range objects")
	}
	out := make([]rangeImport, 0, len(raw))
	for _, e := range raw {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, badParam("range_imports", "a list of range objects")
		}
		if kind, _ := m["type"].(string); kind != "range" {
			return nil, errs.UserConfig("bad_range_import",
				"unknown range import type %q", m["type"])
		}
		dfName, _ := m["df_name"].(string)
		cellRange, _ := m["range"].(string)
		if dfName == "" || cellRange == "" {
			return nil, badParam("range_imports", "objects with df_name and range")
		}
		out = append(out, rangeImport{dfName: dfName, cellRange: cellRange})
	}
	return out, nil
}

// rangeReadArgs converts an A1:B4 range to read_excel arguments.
func rangeReadArgs(cellRange string) (skiprows, nrows int, usecols string, err error) {
	parts := strings.SplitN(cellRange, ":", 2)
	if len(parts) != 2 {
		return 0, 0, "", errs.UserConfig("bad_range", "range %q is not like A1:B4", cellRange)
	}
	x1, y1, err := excelize.CellNameToCoordinates(parts[0])
	if err != nil {
		return 0, 0, "", errs.UserConfig("bad_range", "range %q is not like A1:B4", cellRange).WithCause(err)
	}
	x2, y2, err := excelize.CellNameToCoordinates(parts[1])
	if err != nil {
		return 0, 0, "", errs.UserConfig("bad_range", "range %q is not like A1:B4", cellRange).WithCause(err)
	}
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	colStart, err := excelize.ColumnNumberToName(x1)
	if err != nil {
		return 0, 0, "", err
	}
	colEnd, err := excelize.ColumnNumberToName(x2)
	if err != nil {
		return 0, 0, "", err
	}
	return y1 - 1, y2 - y1, colStart + ":" + colEnd, nil
}

// ---------------------------------------------------------------------
// dataframe-import
// ---------------------------------------------------------------------

// dataframe-import brings host-registered dataframes into the pipeline
// by name. The emitted script takes them as function parameters, so
// there is nothing to transpile.
type dataframeImport struct{}

func (dataframeImport) Type() string    { return "dataframe_import" }
func (dataframeImport) Version() int    { return 2 }
func (dataframeImport) Refinable() bool { return false }

func (dataframeImport) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	names, err := p.StrList("df_names")
	if err != nil {
		return nil, nil, err
	}
	resolver, err := envResolver(prev)
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	var created []int
	for _, name := range names {
		df, err := resolver.Resolve(name)
		if err != nil {
			return nil, nil, err
		}
		idx, err := ns.AddDF(df, state.SourcePassed, name)
		if err != nil {
			return nil, nil, err
		}
		created = append(created, idx)
	}
	return ns, map[string]any{"new_sheet_indexes": created}, nil
}

func (dataframeImport) Transpile(step *Step) []chunks.Chunk {
	return []chunks.Chunk{&chunks.NoOpChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Imported dataframes",
	}}
}

// ---------------------------------------------------------------------
// snowflake-import
// ---------------------------------------------------------------------

type snowflakeImport struct{}

func (snowflakeImport) Type() string    { return "snowflake_import" }
func (snowflakeImport) Version() int    { return 3 }
func (snowflakeImport) Refinable() bool { return true }

func (snowflakeImport) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	query, err := snowflakeQueryParam(p)
	if err != nil {
		return nil, nil, err
	}
	creds, err := envSnowflake(prev)
	if err != nil {
		return nil, nil, err
	}

	ctx := context.Background()
	conn, err := openSnowflake(ctx, prev, creds)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Close()

	df, err := conn.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	idx, err := ns.AddDF(df, state.SourceImported, strings.ToLower(query.Table))
	if err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"new_sheet_indexes": []int{idx}}, nil
}

func (snowflakeImport) Transpile(step *Step) []chunks.Chunk {
	query, err := snowflakeQueryParam(step.Params)
	if err != nil {
		return nil
	}
	created, _ := step.ExecData["new_sheet_indexes"].([]int)
	if len(created) == 0 {
		return nil
	}
	dfName := step.Post.Metas[created[0]].DFName

	cols := "*"
	if len(query.Columns) > 0 {
		quoted := make([]string, len(query.Columns))
		for i, c := range query.Columns {
			quoted[i] = `\"` + c + `\"`
		}
		cols = strings.Join(quoted, ", ")
	}
	sql := fmt.Sprintf(`SELECT %s FROM \"%s\".\"%s\".\"%s\"`,
		cols, query.Database, query.Schema, query.Table)
	if query.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", query.Limit)
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Imported from Snowflake",
		Desc: fmt.Sprintf("Imported %s from Snowflake", query.Table),
		Lines: []string{
			fmt.Sprintf("query = \"%s\"", sql),
			fmt.Sprintf("%s = pd.read_sql(query, snowflake_connection)", dfName),
		},
		Imp:     []string{"import pandas as pd"},
		Created: created,
	}}
}

func snowflakeQueryParam(p Params) (imports.SnowflakeQuery, error) {
	loc, err := p.Map("table_loc_and_warehouse")
	if err != nil {
		return imports.SnowflakeQuery{}, err
	}
	q := imports.SnowflakeQuery{}
	q.Warehouse, _ = loc["warehouse"].(string)
	q.Database, _ = loc["database"].(string)
	q.Schema, _ = loc["schema"].(string)
	q.Table, _ = loc["table_or_view"].(string)
	if q.Warehouse == "" || q.Database == "" || q.Schema == "" || q.Table == "" {
		return q, badParam("table_loc_and_warehouse",
			"an object with warehouse, database, schema, and table_or_view")
	}
	if qp, err := p.Map("query_params"); err == nil {
		if raw, ok := qp["columns"].([]any); ok {
			for _, c := range raw {
				if s, ok := c.(string); ok {
					q.Columns = append(q.Columns, s)
				}
			}
		}
		q.Limit = intFromAny(qp["limit"], 0)
	}
	return q, nil
}

// ---------------------------------------------------------------------
// user-defined-import
// ---------------------------------------------------------------------

type userDefinedImport struct{}

func (userDefinedImport) Type() string    { return "user_defined_import" }
func (userDefinedImport) Version() int    { return 2 }
func (userDefinedImport) Refinable() bool { return false }

func (userDefinedImport) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	name, err := p.Str("importer")
	if err != nil {
		return nil, nil, err
	}
	defs, err := envUserDefs(prev)
	if err != nil {
		return nil, nil, err
	}
	fn, err := defs.Importer(name)
	if err != nil {
		return nil, nil, err
	}
	df, err := fn()
	if err != nil {
		return nil, nil, errs.UserConfig("importer_failed",
			"importer %q failed: %v", name, err)
	}

	ns := prev.Copy()
	idx, err := ns.AddDF(df, state.SourceImported, name)
	if err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"new_sheet_indexes": []int{idx}}, nil
}

func (userDefinedImport) Transpile(step *Step) []chunks.Chunk {
	name := step.Params.StrOr("importer", "")
	created, _ := step.ExecData["new_sheet_indexes"].([]int)
	if len(created) == 0 {
		return nil
	}
	dfName := step.Post.Metas[created[0]].DFName
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:    chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:    "Ran importer",
		Desc:    fmt.Sprintf("Imported %s with %s", dfName, name),
		Lines:   []string{fmt.Sprintf("%s = %s()", dfName, name)},
		Created: created,
	}}
}

// ---------------------------------------------------------------------
// ai-transformation
// ---------------------------------------------------------------------

// ai-transformation applies a user-reviewed generated snippet to one
// sheet. The snippet runs interpreted; the step also carries the
// equivalent script lines the host's generator produced, which is what
// lands in the emitted code.
type aiTransformation struct{}

func (aiTransformation) Type() string    { return "ai_transformation" }
func (aiTransformation) Version() int    { return 2 }
func (aiTransformation) Refinable() bool { return false }

func (aiTransformation) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	snippet, err := p.Str("snippet")
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	out, err := imports.RunSnippet(snippet, df)
	if err != nil {
		return nil, nil, err
	}
	ns.DFs[sheet] = out
	meta.Source = state.SourceAI
	if err := resetColumnTracking(meta, out.Headers); err != nil {
		return nil, nil, err
	}
	return ns, nil, nil
}

func (aiTransformation) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	userInput := step.Params.StrOr("user_input", "")
	lines, _ := step.Params.StrList("script_lines")
	if len(lines) == 0 {
		lines = []string{"# " + userInput}
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:   chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:   "AI transformation",
		Desc:   userInput,
		Lines:  lines,
		Edited: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// user-defined-edit
// ---------------------------------------------------------------------

type userDefinedEdit struct{}

func (userDefinedEdit) Type() string    { return "user_defined_edit" }
func (userDefinedEdit) Version() int    { return 2 }
func (userDefinedEdit) Refinable() bool { return false }

func (userDefinedEdit) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	name, err := p.Str("edit_name")
	if err != nil {
		return nil, nil, err
	}
	editParams := map[string]any{}
	if m, err := p.Map("edit_params"); err == nil {
		editParams = m
	}
	defs, err := envUserDefs(prev)
	if err != nil {
		return nil, nil, err
	}
	fn, err := defs.Edit(name)
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	out, err := fn(df, editParams)
	if err != nil {
		return nil, nil, errs.UserConfig("edit_failed", "edit %q failed: %v", name, err)
	}
	ns.DFs[sheet] = out
	if err := resetColumnTracking(meta, out.Headers); err != nil {
		return nil, nil, err
	}
	return ns, nil, nil
}

func (userDefinedEdit) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	name := step.Params.StrOr("edit_name", "")
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:   chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:   "Ran edit",
		Desc:   fmt.Sprintf("Applied %s to %s", name, dfName),
		Lines:  []string{fmt.Sprintf("%s = %s(%s)", dfName, name, dfName)},
		Edited: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// export-to-file
// ---------------------------------------------------------------------

type exportToFile struct{}

func (exportToFile) Type() string    { return "export_to_file" }
func (exportToFile) Version() int    { return 2 }
func (exportToFile) Refinable() bool { return false }

func (exportToFile) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	kind, err := p.Str("type")
	if err != nil {
		return nil, nil, err
	}
	path, err := p.Str("file_name")
	if err != nil {
		return nil, nil, err
	}
	sheets, err := exportSheets(prev, p)
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	switch kind {
	case "csv":
		for i, idx := range sheets {
			target := path
			if len(sheets) > 1 {
				target = numberedPath(path, i)
			}
			if err := exports.WriteCSV(ns.DFs[idx], target); err != nil {
				return nil, nil, err
			}
		}
	case "excel":
		dfs := make([]*frame.DataFrame, len(sheets))
		names := make([]string, len(sheets))
		for i, idx := range sheets {
			dfs[i] = ns.DFs[idx]
			names[i] = ns.Metas[idx].DFName
		}
		if err := exports.WriteXLSX(dfs, names, path); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, errs.UserConfig("bad_export_type",
			"export type must be csv or excel, got %q", kind)
	}
	return ns, nil, nil
}

func (exportToFile) Transpile(step *Step) []chunks.Chunk {
	kind := step.Params.StrOr("type", "csv")
	path := step.Params.StrOr("file_name", "")
	sheets, err := exportSheets(step.Prev, step.Params)
	if err != nil {
		return nil
	}

	var lines []string
	switch kind {
	case "excel":
		lines = append(lines, fmt.Sprintf("with pd.ExcelWriter(%s) as writer:", pyRawString(path)))
		for _, idx := range sheets {
			name := step.Prev.Metas[idx].DFName
			lines = append(lines, fmt.Sprintf("    %s.to_excel(writer, sheet_name=%s, index=False)",
				name, values.PyString(name)))
		}
	default:
		for i, idx := range sheets {
			target := path
			if len(sheets) > 1 {
				target = numberedPath(path, i)
			}
			lines = append(lines, fmt.Sprintf("%s.to_csv(%s, index=False)",
				step.Prev.Metas[idx].DFName, pyRawString(target)))
		}
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:    chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:    "Exported to file",
		Desc:    fmt.Sprintf("Exported %d sheets to %s", len(sheets), filepath.Base(path)),
		Lines:   lines,
		Imp:     []string{"import pandas as pd"},
		Sources: sheets,
		AtEnd:   true,
	}}
}

func exportSheets(s *state.State, p Params) ([]int, error) {
	raw, ok := p["sheet_indexes"].([]any)
	if !ok {
		if ints, ok2 := p["sheet_indexes"].([]int); ok2 {
			return append([]int(nil), ints...), nil
		}
		return nil, badParam("sheet_indexes", "a list of sheet indexes")
	}
	out := make([]int, 0, len(raw))
	for _, e := range raw {
		idx := intFromAny(e, -1)
		if idx < 0 || idx >= s.NumSheets() {
			return nil, badParam("sheet_indexes", "valid sheet indexes")
		}
		out = append(out, idx)
	}
	return out, nil
}

func numberedPath(path string, i int) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + fmt.Sprintf("_%d", i) + ext
}
