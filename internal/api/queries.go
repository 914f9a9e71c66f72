package api

import (
	"context"
	"sort"
	"strings"

	"sheetflow/internal/errs"
	"sheetflow/internal/imports"
	"sheetflow/internal/logging"
	"sheetflow/internal/manager"
	"sheetflow/internal/steps"
)

// API answers read-only queries against one analysis.
type API struct {
	mgr     *manager.Manager
	workdir string

	// openSnowflake is swappable for tests and hosts with pooled
	// connections; nil falls back to environment credentials.
	openSnowflake func(ctx context.Context) (*imports.SnowflakeConn, error)
}

// New builds the query surface. Workdir is where importable files are
// looked for; empty means the process working directory.
func New(mgr *manager.Manager, workdir string) *API {
	if workdir == "" {
		workdir = "."
	}
	return &API{mgr: mgr, workdir: workdir}
}

// SetSnowflakeOpener overrides how warehouse connections are opened.
func (a *API) SetSnowflakeOpener(fn func(ctx context.Context) (*imports.SnowflakeConn, error)) {
	a.openSnowflake = fn
}

// SummaryStats describes one column. Numeric aggregates are nil for
// non-numeric columns.
type SummaryStats struct {
	DType       string   `json:"dtype"`
	Count       int      `json:"count"`
	NullCount   int      `json:"null_count"`
	UniqueCount int      `json:"unique_count"`
	Mean        *float64 `json:"mean,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
}

// SearchMatch is one matching cell. Row -1 marks a header match.
type SearchMatch struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// SearchResult lists every coordinate whose rendered text contains the
// search string, case-insensitively.
type SearchResult struct {
	Matches []SearchMatch `json:"matches"`
	Total   int           `json:"total"`
}

// CSVSniff is the guessed shape of a CSV file.
type CSVSniff struct {
	Delimiter string `json:"delimeter"`
	Encoding  string `json:"encoding"`
}

// SnowflakeOptions is the warehouse option catalog for the import
// dialog, filled as deep as the params select into it.
type SnowflakeOptions struct {
	Warehouses []string `json:"warehouses"`
	Databases  []string `json:"databases"`
	Schemas    []string `json:"schemas,omitempty"`
	Tables     []string `json:"tables,omitempty"`
	Columns    []string `json:"columns,omitempty"`
}

// Query dispatches one read-only api call.
func (a *API) Query(ctx context.Context, call string, params steps.Params) (any, error) {
	logging.Get(logging.CategoryAPI).Debugw("query", "call", call)
	switch call {
	case "get_column_dtype":
		return a.columnDtype(params)
	case "get_column_summary_stats":
		return a.summaryStats(params)
	case "get_search_matches":
		return a.searchMatches(params)
	case "get_importable_files":
		return a.importableFiles()
	case "get_excel_sheet_names":
		path, err := params.Str("file_name")
		if err != nil {
			return nil, err
		}
		return imports.SheetNames(path)
	case "get_csv_sniff":
		path, err := params.Str("file_name")
		if err != nil {
			return nil, err
		}
		delim, enc, err := imports.SniffCSV(path)
		if err != nil {
			return nil, err
		}
		return CSVSniff{Delimiter: delim, Encoding: enc}, nil
	case "get_snowflake_options":
		return a.snowflakeOptions(ctx, params)
	default:
		return nil, errs.UserConfig("unknown_api_call",
			"api call %q is not supported", call)
	}
}

// resolveColumn finds the sheet and header for the column params every
// per-column query shares.
func (a *API) resolveColumn(params steps.Params) (sheet int, header, colID string, err error) {
	sheet, err = params.Int("sheet_index")
	if err != nil {
		return 0, "", "", err
	}
	colID, err = params.Str("column_id")
	if err != nil {
		return 0, "", "", err
	}
	st := a.mgr.CurrState()
	if sheet < 0 || sheet >= st.NumSheets() {
		return 0, "", "", errs.UserConfig("bad_sheet_index",
			"sheet index %d out of range (have %d)", sheet, st.NumSheets())
	}
	header, err = st.Metas[sheet].Columns.HeaderFor(colID)
	if err != nil {
		return 0, "", "", err
	}
	return sheet, header, colID, nil
}

func (a *API) columnDtype(params steps.Params) (any, error) {
	sheet, header, colID, err := a.resolveColumn(params)
	if err != nil {
		return nil, err
	}
	st := a.mgr.CurrState()
	dt := columnDType(st.DFs[sheet].Col(header), st.Metas[sheet], colID)
	return map[string]string{"dtype": string(dt)}, nil
}

func (a *API) summaryStats(params steps.Params) (any, error) {
	sheet, header, colID, err := a.resolveColumn(params)
	if err != nil {
		return nil, err
	}
	st := a.mgr.CurrState()
	col := st.DFs[sheet].Col(header)

	stats := SummaryStats{
		DType: string(columnDType(col, st.Metas[sheet], colID)),
		Count: len(col.Cells),
	}
	uniq := map[string]bool{}
	var sum, minV, maxV float64
	numeric := 0
	for _, c := range col.Cells {
		if c.IsNull() {
			stats.NullCount++
			continue
		}
		uniq[c.String()] = true
		if f, ok := c.Float64(); ok {
			if numeric == 0 || f < minV {
				minV = f
			}
			if numeric == 0 || f > maxV {
				maxV = f
			}
			sum += f
			numeric++
		}
	}
	stats.UniqueCount = len(uniq)
	if numeric > 0 {
		mean := sum / float64(numeric)
		stats.Mean, stats.Min, stats.Max = &mean, &minV, &maxV
	}
	return stats, nil
}

func (a *API) searchMatches(params steps.Params) (any, error) {
	sheet, err := params.Int("sheet_index")
	if err != nil {
		return nil, err
	}
	needle, err := params.Str("search_value")
	if err != nil {
		return nil, err
	}
	st := a.mgr.CurrState()
	if sheet < 0 || sheet >= st.NumSheets() {
		return nil, errs.UserConfig("bad_sheet_index",
			"sheet index %d out of range (have %d)", sheet, st.NumSheets())
	}
	df := st.DFs[sheet]
	needle = strings.ToLower(needle)

	res := SearchResult{Matches: []SearchMatch{}}
	for c, h := range df.Headers {
		if strings.Contains(strings.ToLower(h), needle) {
			res.Matches = append(res.Matches, SearchMatch{Row: -1, Col: c})
		}
	}
	for c, s := range df.Cols {
		for r, cell := range s.Cells {
			if cell.IsNull() {
				continue
			}
			if strings.Contains(strings.ToLower(cell.String()), needle) {
				res.Matches = append(res.Matches, SearchMatch{Row: r, Col: c})
			}
		}
	}
	sort.Slice(res.Matches, func(i, j int) bool {
		if res.Matches[i].Row != res.Matches[j].Row {
			return res.Matches[i].Row < res.Matches[j].Row
		}
		return res.Matches[i].Col < res.Matches[j].Col
	})
	res.Total = len(res.Matches)
	return res, nil
}

func (a *API) importableFiles() (any, error) {
	idx, err := imports.NewFileIndex(a.workdir)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	return idx.List(), nil
}

func (a *API) snowflakeOptions(ctx context.Context, params steps.Params) (any, error) {
	open := a.openSnowflake
	if open == nil {
		open = func(ctx context.Context) (*imports.SnowflakeConn, error) {
			creds, err := imports.SnowflakeCredentialsFromEnv()
			if err != nil {
				return nil, err
			}
			return imports.ConnectSnowflake(ctx, creds)
		}
	}
	conn, err := open(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	out := SnowflakeOptions{}
	if out.Warehouses, err = conn.Warehouses(ctx); err != nil {
		return nil, err
	}
	if out.Databases, err = conn.Databases(ctx); err != nil {
		return nil, err
	}
	database := params.StrOr("database", "")
	if database == "" {
		return out, nil
	}
	if out.Schemas, err = conn.Schemas(ctx, database); err != nil {
		return nil, err
	}
	schema := params.StrOr("schema", "")
	if schema == "" {
		return out, nil
	}
	if out.Tables, err = conn.Tables(ctx, database, schema); err != nil {
		return nil, err
	}
	table := params.StrOr("table_or_view", "")
	if table == "" {
		return out, nil
	}
	out.Columns, err = conn.TableColumns(ctx, database, schema, table)
	return out, err
}
