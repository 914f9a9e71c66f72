package imports

import (
	"sort"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"sheetflow/internal/columns"
	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
)

// ImporterFunc produces a dataframe from nothing; the host closes over
// whatever it needs.
type ImporterFunc func() (*frame.DataFrame, error)

// EditFunc transforms one dataframe with the step's declared params.
type EditFunc func(df *frame.DataFrame, params map[string]any) (*frame.DataFrame, error)

// UserDefs holds the callables the host registered at pipeline
// construction. Names are the discriminators step params carry.
type UserDefs struct {
	importers map[string]ImporterFunc
	edits     map[string]EditFunc
}

// NewUserDefs returns an empty registry.
func NewUserDefs() *UserDefs {
	return &UserDefs{
		importers: make(map[string]ImporterFunc),
		edits:     make(map[string]EditFunc),
	}
}

// RegisterImporter binds a named importer.
func (u *UserDefs) RegisterImporter(name string, fn ImporterFunc) {
	u.importers[name] = fn
}

// RegisterEdit binds a named edit.
func (u *UserDefs) RegisterEdit(name string, fn EditFunc) {
	u.edits[name] = fn
}

// Importer resolves a named importer.
func (u *UserDefs) Importer(name string) (ImporterFunc, error) {
	fn, ok := u.importers[name]
	if !ok {
		return nil, errs.UserConfig("unknown_importer",
			"no importer named %q is registered", name)
	}
	return fn, nil
}

// Edit resolves a named edit.
func (u *UserDefs) Edit(name string) (EditFunc, error) {
	fn, ok := u.edits[name]
	if !ok {
		return nil, errs.UserConfig("unknown_edit",
			"no user-defined edit named %q is registered", name)
	}
	return fn, nil
}

// ImporterNames lists registered importers, sorted.
func (u *UserDefs) ImporterNames() []string {
	return sortedKeysImporter(u.importers)
}

// EditNames lists registered edits, sorted.
func (u *UserDefs) EditNames() []string {
	out := make([]string, 0, len(u.edits))
	for n := range u.edits {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func sortedKeysImporter(m map[string]ImporterFunc) []string {
	out := make([]string, 0, len(m))
	for n := range m {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// transformSignature is the contract a snippet must define.
type transformSignature = func(headers []string, rows [][]string) ([]string, [][]string, error)

// RunSnippet evaluates an interpreted Go snippet against a dataframe.
// The snippet must define
//
//	func Transform(headers []string, rows [][]string) ([]string, [][]string, error)
//
// and gets the sheet as string records; the returned records are
// re-inferred into typed columns. AI-transformation steps store their
// generated snippet in params and replay through here.
func RunSnippet(src string, df *frame.DataFrame) (*frame.DataFrame, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, errs.Invariant("interp_init_failed", "interpreter setup: %v", err)
	}
	if _, err := i.Eval(src); err != nil {
		return nil, errs.UserConfig("snippet_invalid",
			"transformation snippet does not compile").WithCause(err)
	}
	v, err := i.Eval("Transform")
	if err != nil {
		return nil, errs.UserConfig("snippet_missing_transform",
			"transformation snippet must define Transform").WithCause(err)
	}
	fn, ok := v.Interface().(transformSignature)
	if !ok {
		return nil, errs.UserConfig("snippet_bad_signature",
			"Transform must be func(headers []string, rows [][]string) ([]string, [][]string, error)")
	}

	headers := append([]string(nil), df.Headers...)
	rows := make([][]string, df.NumRows())
	for r := range rows {
		row := make([]string, df.NumCols())
		for c, col := range df.Cols {
			row[c] = col.Cells[r].String()
		}
		rows[r] = row
	}

	outHeaders, outRows, err := fn(headers, rows)
	if err != nil {
		return nil, errs.UserConfig("snippet_failed", "transformation failed").WithCause(err)
	}
	outHeaders = columns.DeduplicateHeaders(outHeaders)
	return frame.FromRecords(outHeaders, outRows)
}
