// Package preprocess canonicalizes the inputs an analysis is
// constructed from. Raw dataframe values become initial sheets; string
// inputs — CSV or Excel paths, or names of host-registered dataframes —
// become pending import steps, so the emitted script re-reads them and
// a saved analysis can be retargeted onto new files.
package preprocess

import (
	"path/filepath"
	"strings"

	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
	"sheetflow/internal/state"
	"sheetflow/internal/steps"
)

// ImportStep is one pending import the manager should execute right
// after construction.
type ImportStep struct {
	Type   string
	Params steps.Params
}

// Result is the canonicalized construction input.
type Result struct {
	// State holds the raw dataframe inputs as initial sheets.
	State *state.State
	// Imports are the pending import steps for the string inputs, in
	// input order.
	Imports []ImportStep
	// Args holds the original string form of every input, aligned with
	// the inputs, empty for raw dataframe values.
	Args []string
	// ParamArgs lists the string inputs, in order: the arguments a
	// wrapped emitted script can take as parameters.
	ParamArgs []string
}

// Canonicalize sorts the inputs into initial sheets and pending
// imports. It does no file I/O itself; the import steps read the files
// when executed.
func Canonicalize(inputs []any) (*Result, error) {
	res := &Result{State: state.Empty()}
	for i, in := range inputs {
		switch x := in.(type) {
		case *frame.DataFrame:
			if _, err := res.State.AddDF(x, state.SourcePassed, "df"); err != nil {
				return nil, err
			}
			res.Args = append(res.Args, "")
		case string:
			res.Imports = append(res.Imports, classifyString(x))
			res.Args = append(res.Args, x)
			res.ParamArgs = append(res.ParamArgs, x)
		default:
			return nil, errs.UserConfig("bad_input",
				"input %d must be a dataframe or a string, got %T", i, in)
		}
	}
	return res, nil
}

// classifyString maps one string input to its import step kind by
// extension; anything that is not a tabular file path must resolve as a
// host dataframe name.
func classifyString(s string) ImportStep {
	switch strings.ToLower(filepath.Ext(s)) {
	case ".csv", ".tsv", ".txt":
		return ImportStep{
			Type:   "simple_import",
			Params: steps.Params{"file_names": []any{s}},
		}
	case ".xlsx", ".xlsm", ".xls":
		return ImportStep{
			Type:   "excel_import",
			Params: steps.Params{"file_name": s, "has_headers": true},
		}
	default:
		return ImportStep{
			Type:   "dataframe_import",
			Params: steps.Params{"df_names": []any{s}},
		}
	}
}
