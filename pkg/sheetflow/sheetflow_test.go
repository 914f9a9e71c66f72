package sheetflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetflow/internal/config"
	"sheetflow/internal/frame"
	"sheetflow/internal/imports"
	"sheetflow/internal/values"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConstructEditEmit(t *testing.T) {
	path := writeCSV(t, "sales.csv", "Region,Amount\nwest,3\neast,1\nnorth,2\n")

	a, err := Construct(context.Background(), []any{path}, Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, a.Name())

	var shared map[string]any
	blob, err := a.SharedState()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(blob, &shared))
	sheets := shared["sheets"].([]any)
	require.Len(t, sheets, 1)

	// Column IDs come from the shared state, as a shell would read them.
	sheet := sheets[0].(map[string]any)
	cols := sheet["columns"].([]any)
	amountID := cols[1].(map[string]any)["column_id"].(string)

	require.NoError(t, a.ReceiveEdit("sort_edit", "s1", map[string]any{
		"sheet_index":    0,
		"column_id":      amountID,
		"sort_direction": "ascending",
	}))

	code, _, err := a.EmitCode()
	require.NoError(t, err)
	assert.Contains(t, code, "pd.read_csv")
	assert.Contains(t, code, "sort_values")

	assert.Equal(t, []string{path}, a.ParamArgs())
}

func TestUndoRedoUpdates(t *testing.T) {
	path := writeCSV(t, "t.csv", "A\n2\n1\n")
	a, err := Construct(context.Background(), []any{path}, Options{})
	require.NoError(t, err)

	require.NoError(t, a.ReceiveEdit("add_column", "s1", map[string]any{
		"sheet_index":   0,
		"column_header": "B",
	}))
	require.NoError(t, a.ReceiveUpdate("undo", nil))

	// The sheet reverts; the canonical step list keeps the undone step,
	// flagged as skipped.
	var afterUndo struct {
		Sheets []struct {
			Columns []struct {
				Header string `json:"column_header"`
			} `json:"columns"`
		} `json:"sheets"`
		Steps []struct {
			Type    string `json:"step_type"`
			Skipped bool   `json:"skipped"`
		} `json:"steps"`
	}
	blob, err := a.SharedState()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(blob, &afterUndo))
	require.Len(t, afterUndo.Sheets, 1)
	for _, col := range afterUndo.Sheets[0].Columns {
		assert.NotEqual(t, "B", col.Header)
	}
	require.Len(t, afterUndo.Steps, 2)
	assert.Equal(t, "add_column", afterUndo.Steps[1].Type)
	assert.True(t, afterUndo.Steps[1].Skipped)

	require.NoError(t, a.ReceiveUpdate("redo", nil))
	require.NoError(t, a.ReceiveUpdate("render_count_update", nil))

	var shared map[string]any
	blob, err = a.SharedState()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(blob, &shared))
	assert.Equal(t, float64(1), shared["render_count"])
}

func TestSaveAndReplayUpdates(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	path := writeCSV(t, "in.csv", "A\n3\n1\n2\n")

	a, err := Construct(context.Background(), []any{path}, Options{})
	require.NoError(t, err)
	require.NoError(t, a.ReceiveEdit("add_column", "s1", map[string]any{
		"sheet_index":   0,
		"column_header": "B",
	}))
	require.NoError(t, a.ReceiveUpdate("save_analysis", map[string]any{
		"analysis_name": "my-pipeline",
	}))

	b, err := Construct(context.Background(), []any{path}, Options{})
	require.NoError(t, err)
	require.NoError(t, b.ReceiveUpdate("replay_analysis", map[string]any{
		"analysis_name": "my-pipeline",
	}))

	blob, err := b.SharedState()
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"column_header":"B"`)
}

func TestUserDefinedImportHook(t *testing.T) {
	df, err := frame.New([]string{"N"}, []*frame.Series{
		frame.NewSeries(values.TypeInt, []values.Value{values.Int(42)}),
	})
	require.NoError(t, err)

	a, err := Construct(context.Background(), nil, Options{
		Importers: map[string]imports.ImporterFunc{
			"load_fixture": func() (*frame.DataFrame, error) { return df, nil },
		},
	})
	require.NoError(t, err)

	require.NoError(t, a.ReceiveEdit("user_defined_import", "s1", map[string]any{
		"importer": "load_fixture",
	}))
	blob, err := a.SharedState()
	require.NoError(t, err)
	assert.Contains(t, string(blob), "load_fixture")
}

func TestNamedDataframeInput(t *testing.T) {
	df, err := frame.New([]string{"A"}, []*frame.Series{
		frame.NewSeries(values.TypeInt, []values.Value{values.Int(1)}),
	})
	require.NoError(t, err)

	a, err := Construct(context.Background(), []any{"orders"}, Options{
		Dataframes: map[string]*frame.DataFrame{"orders": df},
	})
	require.NoError(t, err)

	blob, err := a.SharedState()
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"df_name":"orders"`)
}

func TestAnalysesKeepSeparateEnvironments(t *testing.T) {
	sales, err := frame.New([]string{"A"}, []*frame.Series{
		frame.NewSeries(values.TypeInt, []values.Value{values.Int(1)}),
	})
	require.NoError(t, err)
	costs, err := frame.New([]string{"B"}, []*frame.Series{
		frame.NewSeries(values.TypeInt, []values.Value{values.Int(2)}),
	})
	require.NoError(t, err)

	first, err := Construct(context.Background(), []any{"sales"}, Options{
		Dataframes: map[string]*frame.DataFrame{"sales": sales},
	})
	require.NoError(t, err)
	_, err = Construct(context.Background(), []any{"costs"}, Options{
		Dataframes: map[string]*frame.DataFrame{"costs": costs},
	})
	require.NoError(t, err)

	// Clearing the first analysis re-runs its import step, which must
	// resolve against its own dataframes, not the second's.
	require.NoError(t, first.ReceiveUpdate("clear", nil))
	blob, err := first.SharedState()
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"df_name":"sales"`)
}

func TestUnknownUpdateFails(t *testing.T) {
	a, err := Construct(context.Background(), nil, Options{})
	require.NoError(t, err)
	err = a.ReceiveUpdate("defragment", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_update_type")
}

func TestSetUserFieldUpdate(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	a, err := Construct(context.Background(), nil, Options{})
	require.NoError(t, err)

	require.NoError(t, a.ReceiveUpdate("set_user_field", map[string]any{
		"field": "email",
		"value": "ana@example.com",
	}))

	profile, err := config.LoadUserProfile()
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", profile.Fields["email"])
}

func TestCodeOptionsUpdate(t *testing.T) {
	path := writeCSV(t, "c.csv", "A\n1\n")
	a, err := Construct(context.Background(), []any{path}, Options{})
	require.NoError(t, err)

	require.NoError(t, a.ReceiveUpdate("code_options_update", map[string]any{
		"as_function":   true,
		"function_name": "load_sales",
	}))

	code, _, err := a.EmitCode()
	require.NoError(t, err)
	assert.Contains(t, code, "def load_sales(")
}

func TestUserDefinedImportHookName(t *testing.T) {
	// A named dataframe used as a string input shows up as a script
	// parameter candidate.
	df, err := frame.New([]string{"A"}, []*frame.Series{
		frame.NewSeries(values.TypeInt, []values.Value{values.Int(1)}),
	})
	require.NoError(t, err)
	a, err := Construct(context.Background(), []any{"orders"}, Options{
		Dataframes: map[string]*frame.DataFrame{"orders": df},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, a.ParamArgs())
}
