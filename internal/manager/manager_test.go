package manager

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sheetflow/internal/frame"
	"sheetflow/internal/state"
	"sheetflow/internal/steps"
	"sheetflow/internal/values"
)

func TestMain(m *testing.M) {
	// Ignore goroutines that exist before any test runs: the keyring
	// dependency (via gosnowflake) opens a dbus connection in init().
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	df, err := frame.New(
		[]string{"A"},
		[]*frame.Series{frame.NewSeries(values.TypeInt, []values.Value{
			values.Int(3), values.Int(1), values.Int(2),
		})},
	)
	require.NoError(t, err)
	s, err := state.New([]*frame.DataFrame{df}, []string{"df1"}, state.SourcePassed)
	require.NoError(t, err)
	return New(s, nil, DefaultCodeOptions())
}

func columnID(t *testing.T, m *Manager, sheet int, header string) string {
	t.Helper()
	id, err := m.CurrState().Metas[sheet].Columns.IDFor(header)
	require.NoError(t, err)
	return id
}

func intColumn(t *testing.T, m *Manager, sheet int, header string) []int64 {
	t.Helper()
	col := m.CurrState().DFs[sheet].Col(header)
	require.NotNil(t, col, "column %q", header)
	out := make([]int64, len(col.Cells))
	for i, c := range col.Cells {
		out[i] = c.IntVal()
	}
	return out
}

func TestHandleEditCommitsStep(t *testing.T) {
	m := newTestManager(t)

	err := m.HandleEdit("add_column_edit", "s1", steps.Params{
		"sheet_index":         0,
		"column_header":       "B",
		"column_header_index": 1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, m.CurrState().DFs[0].Headers)
	assert.Equal(t, 1, m.CursorIndex())
	sums := m.StepSummaries()
	require.Len(t, sums, 1)
	assert.Equal(t, "add_column", sums[0].Type)
	assert.Equal(t, "s1", sums[0].ID)
	assert.False(t, sums[0].Skip)
}

func TestHandleEditFailureLeavesHistoryUntouched(t *testing.T) {
	m := newTestManager(t)
	before := m.CurrState()

	err := m.HandleEdit("add_column", "s1", steps.Params{
		"sheet_index":   5,
		"column_header": "B",
	})
	require.Error(t, err)
	assert.Same(t, before, m.CurrState())
	assert.Empty(t, m.StepSummaries())
}

func TestRefinableEditReplacesTailStep(t *testing.T) {
	m := newTestManager(t)
	colID := columnID(t, m, 0, "A")

	require.NoError(t, m.HandleEdit("sort", "s1", steps.Params{
		"sheet_index":    0,
		"column_id":      colID,
		"sort_direction": "ascending",
	}))
	assert.Equal(t, []int64{1, 2, 3}, intColumn(t, m, 0, "A"))

	// Same step ID with new params refines in place.
	require.NoError(t, m.HandleEdit("sort", "s1", steps.Params{
		"sheet_index":    0,
		"column_id":      colID,
		"sort_direction": "descending",
	}))
	assert.Equal(t, []int64{3, 2, 1}, intColumn(t, m, 0, "A"))
	assert.Len(t, m.AppliedSteps(), 1)
	assert.Equal(t, 1, m.CursorIndex())
}

func TestNonRefinableEditAppendsEvenWithSameID(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.HandleEdit("add_column", "s1", steps.Params{
		"sheet_index":   0,
		"column_header": "B",
	}))
	require.NoError(t, m.HandleEdit("add_column", "s1", steps.Params{
		"sheet_index":   0,
		"column_header": "C",
	}))
	assert.Len(t, m.AppliedSteps(), 2)
	assert.Equal(t, []string{"A", "B", "C"}, m.CurrState().DFs[0].Headers)
}

func TestUndoRedoRestoresState(t *testing.T) {
	m := newTestManager(t)
	colID := columnID(t, m, 0, "A")

	require.NoError(t, m.HandleEdit("sort", "s1", steps.Params{
		"sheet_index": 0,
		"column_id":   colID,
	}))
	sorted := intColumn(t, m, 0, "A")

	require.NoError(t, m.Undo())
	assert.Equal(t, []int64{3, 1, 2}, intColumn(t, m, 0, "A"))
	assert.Equal(t, 0, m.CursorIndex())
	assert.Empty(t, m.AppliedSteps())

	require.NoError(t, m.Redo())
	assert.Equal(t, sorted, intColumn(t, m, 0, "A"))
	assert.Equal(t, 1, m.CursorIndex())
	assert.Len(t, m.AppliedSteps(), 1)
}

func TestUndoAtInitialStateFails(t *testing.T) {
	m := newTestManager(t)
	err := m.Undo()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing_to_undo")
}

func TestNewEditDiscardsUndoneSteps(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.HandleEdit("add_column", "s1", steps.Params{
		"sheet_index":   0,
		"column_header": "B",
	}))
	require.NoError(t, m.Undo())
	require.NoError(t, m.HandleEdit("add_column", "s2", steps.Params{
		"sheet_index":   0,
		"column_header": "C",
	}))

	assert.Equal(t, []string{"A", "C"}, m.CurrState().DFs[0].Headers)
	err := m.Redo()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing_to_redo")
}

func TestCheckoutKeepsHistory(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.HandleEdit("add_column", "s1", steps.Params{
		"sheet_index":   0,
		"column_header": "B",
	}))
	require.NoError(t, m.HandleEdit("add_column", "s2", steps.Params{
		"sheet_index":   0,
		"column_header": "C",
	}))

	require.NoError(t, m.Checkout(1))
	assert.Equal(t, []string{"A", "B"}, m.CurrState().DFs[0].Headers)
	assert.Len(t, m.StepSummaries(), 2)

	require.NoError(t, m.Checkout(2))
	assert.Equal(t, []string{"A", "B", "C"}, m.CurrState().DFs[0].Headers)

	err := m.Checkout(7)
	require.Error(t, err)
}

func TestDeleteStepsAfterTrims(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.HandleEdit("add_column", "s1", steps.Params{
		"sheet_index":   0,
		"column_header": "B",
	}))
	require.NoError(t, m.HandleEdit("add_column", "s2", steps.Params{
		"sheet_index":   0,
		"column_header": "C",
	}))

	require.NoError(t, m.DeleteStepsAfter(1))
	assert.Equal(t, []string{"A", "B"}, m.CurrState().DFs[0].Headers)
	assert.Len(t, m.StepSummaries(), 1)
}

func TestClearDropsEdits(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.HandleEdit("add_column", "s1", steps.Params{
		"sheet_index":   0,
		"column_header": "B",
	}))
	require.NoError(t, m.Clear())

	assert.Equal(t, []string{"A"}, m.CurrState().DFs[0].Headers)
	assert.Empty(t, m.AppliedSteps())
}

func TestClearHistoryThenUndoReplays(t *testing.T) {
	m := newTestManager(t)
	colID := columnID(t, m, 0, "A")

	require.NoError(t, m.HandleEdit("add_column", "s1", steps.Params{
		"sheet_index":   0,
		"column_header": "B",
	}))
	require.NoError(t, m.HandleEdit("sort", "s2", steps.Params{
		"sheet_index": 0,
		"column_id":   colID,
	}))
	m.ClearHistory()

	assert.Equal(t, []int64{1, 2, 3}, intColumn(t, m, 0, "A"))

	// Undo re-executes the surviving prefix to find the prior state.
	require.NoError(t, m.Undo())
	assert.Equal(t, []int64{3, 1, 2}, intColumn(t, m, 0, "A"))
	assert.Equal(t, []string{"A", "B"}, m.CurrState().DFs[0].Headers)
}

func TestExecuteStepsDataUpgradesAndReplays(t *testing.T) {
	m := newTestManager(t)
	colID := columnID(t, m, 0, "A")

	err := m.ExecuteStepsData([]steps.StepRecord{
		{
			ID:      "r1",
			Type:    "change_column_dtype",
			Version: 3, // old shape: single column_id
			Params: map[string]any{
				"sheet_index": 0,
				"column_id":   colID,
				"new_dtype":   "string",
			},
		},
	})
	require.NoError(t, err)

	applied := m.AppliedSteps()
	require.Len(t, applied, 1)
	assert.Equal(t, 4, applied[0].Version)
	cell := m.CurrState().DFs[0].Col("A").Cells[0]
	assert.Equal(t, values.TypeString, cell.Kind())
}

func TestExecuteStepsDataStopsOnFirstError(t *testing.T) {
	m := newTestManager(t)

	err := m.ExecuteStepsData([]steps.StepRecord{
		{ID: "r1", Type: "add_column", Version: 2, Params: map[string]any{
			"sheet_index": 0, "column_header": "B",
		}},
		{ID: "r2", Type: "add_column", Version: 2, Params: map[string]any{
			"sheet_index": 9, "column_header": "C",
		}},
	})
	require.Error(t, err)
	// The first step stays committed.
	assert.Equal(t, []string{"A", "B"}, m.CurrState().DFs[0].Headers)
}

func TestEmitCodePlainScript(t *testing.T) {
	m := newTestManager(t)
	colID := columnID(t, m, 0, "A")

	require.NoError(t, m.HandleEdit("sort", "s1", steps.Params{
		"sheet_index":    0,
		"column_id":      colID,
		"sort_direction": "descending",
	}))

	code, params, err := m.EmitCode()
	require.NoError(t, err)
	assert.Empty(t, params)
	assert.Contains(t, code,
		"df1 = df1.sort_values(by='A', ascending=False, na_position='last')")
	// Comments are on by default.
	assert.Contains(t, code, "# ")
}

func TestEmitCodeFunctionWrapper(t *testing.T) {
	m := newTestManager(t)
	colID := columnID(t, m, 0, "A")
	m.SetCodeOptions(CodeOptions{
		AsFunction:     true,
		FunctionName:   "run_pipeline",
		FunctionParams: map[string]string{"df_path": "data.csv"},
		CallFunction:   true,
	})

	require.NoError(t, m.HandleEdit("sort", "s1", steps.Params{
		"sheet_index": 0,
		"column_id":   colID,
	}))

	code, params, err := m.EmitCode()
	require.NoError(t, err)
	assert.Equal(t, []string{"df_path"}, params)

	lines := strings.Split(code, "\n")
	assert.Contains(t, lines, "def run_pipeline(df_path):")
	assert.Contains(t, lines, "    return df1")
	assert.Contains(t, lines, "df1 = run_pipeline('data.csv')")
}

func TestEmitCodeAfterClearHistory(t *testing.T) {
	m := newTestManager(t)
	colID := columnID(t, m, 0, "A")

	require.NoError(t, m.HandleEdit("sort", "s1", steps.Params{
		"sheet_index": 0,
		"column_id":   colID,
	}))
	m.ClearHistory()

	code, _, err := m.EmitCode()
	require.NoError(t, err)
	assert.Contains(t, code, "sort_values")
}

func TestRenderCounter(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, 0, m.RenderCount())
	m.BumpRenderCount()
	m.BumpRenderCount()
	assert.Equal(t, 2, m.RenderCount())
}
