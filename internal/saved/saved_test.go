package saved

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetflow/internal/config"
	"sheetflow/internal/frame"
	"sheetflow/internal/manager"
	"sheetflow/internal/state"
	"sheetflow/internal/steps"
	"sheetflow/internal/values"
)

func newManagerWithSheet(t *testing.T) *manager.Manager {
	t.Helper()
	df, err := frame.New(
		[]string{"My Col"},
		[]*frame.Series{frame.NewSeries(values.TypeInt, []values.Value{
			values.Int(3), values.Int(1), values.Int(2),
		})},
	)
	require.NoError(t, err)
	s, err := state.New([]*frame.DataFrame{df}, []string{"df1"}, state.SourcePassed)
	require.NoError(t, err)
	return manager.New(s, nil, manager.DefaultCodeOptions())
}

func colID(t *testing.T, m *manager.Manager, header string) string {
	t.Helper()
	id, err := m.CurrState().Metas[0].Columns.IDFor(header)
	require.NoError(t, err)
	return id
}

func TestSaveSubstitutesHeadersForIDs(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	m := newManagerWithSheet(t)

	require.NoError(t, m.HandleEdit("sort", "s1", steps.Params{
		"sheet_index": 0,
		"column_id":   colID(t, m, "My Col"),
	}))

	a, err := FromManager(m)
	require.NoError(t, err)
	require.Len(t, a.StepsData, 1)
	// The file carries the header text, not the minted ID.
	assert.Equal(t, "My Col", a.StepsData[0].Params["column_id"])
	assert.Equal(t, SchemaVersion, a.Version)
	assert.Equal(t, manager.PublicInterfaceVersion, a.PublicInterfaceVersion)
}

func TestSaveAfterClearHistorySubstitutesHeaders(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	m := newManagerWithSheet(t)

	require.NoError(t, m.HandleEdit("sort", "s1", steps.Params{
		"sheet_index": 0,
		"column_id":   colID(t, m, "My Col"),
	}))
	m.ClearHistory()

	a, err := FromManager(m)
	require.NoError(t, err)
	require.Len(t, a.StepsData, 1)
	assert.Equal(t, "My Col", a.StepsData[0].Params["column_id"])
}

func TestSaveLoadReplayRoundTrip(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	m := newManagerWithSheet(t)

	require.NoError(t, m.HandleEdit("sort", "s1", steps.Params{
		"sheet_index":    0,
		"column_id":      colID(t, m, "My Col"),
		"sort_direction": "descending",
	}))
	require.NoError(t, m.HandleEdit("add_column", "s2", steps.Params{
		"sheet_index":   0,
		"column_header": "B",
	}))

	a, err := FromManager(m)
	require.NoError(t, err)
	a.Name = "roundtrip"
	require.NoError(t, a.Save())

	loaded, err := Load("roundtrip")
	require.NoError(t, err)
	require.Len(t, loaded.StepsData, 2)

	fresh := newManagerWithSheet(t)
	require.NoError(t, Replay(fresh, loaded, nil))

	assert.Equal(t, "roundtrip", fresh.ReplayedFrom())
	if diff := cmp.Diff(m.CurrState().DFs[0].Headers, fresh.CurrState().DFs[0].Headers); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(cellInts(m.CurrState().DFs[0].Col("My Col").Cells),
		cellInts(fresh.CurrState().DFs[0].Col("My Col").Cells)); diff != "" {
		t.Errorf("cells mismatch (-want +got):\n%s", diff)
	}
}

func cellInts(cells []values.Value) []int64 {
	out := make([]int64, len(cells))
	for i, c := range cells {
		out[i] = c.IntVal()
	}
	return out
}

func TestLoadMissingAnalysis(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	_, err := Load("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis_not_found")
}

func TestLoadRejectsNewerInterface(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	a := &Analysis{
		Version:                SchemaVersion,
		PublicInterfaceVersion: manager.PublicInterfaceVersion + 1,
		Name:                   "future",
	}
	require.NoError(t, a.Save())

	_, err := Load("future")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis_too_new")
}

func TestListAndDelete(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())

	names, err := List()
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, n := range []string{"beta", "alpha"} {
		a := &Analysis{Version: SchemaVersion, Name: n}
		require.NoError(t, a.Save())
	}
	names, err = List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	require.NoError(t, Delete("alpha"))
	names, err = List()
	require.NoError(t, err)
	assert.Equal(t, []string{"beta"}, names)
}

func TestReplayRetargetsImports(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	dir := t.TempDir()
	first := filepath.Join(dir, "first.csv")
	second := filepath.Join(dir, "second.csv")
	require.NoError(t, os.WriteFile(first, []byte("X\n1\n2\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("X\n7\n8\n9\n"), 0o644))

	m := manager.New(state.Empty(), nil, manager.DefaultCodeOptions())
	require.NoError(t, m.HandleEdit("simple_import", "s1", steps.Params{
		"file_names": []any{first},
	}))
	a, err := FromManager(m)
	require.NoError(t, err)

	fresh := manager.New(state.Empty(), nil, manager.DefaultCodeOptions())
	require.NoError(t, Replay(fresh, a, []steps.Params{
		{"file_names": []any{second}},
	}))
	require.Equal(t, 1, fresh.CurrState().NumSheets())
	assert.Equal(t, 3, fresh.CurrState().DFs[0].NumRows())
}

func TestReplayUpgradesOldSteps(t *testing.T) {
	t.Setenv(config.FolderEnvVar, t.TempDir())
	m := newManagerWithSheet(t)

	a := &Analysis{
		Version:                SchemaVersion,
		PublicInterfaceVersion: manager.PublicInterfaceVersion,
		Name:                   "legacy",
		StepsData: []steps.StepRecord{{
			ID:      "r1",
			Type:    "change_column_dtype",
			Version: 3,
			Params: map[string]any{
				"sheet_index": 0,
				"column_id":   "My Col",
				"new_dtype":   "string",
			},
		}},
	}
	require.NoError(t, Replay(m, a, nil))
	cell := m.CurrState().DFs[0].Col("My Col").Cells[0]
	assert.Equal(t, values.TypeString, cell.Kind())
}
