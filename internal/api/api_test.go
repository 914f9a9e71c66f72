package api

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetflow/internal/frame"
	"sheetflow/internal/manager"
	"sheetflow/internal/state"
	"sheetflow/internal/steps"
	"sheetflow/internal/values"
)

func newTestAPI(t *testing.T) (*API, *manager.Manager) {
	t.Helper()
	df, err := frame.New(
		[]string{"Name", "Score"},
		[]*frame.Series{
			frame.NewSeries(values.TypeString, []values.Value{
				values.String("ada"), values.String("bob"), values.String("ada lovelace"),
			}),
			frame.NewSeries(values.TypeFloat, []values.Value{
				values.Float(1.5), values.NaN(), values.Float(3.5),
			}),
		},
	)
	require.NoError(t, err)
	s, err := state.New([]*frame.DataFrame{df}, []string{"df1"}, state.SourcePassed)
	require.NoError(t, err)
	m := manager.New(s, nil, manager.DefaultCodeOptions())
	return New(m, t.TempDir()), m
}

func colID(t *testing.T, m *manager.Manager, header string) string {
	t.Helper()
	id, err := m.CurrState().Metas[0].Columns.IDFor(header)
	require.NoError(t, err)
	return id
}

func TestColumnDtypeQuery(t *testing.T) {
	a, m := newTestAPI(t)
	got, err := a.Query(context.Background(), "get_column_dtype", steps.Params{
		"sheet_index": 0,
		"column_id":   colID(t, m, "Score"),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"dtype": "float"}, got)
}

func TestSummaryStatsQuery(t *testing.T) {
	a, m := newTestAPI(t)
	got, err := a.Query(context.Background(), "get_column_summary_stats", steps.Params{
		"sheet_index": 0,
		"column_id":   colID(t, m, "Score"),
	})
	require.NoError(t, err)
	stats := got.(SummaryStats)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 1, stats.NullCount)
	assert.Equal(t, 2, stats.UniqueCount)
	require.NotNil(t, stats.Mean)
	assert.InDelta(t, 2.5, *stats.Mean, 1e-9)
	assert.Equal(t, 1.5, *stats.Min)
	assert.Equal(t, 3.5, *stats.Max)
}

func TestSearchMatchesQuery(t *testing.T) {
	a, _ := newTestAPI(t)
	got, err := a.Query(context.Background(), "get_search_matches", steps.Params{
		"sheet_index":  0,
		"search_value": "ada",
	})
	require.NoError(t, err)
	res := got.(SearchResult)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []SearchMatch{{Row: 0, Col: 0}, {Row: 2, Col: 0}}, res.Matches)

	// Header matches come back as row -1.
	got, err = a.Query(context.Background(), "get_search_matches", steps.Params{
		"sheet_index":  0,
		"search_value": "score",
	})
	require.NoError(t, err)
	res = got.(SearchResult)
	assert.Equal(t, []SearchMatch{{Row: -1, Col: 1}}, res.Matches)
}

func TestImportableFilesQuery(t *testing.T) {
	df, err := frame.New([]string{"A"}, []*frame.Series{
		frame.NewSeries(values.TypeInt, []values.Value{values.Int(1)}),
	})
	require.NoError(t, err)
	s, err := state.New([]*frame.DataFrame{df}, []string{"df1"}, state.SourcePassed)
	require.NoError(t, err)
	m := manager.New(s, nil, manager.DefaultCodeOptions())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte("A\n1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644))

	a := New(m, dir)
	got, err := a.Query(context.Background(), "get_importable_files", nil)
	require.NoError(t, err)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(data), "data.csv")
	assert.NotContains(t, string(data), "notes.md")
}

func TestCSVSniffQuery(t *testing.T) {
	a, _ := newTestAPI(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "semi.csv")
	require.NoError(t, os.WriteFile(path, []byte("a;b\n1;2\n3;4\n"), 0o644))

	got, err := a.Query(context.Background(), "get_csv_sniff", steps.Params{
		"file_name": path,
	})
	require.NoError(t, err)
	sniff := got.(CSVSniff)
	assert.Equal(t, ";", sniff.Delimiter)
	assert.NotEmpty(t, sniff.Encoding)
}

func TestUnknownQueryFails(t *testing.T) {
	a, _ := newTestAPI(t)
	_, err := a.Query(context.Background(), "get_moon_phase", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_api_call")
}

func TestSharedStatePagination(t *testing.T) {
	a, m := newTestAPI(t)
	_ = a

	ss := BuildSharedState(m, 1, 1)
	require.Len(t, ss.Sheets, 1)
	sheet := ss.Sheets[0]
	assert.Equal(t, 3, sheet.TotalRows)
	assert.Equal(t, 1, sheet.RowOffset)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "bob", sheet.Rows[0][0].Str())

	// NaN cells render as the placeholder in JSON.
	data, err := json.Marshal(sheet)
	require.NoError(t, err)
	assert.Contains(t, string(data), values.NaNPlaceholder)
}

func TestSharedStateColumns(t *testing.T) {
	_, m := newTestAPI(t)
	require.NoError(t, m.HandleEdit("add_column", "s1", steps.Params{
		"sheet_index":   0,
		"column_header": "Extra",
	}))

	ss := BuildSharedState(m, 0, 0)
	sheet := ss.Sheets[0]
	require.Len(t, sheet.Columns, 3)
	assert.Equal(t, "Name", sheet.Columns[0].Header)
	assert.NotEmpty(t, sheet.Columns[0].ID)
	assert.Equal(t, "df1", sheet.DFName)
	assert.Len(t, ss.Steps, 1)
	assert.Equal(t, 1, ss.CursorIndex)
}
