package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetflow/internal/frame"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

func testState(t *testing.T) *state.State {
	t.Helper()
	df, err := frame.New(
		[]string{"A"},
		[]*frame.Series{frame.NewSeries(values.TypeInt, []values.Value{
			values.Int(1), values.Int(2), values.Int(3),
		})},
	)
	require.NoError(t, err)
	s, err := state.New([]*frame.DataFrame{df}, []string{"df1"}, state.SourcePassed)
	require.NoError(t, err)
	return s
}

func mustExecute(t *testing.T, prev *state.State, stepType string, p Params) (*state.State, map[string]any) {
	t.Helper()
	perf, err := Lookup(stepType)
	require.NoError(t, err)
	post, execData, err := perf.Execute(prev, p)
	require.NoError(t, err)
	return post, execData
}

func intCells(t *testing.T, s *state.State, sheet int, header string) []int64 {
	t.Helper()
	col := s.DFs[sheet].Col(header)
	require.NotNil(t, col, "column %q", header)
	out := make([]int64, len(col.Cells))
	for i, c := range col.Cells {
		out[i] = c.IntVal()
	}
	return out
}

// floatCells reads a column as float64s; formula results are always
// float-typed.
func floatCells(t *testing.T, s *state.State, sheet int, header string) []float64 {
	t.Helper()
	col := s.DFs[sheet].Col(header)
	require.NotNil(t, col, "column %q", header)
	out := make([]float64, len(col.Cells))
	for i, c := range col.Cells {
		f, ok := c.Float64()
		require.True(t, ok, "cell %d of %q is not numeric", i, header)
		out[i] = f
	}
	return out
}

func TestAddColumnThenFormula(t *testing.T) {
	prev := testState(t)

	after, execData := mustExecute(t, prev, "add_column", Params{
		"sheet_index":         0,
		"column_header":       "B",
		"column_header_index": 1,
	})
	colID, _ := execData["column_id"].(string)
	require.NotEmpty(t, colID)
	assert.Equal(t, []string{"A", "B"}, after.DFs[0].Headers)

	final, _ := mustExecute(t, after, "set_column_formula", Params{
		"sheet_index": 0,
		"column_id":   colID,
		"new_formula": "=A + 1",
	})
	assert.Equal(t, []float64{2, 3, 4}, floatCells(t, final, 0, "B"))

	// The previous states never see the edit.
	assert.Equal(t, []string{"A"}, prev.DFs[0].Headers)
	assert.Equal(t, []int64{0, 0, 0}, intCells(t, after, 0, "B"))
}

func TestSetCellValueRecomputesDownstream(t *testing.T) {
	s := testState(t)

	s, bData := mustExecute(t, s, "add_column", Params{
		"sheet_index": 0, "column_header": "B",
	})
	bID := bData["column_id"].(string)
	s, _ = mustExecute(t, s, "set_column_formula", Params{
		"sheet_index": 0, "column_id": bID, "new_formula": "=A * 2",
	})
	s, cData := mustExecute(t, s, "add_column", Params{
		"sheet_index": 0, "column_header": "C",
	})
	cID := cData["column_id"].(string)
	s, _ = mustExecute(t, s, "set_column_formula", Params{
		"sheet_index": 0, "column_id": cID, "new_formula": "=B + 1",
	})
	require.Equal(t, []float64{2, 4, 6}, floatCells(t, s, 0, "B"))
	require.Equal(t, []float64{3, 5, 7}, floatCells(t, s, 0, "C"))

	aID, err := s.Metas[0].Columns.IDFor("A")
	require.NoError(t, err)
	s, _ = mustExecute(t, s, "set_cell_value", Params{
		"sheet_index": 0,
		"column_id":   aID,
		"row_index":   0,
		"new_value":   "10",
	})
	assert.Equal(t, []int64{10, 2, 3}, intCells(t, s, 0, "A"))
	assert.Equal(t, []float64{20, 4, 6}, floatCells(t, s, 0, "B"))
	assert.Equal(t, []float64{21, 5, 7}, floatCells(t, s, 0, "C"))
}

func TestSetCellValueRejectsFormulaColumn(t *testing.T) {
	s := testState(t)
	s, bData := mustExecute(t, s, "add_column", Params{
		"sheet_index": 0, "column_header": "B",
	})
	bID := bData["column_id"].(string)
	s, _ = mustExecute(t, s, "set_column_formula", Params{
		"sheet_index": 0, "column_id": bID, "new_formula": "=A * 2",
	})

	perf, _ := Lookup("set_cell_value")
	_, _, err := perf.Execute(s, Params{
		"sheet_index": 0, "column_id": bID, "row_index": 0, "new_value": "9",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column_has_formula")
}

func TestStepModifiedSheetIndexes(t *testing.T) {
	prev := testState(t)
	aID, err := prev.Metas[0].Columns.IDFor("A")
	require.NoError(t, err)

	params := Params{"sheet_index": 0, "column_id": aID}
	post, execData := mustExecute(t, prev, "sort", params)
	st := &Step{
		Type: "sort", Params: params,
		Prev: prev, Post: post, ExecData: execData,
	}
	got, err := st.ModifiedSheetIndexes()
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got)

	dupParams := Params{"sheet_index": 0}
	post2, execData2 := mustExecute(t, post, "dataframe_duplicate", dupParams)
	dup := &Step{
		Type: "dataframe_duplicate", Params: dupParams,
		Prev: post, Post: post2, ExecData: execData2,
	}
	got, err = dup.ModifiedSheetIndexes()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, got)
}

func TestRenameColumnRewritesFormulas(t *testing.T) {
	s := testState(t)
	s, bData := mustExecute(t, s, "add_column", Params{
		"sheet_index": 0, "column_header": "B",
	})
	bID := bData["column_id"].(string)
	s, _ = mustExecute(t, s, "set_column_formula", Params{
		"sheet_index": 0, "column_id": bID, "new_formula": "=A * 2",
	})

	aID, err := s.Metas[0].Columns.IDFor("A")
	require.NoError(t, err)
	s, _ = mustExecute(t, s, "rename_column", Params{
		"sheet_index":       0,
		"column_id":         aID,
		"new_column_header": "Amount",
	})
	assert.Equal(t, "=Amount * 2", s.Metas[0].Formulas[bID])

	// The rewritten formula still recomputes.
	s, _ = mustExecute(t, s, "set_cell_value", Params{
		"sheet_index": 0, "column_id": aID, "row_index": 0, "new_value": "5",
	})
	assert.Equal(t, []float64{10, 4, 6}, floatCells(t, s, 0, "B"))
}

func TestDeleteColumnBlockedByDependent(t *testing.T) {
	s := testState(t)
	s, bData := mustExecute(t, s, "add_column", Params{
		"sheet_index": 0, "column_header": "B",
	})
	bID := bData["column_id"].(string)
	s, _ = mustExecute(t, s, "set_column_formula", Params{
		"sheet_index": 0, "column_id": bID, "new_formula": "=A * 2",
	})
	aID, _ := s.Metas[0].Columns.IDFor("A")

	perf, _ := Lookup("delete_column")
	_, _, err := perf.Execute(s, Params{
		"sheet_index": 0, "column_ids": []any{aID},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column_in_use")

	// Deleting both together is fine.
	after, _ := mustExecute(t, s, "delete_column", Params{
		"sheet_index": 0, "column_ids": []any{aID, bID},
	})
	assert.Empty(t, after.DFs[0].Headers)
}

func TestFormulaCycleRejected(t *testing.T) {
	s := testState(t)
	s, bData := mustExecute(t, s, "add_column", Params{
		"sheet_index": 0, "column_header": "B",
	})
	bID := bData["column_id"].(string)
	s, _ = mustExecute(t, s, "set_column_formula", Params{
		"sheet_index": 0, "column_id": bID, "new_formula": "=A * 2",
	})
	aID, _ := s.Metas[0].Columns.IDFor("A")

	perf, _ := Lookup("set_column_formula")
	_, _, err := perf.Execute(s, Params{
		"sheet_index": 0, "column_id": aID, "new_formula": "=B + 1",
	})
	require.Error(t, err)
}

func TestFilterStep(t *testing.T) {
	s := testState(t)
	aID, _ := s.Metas[0].Columns.IDFor("A")

	s, _ = mustExecute(t, s, "filter_column", Params{
		"sheet_index": 0,
		"column_id":   aID,
		"filters": map[string]any{
			"operator": "And",
			"filters": []any{
				map[string]any{"condition": CondGreater, "value": float64(1)},
			},
		},
	})
	assert.Equal(t, 2, s.DFs[0].NumRows())
	assert.Equal(t, []int64{2, 3}, intCells(t, s, 0, "A"))

	perf, _ := Lookup("filter_column")
	chs := perf.Transpile(&Step{
		Params: Params{
			"sheet_index": 0,
			"column_id":   aID,
			"filters": map[string]any{
				"operator": "And",
				"filters": []any{
					map[string]any{"condition": CondGreater, "value": float64(1)},
				},
			},
		},
		Prev:     s,
		Post:     s,
		ExecData: map[string]any{"header": "A"},
	})
	require.Len(t, chs, 1)
	require.Len(t, chs[0].Code(), 1)
	assert.Equal(t, "df1 = df1[(df1['A'] > 1)]", chs[0].Code()[0])
}

func TestFilterNaNFailsConditions(t *testing.T) {
	df, err := frame.New(
		[]string{"A"},
		[]*frame.Series{frame.NewSeries(values.TypeFloat, []values.Value{
			values.Float(1), values.NaN(), values.Float(3),
		})},
	)
	require.NoError(t, err)
	s, err := state.New([]*frame.DataFrame{df}, []string{"df1"}, state.SourcePassed)
	require.NoError(t, err)
	aID, _ := s.Metas[0].Columns.IDFor("A")

	// NaN fails a numeric predicate.
	after, _ := mustExecute(t, s, "filter_column", Params{
		"sheet_index": 0, "column_id": aID,
		"filters": map[string]any{"operator": "And", "filters": []any{
			map[string]any{"condition": CondGreaterEq, "value": float64(0)},
		}},
	})
	assert.Equal(t, 2, after.DFs[0].NumRows())

	// NaN passes only the empty condition.
	after, _ = mustExecute(t, s, "filter_column", Params{
		"sheet_index": 0, "column_id": aID,
		"filters": map[string]any{"operator": "And", "filters": []any{
			map[string]any{"condition": CondEmpty, "value": nil},
		}},
	})
	assert.Equal(t, 1, after.DFs[0].NumRows())
}

func TestSortStep(t *testing.T) {
	s := testState(t)
	aID, _ := s.Metas[0].Columns.IDFor("A")

	after, _ := mustExecute(t, s, "sort", Params{
		"sheet_index":    0,
		"column_id":      aID,
		"sort_direction": "descending",
	})
	assert.Equal(t, []int64{3, 2, 1}, intCells(t, after, 0, "A"))
	// Labels travel with their rows.
	assert.Equal(t, int64(2), after.DFs[0].Index[0].IntVal())
}

func TestDropDuplicatesStep(t *testing.T) {
	df, err := frame.New(
		[]string{"A"},
		[]*frame.Series{frame.NewSeries(values.TypeInt, []values.Value{
			values.Int(1), values.Int(1), values.Int(2),
		})},
	)
	require.NoError(t, err)
	s, err := state.New([]*frame.DataFrame{df}, []string{"df1"}, state.SourcePassed)
	require.NoError(t, err)
	aID, _ := s.Metas[0].Columns.IDFor("A")

	after, _ := mustExecute(t, s, "drop_duplicates", Params{
		"sheet_index": 0,
		"column_ids":  []any{aID},
		"keep":        "first",
	})
	assert.Equal(t, []int64{1, 2}, intCells(t, after, 0, "A"))
}

func TestChangeColumnDtype(t *testing.T) {
	s := testState(t)
	aID, _ := s.Metas[0].Columns.IDFor("A")

	after, _ := mustExecute(t, s, "change_column_dtype", Params{
		"sheet_index": 0,
		"column_ids":  []any{aID},
		"new_dtype":   "string",
	})
	col := after.DFs[0].Col("A")
	assert.Equal(t, values.TypeString, col.DType)
	assert.Equal(t, "1", col.Cells[0].Str())
	assert.Equal(t, values.TypeString, after.Metas[0].DTypes[aID])
}

func TestPromoteRowToHeader(t *testing.T) {
	df, err := frame.New(
		[]string{"Unnamed: 0", "Unnamed: 1"},
		[]*frame.Series{
			frame.NewSeries(values.TypeString, []values.Value{
				values.String("name"), values.String("alice"), values.String("bob"),
			}),
			frame.NewSeries(values.TypeString, []values.Value{
				values.String("age"), values.String("31"), values.String("a"),
			}),
		},
	)
	require.NoError(t, err)
	s, err := state.New([]*frame.DataFrame{df}, []string{"df1"}, state.SourcePassed)
	require.NoError(t, err)

	after, _ := mustExecute(t, s, "promote_row_to_header", Params{
		"sheet_index": 0,
		"row_index":   0,
	})
	assert.Equal(t, []string{"name", "age"}, after.DFs[0].Headers)
	assert.Equal(t, 2, after.DFs[0].NumRows())
	// The registry was rebuilt for the new headers.
	_, err = after.Metas[0].Columns.IDFor("name")
	assert.NoError(t, err)
}

func TestTransposeCreatesNewSheet(t *testing.T) {
	s := testState(t)
	after, execData := mustExecute(t, s, "transpose", Params{"sheet_index": 0})
	newIdx := execData["new_sheet_index"].(int)
	assert.Equal(t, 2, after.NumSheets())
	assert.Equal(t, "df1_transposed", after.Metas[newIdx].DFName)
	assert.Equal(t, 1, after.DFs[newIdx].NumRows())
	assert.Equal(t, 3, after.DFs[newIdx].NumCols())
}

func TestPivotStep(t *testing.T) {
	df, err := frame.New(
		[]string{"City", "Sales"},
		[]*frame.Series{
			frame.NewSeries(values.TypeString, []values.Value{
				values.String("NY"), values.String("SF"), values.String("NY"),
			}),
			frame.NewSeries(values.TypeInt, []values.Value{
				values.Int(10), values.Int(20), values.Int(5),
			}),
		},
	)
	require.NoError(t, err)
	s, err := state.New([]*frame.DataFrame{df}, []string{"df1"}, state.SourcePassed)
	require.NoError(t, err)
	cityID, _ := s.Metas[0].Columns.IDFor("City")
	salesID, _ := s.Metas[0].Columns.IDFor("Sales")

	after, execData := mustExecute(t, s, "pivot", Params{
		"sheet_index":              0,
		"pivot_rows_column_ids":    []any{cityID},
		"pivot_columns_column_ids": []any{},
		"values_column_ids_map":    map[string]any{salesID: []any{"sum"}},
		"pivot_filters":            []any{},
		"flatten_column_headers":   true,
	})
	newIdx := execData["new_sheet_index"].(int)
	out := after.DFs[newIdx]
	assert.Equal(t, 2, out.NumRows())
	assert.Equal(t, state.SourcePivoted, after.Metas[newIdx].Source)
	assert.Equal(t, "df1_pivot", after.Metas[newIdx].DFName)
}

func TestConcatStep(t *testing.T) {
	s := testState(t)
	s, execData := mustExecute(t, s, "dataframe_duplicate", Params{"sheet_index": 0})
	dupIdx := execData["new_sheet_index"].(int)

	after, concatData := mustExecute(t, s, "concat", Params{
		"sheet_indexes": []any{float64(0), float64(dupIdx)},
		"join":          "inner",
		"ignore_index":  true,
	})
	newIdx := concatData["new_sheet_index"].(int)
	assert.Equal(t, 6, after.DFs[newIdx].NumRows())
	assert.Equal(t, state.SourceConcated, after.Metas[newIdx].Source)
}

func TestMergeStep(t *testing.T) {
	left, err := frame.New(
		[]string{"Key", "L"},
		[]*frame.Series{
			frame.NewSeries(values.TypeInt, []values.Value{values.Int(1), values.Int(2)}),
			frame.NewSeries(values.TypeString, []values.Value{values.String("a"), values.String("b")}),
		},
	)
	require.NoError(t, err)
	right, err := frame.New(
		[]string{"Key", "R"},
		[]*frame.Series{
			frame.NewSeries(values.TypeInt, []values.Value{values.Int(2), values.Int(3)}),
			frame.NewSeries(values.TypeString, []values.Value{values.String("x"), values.String("y")}),
		},
	)
	require.NoError(t, err)
	s, err := state.New([]*frame.DataFrame{left, right}, []string{"df1", "df2"}, state.SourcePassed)
	require.NoError(t, err)
	keyOne, _ := s.Metas[0].Columns.IDFor("Key")
	keyTwo, _ := s.Metas[1].Columns.IDFor("Key")

	after, execData := mustExecute(t, s, "merge", Params{
		"how":                     "inner",
		"sheet_index_one":         0,
		"sheet_index_two":         1,
		"merge_key_column_ids":    []any{[]any{keyOne, keyTwo}},
		"selected_column_ids_one": []any{},
		"selected_column_ids_two": []any{},
	})
	newIdx := execData["new_sheet_index"].(int)
	assert.Equal(t, 1, after.DFs[newIdx].NumRows())
	assert.Equal(t, state.SourceMerged, after.Metas[newIdx].Source)
}

func TestColumnHeadersTransformKeepsIDs(t *testing.T) {
	s := testState(t)
	aID, _ := s.Metas[0].Columns.IDFor("A")

	after, _ := mustExecute(t, s, "column_headers_transform", Params{
		"sheet_index":    0,
		"transformation": map[string]any{"type": "lowercase"},
	})
	assert.Equal(t, []string{"a"}, after.DFs[0].Headers)
	h, err := after.Metas[0].Columns.HeaderFor(aID)
	require.NoError(t, err)
	assert.Equal(t, "a", h)
}

func TestGraphLifecycle(t *testing.T) {
	s := testState(t)
	aID, _ := s.Metas[0].Columns.IDFor("A")

	s, _ = mustExecute(t, s, "graph", Params{
		"graph_id": "g1",
		"graph_creation": map[string]any{
			"graph_type":        "bar",
			"sheet_index":       float64(0),
			"x_axis_column_ids": []any{aID},
			"y_axis_column_ids": []any{},
		},
	})
	require.Len(t, s.Graphs, 1)

	s, _ = mustExecute(t, s, "graph_rename", Params{
		"graph_id": "g1", "new_graph_tab_name": "sales chart",
	})
	assert.Equal(t, "sales chart", s.Graphs[0].TabName)

	s, _ = mustExecute(t, s, "graph_duplicate", Params{
		"graph_id": "g1", "new_graph_id": "g2",
	})
	require.Len(t, s.Graphs, 2)

	s, _ = mustExecute(t, s, "graph_delete", Params{"graph_id": "g1"})
	require.Len(t, s.Graphs, 1)
	assert.Equal(t, "g2", s.Graphs[0].ID)
}

func TestUpgradeFilterV3(t *testing.T) {
	recs, err := UpgradeRecord(StepRecord{
		ID: "s1", Type: "filter_column", Version: 3,
		Params: Params{
			"sheet_index": float64(0),
			"column_id":   "col-1",
			"operator":    "Or",
			"filters": []any{
				map[string]any{"condition": CondGreater, "value": float64(5)},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 4, recs[0].Version)
	group, ok := recs[0].Params["filters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Or", group["operator"])
	_, hasOld := recs[0].Params["operator"]
	assert.False(t, hasOld)
}

func TestUpgradeDtypeV3(t *testing.T) {
	recs, err := UpgradeRecord(StepRecord{
		Type: "change_column_dtype", Version: 3,
		Params: Params{"sheet_index": float64(0), "column_id": "col-9", "new_dtype": "int"},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 4, recs[0].Version)
	assert.Equal(t, []any{"col-9"}, recs[0].Params["column_ids"])
}

func TestUpgradePivotV8Defaults(t *testing.T) {
	recs, err := UpgradeRecord(StepRecord{
		Type: "pivot", Version: 8,
		Params: Params{"sheet_index": float64(0)},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 9, recs[0].Version)
	assert.Equal(t, []any{}, recs[0].Params["pivot_filters"])
	assert.Equal(t, true, recs[0].Params["flatten_column_headers"])
}

func TestUpgradeExcelRangeV5(t *testing.T) {
	recs, err := UpgradeRecord(StepRecord{
		Type: "excel_range_import", Version: 5,
		Params: Params{
			"file_name": "book.xlsx",
			"sheet":     map[string]any{"type": "sheet name", "value": "S1"},
			"range_imports": []any{
				map[string]any{"df_name": "df1", "range": "A1:B4"},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	ranges := recs[0].Params["range_imports"].([]any)
	assert.Equal(t, "range", ranges[0].(map[string]any)["type"])
}

func TestUpgradeSimpleImportV1SplitsRenames(t *testing.T) {
	recs, err := UpgradeRecord(StepRecord{
		ID: "imp", Type: "simple_import", Version: 1,
		Params: Params{
			"file_names": []any{"sales.csv"},
			"column_renames": []any{
				map[string]any{
					"sheet_index":       float64(0),
					"old_column_header": "A",
					"new_column_header": "Amount",
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "simple_import", recs[0].Type)
	assert.Equal(t, 2, recs[0].Version)
	_, hasRenames := recs[0].Params["column_renames"]
	assert.False(t, hasRenames)
	assert.Equal(t, "rename_column", recs[1].Type)
	assert.Equal(t, "A", recs[1].Params["column_id"])
	assert.Equal(t, "Amount", recs[1].Params["new_column_header"])
}

func TestUpgradeCurrentVersionIsNoOp(t *testing.T) {
	rec := StepRecord{Type: "add_column", Version: 2, Params: Params{}}
	recs, err := UpgradeRecord(rec)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec, recs[0])
}

func TestUpgradeUnknownTypeFails(t *testing.T) {
	_, err := UpgradeRecord(StepRecord{Type: "telekinesis", Version: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_step_type")
}
