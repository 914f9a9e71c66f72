package chunks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetflow/internal/state"
)

func TestAddColumnFusesWithSetFormula(t *testing.T) {
	add := &AddColumnChunk{
		SheetIndex: 0, DFName: "df1", ColumnID: "B", Header: "B", Pos: 1,
	}
	set := &SetFormulaChunk{
		SheetIndex: 0, DFName: "df1", ColumnID: "B", Header: "B",
		Expr: "df1['A'] + 1",
	}
	out := Optimize([]Chunk{add, set})
	require.Len(t, out, 1)
	assert.Equal(t, []string{"df1.insert(1, 'B', df1['A'] + 1)"}, out[0].Code())
}

func TestAddColumnAloneInsertsZero(t *testing.T) {
	add := &AddColumnChunk{
		SheetIndex: 0, DFName: "df1", ColumnID: "B", Header: "B", Pos: 2,
	}
	assert.Equal(t, []string{"df1.insert(2, 'B', 0)"}, add.Code())
}

func TestSetFormulaLastWriteWins(t *testing.T) {
	first := &SetFormulaChunk{SheetIndex: 0, DFName: "df1", ColumnID: "B",
		Header: "B", Expr: "df1['A'] + 1"}
	second := &SetFormulaChunk{SheetIndex: 0, DFName: "df1", ColumnID: "B",
		Header: "B", Expr: "df1['A'] * 2"}
	out := Optimize([]Chunk{first, second})
	require.Len(t, out, 1)
	assert.Equal(t, []string{"df1['B'] = df1['A'] * 2"}, out[0].Code())
}

func TestSetFormulaDifferentColumnsDoNotFuse(t *testing.T) {
	a := &SetFormulaChunk{SheetIndex: 0, DFName: "df1", ColumnID: "B",
		Header: "B", Expr: "1"}
	b := &SetFormulaChunk{SheetIndex: 0, DFName: "df1", ColumnID: "C",
		Header: "C", Expr: "2"}
	out := Optimize([]Chunk{a, b})
	assert.Len(t, out, 2)
}

func TestRenameChainsCompose(t *testing.T) {
	r1 := &RenameColumnsChunk{SheetIndex: 0, DFName: "df1",
		ColumnIDs: []string{"A"}, OldNames: []string{"A"}, NewNames: []string{"B"}}
	r2 := &RenameColumnsChunk{SheetIndex: 0, DFName: "df1",
		ColumnIDs: []string{"A"}, OldNames: []string{"B"}, NewNames: []string{"C"}}
	out := Optimize([]Chunk{r1, r2})
	require.Len(t, out, 1)
	assert.Equal(t, []string{"df1.rename(columns={'A': 'C'}, inplace=True)"}, out[0].Code())
}

func TestRenameBackToOriginalVanishes(t *testing.T) {
	r1 := &RenameColumnsChunk{SheetIndex: 0, DFName: "df1",
		ColumnIDs: []string{"A"}, OldNames: []string{"A"}, NewNames: []string{"B"}}
	r2 := &RenameColumnsChunk{SheetIndex: 0, DFName: "df1",
		ColumnIDs: []string{"A"}, OldNames: []string{"B"}, NewNames: []string{"A"}}
	out := Optimize([]Chunk{r1, r2})
	assert.Empty(t, out, "identity rename fuses then eliminates")
}

func TestNoOpAbsorbsRight(t *testing.T) {
	prev := state.Empty()
	mid := state.Empty()
	noop := &NoOpChunk{Base: Base{Prev: prev, Post: mid}, Name: "Filtered"}
	edit := &LinesChunk{Base: Base{Prev: mid}, Name: "Sorted",
		Lines: []string{"df1 = df1.sort_values(by='A')"}, Edited: []int{0}}

	out := Optimize([]Chunk{noop, edit})
	require.Len(t, out, 1)
	assert.Equal(t, edit.Lines, out[0].Code())
	assert.Same(t, prev, out[0].PrevState(), "absorbed chunk forwards the no-op's prev state")
}

func TestEmptyChunksEliminated(t *testing.T) {
	empty := &LinesChunk{Name: "Metadata only"}
	keep := &LinesChunk{Name: "Edit", Lines: []string{"df1['A'] = 1"}, Edited: []int{0}}
	out := Optimize([]Chunk{empty, keep})
	require.Len(t, out, 1)
	assert.Equal(t, "Edit", out[0].DisplayName())
}

func TestImportFloatsAboveUnrelatedEdits(t *testing.T) {
	edit := &LinesChunk{Name: "Edit df1", Lines: []string{"df1['A'] = 1"}, Edited: []int{0}}
	imp := &LinesChunk{Name: "Import", Lines: []string{"df2 = pd.read_csv('b.csv')"},
		Created: []int{1}, Imp: []string{"import pandas as pd"}}
	out := Optimize([]Chunk{edit, imp})
	require.Len(t, out, 2)
	assert.Equal(t, "Import", out[0].DisplayName())
	assert.Equal(t, "Edit df1", out[1].DisplayName())
}

func TestDerivedSheetDoesNotPassItsSourceEdit(t *testing.T) {
	edit := &LinesChunk{Name: "Edit df1", Lines: []string{"df1['A'] = 1"}, Edited: []int{0}}
	pivot := &LinesChunk{Name: "Pivot", Lines: []string{"df2 = df1.pivot_table()"},
		Created: []int{1}, Sources: []int{0}}
	out := Optimize([]Chunk{edit, pivot})
	require.Len(t, out, 2)
	assert.Equal(t, "Edit df1", out[0].DisplayName())
}

func TestFormatChunksSinkToEnd(t *testing.T) {
	format := &FormatChunk{SheetIndex: 0, DFName: "df1",
		Format: state.DataframeFormat{Headers: state.RegionStyle{BackgroundColor: "#549695"}}}
	edit := &LinesChunk{Name: "Edit", Lines: []string{"df1['A'] = 1"}, Edited: []int{0}}
	out := Optimize([]Chunk{format, edit})
	require.Len(t, out, 2)
	assert.Equal(t, "Edit", out[0].DisplayName())
	assert.True(t, out[1].Postprocess())
	assert.Contains(t, out[1].Code()[0], "set_table_styles")
}

func TestLaterFormatReplacesEarlier(t *testing.T) {
	f1 := &FormatChunk{SheetIndex: 0, DFName: "df1",
		Format: state.DataframeFormat{Headers: state.RegionStyle{Color: "#000"}}}
	f2 := &FormatChunk{SheetIndex: 0, DFName: "df1",
		Format: state.DataframeFormat{Headers: state.RegionStyle{Color: "#fff"}}}
	out := Optimize([]Chunk{f1, f2})
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Code()[0], "#fff")
}

func TestOptimizeIsIdempotent(t *testing.T) {
	list := []Chunk{
		&AddColumnChunk{SheetIndex: 0, DFName: "df1", ColumnID: "B", Header: "B", Pos: 1},
		&SetFormulaChunk{SheetIndex: 0, DFName: "df1", ColumnID: "B", Header: "B", Expr: "df1['A'] + 1"},
		&LinesChunk{Name: "Import", Lines: []string{"df2 = pd.read_csv('b.csv')"}, Created: []int{1}},
	}
	once := Optimize(list)
	twice := Optimize(once)
	require.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Equal(t, once[i].Code(), twice[i].Code())
	}
}

func TestOptimizeFusesFormatsSplitByEdit(t *testing.T) {
	list := []Chunk{
		&FormatChunk{SheetIndex: 0, DFName: "df1",
			Format: state.DataframeFormat{BorderStyle: "solid"}},
		&LinesChunk{Name: "Sorted df1", Edited: []int{0},
			Lines: []string{"df1 = df1.sort_values(by='A')"}},
		&FormatChunk{SheetIndex: 0, DFName: "df1",
			Format: state.DataframeFormat{BorderStyle: "dashed"}},
	}
	once := Optimize(list)
	require.Len(t, once, 2)
	assert.False(t, once[0].Postprocess())
	assert.True(t, once[1].Postprocess())
	assert.Contains(t, once[1].Code()[len(once[1].Code())-1], "dashed")

	twice := Optimize(once)
	require.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Equal(t, once[i].Code(), twice[i].Code())
	}
}
