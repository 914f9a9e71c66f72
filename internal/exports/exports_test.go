package exports

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetflow/internal/frame"
	"sheetflow/internal/imports"
	"sheetflow/internal/values"
)

func sampleDF(t *testing.T) *frame.DataFrame {
	t.Helper()
	df, err := frame.New([]string{"Name", "Count"}, []*frame.Series{
		frame.NewSeries(values.TypeString, []values.Value{
			values.String("alpha"), values.String("beta"),
		}),
		frame.NewSeries(values.TypeInt, []values.Value{
			values.Int(1), values.Null(values.TypeInt),
		}),
	})
	require.NoError(t, err)
	return df
}

func TestWriteCSVRoundTrip(t *testing.T) {
	df := sampleDF(t)
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteCSV(df, path))

	back, err := imports.ReadCSV(path, imports.CSVOptions{HasHeaders: true})
	require.NoError(t, err)
	assert.Equal(t, df.Headers, back.Headers)
	assert.Equal(t, 2, back.NumRows())
	assert.Equal(t, "alpha", back.Cols[0].Cells[0].Str())
	assert.True(t, back.Cols[1].Cells[1].IsNull(), "missing cell survives as empty")
}

func TestWriteXLSXRoundTrip(t *testing.T) {
	df := sampleDF(t)
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteXLSX([]*frame.DataFrame{df, df.Copy()}, []string{"df1", "df2"}, path))

	names, err := imports.SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"df1", "df2"}, names)

	sheets, err := imports.ReadExcel(context.Background(), path,
		imports.ExcelOptions{SheetNames: []string{"df1"}, HasHeaders: true})
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Equal(t, df.Headers, sheets[0].DF.Headers)
	assert.Equal(t, int64(1), sheets[0].DF.Cols[1].Cells[0].IntVal())
}

func TestWriteXLSXValidation(t *testing.T) {
	assert.Error(t, WriteXLSX(nil, nil, "x.xlsx"))
	assert.Error(t, WriteXLSX([]*frame.DataFrame{sampleDF(t)}, nil, "x.xlsx"))
}
