package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetflow/internal/frame"
	"sheetflow/internal/values"
)

func smallDF(t *testing.T) *frame.DataFrame {
	t.Helper()
	df, err := frame.New(
		[]string{"A"},
		[]*frame.Series{frame.NewSeries(values.TypeInt, []values.Value{
			values.Int(1), values.Int(2),
		})},
	)
	require.NoError(t, err)
	return df
}

func TestCanonicalizeMixedInputs(t *testing.T) {
	res, err := Canonicalize([]any{
		smallDF(t), "data/sales.csv", "book.xlsx", "orders",
	})
	require.NoError(t, err)

	// Only the raw dataframe becomes an initial sheet.
	require.Equal(t, 1, res.State.NumSheets())
	assert.Equal(t, "df", res.State.Metas[0].DFName)

	require.Len(t, res.Imports, 3)
	assert.Equal(t, "simple_import", res.Imports[0].Type)
	assert.Equal(t, []any{"data/sales.csv"}, res.Imports[0].Params["file_names"])
	assert.Equal(t, "excel_import", res.Imports[1].Type)
	assert.Equal(t, "book.xlsx", res.Imports[1].Params["file_name"])
	assert.Equal(t, "dataframe_import", res.Imports[2].Type)
	assert.Equal(t, []any{"orders"}, res.Imports[2].Params["df_names"])

	assert.Equal(t, []string{"", "data/sales.csv", "book.xlsx", "orders"}, res.Args)
	assert.Equal(t, []string{"data/sales.csv", "book.xlsx", "orders"}, res.ParamArgs)
}

func TestCanonicalizeCaseInsensitiveExtensions(t *testing.T) {
	res, err := Canonicalize([]any{"REPORT.CSV"})
	require.NoError(t, err)
	require.Len(t, res.Imports, 1)
	assert.Equal(t, "simple_import", res.Imports[0].Type)
}

func TestCanonicalizeRejectsOtherTypes(t *testing.T) {
	_, err := Canonicalize([]any{42})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad_input")
}
