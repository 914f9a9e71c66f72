package imports

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetflow/internal/frame"
	"sheetflow/internal/values"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSniffCommaCSV(t *testing.T) {
	path := writeFile(t, "a.csv", "A,B,C\n1,2,3\n4,5,6\n")
	delim, enc, err := SniffCSV(path)
	require.NoError(t, err)
	assert.Equal(t, ",", delim)
	assert.Equal(t, EncodingUTF8, enc)
}

func TestSniffSemicolonCSV(t *testing.T) {
	path := writeFile(t, "a.csv", "A;B;C\n1;2;3\n4;5;6\n")
	delim, _, err := SniffCSV(path)
	require.NoError(t, err)
	assert.Equal(t, ";", delim)
}

func TestSniffTabSeparated(t *testing.T) {
	path := writeFile(t, "a.tsv", "A\tB\n1\t2\n")
	delim, _, err := SniffCSV(path)
	require.NoError(t, err)
	assert.Equal(t, "\t", delim)
}

func TestSniffLatin1(t *testing.T) {
	path := writeFile(t, "a.csv", "Name,City\nJos\xe9,M\xfcnchen\n")
	_, enc, err := SniffCSV(path)
	require.NoError(t, err)
	assert.Equal(t, EncodingLatin1, enc)

	df, err := ReadCSV(path, CSVOptions{HasHeaders: true})
	require.NoError(t, err)
	assert.Equal(t, "José", df.Cols[0].Cells[0].Str())
}

func TestReadCSVTypesAndHeaders(t *testing.T) {
	path := writeFile(t, "a.csv", "Name,Count,Price\nalpha,1,1.5\nbeta,2,2.5\n")
	df, err := ReadCSV(path, CSVOptions{HasHeaders: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Count", "Price"}, df.Headers)
	assert.Equal(t, values.TypeString, df.Cols[0].DType)
	assert.Equal(t, values.TypeInt, df.Cols[1].DType)
	assert.Equal(t, values.TypeFloat, df.Cols[2].DType)
	assert.Equal(t, 2, df.NumRows())
}

func TestReadCSVNoHeadersAndSkiprows(t *testing.T) {
	path := writeFile(t, "a.csv", "junk line\n1,2\n3,4\n")
	df, err := ReadCSV(path, CSVOptions{Skiprows: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, df.Headers)
	assert.Equal(t, 2, df.NumRows())
	assert.Equal(t, int64(3), df.Cols[0].Cells[1].IntVal())
}

func TestReadCSVDuplicateHeaders(t *testing.T) {
	path := writeFile(t, "a.csv", "A,A,\n1,2,3\n")
	df, err := ReadCSV(path, CSVOptions{HasHeaders: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A (1)", "nan"}, df.Headers)
}

func TestReadCSVDTypeOverride(t *testing.T) {
	path := writeFile(t, "a.csv", "Code\n001\n002\n")
	df, err := ReadCSV(path, CSVOptions{
		HasHeaders: true,
		DTypes:     map[string]values.DType{"Code": values.TypeString},
	})
	require.NoError(t, err)
	assert.Equal(t, values.TypeString, df.Cols[0].DType)
}

func TestReadCSVDTypeOverrideNaNCells(t *testing.T) {
	path := writeFile(t, "a.csv", "Qty,Tag\n1,x\nNaN,y\n,z\n")
	df, err := ReadCSV(path, CSVOptions{
		HasHeaders: true,
		DTypes:     map[string]values.DType{"Qty": values.TypeInt},
	})
	require.NoError(t, err)
	require.Equal(t, 3, df.NumRows())
	assert.Equal(t, int64(1), df.Cols[0].Cells[0].IntVal())
	assert.True(t, df.Cols[0].Cells[1].IsNull())
	assert.True(t, df.Cols[0].Cells[2].IsNull())
}

func TestParseRange(t *testing.T) {
	x1, y1, x2, y2, err := parseRange("A1:D10")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 4, 10}, []int{x1, y1, x2, y2})

	// Reversed ranges normalize.
	x1, y1, x2, y2, err = parseRange("D10:A1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 4, 10}, []int{x1, y1, x2, y2})

	_, _, _, _, err = parseRange("bogus")
	assert.Error(t, err)
}

func TestDFResolverCopies(t *testing.T) {
	df, err := frame.New([]string{"A"}, []*frame.Series{
		frame.NewSeries(values.TypeInt, []values.Value{values.Int(1)}),
	})
	require.NoError(t, err)

	r := NewDFResolver()
	r.Register("orders", df)

	got, err := r.Resolve("orders")
	require.NoError(t, err)
	got.Headers[0] = "Z"
	assert.Equal(t, "A", df.Headers[0], "resolver hands out copies")

	_, err = r.Resolve("missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"orders"}, r.Names())
}

func TestUserDefsRegistry(t *testing.T) {
	u := NewUserDefs()
	u.RegisterImporter("fixture", func() (*frame.DataFrame, error) {
		return frame.Empty(), nil
	})
	u.RegisterEdit("upper", func(df *frame.DataFrame, _ map[string]any) (*frame.DataFrame, error) {
		return df, nil
	})

	_, err := u.Importer("fixture")
	assert.NoError(t, err)
	_, err = u.Importer("nope")
	assert.Error(t, err)
	assert.Equal(t, []string{"fixture"}, u.ImporterNames())
	assert.Equal(t, []string{"upper"}, u.EditNames())
}

func TestRunSnippet(t *testing.T) {
	df, err := frame.New([]string{"A"}, []*frame.Series{
		frame.NewSeries(values.TypeInt, []values.Value{values.Int(1), values.Int(2)}),
	})
	require.NoError(t, err)

	src := `
func Transform(headers []string, rows [][]string) ([]string, [][]string, error) {
	headers = append(headers, "Tag")
	for i := range rows {
		rows[i] = append(rows[i], "x")
	}
	return headers, rows, nil
}`
	out, err := RunSnippet(src, df)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "Tag"}, out.Headers)
	assert.Equal(t, "x", out.Cols[1].Cells[0].Str())
}

func TestRunSnippetRejectsBadSource(t *testing.T) {
	_, err := RunSnippet("not go at all {", frame.Empty())
	assert.Error(t, err)

	_, err = RunSnippet("func Other() {}", frame.Empty())
	assert.Error(t, err)
}

func TestFileIndexListing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte("A\n1\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	idx, err := NewFileIndex(dir)
	require.NoError(t, err)
	defer idx.Close()

	list := idx.List()
	require.Len(t, list, 2, "markdown files are not importable")
	assert.True(t, list[0].IsDir)
	assert.Equal(t, "data.csv", list[1].Name)
}
