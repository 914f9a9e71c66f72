package formula

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
	"sheetflow/internal/values"
)

func testDF(t *testing.T) *frame.DataFrame {
	t.Helper()
	df, err := frame.New([]string{"A", "B", "Total Sales"}, []*frame.Series{
		frame.NewSeries(values.TypeInt, []values.Value{
			values.Int(1), values.Int(2), values.Int(3),
		}),
		frame.NewSeries(values.TypeFloat, []values.Value{
			values.Float(10), values.NaN(), values.Float(30),
		}),
		frame.NewSeries(values.TypeFloat, []values.Value{
			values.Float(100), values.Float(200), values.Float(300),
		}),
	})
	require.NoError(t, err)
	return df
}

func headerSet(df *frame.DataFrame) map[string]bool {
	m := make(map[string]bool)
	for _, h := range df.Headers {
		m[h] = true
	}
	return m
}

func evalText(t *testing.T, df *frame.DataFrame, text string) []values.Value {
	t.Helper()
	node, err := Parse(text, headerSet(df))
	require.NoError(t, err)
	cells, _, err := Evaluate(node, df)
	require.NoError(t, err)
	return cells
}

func TestParseSimpleArithmetic(t *testing.T) {
	df := testDF(t)
	cells := evalText(t, df, "=A+1")
	assert.Equal(t, float64(2), cells[0].FloatVal())
	assert.Equal(t, float64(3), cells[1].FloatVal())
	assert.Equal(t, float64(4), cells[2].FloatVal())
}

func TestParsePrecedence(t *testing.T) {
	df := testDF(t)
	cells := evalText(t, df, "=A+A*2")
	assert.Equal(t, float64(3), cells[0].FloatVal())

	cells = evalText(t, df, "=(A+A)*2")
	assert.Equal(t, float64(4), cells[0].FloatVal())
}

func TestQuotedHeaderReference(t *testing.T) {
	df := testDF(t)
	cells := evalText(t, df, `="Total Sales"/100`)
	assert.Equal(t, float64(1), cells[0].FloatVal())

	// A quoted string that is not a header stays a literal.
	cells = evalText(t, df, `="abc"&A`)
	assert.Equal(t, "abc1", cells[0].Str())
}

func TestOffsetReference(t *testing.T) {
	df := testDF(t)
	cells := evalText(t, df, "=A$1")
	assert.True(t, cells[0].IsNull(), "first row has no previous row")
	assert.Equal(t, int64(1), cells[1].IntVal())
	assert.Equal(t, int64(2), cells[2].IntVal())

	cells = evalText(t, df, "=A$-1")
	assert.Equal(t, int64(2), cells[0].IntVal())
	assert.True(t, cells[2].IsNull(), "last row has no next row")
}

func TestDivideByZeroIsInfinity(t *testing.T) {
	df := testDF(t)
	cells := evalText(t, df, "=A/0")
	assert.True(t, math.IsInf(cells[0].FloatVal(), 1))

	cells = evalText(t, df, "=-A/0")
	assert.True(t, math.IsInf(cells[0].FloatVal(), -1))
}

func TestUnknownFunction(t *testing.T) {
	df := testDF(t)
	_, err := Parse("=NOPE(A)", headerSet(df))
	require.Error(t, err)
	assert.Equal(t, errs.KindFormula, errs.KindOf(err))
}

func TestArityMismatch(t *testing.T) {
	df := testDF(t)
	_, err := Parse("=ABS(A, B)", headerSet(df))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arity_mismatch")
}

func TestUnresolvedReference(t *testing.T) {
	df := testDF(t)
	_, err := Parse("=Missing+1", headerSet(df))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved_reference")
}

func TestIncompatibleTypes(t *testing.T) {
	df, err := frame.New([]string{"S"}, []*frame.Series{
		frame.NewSeries(values.TypeString, []values.Value{values.String("abc")}),
	})
	require.NoError(t, err)
	node, err := Parse("=S-1", headerSet(df))
	require.NoError(t, err)
	_, _, err = Evaluate(node, df)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incompatible_types")
}

func TestComparisonAndEquality(t *testing.T) {
	df := testDF(t)
	cells := evalText(t, df, "=A>1")
	assert.False(t, cells[0].BoolVal())
	assert.True(t, cells[1].BoolVal())

	cells = evalText(t, df, "=A==2")
	assert.False(t, cells[0].BoolVal())
	assert.True(t, cells[1].BoolVal())

	cells = evalText(t, df, "=A!=2")
	assert.True(t, cells[0].BoolVal())
	assert.False(t, cells[1].BoolVal())
}

func TestAggregatesSkipNaN(t *testing.T) {
	df := testDF(t)
	cells := evalText(t, df, "=SUM(B)")
	assert.Equal(t, float64(40), cells[0].FloatVal())
	assert.Equal(t, float64(40), cells[2].FloatVal(), "aggregate broadcasts")

	cells = evalText(t, df, "=AVG(B)")
	assert.Equal(t, float64(20), cells[0].FloatVal())

	cells = evalText(t, df, "=COUNT(B)")
	assert.Equal(t, int64(2), cells[0].IntVal())
}

func TestIfAndConcat(t *testing.T) {
	df := testDF(t)
	cells := evalText(t, df, `=IF(A>1, "big", "small")`)
	assert.Equal(t, "small", cells[0].Str())
	assert.Equal(t, "big", cells[1].Str())

	cells = evalText(t, df, `=CONCAT("row ", A)`)
	assert.Equal(t, "row 1", cells[0].Str())
}

func TestStringFunctions(t *testing.T) {
	df, err := frame.New([]string{"S"}, []*frame.Series{
		frame.NewSeries(values.TypeString, []values.Value{values.String("  Hello World  ")}),
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello World", evalText(t, df, "=TRIM(S)")[0].Str())
	assert.Equal(t, "  hello world  ", evalText(t, df, "=LOWER(S)")[0].Str())
	assert.Equal(t, int64(15), evalText(t, df, "=LEN(S)")[0].IntVal())
	assert.Equal(t, "He", evalText(t, df, "=LEFT(TRIM(S), 2)")[0].Str())
	assert.Equal(t, "ld", evalText(t, df, "=RIGHT(TRIM(S), 2)")[0].Str())
	assert.Equal(t, "ell", evalText(t, df, "=MID(TRIM(S), 2, 3)")[0].Str())
}

func TestGetPreviousValue(t *testing.T) {
	df, err := frame.New([]string{"V", "C"}, []*frame.Series{
		frame.NewSeries(values.TypeInt, []values.Value{
			values.Int(10), values.Int(20), values.Int(30),
		}),
		frame.NewSeries(values.TypeBool, []values.Value{
			values.Bool(true), values.Bool(false), values.Bool(false),
		}),
	})
	require.NoError(t, err)
	cells := evalText(t, df, "=GETPREVIOUSVALUE(V, C)")
	assert.Equal(t, int64(10), cells[0].IntVal())
	assert.Equal(t, int64(10), cells[1].IntVal())
	assert.Equal(t, int64(10), cells[2].IntVal())

	cells = evalText(t, df, "=GETNEXTVALUE(V, C)")
	assert.Equal(t, int64(10), cells[0].IntVal())
	assert.Equal(t, int64(0), cells[1].IntVal(), "no later true row defaults to type zero")
}

func TestReferencedHeaders(t *testing.T) {
	df := testDF(t)
	node, err := Parse(`=A+B*SUM("Total Sales")`, headerSet(df))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "Total Sales"}, ReferencedHeaders(node))
}

func TestEmitPandas(t *testing.T) {
	df := testDF(t)
	node, err := Parse("=A+1", headerSet(df))
	require.NoError(t, err)
	out := Emit(node, "df1")
	assert.Equal(t, "df1['A'] + 1", out.Expr)

	node, err = Parse("=A$1*2", headerSet(df))
	require.NoError(t, err)
	out = Emit(node, "df1")
	assert.Equal(t, "df1['A'].shift(1) * 2", out.Expr)

	node, err = Parse(`=IF(A>1, B, 0)`, headerSet(df))
	require.NoError(t, err)
	out = Emit(node, "df1")
	assert.Equal(t, "np.where(df1['A'] > 1, df1['B'], 0)", out.Expr)
	assert.Contains(t, out.Imports, "import numpy as np")
}

func TestDepGraphCycle(t *testing.T) {
	g := NewDepGraph()
	g.Set("b", []string{"a"})
	g.Set("c", []string{"b"})
	require.NoError(t, g.CheckCycles())

	g.Set("a", []string{"c"})
	assert.Error(t, g.CheckCycles())
}

func TestDepGraphDownstreamOrder(t *testing.T) {
	g := NewDepGraph()
	g.Set("b", []string{"a"})
	g.Set("c", []string{"b"})
	g.Set("d", []string{"a", "c"})
	order := g.Downstream([]string{"a"})
	assert.Equal(t, []string{"b", "c", "d"}, order)
}

func TestRenameHeaderRewritesFormula(t *testing.T) {
	headers := map[string]bool{"A": true, "B": true}
	out, err := RenameHeader("=A+1", headers, "A", "X")
	require.NoError(t, err)
	assert.Equal(t, "=X+1", out)

	out, err = RenameHeader("=SUM(A, B$1)", headers, "B", "Total Sales")
	require.NoError(t, err)
	assert.Equal(t, `=SUM(A, OFFSET("Total Sales", 1))`, out)

	out, err = RenameHeader("=A*(B+1)", headers, "B", "C")
	require.NoError(t, err)
	assert.Equal(t, "=A*(C+1)", out)
}

func TestRenameHeaderPreservesSourceText(t *testing.T) {
	headers := map[string]bool{"A": true, "B": true, "SUM": true}
	out, err := RenameHeader("=A * 2", headers, "A", "X")
	require.NoError(t, err)
	assert.Equal(t, "=X * 2", out)

	// Untouched spacing, literals, and same-named function calls all
	// survive byte for byte.
	out, err = RenameHeader(`=IF( A > 1, "A level", B )`, headers, "B", "C")
	require.NoError(t, err)
	assert.Equal(t, `=IF( A > 1, "A level", C )`, out)

	out, err = RenameHeader("=SUM(SUM, B)", headers, "SUM", "Total")
	require.NoError(t, err)
	assert.Equal(t, "=SUM(Total, B)", out)
}

func TestSerializeRoundTrip(t *testing.T) {
	headers := map[string]bool{"A": true, "B": true}
	for _, text := range []string{"=A+1", "=A*(B+1)", "=IF(A>1, B, 0)", "=-A/2", "=A&B"} {
		node, err := Parse(text, headers)
		require.NoError(t, err)
		re, err := Parse(Serialize(node), headers)
		require.NoError(t, err)
		assert.Equal(t, node, re, "round-trip of %s", text)
	}
}

func TestRegistryFamilies(t *testing.T) {
	for _, name := range []string{"SUM", "TRIM", "YEAR", "IF"} {
		if _, ok := Registry[name]; !ok {
			t.Fatalf("registry missing %s", name)
		}
	}
	assert.Greater(t, len(Registry), 60)
}
