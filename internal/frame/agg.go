package frame

import (
	"math"
	"sort"

	"sheetflow/internal/values"
)

// AggFunc names a pivot aggregation.
type AggFunc string

const (
	AggCount       AggFunc = "count"
	AggCountUnique AggFunc = "count unique"
	AggSum         AggFunc = "sum"
	AggMean        AggFunc = "mean"
	AggMedian      AggFunc = "median"
	AggStd         AggFunc = "std"
	AggMin         AggFunc = "min"
	AggMax         AggFunc = "max"
)

// AllAggFuncs lists the supported aggregations, for validation.
var AllAggFuncs = []AggFunc{
	AggCount, AggCountUnique, AggSum, AggMean, AggMedian, AggStd, AggMin, AggMax,
}

// Aggregate reduces cells with the named function. Missing values are
// treated as absent; an empty group aggregates to null.
func Aggregate(agg AggFunc, cells []values.Value) values.Value {
	var present []values.Value
	for _, c := range cells {
		if !values.IsNaNLike(c) {
			present = append(present, c)
		}
	}
	switch agg {
	case AggCount:
		return values.Int(int64(len(present)))
	case AggCountUnique:
		var uniq []values.Value
		for _, c := range present {
			dup := false
			for _, u := range uniq {
				if u.Equal(c) {
					dup = true
					break
				}
			}
			if !dup {
				uniq = append(uniq, c)
			}
		}
		return values.Int(int64(len(uniq)))
	}
	if len(present) == 0 {
		return values.NaN()
	}
	switch agg {
	case AggMin, AggMax:
		best := present[0]
		for _, c := range present[1:] {
			cmp := c.Compare(best)
			if (agg == AggMin && cmp < 0) || (agg == AggMax && cmp > 0) {
				best = c
			}
		}
		return best
	}
	floats := floatsOf(present)
	if floats == nil {
		return values.NaN()
	}
	switch agg {
	case AggSum:
		return values.Float(sum(floats))
	case AggMean:
		return values.Float(sum(floats) / float64(len(floats)))
	case AggMedian:
		sorted := append([]float64(nil), floats...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return values.Float((sorted[mid-1] + sorted[mid]) / 2)
		}
		return values.Float(sorted[mid])
	case AggStd:
		if len(floats) < 2 {
			return values.NaN()
		}
		return values.Float(math.Sqrt(sampleVar(floats)))
	}
	return values.NaN()
}

func floatsOf(cells []values.Value) []float64 {
	out := make([]float64, 0, len(cells))
	for _, c := range cells {
		f, ok := c.Float64()
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}

func sum(fs []float64) float64 {
	t := 0.0
	for _, f := range fs {
		t += f
	}
	return t
}

func sampleVar(fs []float64) float64 {
	mean := sum(fs) / float64(len(fs))
	t := 0.0
	for _, f := range fs {
		d := f - mean
		t += d * d
	}
	return t / float64(len(fs)-1)
}
