package frame

import (
	"sheetflow/internal/errs"
	"sheetflow/internal/values"
)

// Merge joins two frames. How is one of: lookup, left, right, inner,
// outer, unique in left, unique in right. keyPairs aligns left and right
// key headers; leftKeep/rightKeep select the non-key columns carried
// into the result (nil keeps everything).
type MergeSpec struct {
	How       string
	KeyPairs  [][2]string
	LeftKeep  []string // nil: all
	RightKeep []string
}

const (
	MergeLookup        = "lookup"
	MergeLeft          = "left"
	MergeRight         = "right"
	MergeInner         = "inner"
	MergeOuter         = "outer"
	MergeUniqueInLeft  = "unique in left"
	MergeUniqueInRight = "unique in right"
)

// Merge executes the join and returns a fresh frame with a fresh index.
func (left *DataFrame) Merge(right *DataFrame, spec MergeSpec) (*DataFrame, error) {
	if len(spec.KeyPairs) == 0 {
		return nil, errs.UserConfig("merge_keys_missing", "at least one merge key pair is required")
	}
	type keyCol struct{ l, r *Series }
	keys := make([]keyCol, len(spec.KeyPairs))
	for i, kp := range spec.KeyPairs {
		lc, rc := left.Col(kp[0]), right.Col(kp[1])
		if lc == nil {
			return nil, errs.UserConfig("column_not_found", "no column named %q in first sheet", kp[0])
		}
		if rc == nil {
			return nil, errs.UserConfig("column_not_found", "no column named %q in second sheet", kp[1])
		}
		if !mergeCompatible(lc.DType, rc.DType) {
			return nil, errs.DataShape("merge_key_type_mismatch",
				"cannot merge %q (%s) with %q (%s)", kp[0], lc.DType, kp[1], rc.DType)
		}
		keys[i] = keyCol{lc, rc}
	}

	rowKeyEqual := func(li, ri int) bool {
		for _, k := range keys {
			if !k.l.Cells[li].Equal(k.r.Cells[ri]) {
				return false
			}
		}
		return true
	}
	matchesOf := func(li int) []int {
		var out []int
		for ri := 0; ri < right.NumRows(); ri++ {
			if rowKeyEqual(li, ri) {
				out = append(out, ri)
			}
		}
		return out
	}

	switch spec.How {
	case MergeUniqueInLeft:
		mask := make([]bool, left.NumRows())
		for li := range mask {
			mask[li] = len(matchesOf(li)) == 0
		}
		out := left.FilterMask(mask)
		out.keepColumns(keyHeaders(spec.KeyPairs, 0), spec.LeftKeep)
		out.ResetIndex(true)
		return out, nil
	case MergeUniqueInRight:
		mask := make([]bool, right.NumRows())
		for ri := range mask {
			found := false
			for li := 0; li < left.NumRows() && !found; li++ {
				found = rowKeyEqual(li, ri)
			}
			mask[ri] = !found
		}
		out := right.FilterMask(mask)
		out.keepColumns(keyHeaders(spec.KeyPairs, 1), spec.RightKeep)
		out.ResetIndex(true)
		return out, nil
	}

	// Row pairs for the combining joins. -1 marks "no partner".
	type pair struct{ li, ri int }
	var pairs []pair
	matchedRight := make([]bool, right.NumRows())
	for li := 0; li < left.NumRows(); li++ {
		matches := matchesOf(li)
		if len(matches) == 0 {
			if spec.How == MergeLeft || spec.How == MergeOuter || spec.How == MergeLookup {
				pairs = append(pairs, pair{li, -1})
			}
			continue
		}
		if spec.How == MergeLookup {
			// Lookup keeps exactly one row per left row: the first match.
			pairs = append(pairs, pair{li, matches[0]})
			matchedRight[matches[0]] = true
			continue
		}
		for _, ri := range matches {
			pairs = append(pairs, pair{li, ri})
			matchedRight[ri] = true
		}
	}
	if spec.How == MergeRight || spec.How == MergeOuter {
		for ri := 0; ri < right.NumRows(); ri++ {
			if !matchedRight[ri] {
				pairs = append(pairs, pair{-1, ri})
			}
		}
	}
	if spec.How == MergeRight {
		// Right join drops left-only rows.
		var kept []pair
		for _, p := range pairs {
			if p.ri >= 0 {
				kept = append(kept, p)
			}
		}
		pairs = kept
	}

	leftCols := selectedColumns(left, keyHeaders(spec.KeyPairs, 0), spec.LeftKeep)
	rightCols := selectedColumns(right, keyHeaders(spec.KeyPairs, 1), spec.RightKeep)
	// Right key columns fold into the left ones; exclude them from the
	// right side's carried columns.
	rightCols = exclude(rightCols, keyHeaders(spec.KeyPairs, 1))

	headers := make([]string, 0, len(leftCols)+len(rightCols))
	cols := make([]*Series, 0, len(leftCols)+len(rightCols))
	taken := make(map[string]bool)
	add := func(h string, dtype values.DType, fromLeft bool, src *Series) {
		name := h
		if taken[name] {
			if fromLeft {
				name = h + "_x"
			} else {
				name = h + "_y"
			}
		}
		taken[h] = true
		taken[name] = true
		cells := make([]values.Value, len(pairs))
		for i, p := range pairs {
			idx := p.li
			if !fromLeft {
				idx = p.ri
			}
			if idx < 0 {
				cells[i] = values.Null(dtype)
			} else {
				cells[i] = src.Cells[idx]
			}
		}
		headers = append(headers, name)
		cols = append(cols, &Series{DType: dtype, Cells: cells})
	}
	for _, h := range leftCols {
		add(h, left.Col(h).DType, true, left.Col(h))
	}
	for _, h := range rightCols {
		add(h, right.Col(h).DType, false, right.Col(h))
	}

	out := &DataFrame{Headers: headers, Cols: cols, Index: defaultIndex(len(pairs))}
	// Outer-joined key cells from right-only rows fill from the right key.
	for ki, kp := range spec.KeyPairs {
		ci := out.ColIndex(kp[0])
		if ci < 0 {
			continue
		}
		for i, p := range pairs {
			if p.li < 0 && p.ri >= 0 {
				out.Cols[ci].Cells[i] = keys[ki].r.Cells[p.ri]
			}
		}
	}
	return out, nil
}

func mergeCompatible(a, b values.DType) bool {
	num := func(d values.DType) bool {
		return d == values.TypeInt || d == values.TypeFloat || d == values.TypeBool
	}
	if a == b {
		return true
	}
	return num(a) && num(b)
}

func keyHeaders(pairs [][2]string, side int) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p[side]
	}
	return out
}

// selectedColumns returns keys plus the kept non-key headers, in frame
// order with keys leading.
func selectedColumns(df *DataFrame, keys, keep []string) []string {
	isKey := toSet(keys)
	var out []string
	out = append(out, keys...)
	if keep == nil {
		for _, h := range df.Headers {
			if !isKey[h] {
				out = append(out, h)
			}
		}
		return out
	}
	kept := toSet(keep)
	for _, h := range df.Headers {
		if !isKey[h] && kept[h] {
			out = append(out, h)
		}
	}
	return out
}

func exclude(headers, minus []string) []string {
	drop := toSet(minus)
	var out []string
	for _, h := range headers {
		if !drop[h] {
			out = append(out, h)
		}
	}
	return out
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

// keepColumns trims the frame to keys+keep (nil keep keeps everything).
func (df *DataFrame) keepColumns(keys, keep []string) {
	wanted := selectedColumns(df, keys, keep)
	want := toSet(wanted)
	var drop []string
	for _, h := range df.Headers {
		if !want[h] {
			drop = append(drop, h)
		}
	}
	df.DropColumns(drop)
}
