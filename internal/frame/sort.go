package frame

import (
	"sort"

	"sheetflow/internal/errs"
	"sheetflow/internal/values"
)

// SortKey is one sort criterion.
type SortKey struct {
	Header    string
	Ascending bool
}

// SortValues stably sorts rows by the given keys. Missing values sort
// last regardless of direction, matching pandas na_position='last'.
func (df *DataFrame) SortValues(keys []SortKey) error {
	cols := make([]*Series, len(keys))
	for i, k := range keys {
		c := df.Col(k.Header)
		if c == nil {
			return errs.UserConfig("column_not_found", "no column named %q", k.Header)
		}
		cols[i] = c
	}
	order := make([]int, df.NumRows())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := order[a], order[b]
		for i, k := range keys {
			va, vb := cols[i].Cells[ra], cols[i].Cells[rb]
			na, nb := values.IsNaNLike(va), values.IsNaNLike(vb)
			if na || nb {
				if na && nb {
					continue
				}
				return nb // nulls last
			}
			cmp := va.Compare(vb)
			if cmp == 0 {
				continue
			}
			if k.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
	df.reorderRows(order)
	return nil
}

func (df *DataFrame) reorderRows(order []int) {
	idx := make([]values.Value, len(order))
	for i, o := range order {
		idx[i] = df.Index[o]
	}
	df.Index = idx
	for _, col := range df.Cols {
		cells := make([]values.Value, len(order))
		for i, o := range order {
			cells[i] = col.Cells[o]
		}
		col.Cells = cells
	}
}

// FilterMask returns a new frame keeping rows where mask is true. Row
// labels are preserved.
func (df *DataFrame) FilterMask(mask []bool) *DataFrame {
	out := df.Copy()
	out.applyRowMask(mask)
	return out
}

// DropDuplicates returns a new frame without duplicate rows over the
// given columns (all columns when empty). keep is "first", "last", or
// "none" (drop every member of a duplicate group).
func (df *DataFrame) DropDuplicates(headers []string, keep string) *DataFrame {
	target := headers
	if len(target) == 0 {
		target = df.Headers
	}
	cols := make([]*Series, 0, len(target))
	for _, h := range target {
		if c := df.Col(h); c != nil {
			cols = append(cols, c)
		}
	}
	n := df.NumRows()
	group := make([]int, n) // first row index of each row's duplicate group
	count := make(map[int]int)
	for i := 0; i < n; i++ {
		group[i] = i
		for j := 0; j < i; j++ {
			if group[j] != j {
				continue
			}
			same := true
			for _, c := range cols {
				if !c.Cells[i].Equal(c.Cells[j]) {
					same = false
					break
				}
			}
			if same {
				group[i] = j
				break
			}
		}
		count[group[i]]++
	}
	last := make(map[int]int)
	for i := 0; i < n; i++ {
		last[group[i]] = i
	}
	mask := make([]bool, n)
	for i := 0; i < n; i++ {
		switch keep {
		case "last":
			mask[i] = last[group[i]] == i
		case "none", "false":
			mask[i] = count[group[i]] == 1
		default: // first
			mask[i] = group[i] == i
		}
	}
	return df.FilterMask(mask)
}
