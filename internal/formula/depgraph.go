package formula

import (
	"sort"

	"sheetflow/internal/errs"
)

// DepGraph tracks, per sheet, which column IDs each formula column
// references. It rejects cycles before a step commits and yields the
// topological order used for downstream recomputation.
type DepGraph struct {
	deps map[string][]string // formula column ID -> referenced column IDs
}

// NewDepGraph returns an empty graph.
func NewDepGraph() *DepGraph {
	return &DepGraph{deps: make(map[string][]string)}
}

// Set records the references of a formula column.
func (g *DepGraph) Set(colID string, refs []string) {
	g.deps[colID] = append([]string(nil), refs...)
}

// Remove forgets a formula column (on column delete or formula clear).
func (g *DepGraph) Remove(colID string) {
	delete(g.deps, colID)
}

// Refs returns the recorded references of a formula column.
func (g *DepGraph) Refs(colID string) []string {
	return g.deps[colID]
}

// IsFormula reports whether colID has a recorded formula.
func (g *DepGraph) IsFormula(colID string) bool {
	_, ok := g.deps[colID]
	return ok
}

// Columns lists the formula columns, sorted.
func (g *DepGraph) Columns() []string {
	out := make([]string, 0, len(g.deps))
	for k := range g.deps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RenameNode rewrites every occurrence of a column name, both as a
// formula column and as a reference.
func (g *DepGraph) RenameNode(old, new string) {
	if refs, ok := g.deps[old]; ok {
		delete(g.deps, old)
		g.deps[new] = refs
	}
	for col, refs := range g.deps {
		for i, r := range refs {
			if r == old {
				refs[i] = new
			}
		}
		g.deps[col] = refs
	}
}

// Clone deep-copies the graph.
func (g *DepGraph) Clone() *DepGraph {
	c := NewDepGraph()
	for k, v := range g.deps {
		c.deps[k] = append([]string(nil), v...)
	}
	return c
}

// CheckCycles runs Tarjan's SCC over the graph and fails on any strongly
// connected component of size > 1, or on a self-reference.
func (g *DepGraph) CheckCycles() error {
	index := 0
	indexes := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string

	var cycle []string
	var strongconnect func(v string)
	strongconnect = func(v string) {
		indexes[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.deps[v] {
			if _, isFormula := g.deps[w]; !isFormula {
				continue
			}
			if _, seen := indexes[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indexes[w] < lowlink[v] {
					lowlink[v] = indexes[w]
				}
			}
		}

		if lowlink[v] == indexes[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 && cycle == nil {
				cycle = scc
			}
		}
	}

	roots := make([]string, 0, len(g.deps))
	for v := range g.deps {
		roots = append(roots, v)
	}
	sort.Strings(roots)
	for _, v := range roots {
		for _, w := range g.deps[v] {
			if w == v {
				return errs.Formula("circular_reference",
					"column depends on itself")
			}
		}
		if _, seen := indexes[v]; !seen {
			strongconnect(v)
		}
	}
	if cycle != nil {
		return errs.Formula("circular_reference",
			"these columns reference each other in a loop: %v", cycle)
	}
	return nil
}

// Downstream returns the formula columns that transitively depend on any
// of the changed columns, ordered so that every column appears after all
// formula columns it references.
func (g *DepGraph) Downstream(changed []string) []string {
	// Reverse edges: referenced column -> formulas that read it.
	readers := make(map[string][]string)
	for f, refs := range g.deps {
		for _, r := range refs {
			readers[r] = append(readers[r], f)
		}
	}

	affected := make(map[string]bool)
	queue := append([]string(nil), changed...)
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		for _, f := range readers[c] {
			if !affected[f] {
				affected[f] = true
				queue = append(queue, f)
			}
		}
	}
	if len(affected) == 0 {
		return nil
	}

	// Kahn over the affected subgraph, deterministic via sorted ready set.
	indeg := make(map[string]int)
	for f := range affected {
		indeg[f] = 0
	}
	for f := range affected {
		for _, r := range g.deps[f] {
			if affected[r] {
				indeg[f]++
			}
		}
	}
	var ready []string
	for f, d := range indeg {
		if d == 0 {
			ready = append(ready, f)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		f := ready[0]
		ready = ready[1:]
		order = append(order, f)
		var next []string
		for _, dep := range readers[f] {
			if affected[dep] {
				indeg[dep]--
				if indeg[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Strings(next)
		ready = append(ready, next...)
	}
	return order
}
