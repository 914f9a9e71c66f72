package steps

import (
	"fmt"
	"strings"

	"sheetflow/internal/chunks"
	"sheetflow/internal/errs"
	"sheetflow/internal/state"
	"sheetflow/internal/values"
)

func init() {
	register(graphStep{})
	register(graphDelete{})
	register(graphRename{})
	register(graphDuplicate{})
}

// plotly-express constructors per graph type.
var graphConstructors = map[string]string{
	"bar":             "px.bar",
	"line":            "px.line",
	"scatter":         "px.scatter",
	"histogram":       "px.histogram",
	"box":             "px.box",
	"violin":          "px.violin",
	"strip":           "px.strip",
	"ecdf":            "px.ecdf",
	"density_heatmap": "px.density_heatmap",
}

// ---------------------------------------------------------------------
// graph
// ---------------------------------------------------------------------

// graph creates or refines one figure. The figure's params live on the
// state's graph list; the transpiled plotly code lands in the
// postprocessing bucket so it plots the sheet's final shape.
type graphStep struct{}

func (graphStep) Type() string    { return "graph" }
func (graphStep) Version() int    { return 4 }
func (graphStep) Refinable() bool { return true }

func (graphStep) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	graphID, err := p.Str("graph_id")
	if err != nil {
		return nil, nil, err
	}
	creation, err := p.Map("graph_creation")
	if err != nil {
		return nil, nil, err
	}
	graphType, _ := creation["graph_type"].(string)
	if _, ok := graphConstructors[graphType]; !ok {
		return nil, nil, errs.UserConfig("bad_graph_type",
			"unsupported graph type %q", graphType)
	}
	sheet := intFromAny(creation["sheet_index"], -1)
	if sheet < 0 || sheet >= prev.NumSheets() {
		return nil, nil, badParam("graph_creation", "a valid sheet_index")
	}
	if _, _, err := graphAxisHeaders(prev, sheet, creation); err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	tabName := p.StrOr("graph_tab_name", "graph"+graphID)
	data := &state.GraphData{ID: graphID, TabName: tabName, Params: map[string]any(p)}
	if i := ns.GraphIndex(graphID); i >= 0 {
		data.TabName = ns.Graphs[i].TabName
		ns.Graphs[i] = data
	} else {
		ns.Graphs = append(ns.Graphs, data)
	}
	return ns, nil, nil
}

func (graphStep) Transpile(step *Step) []chunks.Chunk {
	creation, err := step.Params.Map("graph_creation")
	if err != nil {
		return nil
	}
	graphType, _ := creation["graph_type"].(string)
	ctor, ok := graphConstructors[graphType]
	if !ok {
		return nil
	}
	sheet := intFromAny(creation["sheet_index"], 0)
	dfName := step.Post.Metas[sheet].DFName
	xs, ys, err := graphAxisHeaders(step.Post, sheet, creation)
	if err != nil {
		return nil
	}

	args := []string{dfName}
	if len(xs) == 1 {
		args = append(args, "x="+values.PyString(xs[0]))
	} else if len(xs) > 1 {
		args = append(args, fmt.Sprintf("x=[%s]", quoteHeaders(xs)))
	}
	if len(ys) == 1 {
		args = append(args, "y="+values.PyString(ys[0]))
	} else if len(ys) > 1 {
		args = append(args, fmt.Sprintf("y=[%s]", quoteHeaders(ys)))
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Graphed data",
		Desc: fmt.Sprintf("Created a %s graph of %s", graphType, dfName),
		Lines: []string{
			fmt.Sprintf("fig = %s(%s)", ctor, strings.Join(args, ", ")),
			"fig.show(renderer='iframe')",
		},
		Imp:     []string{"import plotly.express as px"},
		Sources: []int{sheet},
		AtEnd:   true,
	}}
}

// graphAxisHeaders resolves the x and y column IDs against the sheet.
func graphAxisHeaders(s *state.State, sheet int, creation map[string]any) ([]string, []string, error) {
	meta := s.Metas[sheet]
	resolve := func(key string) ([]string, error) {
		raw, ok := creation[key].([]any)
		if !ok {
			if typed, ok2 := creation[key].([]string); ok2 {
				raw = make([]any, len(typed))
				for i, id := range typed {
					raw[i] = id
				}
			}
		}
		var out []string
		for _, e := range raw {
			id, ok := e.(string)
			if !ok {
				return nil, badParam("graph_creation", "lists of column IDs")
			}
			h, err := meta.Columns.HeaderFor(id)
			if err != nil {
				return nil, err
			}
			out = append(out, h)
		}
		return out, nil
	}
	xs, err := resolve("x_axis_column_ids")
	if err != nil {
		return nil, nil, err
	}
	ys, err := resolve("y_axis_column_ids")
	if err != nil {
		return nil, nil, err
	}
	return xs, ys, nil
}

func intFromAny(v any, def int) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	}
	return def
}

// ---------------------------------------------------------------------
// graph-delete / graph-rename / graph-duplicate
// ---------------------------------------------------------------------

type graphDelete struct{}

func (graphDelete) Type() string    { return "graph_delete" }
func (graphDelete) Version() int    { return 2 }
func (graphDelete) Refinable() bool { return false }

func (graphDelete) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	graphID, err := p.Str("graph_id")
	if err != nil {
		return nil, nil, err
	}
	ns := prev.Copy()
	i := ns.GraphIndex(graphID)
	if i < 0 {
		return nil, nil, errs.UserConfig("graph_not_found", "no graph with id %q", graphID)
	}
	ns.Graphs = append(ns.Graphs[:i], ns.Graphs[i+1:]...)
	return ns, nil, nil
}

func (graphDelete) Transpile(step *Step) []chunks.Chunk {
	return []chunks.Chunk{&chunks.NoOpChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Deleted graph",
	}}
}

type graphRename struct{}

func (graphRename) Type() string    { return "graph_rename" }
func (graphRename) Version() int    { return 2 }
func (graphRename) Refinable() bool { return false }

func (graphRename) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	graphID, err := p.Str("graph_id")
	if err != nil {
		return nil, nil, err
	}
	newName, err := p.Str("new_graph_tab_name")
	if err != nil {
		return nil, nil, err
	}
	ns := prev.Copy()
	i := ns.GraphIndex(graphID)
	if i < 0 {
		return nil, nil, errs.UserConfig("graph_not_found", "no graph with id %q", graphID)
	}
	g := ns.Graphs[i].Clone()
	g.TabName = newName
	ns.Graphs[i] = g
	return ns, nil, nil
}

func (graphRename) Transpile(step *Step) []chunks.Chunk {
	return []chunks.Chunk{&chunks.NoOpChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Renamed graph",
	}}
}

type graphDuplicate struct{}

func (graphDuplicate) Type() string    { return "graph_duplicate" }
func (graphDuplicate) Version() int    { return 2 }
func (graphDuplicate) Refinable() bool { return false }

func (graphDuplicate) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	srcID, err := p.Str("graph_id")
	if err != nil {
		return nil, nil, err
	}
	newID, err := p.Str("new_graph_id")
	if err != nil {
		return nil, nil, err
	}
	ns := prev.Copy()
	i := ns.GraphIndex(srcID)
	if i < 0 {
		return nil, nil, errs.UserConfig("graph_not_found", "no graph with id %q", srcID)
	}
	if ns.GraphIndex(newID) >= 0 {
		return nil, nil, errs.UserConfig("duplicate_graph", "graph id %q already exists", newID)
	}
	g := ns.Graphs[i].Clone()
	g.ID = newID
	g.TabName = g.TabName + " (copy)"
	ns.Graphs = append(ns.Graphs, g)
	return ns, nil, nil
}

func (graphDuplicate) Transpile(step *Step) []chunks.Chunk {
	return []chunks.Chunk{&chunks.NoOpChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Duplicated graph",
	}}
}
