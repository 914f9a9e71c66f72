package steps

import (
	"fmt"

	"sheetflow/internal/chunks"
	"sheetflow/internal/state"
)

func init() {
	register(transpose{})
	register(resetIndex{})
	register(dataframeDuplicate{})
	register(dataframeRename{})
	register(dataframeDelete{})
}

// ---------------------------------------------------------------------
// transpose
// ---------------------------------------------------------------------

// transpose creates a new sheet with rows and columns swapped. The
// original sheet is untouched.
type transpose struct{}

func (transpose) Type() string    { return "transpose" }
func (transpose) Version() int    { return 2 }
func (transpose) Refinable() bool { return false }

func (transpose) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	if sheet < 0 || sheet >= prev.NumSheets() {
		return nil, nil, badParam("sheet_index", "a valid sheet index")
	}

	ns := prev.Copy()
	flipped := ns.DFs[sheet].Transpose()
	newIdx, err := ns.AddDF(flipped, state.SourceTransposed,
		ns.Metas[sheet].DFName+"_transposed")
	if err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"new_sheet_index": newIdx}, nil
}

func (transpose) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	srcName := step.Prev.Metas[sheet].DFName
	newIdx, _ := step.ExecData["new_sheet_index"].(int)
	newName := step.Post.Metas[newIdx].DFName
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:    chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:    "Transposed dataframe",
		Desc:    fmt.Sprintf("Created %s by transposing %s", newName, srcName),
		Lines:   []string{fmt.Sprintf("%s = %s.T", newName, srcName)},
		Created: []int{newIdx},
		Sources: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// reset-index
// ---------------------------------------------------------------------

type resetIndex struct{}

func (resetIndex) Type() string    { return "reset_index" }
func (resetIndex) Version() int    { return 2 }
func (resetIndex) Refinable() bool { return false }

func (resetIndex) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	drop := p.BoolOr("drop", true)

	ns := prev.Copy()
	df, meta, err := ns.MutableSheet(sheet)
	if err != nil {
		return nil, nil, err
	}
	df.ResetIndex(drop)
	// Keeping the old index materializes a new leading column, which
	// needs an ID like any other column.
	for _, h := range df.Headers {
		if !meta.Columns.Has(h) {
			if _, err := meta.Columns.Add(h); err != nil {
				return nil, nil, err
			}
		}
	}
	return ns, nil, nil
}

func (resetIndex) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	dfName := step.Prev.Metas[sheet].DFName
	drop := step.Params.BoolOr("drop", true)
	return []chunks.Chunk{&chunks.LinesChunk{
		Base: chunks.Base{Prev: step.Prev, Post: step.Post},
		Name: "Reset index",
		Desc: fmt.Sprintf("Reset the index of %s", dfName),
		Lines: []string{fmt.Sprintf("%s = %s.reset_index(drop=%s)",
			dfName, dfName, pyBool(drop))},
		Edited: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// dataframe-duplicate
// ---------------------------------------------------------------------

// dataframe-duplicate copies a sheet wholesale, formulas and formats
// included.
type dataframeDuplicate struct{}

func (dataframeDuplicate) Type() string    { return "dataframe_duplicate" }
func (dataframeDuplicate) Version() int    { return 2 }
func (dataframeDuplicate) Refinable() bool { return false }

func (dataframeDuplicate) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	if sheet < 0 || sheet >= prev.NumSheets() {
		return nil, nil, badParam("sheet_index", "a valid sheet index")
	}

	ns := prev.Copy()
	meta := ns.Metas[sheet].Clone()
	meta.DFName = ns.NewDFName(meta.DFName + "_copy")
	meta.Source = state.SourceDuplicated
	ns.DFs = append(ns.DFs, ns.DFs[sheet].Copy())
	ns.Metas = append(ns.Metas, meta)
	newIdx := ns.NumSheets() - 1
	return ns, map[string]any{"new_sheet_index": newIdx}, nil
}

func (dataframeDuplicate) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	srcName := step.Prev.Metas[sheet].DFName
	newIdx, _ := step.ExecData["new_sheet_index"].(int)
	newName := step.Post.Metas[newIdx].DFName
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:    chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:    "Duplicated dataframe",
		Desc:    fmt.Sprintf("Created %s as a copy of %s", newName, srcName),
		Lines:   []string{fmt.Sprintf("%s = %s.copy(deep=True)", newName, srcName)},
		Created: []int{newIdx},
		Sources: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// dataframe-rename
// ---------------------------------------------------------------------

type dataframeRename struct{}

func (dataframeRename) Type() string    { return "dataframe_rename" }
func (dataframeRename) Version() int    { return 2 }
func (dataframeRename) Refinable() bool { return false }

func (dataframeRename) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}
	requested, err := p.Str("new_dataframe_name")
	if err != nil {
		return nil, nil, err
	}
	if sheet < 0 || sheet >= prev.NumSheets() {
		return nil, nil, badParam("sheet_index", "a valid sheet index")
	}

	ns := prev.Copy()
	oldName := ns.Metas[sheet].DFName
	if requested == oldName {
		return ns, map[string]any{"old_name": oldName, "new_name": oldName}, nil
	}
	meta := ns.Metas[sheet].Clone()
	meta.DFName = ns.NewDFName(requested)
	ns.Metas[sheet] = meta
	return ns, map[string]any{"old_name": oldName, "new_name": meta.DFName}, nil
}

func (dataframeRename) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	oldName, _ := step.ExecData["old_name"].(string)
	newName, _ := step.ExecData["new_name"].(string)
	if oldName == newName {
		return nil
	}
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:   chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:   "Renamed dataframe",
		Desc:   fmt.Sprintf("Renamed %s to %s", oldName, newName),
		Lines:  []string{fmt.Sprintf("%s = %s", newName, oldName)},
		Edited: []int{sheet},
	}}
}

// ---------------------------------------------------------------------
// dataframe-delete
// ---------------------------------------------------------------------

type dataframeDelete struct{}

func (dataframeDelete) Type() string    { return "dataframe_delete" }
func (dataframeDelete) Version() int    { return 2 }
func (dataframeDelete) Refinable() bool { return false }

func (dataframeDelete) Execute(prev *state.State, p Params) (*state.State, map[string]any, error) {
	sheet, err := p.Int("sheet_index")
	if err != nil {
		return nil, nil, err
	}

	ns := prev.Copy()
	name := ""
	if sheet >= 0 && sheet < ns.NumSheets() {
		name = ns.Metas[sheet].DFName
	}
	if err := ns.RemoveSheet(sheet); err != nil {
		return nil, nil, err
	}
	return ns, map[string]any{"df_name": name}, nil
}

func (dataframeDelete) Transpile(step *Step) []chunks.Chunk {
	sheet := step.Params.IntOr("sheet_index", 0)
	name, _ := step.ExecData["df_name"].(string)
	return []chunks.Chunk{&chunks.LinesChunk{
		Base:   chunks.Base{Prev: step.Prev, Post: step.Post},
		Name:   "Deleted dataframe",
		Desc:   fmt.Sprintf("Deleted %s", name),
		Lines:  []string{fmt.Sprintf("del %s", name)},
		Edited: []int{sheet},
	}}
}
