package chunks

import "sheetflow/internal/state"

// LinesChunk is the general-purpose chunk: fixed code lines plus the
// intent metadata the optimizer needs. Performers without a bespoke
// chunk type use this.
type LinesChunk struct {
	Base
	Name    string
	Desc    string
	Lines   []string
	Imp     []string
	Help    []string
	Created []int
	Edited  []int
	Sources []int
	AtEnd   bool
}

func (c *LinesChunk) DisplayName() string        { return c.Name }
func (c *LinesChunk) Description() string        { return c.Desc }
func (c *LinesChunk) Code() []string             { return c.Lines }
func (c *LinesChunk) Imports() []string          { return c.Imp }
func (c *LinesChunk) Helpers() []string          { return c.Help }
func (c *LinesChunk) CreatedSheetIndexes() []int { return c.Created }
func (c *LinesChunk) EditedSheetIndexes() []int  { return c.Edited }
func (c *LinesChunk) SourceSheetIndexes() []int  { return c.Sources }
func (c *LinesChunk) Postprocess() bool          { return c.AtEnd }

// NoOpChunk emits nothing and absorbs its right neighbor, forwarding
// its own prev-state so the bracket stays continuous. Steps that turn
// out to change nothing (an empty filter, an identity sort) produce one.
type NoOpChunk struct {
	Base
	Name string
}

func (c *NoOpChunk) DisplayName() string { return c.Name }
func (c *NoOpChunk) Description() string { return "No changes" }
func (c *NoOpChunk) Code() []string      { return nil }

func (c *NoOpChunk) CombineRight(right Chunk) Chunk {
	return &retargeted{Chunk: right, prev: c.Prev}
}

// retargeted wraps a chunk with a substituted prev-state, used when a
// no-op to its left is absorbed.
type retargeted struct {
	Chunk
	prev *state.State
}

func (r *retargeted) PrevState() *state.State { return r.prev }

// CombineRight must delegate so a retargeted chunk still fuses.
func (r *retargeted) CombineRight(right Chunk) Chunk {
	inner := r.Chunk.CombineRight(right)
	if inner == nil {
		return nil
	}
	return &retargeted{Chunk: inner, prev: r.prev}
}
