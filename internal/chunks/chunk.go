// Package chunks models transpiled code as a list of chunks carrying
// both code and intent, and optimizes that list before emission: fusing
// adjacent chunks, dropping empty ones, floating sheet creations
// earlier, and pinning formatting to the end of the script.
package chunks

import (
	"sheetflow/internal/state"
)

// Chunk is one unit of emitted code. Chunks know what they touched so
// the optimizer can reason about fusion and reordering without parsing
// the code text.
type Chunk interface {
	// DisplayName is the short label shown in step summaries.
	DisplayName() string
	// Description is the one-line human explanation.
	Description() string

	// PrevState and PostState bracket the chunk.
	PrevState() *state.State
	PostState() *state.State

	// Code returns the emitted lines, Imports the import statements they
	// need, and Helpers any function definitions to hoist above the
	// script body.
	Code() []string
	Imports() []string
	Helpers() []string

	// CreatedSheetIndexes lists sheets this chunk brings into existence,
	// EditedSheetIndexes sheets it modifies, and SourceSheetIndexes
	// sheets it reads to produce its output.
	CreatedSheetIndexes() []int
	EditedSheetIndexes() []int
	SourceSheetIndexes() []int

	// CombineRight fuses this chunk with its right neighbor, returning
	// nil when no fusion applies.
	CombineRight(right Chunk) Chunk

	// Postprocess reports whether the chunk belongs in the formatting
	// bucket at the end of the emitted script.
	Postprocess() bool
}

// Base supplies the neutral defaults; concrete chunks embed it and
// override what they need.
type Base struct {
	Prev *state.State
	Post *state.State
}

func (b Base) PrevState() *state.State  { return b.Prev }
func (b Base) PostState() *state.State  { return b.Post }
func (Base) Imports() []string          { return nil }
func (Base) Helpers() []string          { return nil }
func (Base) CreatedSheetIndexes() []int { return nil }
func (Base) EditedSheetIndexes() []int  { return nil }
func (Base) SourceSheetIndexes() []int  { return nil }
func (Base) CombineRight(Chunk) Chunk   { return nil }
func (Base) Postprocess() bool          { return false }

// intersects reports whether two index lists share an element.
func intersects(a, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
