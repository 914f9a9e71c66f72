package chunks

import (
	"fmt"
	"strings"

	"sheetflow/internal/values"
)

// AddColumnChunk inserts a fresh column. Until a formula lands on the
// column it is filled with Expr, which defaults to the literal 0; a
// set-column-formula chunk immediately to the right fuses into the
// insert so the script creates the column with its final expression in
// one line.
type AddColumnChunk struct {
	Base
	SheetIndex int
	DFName     string
	ColumnID   string
	Header     string
	Pos        int
	Expr       string
	Imp        []string
	Help       []string
}

func (c *AddColumnChunk) DisplayName() string { return "Added column" }

func (c *AddColumnChunk) Description() string {
	return fmt.Sprintf("Added column %q to %s", c.Header, c.DFName)
}

func (c *AddColumnChunk) Code() []string {
	expr := c.Expr
	if expr == "" {
		expr = "0"
	}
	return []string{fmt.Sprintf("%s.insert(%d, %s, %s)",
		c.DFName, c.Pos, values.PyString(c.Header), expr)}
}

func (c *AddColumnChunk) Imports() []string         { return c.Imp }
func (c *AddColumnChunk) Helpers() []string         { return c.Help }
func (c *AddColumnChunk) EditedSheetIndexes() []int { return []int{c.SheetIndex} }

func (c *AddColumnChunk) CombineRight(right Chunk) Chunk {
	sf, ok := right.(*SetFormulaChunk)
	if !ok || sf.SheetIndex != c.SheetIndex || sf.ColumnID != c.ColumnID {
		return nil
	}
	return &AddColumnChunk{
		Base:       Base{Prev: c.Prev, Post: sf.Post},
		SheetIndex: c.SheetIndex,
		DFName:     c.DFName,
		ColumnID:   c.ColumnID,
		Header:     sf.Header,
		Pos:        c.Pos,
		Expr:       sf.Expr,
		Imp:        mergeLists(c.Imp, sf.Imp),
		Help:       mergeLists(c.Help, sf.Help),
	}
}

// SetFormulaChunk assigns a pandas expression to an existing column.
// Consecutive writes to the same column collapse to the last one.
type SetFormulaChunk struct {
	Base
	SheetIndex int
	DFName     string
	ColumnID   string
	Header     string
	Expr       string
	Imp        []string
	Help       []string
}

func (c *SetFormulaChunk) DisplayName() string { return "Set formula" }

func (c *SetFormulaChunk) Description() string {
	return fmt.Sprintf("Set formula of %q in %s", c.Header, c.DFName)
}

func (c *SetFormulaChunk) Code() []string {
	return []string{fmt.Sprintf("%s[%s] = %s",
		c.DFName, values.PyString(c.Header), c.Expr)}
}

func (c *SetFormulaChunk) Imports() []string         { return c.Imp }
func (c *SetFormulaChunk) Helpers() []string         { return c.Help }
func (c *SetFormulaChunk) EditedSheetIndexes() []int { return []int{c.SheetIndex} }

func (c *SetFormulaChunk) CombineRight(right Chunk) Chunk {
	sf, ok := right.(*SetFormulaChunk)
	if !ok || sf.SheetIndex != c.SheetIndex || sf.ColumnID != c.ColumnID {
		return nil
	}
	out := *sf
	out.Prev = c.Prev
	return &out
}

// RenameColumnsChunk renames one or more columns on a sheet. Adjacent
// renames on the same sheet compose; a column renamed back to its
// original header drops out of the emitted map.
type RenameColumnsChunk struct {
	Base
	SheetIndex int
	DFName     string
	// Parallel lists keyed by column ID, in first-touched order.
	ColumnIDs []string
	OldNames  []string
	NewNames  []string
}

func (c *RenameColumnsChunk) DisplayName() string { return "Renamed columns" }

func (c *RenameColumnsChunk) Description() string {
	if len(c.NewNames) == 1 {
		return fmt.Sprintf("Renamed %q to %q in %s", c.OldNames[0], c.NewNames[0], c.DFName)
	}
	return fmt.Sprintf("Renamed %d columns in %s", len(c.NewNames), c.DFName)
}

func (c *RenameColumnsChunk) Code() []string {
	var pairs []string
	for i := range c.ColumnIDs {
		if c.OldNames[i] == c.NewNames[i] {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s: %s",
			values.PyString(c.OldNames[i]), values.PyString(c.NewNames[i])))
	}
	if len(pairs) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("%s.rename(columns={%s}, inplace=True)",
		c.DFName, strings.Join(pairs, ", "))}
}

func (c *RenameColumnsChunk) EditedSheetIndexes() []int { return []int{c.SheetIndex} }

func (c *RenameColumnsChunk) CombineRight(right Chunk) Chunk {
	rc, ok := right.(*RenameColumnsChunk)
	if !ok || rc.SheetIndex != c.SheetIndex {
		return nil
	}
	out := &RenameColumnsChunk{
		Base:       Base{Prev: c.Prev, Post: rc.Post},
		SheetIndex: c.SheetIndex,
		DFName:     rc.DFName,
		ColumnIDs:  append([]string(nil), c.ColumnIDs...),
		OldNames:   append([]string(nil), c.OldNames...),
		NewNames:   append([]string(nil), c.NewNames...),
	}
	for i, id := range rc.ColumnIDs {
		if j := indexOf(out.ColumnIDs, id); j >= 0 {
			out.NewNames[j] = rc.NewNames[i]
			continue
		}
		out.ColumnIDs = append(out.ColumnIDs, id)
		out.OldNames = append(out.OldNames, rc.OldNames[i])
		out.NewNames = append(out.NewNames, rc.NewNames[i])
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, x := range list {
		if x == s {
			return i
		}
	}
	return -1
}

// mergeLists concatenates b onto a, skipping duplicates, preserving
// first-seen order.
func mergeLists(a, b []string) []string {
	out := append([]string(nil), a...)
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
