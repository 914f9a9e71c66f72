package chunks

import (
	"fmt"
	"strings"

	"sheetflow/internal/state"
)

// FormatChunk renders a sheet's display format as pandas Styler code.
// It always lands in the postprocessing bucket so the styling applies
// to the sheet's final shape no matter where the step sits.
type FormatChunk struct {
	Base
	SheetIndex int
	DFName     string
	Format     state.DataframeFormat
}

func (c *FormatChunk) DisplayName() string { return "Formatted dataframe" }

func (c *FormatChunk) Description() string {
	return fmt.Sprintf("Formatted %s", c.DFName)
}

func (c *FormatChunk) Code() []string {
	var rules []string
	if props := styleProps(c.Format.Headers); props != "" {
		rules = append(rules, fmt.Sprintf("{'selector': 'thead', 'props': %s}", props))
	}
	if props := styleProps(c.Format.RowsEven); props != "" {
		rules = append(rules, fmt.Sprintf("{'selector': 'tbody tr:nth-child(even)', 'props': %s}", props))
	}
	if props := styleProps(c.Format.RowsOdd); props != "" {
		rules = append(rules, fmt.Sprintf("{'selector': 'tbody tr:nth-child(odd)', 'props': %s}", props))
	}
	if c.Format.BorderStyle != "" || c.Format.BorderColor != "" {
		style, color := c.Format.BorderStyle, c.Format.BorderColor
		if style == "" {
			style = "solid"
		}
		if color == "" {
			color = "black"
		}
		rules = append(rules, fmt.Sprintf(
			"{'selector': '', 'props': [('border', '1px %s %s')]}", style, color))
	}
	if len(rules) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("%s_styler = %s.style.set_table_styles([%s])",
		c.DFName, c.DFName, strings.Join(rules, ", "))}
}

func (c *FormatChunk) EditedSheetIndexes() []int { return []int{c.SheetIndex} }
func (c *FormatChunk) Postprocess() bool         { return true }

// CombineRight lets a later format of the same sheet replace this one.
func (c *FormatChunk) CombineRight(right Chunk) Chunk {
	fc, ok := right.(*FormatChunk)
	if !ok || fc.SheetIndex != c.SheetIndex {
		return nil
	}
	out := *fc
	out.Prev = c.Prev
	return &out
}

func styleProps(s state.RegionStyle) string {
	var props []string
	if s.Color != "" {
		props = append(props, fmt.Sprintf("('color', '%s')", s.Color))
	}
	if s.BackgroundColor != "" {
		props = append(props, fmt.Sprintf("('background-color', '%s')", s.BackgroundColor))
	}
	if len(props) == 0 {
		return ""
	}
	return "[" + strings.Join(props, ", ") + "]"
}
