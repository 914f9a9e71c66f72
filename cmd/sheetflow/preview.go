package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sheetflow/internal/api"
	"sheetflow/pkg/sheetflow"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	mutedStyle  = lipgloss.NewStyle().Faint(true)
)

// previewAnalysis renders every sheet of the analysis as a small table,
// capped at rows rows per sheet.
func previewAnalysis(a *sheetflow.Analysis, rows int) string {
	blob, err := a.SharedStatePage(0, rows)
	if err != nil {
		return fmt.Sprintf("error: %v\n", err)
	}
	var ss api.SharedState
	if err := json.Unmarshal(blob, &ss); err != nil {
		return fmt.Sprintf("error: %v\n", err)
	}

	var sb strings.Builder
	for _, sheet := range ss.Sheets {
		sb.WriteString(titleStyle.Render(sheet.DFName))
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("  %d rows", sheet.TotalRows)))
		sb.WriteString("\n")
		sb.WriteString(renderSheet(sheet))
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderSheet(sheet api.SheetJSON) string {
	headers := make([]string, len(sheet.Columns))
	for i, c := range sheet.Columns {
		headers[i] = c.Header
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	cells := make([][]string, len(sheet.Rows))
	for r, row := range sheet.Rows {
		cells[r] = make([]string, len(row))
		for c, v := range row {
			s := v.String()
			cells[r][c] = s
			if w := lipgloss.Width(s); c < len(widths) && w > widths[c] {
				widths[c] = w
			}
		}
	}

	var sb strings.Builder
	for i, h := range headers {
		sb.WriteString(headerStyle.Render(pad(h, widths[i])))
		sb.WriteString("  ")
	}
	sb.WriteString("\n")
	for _, row := range cells {
		for c, cell := range row {
			sb.WriteString(pad(cell, widths[c]))
			sb.WriteString("  ")
		}
		sb.WriteString("\n")
	}
	if len(sheet.Rows) < sheet.TotalRows {
		sb.WriteString(mutedStyle.Render(
			fmt.Sprintf("… %d more rows", sheet.TotalRows-len(sheet.Rows))))
		sb.WriteString("\n")
	}
	return sb.String()
}

func pad(s string, width int) string {
	if n := width - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}
