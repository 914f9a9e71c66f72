// Package exports writes sheets back out: CSV files and multi-sheet
// XLSX workbooks.
package exports

import (
	"encoding/csv"
	"os"

	"github.com/xuri/excelize/v2"

	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
	"sheetflow/internal/values"
)

// WriteCSV writes one dataframe as UTF-8 CSV with a header row.
// Missing cells are written empty.
func WriteCSV(df *frame.DataFrame, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.IO("export_failed", "cannot create %q", path).WithCause(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(df.Headers); err != nil {
		return errs.IO("export_failed", "cannot write %q", path).WithCause(err)
	}
	row := make([]string, df.NumCols())
	for r := 0; r < df.NumRows(); r++ {
		for c, col := range df.Cols {
			if col.Cells[r].IsNull() {
				row[c] = ""
			} else {
				row[c] = col.Cells[r].String()
			}
		}
		if err := w.Write(row); err != nil {
			return errs.IO("export_failed", "cannot write %q", path).WithCause(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errs.IO("export_failed", "cannot write %q", path).WithCause(err)
	}
	return nil
}

// WriteXLSX writes the given sheets into one workbook, in order. Sheet
// names follow the pipeline's df names.
func WriteXLSX(sheets []*frame.DataFrame, names []string, path string) error {
	if len(sheets) != len(names) {
		return errs.Invariant("export_name_mismatch",
			"%d sheets but %d names", len(sheets), len(names))
	}
	if len(sheets) == 0 {
		return errs.UserConfig("export_empty", "no sheets selected for export")
	}

	wb := excelize.NewFile()
	defer wb.Close()

	for i, df := range sheets {
		name := names[i]
		if i == 0 {
			if err := wb.SetSheetName(wb.GetSheetName(0), name); err != nil {
				return errs.IO("export_failed", "cannot name sheet %q", name).WithCause(err)
			}
		} else {
			if _, err := wb.NewSheet(name); err != nil {
				return errs.IO("export_failed", "cannot add sheet %q", name).WithCause(err)
			}
		}
		if err := writeSheet(wb, name, df); err != nil {
			return err
		}
	}
	if err := wb.SaveAs(path); err != nil {
		return errs.IO("export_failed", "cannot save %q", path).WithCause(err)
	}
	return nil
}

func writeSheet(wb *excelize.File, sheet string, df *frame.DataFrame) error {
	header := make([]any, len(df.Headers))
	for i, h := range df.Headers {
		header[i] = h
	}
	if err := wb.SetSheetRow(sheet, "A1", &header); err != nil {
		return errs.IO("export_failed", "cannot write headers of %q", sheet).WithCause(err)
	}
	for r := 0; r < df.NumRows(); r++ {
		row := make([]any, df.NumCols())
		for c, col := range df.Cols {
			row[c] = cellValue(col.Cells[r])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return errs.Invariant("bad_cell_coordinates", "row %d", r+2)
		}
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			return errs.IO("export_failed", "cannot write row %d of %q", r, sheet).WithCause(err)
		}
	}
	return nil
}

func cellValue(v values.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case values.TypeInt:
		return v.IntVal()
	case values.TypeFloat:
		return v.FloatVal()
	case values.TypeBool:
		return v.BoolVal()
	case values.TypeDatetime:
		return v.TimeVal()
	default:
		return v.String()
	}
}
