package imports

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"sheetflow/internal/columns"
	"sheetflow/internal/errs"
	"sheetflow/internal/frame"
)

// ExcelOptions control a workbook import.
type ExcelOptions struct {
	SheetNames []string `json:"sheet_names"`
	HasHeaders bool     `json:"has_headers"`
	Skiprows   int      `json:"skiprows"`
}

// ExcelSheet is one imported worksheet.
type ExcelSheet struct {
	Name string
	DF   *frame.DataFrame
}

// ReadExcel imports the named sheets (all sheets when none are named)
// in workbook order. Sheets parse concurrently; results keep workbook
// order regardless of completion order.
func ReadExcel(ctx context.Context, path string, opts ExcelOptions) ([]ExcelSheet, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errs.IO("xlsx_unreadable", "cannot open %q", path).WithCause(err)
	}
	defer wb.Close()

	names := opts.SheetNames
	if len(names) == 0 {
		names = wb.GetSheetList()
	}
	for _, name := range names {
		if idx, _ := wb.GetSheetIndex(name); idx < 0 {
			return nil, errs.UserConfig("xlsx_missing_sheet",
				"workbook %q has no sheet %q", path, name)
		}
	}

	out := make([]ExcelSheet, len(names))
	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			rows, err := wb.GetRows(name)
			if err != nil {
				return errs.IO("xlsx_sheet_unreadable",
					"cannot read sheet %q of %q", name, path).WithCause(err)
			}
			df, err := rowsToDataFrame(rows, opts.HasHeaders, opts.Skiprows)
			if err != nil {
				return err
			}
			mu.Lock()
			out[i] = ExcelSheet{Name: name, DF: df}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SheetNames lists the worksheets of a workbook in order.
func SheetNames(path string) ([]string, error) {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errs.IO("xlsx_unreadable", "cannot open %q", path).WithCause(err)
	}
	defer wb.Close()
	return wb.GetSheetList(), nil
}

// ReadExcelRange reads one rectangular block like "A1:D10" from a
// sheet. The first row of the block supplies headers when hasHeaders.
func ReadExcelRange(path, sheet, cellRange string, hasHeaders bool) (*frame.DataFrame, error) {
	x1, y1, x2, y2, err := parseRange(cellRange)
	if err != nil {
		return nil, err
	}
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errs.IO("xlsx_unreadable", "cannot open %q", path).WithCause(err)
	}
	defer wb.Close()

	rows := make([][]string, 0, y2-y1+1)
	for y := y1; y <= y2; y++ {
		row := make([]string, 0, x2-x1+1)
		for x := x1; x <= x2; x++ {
			cell, err := excelize.CoordinatesToCellName(x, y)
			if err != nil {
				return nil, errs.Invariant("bad_cell_coordinates", "(%d,%d)", x, y)
			}
			val, err := wb.GetCellValue(sheet, cell)
			if err != nil {
				return nil, errs.IO("xlsx_cell_unreadable",
					"cannot read %s!%s of %q", sheet, cell, path).WithCause(err)
			}
			row = append(row, val)
		}
		rows = append(rows, row)
	}
	return rowsToDataFrame(rows, hasHeaders, 0)
}

// parseRange splits "A1:D10" into inclusive 1-based coordinates,
// normalizing a reversed range.
func parseRange(cellRange string) (x1, y1, x2, y2 int, err error) {
	parts := strings.Split(cellRange, ":")
	if len(parts) != 2 {
		return 0, 0, 0, 0, errs.UserConfig("bad_range",
			"range %q must look like A1:D10", cellRange)
	}
	x1, y1, err = excelize.CellNameToCoordinates(strings.TrimSpace(parts[0]))
	if err == nil {
		x2, y2, err = excelize.CellNameToCoordinates(strings.TrimSpace(parts[1]))
	}
	if err != nil {
		return 0, 0, 0, 0, errs.UserConfig("bad_range",
			"range %q must look like A1:D10", cellRange).WithCause(err)
	}
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return x1, y1, x2, y2, nil
}

func rowsToDataFrame(rows [][]string, hasHeaders bool, skiprows int) (*frame.DataFrame, error) {
	if skiprows > 0 {
		if skiprows >= len(rows) {
			rows = nil
		} else {
			rows = rows[skiprows:]
		}
	}
	if len(rows) == 0 {
		return nil, errs.DataShape("xlsx_empty", "no rows to import")
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	var headers []string
	var body [][]string
	if hasHeaders {
		headers = make([]string, width)
		copy(headers, rows[0])
		body = rows[1:]
	} else {
		headers = make([]string, width)
		for i := range headers {
			headers[i] = strconv.Itoa(i)
		}
		body = rows
	}
	headers = columns.DeduplicateHeaders(headers)
	return frame.FromRecords(headers, body)
}
