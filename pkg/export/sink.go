package export

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/exim-agent/pkg/models"
)

const (
	// SheetName is the worksheet holding exported rows.
	SheetName = "Data"

	// progressInterval is how many rows are written between progress reports.
	progressInterval = 1000

	// numFmtText is excelize's built-in "@" (text) number format.
	numFmtText = 49
)

// textColumns are identifier-like columns kept as text so spreadsheet
// applications do not reinterpret them as numbers.
var textColumns = map[string]bool{
	"BE_NUMBER": true,
	"HS_CODE":   true,
}

// WriteWorkbook streams rs to an .xlsx file at path: a header row followed
// by one row per result row. progress receives percentages below 100 while
// rows are written; the caller reports 100 once the file is in place. The
// workbook is written to a temporary name and renamed, so path never holds
// a partial file.
func WriteWorkbook(ctx context.Context, path string, rs *models.ResultSet, progress func(percent int)) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	textStyle, err := f.NewStyle(&excelize.Style{NumFmt: numFmtText})
	if err != nil {
		return fmt.Errorf("create text style: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}

	header := make([]any, len(rs.Columns))
	isText := make([]bool, len(rs.Columns))
	for i, c := range rs.Columns {
		header[i] = c
		isText[i] = textColumns[strings.ToUpper(c)]
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	total := len(rs.Rows)
	for i, row := range rs.Rows {
		if i%progressInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		values := row.Values()
		cells := make([]any, len(values))
		for j, v := range values {
			if j < len(isText) && isText[j] && v != nil {
				cells[j] = excelize.Cell{StyleID: textStyle, Value: fmt.Sprint(v)}
				continue
			}
			cells[j] = v
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}

		if written := i + 1; written%progressInterval == 0 && progress != nil {
			progress(min(written*100/total, 99))
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}

	tmp := partialPath(path)
	if err := f.SaveAs(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move workbook into place: %w", err)
	}
	return nil
}

// partialPath keeps the .xlsx extension, which SaveAs requires.
func partialPath(path string) string {
	return strings.TrimSuffix(path, ".xlsx") + ".partial.xlsx"
}
