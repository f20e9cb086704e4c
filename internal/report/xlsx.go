package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const tableSheet = "Frequency"

var tableHeader = []string{"Registration", "Name", "Sessions", "Present", "Late", "Absences", "Frequency (%)"}

// WriteClassTableXLSX renders the table as a single-sheet workbook.
func WriteClassTableXLSX(w io.Writer, t *ClassTable) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(tableSheet)
	if err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	_ = f.SetColWidth(tableSheet, "A", "A", 16)
	_ = f.SetColWidth(tableSheet, "B", "B", 32)
	_ = f.SetColWidth(tableSheet, "C", "G", 14)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	title := fmt.Sprintf("%s / %s (%d sessions)", t.ClassID, t.SubjectCode, t.TotalSessions)
	if err := f.SetCellValue(tableSheet, "A1", title); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(tableHeader))
	_ = f.MergeCell(tableSheet, "A1", lastCol+"1")

	for i, h := range tableHeader {
		c, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(tableSheet, c, h); err != nil {
			return err
		}
	}
	_ = f.SetCellStyle(tableSheet, "A2", lastCol+"2", headerStyle)

	for i, r := range t.Rows {
		values := []any{r.Registration, r.Name, r.TotalSessions, r.Presents, r.Lates, r.Absences, r.Frequency}
		c, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(tableSheet, c, &values); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}

	return f.Write(w)
}
