package attendance

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportContentType is the MIME type of BuildWorkbook output.
const ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var exportHeader = []string{"Member ID", "Name", "Date", "In", "Out"}

// ExportFileName names the workbook for one day's attendance.
func ExportFileName(date string) string {
	return fmt.Sprintf("attendance-%s.xlsx", date)
}

// BuildWorkbook renders one day's records as a single-sheet xlsx document.
func BuildWorkbook(date string, records []Record) ([]byte, error) {
	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	sheet := "Sheet1"
	header := append([]string(nil), exportHeader...)
	if err := file.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("attendance: write export header: %w", err)
	}
	for index, record := range records {
		anchor, err := excelize.CoordinatesToCellName(1, index+2)
		if err != nil {
			return nil, fmt.Errorf("attendance: export cell: %w", err)
		}
		row := []string{record.MemberID, record.Name, record.Date, record.InTime, record.OutTime}
		if err := file.SetSheetRow(sheet, anchor, &row); err != nil {
			return nil, fmt.Errorf("attendance: write export row %d: %w", index+1, err)
		}
	}
	if err := file.SetColWidth(sheet, "A", "E", 14); err != nil {
		return nil, fmt.Errorf("attendance: export column width: %w", err)
	}

	buffer, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("attendance: encode export for %s: %w", date, err)
	}
	return buffer.Bytes(), nil
}
