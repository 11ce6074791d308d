package export

import (
	"fmt"
	"io"
	"time"

	"ratesync/internal/models"

	"github.com/xuri/excelize/v2"
)

// WriteAnalyticsWorkbook renders per-channel analytics as an xlsx workbook.
// The HTTP analytics endpoint streams it when format=xlsx is requested.
func WriteAnalyticsWorkbook(w io.Writer, hotelID string, start, end time.Time, rows []*models.ChannelAnalytics) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Channel Analytics"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Hotel %s: %s - %s",
		hotelID, start.Format("02.01.2006"), end.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", "F1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"Channel", "Bookings", "Revenue", "Commission", "Net Revenue", "Average Rate"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, a := range rows {
		row := i + 3
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), a.ChannelName)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), a.Bookings)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), a.Revenue)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), a.Commission)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), a.NetRevenue)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), a.AverageRate)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	_ = f.SetColWidth(sheetName, "B", "F", 15)
	_ = f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %v", err)
	}
	return nil
}
