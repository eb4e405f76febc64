package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	reports "telemetry-hub/internal/reports/domain"
)

// BuildHourlyXLSX renders hourly rollups as a spreadsheet, one row per
// (device, hour). Column layout matches the shared ops sheet.
func BuildHourlyXLSX(rows []reports.HourlyReport) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "hourly"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{
		"Hour (UTC)", "Device", "Readings",
		"Avg Temp (C)", "Max Temp (C)", "Min Temp (C)",
		"Avg Humidity (%)", "Avg Pressure (hPa)", "Avg Gas (kOhms)",
		"Stink Events", "Success Count", "Total Requests",
	}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, header)
	}

	for i, report := range rows {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), report.HourStart.Format("2006-01-02 15:04"))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), report.DeviceID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), report.ReadingCount)
		setOptional(f, sheet, fmt.Sprintf("D%d", row), report.AvgTemperature)
		setOptional(f, sheet, fmt.Sprintf("E%d", row), report.MaxTemperature)
		setOptional(f, sheet, fmt.Sprintf("F%d", row), report.MinTemperature)
		setOptional(f, sheet, fmt.Sprintf("G%d", row), report.AvgHumidity)
		setOptional(f, sheet, fmt.Sprintf("H%d", row), report.AvgPressure)
		setOptional(f, sheet, fmt.Sprintf("I%d", row), report.AvgGas)
		_ = f.SetCellValue(sheet, fmt.Sprintf("J%d", row), report.TotalStink)
		_ = f.SetCellValue(sheet, fmt.Sprintf("K%d", row), report.TotalSuccess)
		_ = f.SetCellValue(sheet, fmt.Sprintf("L%d", row), report.TotalRequests)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setOptional(f *excelize.File, sheet, cell string, value *float64) {
	if value == nil {
		return
	}
	_ = f.SetCellValue(sheet, cell, *value)
}

// BuildDailyPDF renders a one-page daily summary for a device from its
// hourly rollups.
func BuildDailyPDF(deviceID string, day time.Time, rows []reports.HourlyReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Telemetry Summary")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Device: %s", deviceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Day: %s", day.UTC().Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 6, "Hour", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Readings", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Avg Temp (C)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Avg Humidity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Avg Gas", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Stink", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, report := range rows {
		pdf.CellFormat(25, 6, report.HourStart.Format("15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", report.ReadingCount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, formatCell(report.AvgTemperature), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, formatCell(report.AvgHumidity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, formatCell(report.AvgGas), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", report.TotalStink), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatCell(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *value)
}
