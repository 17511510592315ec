package interfaces

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alarms "vesselwatch/internal/alarms/domain"
)

// BuildTrendPDF renders a minimal PDF report for an alarm trend.
func BuildTrendPDF(trend alarms.AlarmTrend) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Alarm Trend Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s to %s",
		trend.Start.UTC().Format(time.RFC3339), trend.End.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Alarms: %d", trend.TotalAlarms))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Avg Acknowledge Time: %s", trend.AverageAcknowledgeTime))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Avg Clear Time: %s", trend.AverageClearTime))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, severity := range sortedSeverities(trend.AlarmsBySeverity) {
		pdf.CellFormat(60, 6, string(severity), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", trend.AlarmsBySeverity[severity]), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Source Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, sourceType := range sortedKeys(trend.AlarmsBySourceType) {
		pdf.CellFormat(60, 6, sourceType, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%d", trend.AlarmsBySourceType[sourceType]), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(80, 6, "Most Frequent", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Share (%)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, frequent := range trend.MostFrequentAlarms {
		pdf.CellFormat(80, 6, frequent.Title, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", frequent.Count), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.1f", frequent.Percentage), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTrendXLSX renders a minimal XLSX report for an alarm trend.
func BuildTrendXLSX(trend alarms.AlarmTrend) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	breakdownSheet := "breakdown"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(breakdownSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Alarm Trend Report")
	_ = f.SetCellValue(summarySheet, "A3", "Window Start")
	_ = f.SetCellValue(summarySheet, "B3", trend.Start.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "Window End")
	_ = f.SetCellValue(summarySheet, "B4", trend.End.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Total Alarms")
	_ = f.SetCellValue(summarySheet, "B5", trend.TotalAlarms)
	_ = f.SetCellValue(summarySheet, "A6", "Avg Acknowledge Time")
	_ = f.SetCellValue(summarySheet, "B6", trend.AverageAcknowledgeTime.String())
	_ = f.SetCellValue(summarySheet, "A7", "Avg Clear Time")
	_ = f.SetCellValue(summarySheet, "B7", trend.AverageClearTime.String())

	_ = f.SetCellValue(breakdownSheet, "A1", "Severity")
	_ = f.SetCellValue(breakdownSheet, "B1", "Count")
	row := 2
	for _, severity := range sortedSeverities(trend.AlarmsBySeverity) {
		_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("A%d", row), string(severity))
		_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("B%d", row), trend.AlarmsBySeverity[severity])
		row++
	}
	row++
	_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("A%d", row), "Source Type")
	_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("B%d", row), "Count")
	row++
	for _, sourceType := range sortedKeys(trend.AlarmsBySourceType) {
		_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("A%d", row), sourceType)
		_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("B%d", row), trend.AlarmsBySourceType[sourceType])
		row++
	}
	row++
	_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("A%d", row), "Most Frequent")
	_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("B%d", row), "Count")
	_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("C%d", row), "Share (%)")
	row++
	for _, frequent := range trend.MostFrequentAlarms {
		_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("A%d", row), frequent.Title)
		_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("B%d", row), frequent.Count)
		_ = f.SetCellValue(breakdownSheet, fmt.Sprintf("C%d", row), frequent.Percentage)
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedSeverities(counts map[alarms.Severity]int) []alarms.Severity {
	severities := make([]alarms.Severity, 0, len(counts))
	for severity := range counts {
		severities = append(severities, severity)
	}
	sort.Slice(severities, func(i, j int) bool {
		return severities[i].Rank() > severities[j].Rank()
	})
	return severities
}

func sortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
