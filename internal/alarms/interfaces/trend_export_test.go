package interfaces

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	alarms "vesselwatch/internal/alarms/domain"
)

func sampleTrend() alarms.AlarmTrend {
	return alarms.AlarmTrend{
		Start:       time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		TotalAlarms: 5,
		AlarmsBySeverity: map[alarms.Severity]int{
			alarms.SeverityWarning:  3,
			alarms.SeverityCritical: 2,
		},
		AlarmsBySourceType: map[string]int{
			alarms.SourceTypeSensor: 3,
			alarms.SourceTypeEngine: 2,
		},
		MostFrequentAlarms: []alarms.FrequentAlarm{
			{Title: "High Temp", Count: 3, Percentage: 60},
			{Title: "Engine Failure", Count: 2, Percentage: 40},
		},
		AverageAcknowledgeTime: 10 * time.Minute,
	}
}

func TestBuildTrendPDF(t *testing.T) {
	data, err := BuildTrendPDF(sampleTrend())
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected pdf bytes")
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected pdf header, got %q", data[:8])
	}
}

func TestBuildTrendXLSX(t *testing.T) {
	data, err := BuildTrendXLSX(sampleTrend())
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected xlsx bytes")
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	total, err := f.GetCellValue("summary", "B5")
	if err != nil {
		t.Fatalf("read total: %v", err)
	}
	if total != "5" {
		t.Fatalf("expected total 5, got %q", total)
	}

	// Severities sort by rank descending, so critical leads the breakdown.
	severity, err := f.GetCellValue("breakdown", "A2")
	if err != nil {
		t.Fatalf("read severity: %v", err)
	}
	if severity != string(alarms.SeverityCritical) {
		t.Fatalf("expected critical first, got %q", severity)
	}
}

func TestBuildTrendXLSXEmptyWindow(t *testing.T) {
	trend := alarms.AlarmTrend{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	data, err := BuildTrendXLSX(trend)
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected xlsx bytes for empty trend")
	}
}
