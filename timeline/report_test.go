package timeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func reportPlans() []SegmentPlan {
	return []SegmentPlan{
		{
			SegmentId: "part1", Language: "english", BeginTS: 17.0, EndTS: 34.0,
			TargetSec: 17.0, ActualSec: 20.0, DriftSec: 3.0,
			CorrectionApplied: true, TempoFactor: 20.0 / 17.0, FinalSec: 17.0,
			SyncLabel: "good", State: StateOverlaid,
		},
		{
			SegmentId: "part5", Language: "english", BeginTS: 80.0, EndTS: 97.0,
			TargetSec: 17.0, ActualSec: 20.0, DriftSec: 3.0, ReusedFrom: "part1",
			CorrectionApplied: true, TempoFactor: 20.0 / 17.0, FinalSec: 17.0,
			SyncLabel: "good", State: StateOverlaid,
		},
	}
}

func TestFormatReport(t *testing.T) {
	text := FormatReport(ReportRows(reportPlans()))
	if !strings.Contains(text, "TIMING REPORT") {
		t.Error(`missing header`)
	}
	if !strings.Contains(text, "part1") || !strings.Contains(text, "part5") {
		t.Error(`missing segment rows:`, text)
	}
	if !strings.Contains(text, "good") {
		t.Error(`missing sync label:`, text)
	}
	if !strings.Contains(text, "*") {
		t.Error(`corrected rows must be marked:`, text)
	}
}

func TestWriteReports(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	status := WriteReports(ctx, dir, ReportRows(reportPlans()))
	if status != nil {
		t.Fatal(status)
	}
	for _, name := range []string{"timing_report.txt", "timing_report.json", "timing_report.xlsx"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(name, err)
		}
		if info.Size() == 0 {
			t.Error(name, `is empty`)
		}
	}
	content, err := os.ReadFile(filepath.Join(dir, "timing_report.json"))
	if err != nil {
		t.Fatal(err)
	}
	var rows []ReportRow
	if err = json.Unmarshal(content, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1].ReusedFrom != "part1" {
		t.Error(`json report did not round trip`, rows)
	}
}
