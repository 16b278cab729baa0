package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/xuri/excelize/v2"
)

// ReportRow is one segment's timing outcome, serialized to every report format.
type ReportRow struct {
	SegmentId  string  `json:"segment_id"`
	Language   string  `json:"language"`
	BeginTS    float64 `json:"begin_ts"`
	TargetSec  float64 `json:"target_sec"`
	ActualSec  float64 `json:"actual_sec"`
	DriftSec   float64 `json:"drift_sec"`
	Corrected  bool    `json:"corrected"`
	Tempo      float64 `json:"tempo_factor"`
	FinalSec   float64 `json:"final_sec"`
	SyncLabel  string  `json:"sync_label"`
	State      string  `json:"state"`
	ReusedFrom string  `json:"reused_from,omitempty"`
}

func ReportRows(plans []SegmentPlan) []ReportRow {
	var rows []ReportRow
	for _, p := range plans {
		rows = append(rows, ReportRow{
			SegmentId:  p.SegmentId,
			Language:   p.Language,
			BeginTS:    p.BeginTS,
			TargetSec:  p.TargetSec,
			ActualSec:  p.ActualSec,
			DriftSec:   p.DriftSec,
			Corrected:  p.CorrectionApplied,
			Tempo:      p.TempoFactor,
			FinalSec:   p.FinalSec,
			SyncLabel:  p.SyncLabel,
			State:      string(p.State),
			ReusedFrom: p.ReusedFrom,
		})
	}
	return rows
}

// FormatReport renders the human-readable timing report.
func FormatReport(rows []ReportRow) string {
	var b strings.Builder
	b.WriteString("TIMING REPORT\n")
	b.WriteString(fmt.Sprintf("%-10s %-10s %9s %9s %9s %9s %7s %9s %-10s\n",
		"segment", "language", "begin", "target", "actual", "drift", "tempo", "final", "sync"))
	for _, r := range rows {
		corrected := " "
		if r.Corrected {
			corrected = "*"
		}
		b.WriteString(fmt.Sprintf("%-10s %-10s %9.2f %9.2f %9.2f %8.2f%s %7.3f %9.2f %-10s\n",
			r.SegmentId, r.Language, r.BeginTS, r.TargetSec, r.ActualSec,
			r.DriftSec, corrected, r.Tempo, r.FinalSec, r.SyncLabel))
	}
	b.WriteString("* drift correction applied\n")
	return b.String()
}

// WriteReports writes the text, JSON, and xlsx timing reports to directory.
func WriteReports(ctx context.Context, directory string, rows []ReportRow) *log.Status {
	text := FormatReport(rows)
	err := os.WriteFile(filepath.Join(directory, "timing_report.txt"), []byte(text), 0644)
	if err != nil {
		return log.Error(ctx, 500, err, "Error writing text timing report")
	}
	content, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return log.Error(ctx, 500, err, "Error marshalling timing report")
	}
	err = os.WriteFile(filepath.Join(directory, "timing_report.json"), content, 0644)
	if err != nil {
		return log.Error(ctx, 500, err, "Error writing json timing report")
	}
	return writeXLSX(ctx, filepath.Join(directory, "timing_report.xlsx"), rows)
}

func writeXLSX(ctx context.Context, path string, rows []ReportRow) *log.Status {
	file := excelize.NewFile()
	defer file.Close()
	sheet := "Timing"
	_, err := file.NewSheet(sheet)
	if err != nil {
		return log.Error(ctx, 500, err, "Error creating xlsx sheet")
	}
	_ = file.DeleteSheet("Sheet1")
	headers := []string{"Segment", "Language", "Begin", "Target Sec", "Actual Sec",
		"Drift Sec", "Corrected", "Tempo", "Final Sec", "Sync", "State", "Reused From"}
	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = file.SetCellValue(sheet, cell, header)
	}
	for i, r := range rows {
		values := []any{r.SegmentId, r.Language, r.BeginTS, r.TargetSec, r.ActualSec,
			r.DriftSec, r.Corrected, r.Tempo, r.FinalSec, r.SyncLabel, r.State, r.ReusedFrom}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = file.SetCellValue(sheet, cell, value)
		}
	}
	err = file.SaveAs(path)
	if err != nil {
		return log.Error(ctx, 500, err, "Error saving xlsx timing report", path)
	}
	return nil
}
