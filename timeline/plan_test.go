package timeline

import (
	"context"
	"math"
	"testing"

	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/db"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/decode_yaml/request"
	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/synthesize"
)

func testSettings() request.Settings {
	return request.Settings{
		ChunkCount:        4,
		DriftThresholdSec: 1.0,
		MaxStretchFactor:  3.0,
		SyncGoodSec:       2.0,
		SyncAcceptableSec: 10.0,
	}
}

// fourLines builds successful results for one segment whose merged length is
// the sum of the given durations.
func fourLines(results map[synthesize.ChunkKey]synthesize.Result, segmentId string, durations [4]float64) {
	for line := 0; line < 4; line++ {
		key := synthesize.ChunkKey{Language: "english", SegmentId: segmentId, LineIndex: line}
		results[key] = synthesize.Result{
			Job:         synthesize.Job{Language: "english", SegmentId: segmentId, LineIndex: line},
			OutputFile:  segmentId + "_line.wav",
			DurationSec: durations[line],
		}
	}
}

func TestPlanCorrectionApplied(t *testing.T) {
	ctx := context.Background()
	segments := []db.Segment{{SegmentId: "part1", BeginTS: 17.0, EndTS: 34.0}}
	results := make(map[synthesize.ChunkKey]synthesize.Result)
	fourLines(results, "part1", [4]float64{5.0, 5.0, 5.0, 5.0}) // 20s against a 17s target
	plans, status := Plan(ctx, segments, results, "english", testSettings())
	if status != nil {
		t.Fatal(status)
	}
	p := plans[0]
	if math.Abs(p.DriftSec-3.0) > 1e-9 {
		t.Error(`expected drift 3.0, got`, p.DriftSec)
	}
	if !p.CorrectionApplied {
		t.Fatal(`expected correction for 3s drift`)
	}
	wantTempo := 20.0 / 17.0
	if math.Abs(p.TempoFactor-wantTempo) > 1e-9 {
		t.Error(`expected tempo`, wantTempo, `got`, p.TempoFactor)
	}
	if math.Abs(p.FinalSec-17.0) > 1e-9 {
		t.Error(`expected final 17.0, got`, p.FinalSec)
	}
	if p.SyncLabel != "good" {
		t.Error(`expected sync good, got`, p.SyncLabel)
	}
}

func TestPlanCorrectionSkippedWithinThreshold(t *testing.T) {
	ctx := context.Background()
	segments := []db.Segment{{SegmentId: "part1", BeginTS: 17.0, EndTS: 34.0}}
	results := make(map[synthesize.ChunkKey]synthesize.Result)
	fourLines(results, "part1", [4]float64{4.0, 4.0, 4.0, 4.5}) // 16.5s, drift -0.5
	plans, status := Plan(ctx, segments, results, "english", testSettings())
	if status != nil {
		t.Fatal(status)
	}
	p := plans[0]
	if p.CorrectionApplied {
		t.Error(`drift within threshold must not be corrected`)
	}
	if p.TempoFactor != 1.0 {
		t.Error(`expected tempo 1.0, got`, p.TempoFactor)
	}
	if math.Abs(p.FinalSec-16.5) > 1e-9 {
		t.Error(`expected final 16.5, got`, p.FinalSec)
	}
	if p.SyncLabel != "good" {
		t.Error(`expected sync good, got`, p.SyncLabel)
	}
}

func TestPlanExtremeDriftClamped(t *testing.T) {
	ctx := context.Background()
	segments := []db.Segment{{SegmentId: "part1", BeginTS: 0.0, EndTS: 10.0}}
	results := make(map[synthesize.ChunkKey]synthesize.Result)
	fourLines(results, "part1", [4]float64{10.0, 10.0, 10.0, 10.0}) // 40s against 10s, tempo 4 > max 3
	plans, status := Plan(ctx, segments, results, "english", testSettings())
	if status != nil {
		t.Fatal(status)
	}
	p := plans[0]
	if p.TempoFactor != 3.0 {
		t.Error(`expected tempo clamped to 3.0, got`, p.TempoFactor)
	}
	wantFinal := 40.0 / 3.0
	if math.Abs(p.FinalSec-wantFinal) > 1e-9 {
		t.Error(`expected final`, wantFinal, `got`, p.FinalSec)
	}
	// 13.33 vs 10.0 leaves 3.33s residual drift.
	if p.SyncLabel != "acceptable" {
		t.Error(`expected sync acceptable, got`, p.SyncLabel)
	}
}

func TestPlanReuseBindsSourceWithOwnCorrection(t *testing.T) {
	ctx := context.Background()
	segments := []db.Segment{
		{SegmentId: "part1", BeginTS: 17.0, EndTS: 34.0},
		{SegmentId: "part5", BeginTS: 80.0, EndTS: 95.0, ReusedFrom: "part1"},
	}
	results := make(map[synthesize.ChunkKey]synthesize.Result)
	fourLines(results, "part1", [4]float64{4.0, 4.0, 4.0, 4.5}) // 16.5s
	plans, status := Plan(ctx, segments, results, "english", testSettings())
	if status != nil {
		t.Fatal(status)
	}
	part1, part5 := plans[0], plans[1]
	if part1.CorrectionApplied {
		t.Error(`part1 drift 0.5 is under threshold`)
	}
	if part5.ActualSec != part1.ActualSec {
		t.Error(`reuse must inherit the source's merged duration`)
	}
	// part5's own target is 15s, so the same 16.5s audio now drifts 1.5s.
	if !part5.CorrectionApplied {
		t.Fatal(`reuse segment must be corrected against its own span`)
	}
	wantTempo := 16.5 / 15.0
	if math.Abs(part5.TempoFactor-wantTempo) > 1e-9 {
		t.Error(`expected tempo`, wantTempo, `got`, part5.TempoFactor)
	}
}

func TestPlanFailedLinesLeaveSilence(t *testing.T) {
	ctx := context.Background()
	segments := []db.Segment{{SegmentId: "part1", BeginTS: 0.0, EndTS: 17.0}}
	results := make(map[synthesize.ChunkKey]synthesize.Result)
	fourLines(results, "part1", [4]float64{4.0, 4.0, 4.0, 4.0})
	failedKey := synthesize.ChunkKey{Language: "english", SegmentId: "part1", LineIndex: 2}
	failed := results[failedKey]
	failed.Status = &log.Status{Code: 500, Message: "synthesis failed"}
	failed.OutputFile = ""
	failed.DurationSec = 0
	results[failedKey] = failed
	plans, status := Plan(ctx, segments, results, "english", testSettings())
	if status != nil {
		t.Fatal(status)
	}
	p := plans[0]
	if p.State != StateSynthesized {
		t.Error(`segment with surviving lines must proceed, got`, p.State)
	}
	if !p.Lines[2].Failed {
		t.Error(`line 2 must be marked failed`)
	}
	if math.Abs(p.ActualSec-12.0) > 1e-9 {
		t.Error(`failed line must not count toward merged duration, got`, p.ActualSec)
	}
}

func TestPlanAllLinesFailed(t *testing.T) {
	ctx := context.Background()
	segments := []db.Segment{{SegmentId: "part1", BeginTS: 0.0, EndTS: 17.0}}
	results := make(map[synthesize.ChunkKey]synthesize.Result)
	for line := 0; line < 4; line++ {
		key := synthesize.ChunkKey{Language: "english", SegmentId: "part1", LineIndex: line}
		results[key] = synthesize.Result{
			Job:    synthesize.Job{Language: "english", SegmentId: "part1", LineIndex: line},
			Status: &log.Status{Code: 500, Message: "synthesis failed"},
		}
	}
	plans, status := Plan(ctx, segments, results, "english", testSettings())
	if status != nil {
		t.Fatal(status)
	}
	if plans[0].State != StateFailed {
		t.Error(`segment with no surviving lines must fail, got`, plans[0].State)
	}
}

func TestPlanSkippedSegmentStaysSilent(t *testing.T) {
	ctx := context.Background()
	segments := []db.Segment{
		{SegmentId: "part1", BeginTS: 0.0, EndTS: 17.0},
		{SegmentId: "part2", BeginTS: 17.0, EndTS: 34.0},
	}
	results := make(map[synthesize.ChunkKey]synthesize.Result)
	fourLines(results, "part1", [4]float64{4.0, 4.0, 4.0, 4.0})
	// part2 has no results at all: skipped before synthesis.
	plans, status := Plan(ctx, segments, results, "english", testSettings())
	if status != nil {
		t.Fatal(status)
	}
	if plans[0].State != StateSynthesized {
		t.Error(`part1 must proceed, got`, plans[0].State)
	}
	if plans[1].State != StateFailed {
		t.Error(`segment with no results must fail silently, got`, plans[1].State)
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	ctx := context.Background()
	segments := []db.Segment{
		{SegmentId: "part1", BeginTS: 17.0, EndTS: 34.0},
		{SegmentId: "part5", BeginTS: 80.0, EndTS: 97.0, ReusedFrom: "part1"},
	}
	results := make(map[synthesize.ChunkKey]synthesize.Result)
	fourLines(results, "part1", [4]float64{5.0, 5.0, 5.0, 5.0})
	first, status := Plan(ctx, segments, results, "english", testSettings())
	if status != nil {
		t.Fatal(status)
	}
	second, status := Plan(ctx, segments, results, "english", testSettings())
	if status != nil {
		t.Fatal(status)
	}
	for i := range first {
		if first[i].TempoFactor != second[i].TempoFactor ||
			first[i].FinalSec != second[i].FinalSec ||
			first[i].SyncLabel != second[i].SyncLabel {
			t.Error(`planning must be deterministic, segment`, first[i].SegmentId)
		}
	}
}

func TestSlotTransitions(t *testing.T) {
	ctx := context.Background()
	plan := SegmentPlan{SegmentId: "part1", State: StateSynthesized}
	if status := plan.Advance(ctx, StateMerged); status != nil {
		t.Fatal(status)
	}
	if status := plan.Advance(ctx, StateOverlaid); status == nil {
		t.Error(`merged -> overlaid must be rejected`)
	}
	if status := plan.Advance(ctx, StatePositioned); status != nil {
		t.Fatal(status)
	}
	if status := plan.Advance(ctx, StateOverlaid); status != nil {
		t.Fatal(status)
	}
	if status := plan.Advance(ctx, StateFailed); status == nil {
		t.Error(`overlaid is terminal`)
	}
}
