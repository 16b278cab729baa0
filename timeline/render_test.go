package timeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
)

// fakeOps records every operation and returns synthetic file names.
type fakeOps struct {
	calls   []string
	concats int
}

func (f *fakeOps) Concat(files []string) (string, *log.Status) {
	f.concats++
	name := fmt.Sprintf("merged%d.wav", f.concats)
	f.calls = append(f.calls, "concat("+strings.Join(files, ",")+")="+name)
	return name, nil
}

func (f *fakeOps) TimeScale(file string, tempo float64) (string, *log.Status) {
	name := "scaled_" + file
	f.calls = append(f.calls, fmt.Sprintf("timescale(%s,%.3f)=%s", file, tempo, name))
	return name, nil
}

func (f *fakeOps) SilentCanvas(duration float64, sampleRate int) (string, *log.Status) {
	f.calls = append(f.calls, fmt.Sprintf("canvas(%.1f,%d)", duration, sampleRate))
	return "canvas.wav", nil
}

func (f *fakeOps) OverlayAt(canvas string, clip string, offsetSec float64) (string, *log.Status) {
	name := "overlaid_" + clip
	f.calls = append(f.calls, fmt.Sprintf("overlay(%s,%s,%.1f)=%s", canvas, clip, offsetSec, name))
	return name, nil
}

func twoLinePlan(segmentId string, begin float64, end float64) SegmentPlan {
	return SegmentPlan{
		SegmentId: segmentId,
		Language:  "english",
		BeginTS:   begin,
		EndTS:     end,
		TargetSec: end - begin,
		Lines: []LinePlan{
			{LineIndex: 0, OutputFile: segmentId + "_line0.wav", DurationSec: 4.0},
			{LineIndex: 1, OutputFile: segmentId + "_line1.wav", DurationSec: 4.0},
		},
		ActualSec:   8.0,
		TempoFactor: 1.0,
		State:       StateSynthesized,
	}
}

func TestRenderOverlaysAtAbsolutePositions(t *testing.T) {
	ctx := context.Background()
	ops := &fakeOps{}
	assembler := NewAssembler(ctx, ops)
	plans := []SegmentPlan{
		twoLinePlan("part1", 17.0, 34.0),
		twoLinePlan("part2", 34.0, 51.0),
	}
	final, status := assembler.Render(plans, 200.0, 16000)
	if status != nil {
		t.Fatal(status)
	}
	if final != "overlaid_merged2.wav" {
		t.Error(`unexpected final canvas`, final)
	}
	joined := strings.Join(ops.calls, ";")
	if !strings.Contains(joined, "canvas(200.0,16000)") {
		t.Error(`expected full-length canvas, calls:`, joined)
	}
	if !strings.Contains(joined, "overlay(canvas.wav,merged1.wav,17.0)") {
		t.Error(`expected part1 overlaid at 17.0, calls:`, joined)
	}
	if !strings.Contains(joined, "overlay(overlaid_merged1.wav,merged2.wav,34.0)") {
		t.Error(`expected part2 overlaid on the updated canvas at 34.0, calls:`, joined)
	}
}

func TestRenderAppliesCorrection(t *testing.T) {
	ctx := context.Background()
	ops := &fakeOps{}
	assembler := NewAssembler(ctx, ops)
	plan := twoLinePlan("part1", 17.0, 24.0)
	plan.CorrectionApplied = true
	plan.TempoFactor = 8.0 / 7.0
	_, status := assembler.Render([]SegmentPlan{plan}, 100.0, 16000)
	if status != nil {
		t.Fatal(status)
	}
	joined := strings.Join(ops.calls, ";")
	if !strings.Contains(joined, "timescale(merged1.wav,1.143)") {
		t.Error(`expected time scale on merged clip, calls:`, joined)
	}
	if !strings.Contains(joined, "overlay(canvas.wav,scaled_merged1.wav,17.0)") {
		t.Error(`corrected clip must be the one overlaid, calls:`, joined)
	}
}

func TestRenderReusesMergedClip(t *testing.T) {
	ctx := context.Background()
	ops := &fakeOps{}
	assembler := NewAssembler(ctx, ops)
	part1 := twoLinePlan("part1", 17.0, 34.0)
	part5 := twoLinePlan("part5", 80.0, 97.0)
	part5.ReusedFrom = "part1"
	_, status := assembler.Render([]SegmentPlan{part1, part5}, 200.0, 16000)
	if status != nil {
		t.Fatal(status)
	}
	if ops.concats != 1 {
		t.Error(`reused segment must not re-merge, got`, ops.concats, `concats`)
	}
	joined := strings.Join(ops.calls, ";")
	if !strings.Contains(joined, "overlay(overlaid_merged1.wav,merged1.wav,80.0)") {
		t.Error(`reuse must overlay the cached clip at its own position, calls:`, joined)
	}
}

func TestRenderSkipsFailedSlots(t *testing.T) {
	ctx := context.Background()
	ops := &fakeOps{}
	assembler := NewAssembler(ctx, ops)
	good := twoLinePlan("part1", 17.0, 34.0)
	bad := twoLinePlan("part2", 34.0, 51.0)
	bad.State = StateFailed
	final, status := assembler.Render([]SegmentPlan{good, bad}, 200.0, 16000)
	if status != nil {
		t.Fatal(status)
	}
	joined := strings.Join(ops.calls, ";")
	if strings.Contains(joined, "part2") {
		t.Error(`failed slot must not be rendered, calls:`, joined)
	}
	if final != "overlaid_merged1.wav" {
		t.Error(`unexpected final canvas`, final)
	}
}

func TestRenderSkipsFailedLinesInMerge(t *testing.T) {
	ctx := context.Background()
	ops := &fakeOps{}
	assembler := NewAssembler(ctx, ops)
	plan := twoLinePlan("part1", 17.0, 34.0)
	plan.Lines[0].Failed = true
	plan.Lines[0].OutputFile = ""
	_, status := assembler.Render([]SegmentPlan{plan}, 200.0, 16000)
	if status != nil {
		t.Fatal(status)
	}
	joined := strings.Join(ops.calls, ";")
	if !strings.Contains(joined, "concat(part1_line1.wav)") {
		t.Error(`failed line must be skipped at merge, calls:`, joined)
	}
}
