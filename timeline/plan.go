// Package timeline places synthesized segments back onto the song's absolute
// time axis. Planning is pure arithmetic over measured durations; rendering
// executes the plan with ffmpeg. Keeping the two apart means every drift and
// reuse decision can be verified without touching audio.
package timeline

import (
	"context"
	"fmt"

	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/db"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/decode_yaml/request"
	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/synthesize"
)

// SlotState tracks one segment slot through assembly.
type SlotState string

const (
	StatePending     SlotState = "pending"
	StateSynthesized SlotState = "synthesized"
	StateMerged      SlotState = "merged"
	StatePositioned  SlotState = "positioned"
	StateOverlaid    SlotState = "overlaid"
	StateFailed      SlotState = "failed"
)

var slotTransitions = map[SlotState][]SlotState{
	StatePending:     {StateSynthesized, StateFailed},
	StateSynthesized: {StateMerged, StateFailed},
	StateMerged:      {StatePositioned, StateFailed},
	StatePositioned:  {StateOverlaid, StateFailed},
}

// Advance moves the slot to the next state, rejecting transitions the assembly
// order does not allow.
func (s *SegmentPlan) Advance(ctx context.Context, next SlotState) *log.Status {
	for _, allowed := range slotTransitions[s.State] {
		if allowed == next {
			s.State = next
			return nil
		}
	}
	return log.ErrorNoErr(ctx, 500, "Invalid slot transition", s.SegmentId,
		string(s.State), "->", string(next))
}

// LinePlan is one synthesized line within a segment slot. A failed line
// contributes silence: it is skipped at merge time and its span stays empty.
type LinePlan struct {
	LineIndex   int
	OutputFile  string
	DurationSec float64
	Failed      bool
}

// SegmentPlan is the complete placement decision for one segment in one
// language. Target is the original segment span; Actual is the merged length
// of the synthesized lines; the tempo factor is what Render must apply.
type SegmentPlan struct {
	SegmentId         string
	Language          string
	BeginTS           float64
	EndTS             float64
	ReusedFrom        string
	Lines             []LinePlan
	TargetSec         float64
	ActualSec         float64
	DriftSec          float64
	CorrectionApplied bool
	TempoFactor       float64
	FinalSec          float64
	SyncLabel         string
	State             SlotState
}

// Plan computes placement for every segment of one language. Reuse segments
// borrow their source's merged audio but get their own drift correction,
// because their own span may differ from the source's by a fraction.
func Plan(ctx context.Context, segments []db.Segment, results map[synthesize.ChunkKey]synthesize.Result,
	language string, settings request.Settings) ([]SegmentPlan, *log.Status) {
	bySegment := make(map[string]*SegmentPlan)
	var plans []SegmentPlan
	for _, seg := range segments {
		plan := SegmentPlan{
			SegmentId:  seg.SegmentId,
			Language:   language,
			BeginTS:    seg.BeginTS,
			EndTS:      seg.EndTS,
			ReusedFrom: seg.ReusedFrom,
			TargetSec:  seg.EndTS - seg.BeginTS,
			State:      StatePending,
		}
		if seg.ReusedFrom == "" {
			status := planLines(ctx, &plan, results, settings)
			if status != nil {
				return nil, status
			}
		}
		plans = append(plans, plan)
	}
	for i := range plans {
		bySegment[plans[i].SegmentId] = &plans[i]
	}
	for i := range plans {
		plan := &plans[i]
		if plan.ReusedFrom != "" {
			source, found := bySegment[plan.ReusedFrom]
			if !found {
				return nil, log.ErrorNoErr(ctx, 400, "Reused segment not planned",
					plan.SegmentId, plan.ReusedFrom)
			}
			if source.State == StateFailed {
				plan.State = StateFailed
				log.Warn(ctx, "Segment", plan.SegmentId, "reuses failed segment", plan.ReusedFrom)
				continue
			}
			plan.Lines = source.Lines
			plan.ActualSec = source.ActualSec
			plan.State = StateSynthesized
		}
		if plan.State == StateFailed {
			continue
		}
		planCorrection(ctx, plan, settings)
	}
	return plans, nil
}

func planLines(ctx context.Context, plan *SegmentPlan, results map[synthesize.ChunkKey]synthesize.Result,
	settings request.Settings) *log.Status {
	missing := 0
	for line := 0; line < settings.ChunkCount; line++ {
		key := synthesize.ChunkKey{Language: plan.Language, SegmentId: plan.SegmentId, LineIndex: line}
		if _, found := results[key]; !found {
			missing++
		}
	}
	if missing == settings.ChunkCount {
		// The whole segment was skipped upstream; its span stays silent.
		plan.State = StateFailed
		log.Warn(ctx, "No synthesized lines for", plan.Language, plan.SegmentId, "leaving silence")
		return nil
	}
	if missing > 0 {
		return log.ErrorNoErr(ctx, 500, "Incomplete synthesis results for",
			plan.Language, plan.SegmentId)
	}
	failed := 0
	for line := 0; line < settings.ChunkCount; line++ {
		key := synthesize.ChunkKey{Language: plan.Language, SegmentId: plan.SegmentId, LineIndex: line}
		result := results[key]
		linePlan := LinePlan{LineIndex: line}
		if result.Status != nil {
			linePlan.Failed = true
			failed++
			log.Warn(ctx, "Line", line, "of", plan.SegmentId, "failed, leaving silence")
		} else {
			linePlan.OutputFile = result.OutputFile
			linePlan.DurationSec = result.DurationSec
			plan.ActualSec += result.DurationSec
		}
		plan.Lines = append(plan.Lines, linePlan)
	}
	if failed == settings.ChunkCount {
		plan.State = StateFailed
		log.Warn(ctx, "All lines of", plan.SegmentId, "failed, segment stays silent")
		return nil
	}
	plan.State = StateSynthesized
	return nil
}

// planCorrection decides whether the merged audio must be time-scaled. The
// tempo factor is actual/target: above 1 the audio is too long and must be
// compressed. Factors beyond the stretch limit are clamped, which leaves
// residual drift rather than producing unintelligible audio.
func planCorrection(ctx context.Context, plan *SegmentPlan, settings request.Settings) {
	plan.DriftSec = plan.ActualSec - plan.TargetSec
	plan.FinalSec = plan.ActualSec
	plan.TempoFactor = 1.0
	if abs(plan.DriftSec) > settings.DriftThresholdSec && plan.TargetSec > 0 && plan.ActualSec > 0 {
		tempo := plan.ActualSec / plan.TargetSec
		if tempo > settings.MaxStretchFactor {
			log.Warn(ctx, fmt.Sprintf("Segment %s needs tempo %.2f, clamping to %.2f",
				plan.SegmentId, tempo, settings.MaxStretchFactor))
			tempo = settings.MaxStretchFactor
		}
		if tempo < 1.0/settings.MaxStretchFactor {
			log.Warn(ctx, fmt.Sprintf("Segment %s needs tempo %.2f, clamping to %.2f",
				plan.SegmentId, tempo, 1.0/settings.MaxStretchFactor))
			tempo = 1.0 / settings.MaxStretchFactor
		}
		plan.CorrectionApplied = true
		plan.TempoFactor = tempo
		plan.FinalSec = plan.ActualSec / tempo
	}
	residual := abs(plan.FinalSec - plan.TargetSec)
	switch {
	case residual <= settings.SyncGoodSec:
		plan.SyncLabel = "good"
	case residual <= settings.SyncAcceptableSec:
		plan.SyncLabel = "acceptable"
	default:
		plan.SyncLabel = "poor"
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
