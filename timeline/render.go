package timeline

import (
	"context"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/utility/ffmpeg"
)

// AudioOps is the rendering surface the assembler needs. The production
// implementation shells out to ffmpeg; tests substitute a recorder.
type AudioOps interface {
	Concat(files []string) (string, *log.Status)
	TimeScale(file string, tempo float64) (string, *log.Status)
	SilentCanvas(duration float64, sampleRate int) (string, *log.Status)
	OverlayAt(canvas string, clip string, offsetSec float64) (string, *log.Status)
}

type ffmpegOps struct {
	ctx     context.Context
	tempDir string
}

func NewFFmpegOps(ctx context.Context, tempDir string) AudioOps {
	return ffmpegOps{ctx: ctx, tempDir: tempDir}
}

func (f ffmpegOps) Concat(files []string) (string, *log.Status) {
	return ffmpeg.ConcatWavFiles(f.ctx, f.tempDir, files)
}

func (f ffmpegOps) TimeScale(file string, tempo float64) (string, *log.Status) {
	return ffmpeg.TimeScale(f.ctx, f.tempDir, file, tempo)
}

func (f ffmpegOps) SilentCanvas(duration float64, sampleRate int) (string, *log.Status) {
	return ffmpeg.SilentCanvas(f.ctx, f.tempDir, duration, sampleRate)
}

func (f ffmpegOps) OverlayAt(canvas string, clip string, offsetSec float64) (string, *log.Status) {
	return ffmpeg.OverlayAt(f.ctx, f.tempDir, canvas, clip, offsetSec)
}

// Assembler renders planned segments onto a silent canvas the length of the
// whole song.
type Assembler struct {
	ctx context.Context
	ops AudioOps
}

func NewAssembler(ctx context.Context, ops AudioOps) Assembler {
	return Assembler{ctx: ctx, ops: ops}
}

// Render lays every planned segment at its absolute position. Segments are
// merged line by line, corrected, then overlaid additively; failed slots are
// skipped so their span stays silent. Reuse segments reuse the source's merged
// clip and apply their own correction.
func (a Assembler) Render(plans []SegmentPlan, songDuration float64, sampleRate int) (string, *log.Status) {
	canvas, status := a.ops.SilentCanvas(songDuration, sampleRate)
	if status != nil {
		return "", status
	}
	merged := make(map[string]string)
	for i := range plans {
		plan := &plans[i]
		if plan.State == StateFailed {
			continue
		}
		ctx := log.SetUnit(a.ctx, plan.Language, plan.SegmentId)
		clip, status := a.mergedClip(ctx, plan, merged)
		if status != nil {
			return "", status
		}
		if status = plan.Advance(ctx, StateMerged); status != nil {
			return "", status
		}
		if plan.CorrectionApplied {
			clip, status = a.ops.TimeScale(clip, plan.TempoFactor)
			if status != nil {
				return "", status
			}
		}
		if status = plan.Advance(ctx, StatePositioned); status != nil {
			return "", status
		}
		canvas, status = a.ops.OverlayAt(canvas, clip, plan.BeginTS)
		if status != nil {
			return "", status
		}
		if status = plan.Advance(ctx, StateOverlaid); status != nil {
			return "", status
		}
		log.Info(ctx, "Overlaid segment at", plan.BeginTS, "sync", plan.SyncLabel)
	}
	return canvas, nil
}

// mergedClip concatenates the segment's surviving lines, caching by segment id
// so a reused segment does not re-merge its source.
func (a Assembler) mergedClip(ctx context.Context, plan *SegmentPlan, merged map[string]string) (string, *log.Status) {
	sourceId := plan.SegmentId
	if plan.ReusedFrom != "" {
		sourceId = plan.ReusedFrom
	}
	if clip, found := merged[sourceId]; found {
		return clip, nil
	}
	var files []string
	for _, line := range plan.Lines {
		if line.Failed {
			continue
		}
		files = append(files, line.OutputFile)
	}
	if len(files) == 0 {
		return "", log.ErrorNoErr(ctx, 500, "No surviving lines to merge", plan.SegmentId)
	}
	clip, status := a.ops.Concat(files)
	if status != nil {
		return "", status
	}
	merged[sourceId] = clip
	return clip, nil
}
