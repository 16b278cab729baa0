// Package mix combines the assembled vocal track with the instrumental. The
// two tracks are reconciled to one format, the shorter is padded with silence,
// per-track gains are applied, and the sum is limited against clipping.
package mix

import (
	"context"
	"math"
	"os"
	"path/filepath"

	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/decode_yaml/request"
	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/utility/ffmpeg"
)

// PadPlan says which track must be padded and to what length. Durations within
// 10ms are treated as equal; ffmpeg reports lengths with small codec jitter.
type PadPlan struct {
	PadVocal        bool
	PadInstrumental bool
	TargetSec       float64
}

func PlanPadding(vocalSec float64, instrumentalSec float64) PadPlan {
	var plan PadPlan
	diff := vocalSec - instrumentalSec
	if math.Abs(diff) <= 0.010 {
		plan.TargetSec = math.Max(vocalSec, instrumentalSec)
		return plan
	}
	if diff < 0 {
		plan.PadVocal = true
		plan.TargetSec = instrumentalSec
	} else {
		plan.PadInstrumental = true
		plan.TargetSec = vocalSec
	}
	return plan
}

// AudioOps is the editing surface the mixer needs. The production
// implementation shells out to ffmpeg; tests substitute a recorder.
type AudioOps interface {
	Duration(file string) (float64, *log.Status)
	Format(file string) (sampleRate int, channels int, status *log.Status)
	Resample(file string, sampleRate int, channels int) (string, *log.Status)
	GainPad(file string, gainDB float64, padToSec float64) (string, *log.Status)
	MixTwo(first string, second string) (string, *log.Status)
	SlowDown(file string, factor float64) (string, *log.Status)
}

type ffmpegOps struct {
	ctx     context.Context
	tempDir string
}

func NewFFmpegOps(ctx context.Context, tempDir string) AudioOps {
	return ffmpegOps{ctx: ctx, tempDir: tempDir}
}

func (f ffmpegOps) Duration(file string) (float64, *log.Status) {
	return ffmpeg.GetAudioDuration(f.ctx, file)
}

func (f ffmpegOps) Format(file string) (int, int, *log.Status) {
	return ffmpeg.GetAudioFormat(f.ctx, file)
}

func (f ffmpegOps) Resample(file string, sampleRate int, channels int) (string, *log.Status) {
	return ffmpeg.Resample(f.ctx, f.tempDir, file, sampleRate, channels)
}

func (f ffmpegOps) GainPad(file string, gainDB float64, padToSec float64) (string, *log.Status) {
	return ffmpeg.GainPad(f.ctx, f.tempDir, file, gainDB, padToSec)
}

func (f ffmpegOps) MixTwo(first string, second string) (string, *log.Status) {
	return ffmpeg.MixTwo(f.ctx, f.tempDir, first, second)
}

func (f ffmpegOps) SlowDown(file string, factor float64) (string, *log.Status) {
	return ffmpeg.SlowDown(f.ctx, f.tempDir, file, factor)
}

type Mixer struct {
	ctx context.Context
	ops AudioOps
}

func NewMixer(ctx context.Context, ops AudioOps) Mixer {
	return Mixer{ctx: ctx, ops: ops}
}

// Mix produces the final song at outputFile. The vocal track is resampled to
// the instrumental's format when they differ, so amix never falls back to
// implicit conversion.
func (m Mixer) Mix(vocalFile string, instrumentalFile string, settings request.Settings, outputFile string) *log.Status {
	vocalDur, status := m.ops.Duration(vocalFile)
	if status != nil {
		return status
	}
	instDur, status := m.ops.Duration(instrumentalFile)
	if status != nil {
		return status
	}
	vocalRate, vocalChannels, status := m.ops.Format(vocalFile)
	if status != nil {
		return status
	}
	instRate, instChannels, status := m.ops.Format(instrumentalFile)
	if status != nil {
		return status
	}
	if vocalRate != instRate || vocalChannels != instChannels {
		log.Info(m.ctx, "Resampling vocal track from", vocalRate, "to", instRate)
		vocalFile, status = m.ops.Resample(vocalFile, instRate, instChannels)
		if status != nil {
			return status
		}
	}
	plan := PlanPadding(vocalDur, instDur)
	vocalPad, instPad := 0.0, 0.0
	if plan.PadVocal {
		vocalPad = plan.TargetSec
	}
	if plan.PadInstrumental {
		instPad = plan.TargetSec
	}
	vocalFile, status = m.ops.GainPad(vocalFile, settings.VocalGainDB, vocalPad)
	if status != nil {
		return status
	}
	instrumentalFile, status = m.ops.GainPad(instrumentalFile, settings.InstrumentalGainDB, instPad)
	if status != nil {
		return status
	}
	mixed, status := m.ops.MixTwo(vocalFile, instrumentalFile)
	if status != nil {
		return status
	}
	return m.deliver(mixed, outputFile)
}

// SlowedVocalMix renders the slowed variant: the vocal track alone is slowed,
// lowering its pitch as well as tempo, and then mixed against the untouched
// instrumental.
func (m Mixer) SlowedVocalMix(vocalFile string, instrumentalFile string, settings request.Settings,
	factor float64, outputFile string) *log.Status {
	slowed, status := m.ops.SlowDown(vocalFile, factor)
	if status != nil {
		return status
	}
	return m.Mix(slowed, instrumentalFile, settings, outputFile)
}

func (m Mixer) deliver(tempFile string, outputFile string) *log.Status {
	err := os.MkdirAll(filepath.Dir(outputFile), 0755)
	if err != nil {
		return log.Error(m.ctx, 500, err, "Error creating output directory", outputFile)
	}
	err = os.Rename(tempFile, outputFile)
	if err != nil {
		// Rename fails across filesystems, fall back to copy.
		content, readErr := os.ReadFile(tempFile)
		if readErr != nil {
			return log.Error(m.ctx, 500, readErr, "Error reading mixed file", tempFile)
		}
		err = os.WriteFile(outputFile, content, 0644)
		if err != nil {
			return log.Error(m.ctx, 500, err, "Error writing output", outputFile)
		}
	}
	return nil
}
