package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

func tempWav(tempDir string, prefix string) string {
	return filepath.Join(tempDir, fmt.Sprintf("%s_%d.wav", prefix, time.Now().UnixNano()))
}

// ChopOneSegment extracts [beginTS, endTS) from an audio file into a mono wav.
func ChopOneSegment(ctx context.Context, tempDir string, inputFile string, beginTS float64, endTS float64) (string, *log.Status) {
	outputFile := tempWav(tempDir, "chop")
	err := ffmpeg.Input(inputFile, ffmpeg.KwArgs{"ss": beginTS, "to": endTS}).
		Output(outputFile, ffmpeg.KwArgs{"acodec": "pcm_s16le"}).
		Silent(true).OverWriteOutput().Run()
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error chopping segment", inputFile, beginTS, endTS)
	}
	return outputFile, nil
}

// ConvertToWav converts any audio input to mono pcm wav at the given sample rate.
func ConvertToWav(ctx context.Context, tempDir string, inputFile string, sampleRate int) (string, *log.Status) {
	outputFile := tempWav(tempDir, "conv")
	err := ffmpeg.Input(inputFile).
		Output(outputFile, ffmpeg.KwArgs{"acodec": "pcm_s16le", "ar": sampleRate, "ac": 1}).
		Silent(true).OverWriteOutput().Run()
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error converting to wav", inputFile)
	}
	return outputFile, nil
}

// Resample converts an audio file to the given sample rate and channel count,
// used to reconcile format mismatches before mixing.
func Resample(ctx context.Context, tempDir string, inputFile string, sampleRate int, channels int) (string, *log.Status) {
	outputFile := tempWav(tempDir, "resample")
	err := ffmpeg.Input(inputFile).
		Output(outputFile, ffmpeg.KwArgs{"acodec": "pcm_s16le", "ar": sampleRate, "ac": channels}).
		Silent(true).OverWriteOutput().Run()
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error resampling", inputFile)
	}
	return outputFile, nil
}

// ConcatWavFiles concatenates wav files back to back with the concat demuxer.
// No gap or crossfade is inserted.
func ConcatWavFiles(ctx context.Context, tempDir string, inputFiles []string) (string, *log.Status) {
	if len(inputFiles) == 0 {
		return "", log.ErrorNoErr(ctx, 400, "No files to concatenate")
	}
	listFile := filepath.Join(tempDir, fmt.Sprintf("concat_%d.txt", time.Now().UnixNano()))
	var lines []string
	for _, f := range inputFiles {
		absPath, err := filepath.Abs(f)
		if err != nil {
			return "", log.Error(ctx, 500, err, "Error resolving path", f)
		}
		lines = append(lines, fmt.Sprintf("file '%s'", strings.ReplaceAll(absPath, "'", "'\\''")))
	}
	err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")+"\n"), 0644)
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error writing concat list")
	}
	outputFile := tempWav(tempDir, "concat")
	err = ffmpeg.Input(listFile, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(outputFile, ffmpeg.KwArgs{"acodec": "pcm_s16le"}).
		Silent(true).OverWriteOutput().Run()
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error concatenating audio files")
	}
	return outputFile, nil
}

// SilentCanvas produces a mono silent wav of the given duration.
func SilentCanvas(ctx context.Context, tempDir string, duration float64, sampleRate int) (string, *log.Status) {
	outputFile := tempWav(tempDir, "silence")
	source := fmt.Sprintf("anullsrc=channel_layout=mono:sample_rate=%d", sampleRate)
	err := ffmpeg.Input(source, ffmpeg.KwArgs{"f": "lavfi", "t": duration}).
		Output(outputFile, ffmpeg.KwArgs{"acodec": "pcm_s16le"}).
		Silent(true).OverWriteOutput().Run()
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error creating silent canvas", duration)
	}
	return outputFile, nil
}

// OverlayAt mixes a clip onto a canvas at the given offset. The mix is additive:
// whatever already occupies that range stays audible, and the canvas length is kept.
func OverlayAt(ctx context.Context, tempDir string, canvasFile string, clipFile string, offsetSec float64) (string, *log.Status) {
	outputFile := tempWav(tempDir, "overlay")
	delayMS := int(offsetSec * 1000)
	canvas := ffmpeg.Input(canvasFile)
	clip := ffmpeg.Input(clipFile).
		Filter("adelay", ffmpeg.Args{fmt.Sprintf("%d:all=1", delayMS)})
	err := ffmpeg.Filter([]*ffmpeg.Stream{canvas, clip}, "amix",
		ffmpeg.Args{}, ffmpeg.KwArgs{"inputs": 2, "duration": "first", "normalize": 0}).
		Output(outputFile, ffmpeg.KwArgs{"acodec": "pcm_s16le"}).
		Silent(true).OverWriteOutput().Run()
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error overlaying clip at", offsetSec)
	}
	return outputFile, nil
}

// TimeScale stretches or compresses an audio file by a tempo factor using the
// pitch-preserving atempo filter. tempo > 1 shortens, tempo < 1 lengthens.
// atempo accepts 0.5..2.0 per instance, so larger factors are chained.
func TimeScale(ctx context.Context, tempDir string, inputFile string, tempo float64) (string, *log.Status) {
	if tempo <= 0 {
		return "", log.ErrorNoErr(ctx, 400, "Invalid tempo factor", tempo)
	}
	outputFile := tempWav(tempDir, "tempo")
	var stages []string
	remaining := tempo
	for remaining > 2.0 {
		stages = append(stages, "atempo=2.0")
		remaining /= 2.0
	}
	for remaining < 0.5 {
		stages = append(stages, "atempo=0.5")
		remaining /= 0.5
	}
	stages = append(stages, fmt.Sprintf("atempo=%.6f", remaining))
	err := ffmpeg.Input(inputFile).
		Output(outputFile, ffmpeg.KwArgs{"af": strings.Join(stages, ","), "acodec": "pcm_s16le"}).
		Silent(true).OverWriteOutput().Run()
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error time-scaling", inputFile, tempo)
	}
	return outputFile, nil
}

// SlowDown lowers playback speed by reinterpreting the frame rate, which also
// lowers pitch, matching tape-style slow down. factor 0.8 means 20% slower.
func SlowDown(ctx context.Context, tempDir string, inputFile string, factor float64) (string, *log.Status) {
	if factor <= 0 || factor > 1.0 {
		return "", log.ErrorNoErr(ctx, 400, "Slow-down factor must be in (0,1]", factor)
	}
	sampleRate, _, status := GetAudioFormat(ctx, inputFile)
	if status != nil {
		return "", status
	}
	outputFile := tempWav(tempDir, "slow")
	filter := fmt.Sprintf("asetrate=%d*%.4f,aresample=%d", sampleRate, factor, sampleRate)
	err := ffmpeg.Input(inputFile).
		Output(outputFile, ffmpeg.KwArgs{"af": filter, "acodec": "pcm_s16le"}).
		Silent(true).OverWriteOutput().Run()
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error slowing down", inputFile, factor)
	}
	return outputFile, nil
}

// GainPad applies a dB gain and pads the file with trailing silence up to
// padToSec. A padToSec of zero leaves the length unchanged.
func GainPad(ctx context.Context, tempDir string, inputFile string, gainDB float64, padToSec float64) (string, *log.Status) {
	outputFile := tempWav(tempDir, "gain")
	var filters []string
	if gainDB != 0 {
		filters = append(filters, fmt.Sprintf("volume=%.2fdB", gainDB))
	}
	if padToSec > 0 {
		filters = append(filters, fmt.Sprintf("apad=whole_dur=%.3f", padToSec))
	}
	if len(filters) == 0 {
		filters = append(filters, "anull")
	}
	err := ffmpeg.Input(inputFile).
		Output(outputFile, ffmpeg.KwArgs{"af": strings.Join(filters, ","), "acodec": "pcm_s16le"}).
		Silent(true).OverWriteOutput().Run()
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error applying gain/pad", inputFile)
	}
	return outputFile, nil
}

// MixTwo additively combines two equal-format tracks and applies a limiter so
// the sum cannot clip.
func MixTwo(ctx context.Context, tempDir string, firstFile string, secondFile string) (string, *log.Status) {
	outputFile := tempWav(tempDir, "mix")
	first := ffmpeg.Input(firstFile)
	second := ffmpeg.Input(secondFile)
	err := ffmpeg.Filter([]*ffmpeg.Stream{first, second}, "amix",
		ffmpeg.Args{}, ffmpeg.KwArgs{"inputs": 2, "duration": "longest", "normalize": 0}).
		Filter("alimiter", ffmpeg.Args{}, ffmpeg.KwArgs{"limit": 0.97}).
		Output(outputFile, ffmpeg.KwArgs{"acodec": "pcm_s16le"}).
		Silent(true).OverWriteOutput().Run()
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error mixing tracks")
	}
	return outputFile, nil
}
