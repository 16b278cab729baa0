package mix

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/decode_yaml/request"
	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
)

func TestPlanPaddingVocalShorter(t *testing.T) {
	plan := PlanPadding(107.0, 200.34)
	if !plan.PadVocal {
		t.Error(`shorter vocal track must be padded`)
	}
	if plan.PadInstrumental {
		t.Error(`instrumental must not be padded`)
	}
	if math.Abs(plan.TargetSec-200.34) > 1e-9 {
		t.Error(`expected target 200.34, got`, plan.TargetSec)
	}
}

func TestPlanPaddingInstrumentalShorter(t *testing.T) {
	plan := PlanPadding(200.34, 180.0)
	if !plan.PadInstrumental || plan.PadVocal {
		t.Error(`shorter instrumental must be padded`, plan)
	}
	if plan.TargetSec != 200.34 {
		t.Error(`expected target 200.34, got`, plan.TargetSec)
	}
}

func TestPlanPaddingNearEqual(t *testing.T) {
	plan := PlanPadding(200.340, 200.345)
	if plan.PadVocal || plan.PadInstrumental {
		t.Error(`durations within 10ms must not trigger padding`, plan)
	}
	if plan.TargetSec != 200.345 {
		t.Error(`expected target to keep the longer duration, got`, plan.TargetSec)
	}
}

// recordingOps stands in for ffmpeg: every operation is logged and returns a
// derived file name, so tests can assert which track each edit was applied to.
type recordingOps struct {
	dir       string
	durations map[string]float64
	formats   map[string][2]int
	calls     []string
}

func newRecordingOps(dir string) *recordingOps {
	return &recordingOps{
		dir:       dir,
		durations: make(map[string]float64),
		formats:   make(map[string][2]int),
	}
}

func (r *recordingOps) Duration(file string) (float64, *log.Status) {
	return r.durations[file], nil
}

func (r *recordingOps) Format(file string) (int, int, *log.Status) {
	format, found := r.formats[file]
	if !found {
		return 44100, 2, nil
	}
	return format[0], format[1], nil
}

func (r *recordingOps) Resample(file string, sampleRate int, channels int) (string, *log.Status) {
	r.calls = append(r.calls, fmt.Sprintf("resample %s %d %d", file, sampleRate, channels))
	return file + ".resampled", nil
}

func (r *recordingOps) GainPad(file string, gainDB float64, padToSec float64) (string, *log.Status) {
	r.calls = append(r.calls, fmt.Sprintf("gainpad %s %.1f %.2f", file, gainDB, padToSec))
	return file + ".padded", nil
}

func (r *recordingOps) MixTwo(first string, second string) (string, *log.Status) {
	r.calls = append(r.calls, fmt.Sprintf("mixtwo %s %s", first, second))
	mixed := filepath.Join(r.dir, "mixed.wav")
	if err := os.WriteFile(mixed, []byte("mixed"), 0644); err != nil {
		return "", log.Error(context.Background(), 500, err, "writing test mix")
	}
	return mixed, nil
}

func (r *recordingOps) SlowDown(file string, factor float64) (string, *log.Status) {
	r.calls = append(r.calls, fmt.Sprintf("slowdown %s %.2f", file, factor))
	return file + ".slow", nil
}

func TestMixPadsShorterTrack(t *testing.T) {
	dir := t.TempDir()
	ops := newRecordingOps(dir)
	ops.durations["vocals.wav"] = 107.0
	ops.durations["inst.wav"] = 200.34
	mixer := NewMixer(context.Background(), ops)
	settings := request.Settings{VocalGainDB: 0, InstrumentalGainDB: -2}
	output := filepath.Join(dir, "final.wav")
	if status := mixer.Mix("vocals.wav", "inst.wav", settings, output); status != nil {
		t.Fatal(status)
	}
	want := []string{
		"gainpad vocals.wav 0.0 200.34",
		"gainpad inst.wav -2.0 0.00",
		"mixtwo vocals.wav.padded inst.wav.padded",
	}
	if strings.Join(ops.calls, "; ") != strings.Join(want, "; ") {
		t.Error(`unexpected edit sequence:`, ops.calls)
	}
	if _, err := os.Stat(output); err != nil {
		t.Error(`mixed file was not delivered:`, err)
	}
}

func TestMixResamplesVocalOnFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	ops := newRecordingOps(dir)
	ops.durations["vocals.wav"] = 200.0
	ops.durations["inst.wav"] = 200.0
	ops.formats["vocals.wav"] = [2]int{16000, 1}
	ops.formats["inst.wav"] = [2]int{44100, 2}
	mixer := NewMixer(context.Background(), ops)
	output := filepath.Join(dir, "final.wav")
	if status := mixer.Mix("vocals.wav", "inst.wav", request.Settings{}, output); status != nil {
		t.Fatal(status)
	}
	if ops.calls[0] != "resample vocals.wav 44100 2" {
		t.Fatal(`vocal must be resampled to the instrumental's format, got`, ops.calls)
	}
	if !strings.Contains(ops.calls[len(ops.calls)-1], "vocals.wav.resampled.padded") {
		t.Error(`mix must use the resampled vocal, got`, ops.calls)
	}
}

// The slowed variant slows the vocal track alone and mixes it against the
// untouched instrumental; slowing the finished mix would drag the
// accompaniment down with it.
func TestSlowedVocalMixSlowsVocalsNotTheMix(t *testing.T) {
	dir := t.TempDir()
	ops := newRecordingOps(dir)
	ops.durations["vocals.wav.slow"] = 250.0
	ops.durations["inst.wav"] = 250.0
	mixer := NewMixer(context.Background(), ops)
	output := filepath.Join(dir, "final_slow.wav")
	status := mixer.SlowedVocalMix("vocals.wav", "inst.wav", request.Settings{}, 0.8, output)
	if status != nil {
		t.Fatal(status)
	}
	if ops.calls[0] != "slowdown vocals.wav 0.80" {
		t.Fatal(`slow-down must run first, on the vocal track:`, ops.calls)
	}
	mixCall := ops.calls[len(ops.calls)-1]
	if !strings.Contains(mixCall, "vocals.wav.slow") {
		t.Error(`mix must take the slowed vocal, got`, mixCall)
	}
	if !strings.Contains(mixCall, "inst.wav.padded") {
		t.Error(`instrumental must reach the mix unslowed, got`, mixCall)
	}
	for _, call := range ops.calls {
		if strings.HasPrefix(call, "slowdown") && strings.Contains(call, "inst.wav") {
			t.Error(`instrumental must never be slowed:`, call)
		}
		if strings.HasPrefix(call, "slowdown") && strings.Contains(call, "mixed") {
			t.Error(`finished mix must never be slowed:`, call)
		}
	}
	if _, err := os.Stat(output); err != nil {
		t.Error(`slowed mix was not delivered:`, err)
	}
}
