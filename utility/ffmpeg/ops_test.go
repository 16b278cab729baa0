package ffmpeg

import (
	"context"
	"math"
	"os/exec"
	"testing"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, binary := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(binary); err != nil {
			t.Skip(binary, "not installed")
		}
	}
}

func TestConvertToWavNormalizesRateAndChannels(t *testing.T) {
	requireFFmpeg(t)
	ctx := context.Background()
	dir := t.TempDir()
	source, status := SilentCanvas(ctx, dir, 2.0, 44100)
	if status != nil {
		t.Fatal(status)
	}
	converted, status := ConvertToWav(ctx, dir, source, 16000)
	if status != nil {
		t.Fatal(status)
	}
	sampleRate, channels, status := GetAudioFormat(ctx, converted)
	if status != nil {
		t.Fatal(status)
	}
	if sampleRate != 16000 {
		t.Error(`expected 16000 Hz, got`, sampleRate)
	}
	if channels != 1 {
		t.Error(`expected mono output, got`, channels)
	}
	duration, status := GetAudioDuration(ctx, converted)
	if status != nil {
		t.Fatal(status)
	}
	if math.Abs(duration-2.0) > 0.05 {
		t.Error(`conversion must not change the length, got`, duration)
	}
}
