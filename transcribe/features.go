package transcribe

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/utility/stdio_exec"
)

// WordWindow names the span of one word inside a segment audio file.
type WordWindow struct {
	Seq   int     `json:"seq"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// WordFeatures is the helper's measurement of one window.
type WordFeatures struct {
	Seq      int     `json:"seq"`
	PitchHz  float64 `json:"pitch_hz"`
	EnergyDB float64 `json:"energy_db"`
}

// FeatureSource is satisfied by FeatureExtractor and by test fakes.
type FeatureSource interface {
	Measure(audioFile string, windows []WordWindow) ([]WordFeatures, *log.Status)
	Close()
}

// FeatureExtractor runs a librosa helper that loads once and then answers one
// JSON request line per segment.
type FeatureExtractor struct {
	ctx    context.Context
	helper *stdio_exec.StdioExec
}

type featureRequest struct {
	AudioFile string       `json:"audio_file"`
	Windows   []WordWindow `json:"windows"`
}

type featureResponse struct {
	Features []WordFeatures `json:"features"`
	Error    string         `json:"error,omitempty"`
}

func NewFeatureExtractor(ctx context.Context, pythonPath string) (FeatureExtractor, *log.Status) {
	var f FeatureExtractor
	f.ctx = ctx
	scriptPath := filepath.Join(os.Getenv("GOPROJ"), "transcribe/python/word_features.py")
	var status *log.Status
	f.helper, status = stdio_exec.NewStdioExec(ctx, pythonPath, scriptPath)
	return f, status
}

// Measure returns pitch (median f0, Hz) and energy (mean RMS, dB) per window.
func (f FeatureExtractor) Measure(audioFile string, windows []WordWindow) ([]WordFeatures, *log.Status) {
	request := featureRequest{AudioFile: audioFile, Windows: windows}
	content, err := json.Marshal(request)
	if err != nil {
		return nil, log.Error(f.ctx, 500, err, "Error marshalling feature request", audioFile)
	}
	reply, status := f.helper.Process(string(content))
	if status != nil {
		return nil, status
	}
	var response featureResponse
	err = json.Unmarshal([]byte(reply), &response)
	if err != nil {
		return nil, log.Error(f.ctx, 500, err, "Error parsing feature response", reply)
	}
	if response.Error != "" {
		return nil, log.ErrorNoErr(f.ctx, 500, "Feature helper failed", response.Error)
	}
	return response.Features, nil
}

func (f FeatureExtractor) Close() {
	if f.helper != nil {
		f.helper.Close()
	}
}
