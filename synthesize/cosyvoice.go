// Package synthesize generates replacement vocal lines with CosyVoice. The
// model runs in a long-lived Python helper; cross-lingual mode clones the voice
// of the original chunk audio while speaking the new language's text.
package synthesize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/utility/ffmpeg"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/utility/stdio_exec"
)

// Job asks for one synthesized line. PromptFile is the original-language chunk
// audio whose voice is cloned.
type Job struct {
	Language   string
	SegmentId  string
	LineIndex  int
	Text       string
	PromptFile string
	Speed      float64
}

// Result reports one finished job. A nil Status with a non-empty OutputFile is
// success; DurationSec is re-measured from the produced file, never trusted
// from the model.
type Result struct {
	Job         Job
	OutputFile  string
	DurationSec float64
	Status      *log.Status
}

// Synthesizer is satisfied by CosyVoiceAdapter and by test fakes.
type Synthesizer interface {
	SynthesizeLine(job Job) Result
}

type CosyVoiceAdapter struct {
	ctx       context.Context
	helper    *stdio_exec.StdioExec
	outputDir string
}

type cosyRequest struct {
	Mode      string  `json:"mode"`
	Text      string  `json:"text"`
	PromptWav string  `json:"prompt_wav"`
	Speed     float64 `json:"speed"`
	Output    string  `json:"output"`
}

type cosyResponse struct {
	Success    bool   `json:"success"`
	OutputPath string `json:"output_path"`
	Error      string `json:"error,omitempty"`
}

func NewCosyVoiceAdapter(ctx context.Context, pythonPath string, outputDir string) (CosyVoiceAdapter, *log.Status) {
	var c CosyVoiceAdapter
	c.ctx = ctx
	c.outputDir = outputDir
	scriptPath := filepath.Join(os.Getenv("GOPROJ"), "synthesize/python/cosyvoice_server.py")
	var status *log.Status
	c.helper, status = stdio_exec.NewStdioExec(ctx, pythonPath, scriptPath)
	return c, status
}

// SynthesizeLine performs one cross-lingual synthesis round trip. The returned
// duration comes from probing the output file.
func (c CosyVoiceAdapter) SynthesizeLine(job Job) Result {
	result := Result{Job: job}
	ctx := log.SetUnit(c.ctx, job.Language, job.SegmentId, job.LineIndex)
	output := filepath.Join(c.outputDir,
		fmt.Sprintf("%s_%s_line%d.wav", job.Language, job.SegmentId, job.LineIndex))
	request := cosyRequest{
		Mode:      "cross_lingual",
		Text:      job.Text,
		PromptWav: job.PromptFile,
		Speed:     job.Speed,
		Output:    output,
	}
	content, err := json.Marshal(request)
	if err != nil {
		result.Status = log.Error(ctx, 500, err, "Error marshalling synthesis request")
		return result
	}
	reply, status := c.helper.Process(string(content))
	if status != nil {
		result.Status = status
		return result
	}
	var response cosyResponse
	err = json.Unmarshal([]byte(reply), &response)
	if err != nil {
		result.Status = log.Error(ctx, 500, err, "Error parsing synthesis response", reply)
		return result
	}
	if !response.Success {
		result.Status = log.ErrorNoErr(ctx, 500, "Synthesis failed", response.Error)
		return result
	}
	result.OutputFile = response.OutputPath
	result.DurationSec, result.Status = ffmpeg.GetAudioDuration(ctx, response.OutputPath)
	return result
}

func (c CosyVoiceAdapter) Close() {
	if c.helper != nil {
		c.helper.Close()
	}
}
