// Package decode_yaml parses and validates the YAML job file. Validation
// collects every problem before failing so the operator can fix the file in
// one pass.
package decode_yaml

import (
	"context"
	"os"
	"strings"

	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/decode_yaml/request"
	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"gopkg.in/yaml.v3"
)

type RequestDecoder struct {
	ctx    context.Context
	errors []string
}

func NewRequestDecoder(ctx context.Context) RequestDecoder {
	var d RequestDecoder
	d.ctx = ctx
	return d
}

func (d *RequestDecoder) ProcessFile(path string) (*request.Request, *log.Status) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, log.Error(d.ctx, 400, err, "Error reading request file", path)
	}
	return d.Process(content)
}

func (d *RequestDecoder) Process(content []byte) (*request.Request, *log.Status) {
	var req request.Request
	err := yaml.Unmarshal(content, &req)
	if err != nil {
		return nil, log.Error(d.ctx, 400, err, "Error decoding request yaml")
	}
	d.setDefaults(&req)
	d.Validate(&req)
	if len(d.errors) > 0 {
		return nil, log.ErrorNoErr(d.ctx, 400, "Request validation failed:\n"+strings.Join(d.errors, "\n"))
	}
	return &req, nil
}

func (d *RequestDecoder) setDefaults(req *request.Request) {
	s := &req.Settings
	if s.ChunkCount == 0 {
		s.ChunkCount = 4
	}
	if s.ChunkPaddingMS == 0 {
		s.ChunkPaddingMS = 50
	}
	if s.DriftThresholdSec == 0 {
		s.DriftThresholdSec = 1.0
	}
	if s.MaxStretchFactor == 0 {
		s.MaxStretchFactor = 3.0
	}
	if s.SlowFactor == 0 {
		s.SlowFactor = 0.8
	}
	if s.SampleRate == 0 {
		s.SampleRate = 16000
	}
	if s.Workers == 0 {
		s.Workers = 1
	}
	if s.SyncGoodSec == 0 {
		s.SyncGoodSec = 2.0
	}
	if s.SyncAcceptableSec == 0 {
		s.SyncAcceptableSec = 10.0
	}
	if s.WhisperModel == "" {
		s.WhisperModel = "whisper-1"
	}
	if s.SynthesisSpeed == 0 {
		s.SynthesisSpeed = 1.0
	}
	if req.Source.OutputDir == "" {
		req.Source.OutputDir = "data"
	}
}
