package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/synthesize"
)

// ManifestLine records one synthesized line so that assembly can run as a
// separate invocation from generation.
type ManifestLine struct {
	SegmentId   string  `json:"segment_id"`
	LineIndex   int     `json:"line_index"`
	OutputFile  string  `json:"output_file,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	Failed      bool    `json:"failed,omitempty"`
	Error       string  `json:"error,omitempty"`
}

type Manifest struct {
	Language string         `json:"language"`
	Lines    []ManifestLine `json:"lines"`
}

func manifestPath(directory string, language string) string {
	return filepath.Join(directory, "lines_"+language+".json")
}

// SaveManifest writes the synthesis results of one language.
func SaveManifest(ctx context.Context, directory string, language string,
	results map[synthesize.ChunkKey]synthesize.Result) *log.Status {
	manifest := Manifest{Language: language}
	for key, result := range results {
		line := ManifestLine{
			SegmentId:   key.SegmentId,
			LineIndex:   key.LineIndex,
			OutputFile:  result.OutputFile,
			DurationSec: result.DurationSec,
		}
		if result.Status != nil {
			line.Failed = true
			line.Error = result.Status.Message
		}
		manifest.Lines = append(manifest.Lines, line)
	}
	content, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return log.Error(ctx, 500, err, "Error marshalling line manifest", language)
	}
	err = os.WriteFile(manifestPath(directory, language), content, 0644)
	if err != nil {
		return log.Error(ctx, 500, err, "Error writing line manifest", language)
	}
	return nil
}

// LoadManifest restores synthesis results for assembly.
func LoadManifest(ctx context.Context, directory string, language string) (map[synthesize.ChunkKey]synthesize.Result, *log.Status) {
	content, err := os.ReadFile(manifestPath(directory, language))
	if err != nil {
		return nil, log.Error(ctx, 404, err, "Error reading line manifest; run the generate stage first", language)
	}
	var manifest Manifest
	err = json.Unmarshal(content, &manifest)
	if err != nil {
		return nil, log.Error(ctx, 500, err, "Error parsing line manifest", language)
	}
	results := make(map[synthesize.ChunkKey]synthesize.Result)
	for _, line := range manifest.Lines {
		key := synthesize.ChunkKey{Language: manifest.Language,
			SegmentId: line.SegmentId, LineIndex: line.LineIndex}
		result := synthesize.Result{
			Job: synthesize.Job{Language: manifest.Language,
				SegmentId: line.SegmentId, LineIndex: line.LineIndex},
			OutputFile:  line.OutputFile,
			DurationSec: line.DurationSec,
		}
		if line.Failed {
			result.Status = &log.Status{Code: 500, Message: line.Error}
		}
		results[key] = result
	}
	return results, nil
}
