// Package separate splits a full song into vocal and instrumental stems with
// demucs. Separation is the slowest stage, so it runs once and its outputs are
// reused by every later stage and language.
package separate

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
)

type Stems struct {
	VocalsFile       string
	InstrumentalFile string
}

type DemucsAdapter struct {
	ctx        context.Context
	pythonPath string
	model      string
}

func NewDemucsAdapter(ctx context.Context, pythonPath string) DemucsAdapter {
	return DemucsAdapter{ctx: ctx, pythonPath: pythonPath, model: "mdx_extra"}
}

// Separate runs two-stem separation and returns the stem paths demucs wrote.
// Output lands under outputDir/<model>/<song name>/.
func (d DemucsAdapter) Separate(songFile string, outputDir string) (Stems, *log.Status) {
	var stems Stems
	cmd := exec.CommandContext(d.ctx, d.pythonPath, "-m", "demucs.separate",
		"-n", d.model, "--two-stems", "vocals", "-o", outputDir, songFile)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return stems, log.Error(d.ctx, 500, err, "Demucs separation failed", string(output))
	}
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			log.Debug(d.ctx, "demucs:", line)
		}
	}
	songName := strings.TrimSuffix(filepath.Base(songFile), filepath.Ext(songFile))
	stemDir := filepath.Join(outputDir, d.model, songName)
	stems.VocalsFile = filepath.Join(stemDir, "vocals.wav")
	stems.InstrumentalFile = filepath.Join(stemDir, "no_vocals.wav")
	return stems, nil
}
