// dubsing converts a vocal recording into synchronized dubbed vocal tracks.
// A YAML request file names the source audio, the segment table, and the
// replacement lines per language; stages can run together or one at a time.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/decode_yaml"
	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/pipeline"
)

func main() {
	var requestFile string
	var stage string
	var language string
	var pythonPath string
	var logOutput string
	flag.StringVar(&requestFile, "request", "", "path to the YAML request file (required)")
	flag.StringVar(&stage, "stage", pipeline.StageAll,
		"stage to run: separate|analyze|generate|assemble|mix|all")
	flag.StringVar(&language, "lang", "", "run one language only (default: all requested)")
	flag.StringVar(&pythonPath, "python", "python3", "python interpreter with model dependencies")
	flag.StringVar(&logOutput, "log", "stderr", "log destination: stderr|stdout|<file>")
	flag.Parse()
	if requestFile == "" {
		flag.Usage()
		os.Exit(2)
	}
	log.SetOutput(logOutput)
	ctx := context.Background()
	decoder := decode_yaml.NewRequestDecoder(ctx)
	req, status := decoder.ProcessFile(requestFile)
	if status != nil {
		fmt.Fprintln(os.Stderr, status)
		os.Exit(1)
	}
	runner, status := pipeline.NewRunner(ctx, req, pythonPath)
	if status != nil {
		fmt.Fprintln(os.Stderr, status)
		os.Exit(1)
	}
	defer runner.Cleanup()
	if status = runner.Run(stage, language); status != nil {
		fmt.Fprintln(os.Stderr, status)
		os.Exit(1)
	}
}
