package pipeline

import (
	"context"
	"testing"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/synthesize"
)

func TestManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	results := map[synthesize.ChunkKey]synthesize.Result{
		{Language: "english", SegmentId: "part1", LineIndex: 0}: {
			Job:         synthesize.Job{Language: "english", SegmentId: "part1", LineIndex: 0},
			OutputFile:  "english_part1_line0.wav",
			DurationSec: 4.2,
		},
		{Language: "english", SegmentId: "part1", LineIndex: 1}: {
			Job:    synthesize.Job{Language: "english", SegmentId: "part1", LineIndex: 1},
			Status: &log.Status{Code: 500, Message: "synthesis failed"},
		},
	}
	status := SaveManifest(ctx, dir, "english", results)
	if status != nil {
		t.Fatal(status)
	}
	loaded, status := LoadManifest(ctx, dir, "english")
	if status != nil {
		t.Fatal(status)
	}
	if len(loaded) != 2 {
		t.Fatal(`expected 2 results, got`, len(loaded))
	}
	good := loaded[synthesize.ChunkKey{Language: "english", SegmentId: "part1", LineIndex: 0}]
	if good.OutputFile != "english_part1_line0.wav" || good.DurationSec != 4.2 {
		t.Error(`successful line did not round trip`, good)
	}
	if good.Status != nil {
		t.Error(`successful line must have no status`)
	}
	bad := loaded[synthesize.ChunkKey{Language: "english", SegmentId: "part1", LineIndex: 1}]
	if bad.Status == nil || bad.Status.Message != "synthesis failed" {
		t.Error(`failed line must keep its failure`, bad)
	}
}

func TestLoadManifestMissing(t *testing.T) {
	ctx := context.Background()
	_, status := LoadManifest(ctx, t.TempDir(), "english")
	if status == nil || status.Code != 404 {
		t.Fatal(`expected 404 for missing manifest, got`, status)
	}
}
