// Package pipeline sequences the dubbing stages: separate, analyze, generate,
// assemble, mix. Each stage persists its outputs, so any stage can be re-run
// alone against the same dataset directory.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/cleanup"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/courier"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/db"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/decode_yaml/request"
	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/mix"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/partition"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/separate"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/synthesize"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/timeline"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/transcribe"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/utility/ffmpeg"
)

const (
	StageSeparate = "separate"
	StageAnalyze  = "analyze"
	StageGenerate = "generate"
	StageAssemble = "assemble"
	StageMix      = "mix"
	StageAll      = "all"
)

type Runner struct {
	ctx        context.Context
	req        *request.Request
	runId      string
	pythonPath string
	outputDir  string
	tempDir    string
	linesDir   string
	conn       db.DBAdapter
}

func NewRunner(ctx context.Context, req *request.Request, pythonPath string) (*Runner, *log.Status) {
	var r Runner
	r.runId = uuid.NewString()
	r.ctx = log.SetUnit(ctx, req.DatasetName, r.runId[:8])
	r.req = req
	r.pythonPath = pythonPath
	r.outputDir = filepath.Join(req.Source.OutputDir, req.DatasetName)
	r.linesDir = filepath.Join(r.outputDir, "lines")
	for _, dir := range []string{r.outputDir, r.linesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, log.Error(r.ctx, 500, err, "Error creating output directory", dir)
		}
	}
	tempDir, err := os.MkdirTemp(os.TempDir(), "dubsing_")
	if err != nil {
		return nil, log.Error(r.ctx, 500, err, "Error creating temp directory")
	}
	r.tempDir = tempDir
	var status *log.Status
	r.conn, status = db.NewDBAdapter(r.ctx, r.outputDir, req.DatasetName)
	return &r, status
}

func (r *Runner) Cleanup() {
	r.conn.Close()
	_ = os.RemoveAll(r.tempDir)
	cleanup.CleanupTempDirectories(r.ctx)
}

// Run executes one stage, or every stage in order for StageAll. An empty
// language means all requested languages.
func (r *Runner) Run(stage string, language string) *log.Status {
	languages := r.req.Languages
	if language != "" {
		languages = []string{language}
	}
	stages := []string{stage}
	if stage == StageAll {
		stages = []string{StageSeparate, StageAnalyze, StageGenerate, StageAssemble, StageMix}
	}
	var outputs []string
	for _, s := range stages {
		log.Info(r.ctx, "Stage", s, "starting")
		var status *log.Status
		switch s {
		case StageSeparate:
			status = r.separateStage()
		case StageAnalyze:
			status = r.analyzeStage()
		case StageGenerate:
			status = r.forEachLanguage(languages, r.generateStage)
		case StageAssemble:
			status = r.forEachLanguage(languages, r.assembleStage)
		case StageMix:
			status = r.forEachLanguage(languages, func(lang string) *log.Status {
				files, mixStatus := r.mixStage(lang)
				outputs = append(outputs, files...)
				return mixStatus
			})
		default:
			status = log.ErrorNoErr(r.ctx, 400, "Unknown stage", s)
		}
		if status != nil {
			r.notify(outputs, status)
			return status
		}
		log.Info(r.ctx, "Stage", s, "complete")
	}
	r.notify(outputs, nil)
	return nil
}

func (r *Runner) forEachLanguage(languages []string, stage func(string) *log.Status) *log.Status {
	for _, lang := range languages {
		if status := stage(lang); status != nil {
			return status
		}
	}
	return nil
}

// separateStage produces vocal and instrumental stems when only a full song was
// supplied. Explicit stem paths in the request win over separation.
func (r *Runner) separateStage() *log.Status {
	if r.req.Source.VocalsFile != "" && r.req.Source.InstrumentalFile != "" {
		log.Info(r.ctx, "Stems provided, skipping separation")
		return nil
	}
	if r.req.Source.SongFile == "" {
		return log.ErrorNoErr(r.ctx, 400, "No song_file to separate and stems are incomplete")
	}
	demucs := separate.NewDemucsAdapter(r.ctx, r.pythonPath)
	stems, status := demucs.Separate(r.req.Source.SongFile, filepath.Join(r.outputDir, "stems"))
	if status != nil {
		return status
	}
	if r.req.Source.VocalsFile == "" {
		r.req.Source.VocalsFile = stems.VocalsFile
	}
	if r.req.Source.InstrumentalFile == "" {
		r.req.Source.InstrumentalFile = stems.InstrumentalFile
	}
	return nil
}

func (r *Runner) analyzeStage() *log.Status {
	whisper, status := transcribe.NewWhisperClient(r.ctx, r.req.Settings.WhisperModel)
	if status != nil {
		return status
	}
	features, status := transcribe.NewFeatureExtractor(r.ctx, r.pythonPath)
	if status != nil {
		return status
	}
	defer features.Close()
	segmentDir := filepath.Join(r.outputDir, "segments")
	if err := os.MkdirAll(segmentDir, 0755); err != nil {
		return log.Error(r.ctx, 500, err, "Error creating segment directory")
	}
	extractor := transcribe.NewExtractor(r.ctx, r.conn, whisper, features, segmentDir, r.outputDir)
	for _, seg := range r.req.Segments {
		sourceText := ""
		if r.req.SourceLanguage != "" {
			sourceText = strings.Join(seg.Lines[r.req.SourceLanguage], " ")
		}
		// A failed segment is skipped, not fatal: the rest of the song can
		// still be analyzed and the gap re-run alone later.
		_, status = extractor.AnalyzeSegment(seg, r.req.Source.VocalsFile, sourceText)
		if status != nil {
			log.Warn(r.ctx, "Segment analysis failed, skipping:", status.String())
		}
	}
	return nil
}

// generateStage synthesizes every line of every non-reuse segment for one
// language and records the results in the language's manifest.
func (r *Runner) generateStage(language string) *log.Status {
	cosy, status := synthesize.NewCosyVoiceAdapter(r.ctx, r.pythonPath, r.linesDir)
	if status != nil {
		return status
	}
	defer cosy.Close()
	segments, status := r.conn.SelectSegments()
	if status != nil {
		return status
	}
	var jobs []synthesize.Job
	for _, seg := range segments {
		if seg.ReusedFrom != "" {
			continue
		}
		segJobs, status := r.buildSegmentJobs(language, seg)
		if status != nil {
			if status.Code == 400 {
				// Typically too few transcribed words to partition. The
				// segment stays silent; everything else proceeds.
				log.Warn(r.ctx, "Skipping segment", seg.SegmentId, status.String())
				continue
			}
			return status
		}
		jobs = append(jobs, segJobs...)
	}
	results := synthesize.RunPool(r.ctx, cosy, jobs, r.req.Settings.Workers)
	return SaveManifest(r.ctx, r.linesDir, language, results)
}

// buildSegmentJobs partitions the segment's words into chunks and pairs every
// chunk with its replacement line and its voice prompt audio.
func (r *Runner) buildSegmentJobs(language string, seg db.Segment) ([]synthesize.Job, *log.Status) {
	ctx := log.SetUnit(r.ctx, language, seg.SegmentId)
	words, status := r.conn.SelectWordsBySegment(seg.SegmentId)
	if status != nil {
		return nil, status
	}
	chunks, status := partition.Partition(ctx, seg.SegmentId, words,
		r.req.Settings.ChunkCount, float64(r.req.Settings.ChunkPaddingMS)/1000.0,
		seg.BeginTS, seg.EndTS)
	if status != nil {
		return nil, status
	}
	lines := r.lookupLines(language, seg.SegmentId)
	if lines == nil {
		return nil, log.ErrorNoErr(ctx, 400, "No lines for segment", seg.SegmentId, language)
	}
	var jobs []synthesize.Job
	for _, chunk := range chunks {
		promptFile, status := ffmpeg.ChopOneSegment(ctx, r.tempDir, seg.AudioFile,
			chunk.Begin, chunk.End)
		if status != nil {
			return nil, status
		}
		// The voice model loads prompts at a fixed mono sample rate, so the
		// clip is normalized here rather than trusting the source format.
		promptFile, status = ffmpeg.ConvertToWav(ctx, r.tempDir, promptFile,
			r.req.Settings.SampleRate)
		if status != nil {
			return nil, status
		}
		jobs = append(jobs, synthesize.Job{
			Language:   language,
			SegmentId:  seg.SegmentId,
			LineIndex:  chunk.LineIndex,
			Text:       lines[chunk.LineIndex],
			PromptFile: promptFile,
			Speed:      r.req.Settings.SynthesisSpeed,
		})
	}
	return jobs, nil
}

func (r *Runner) lookupLines(language string, segmentId string) []string {
	for _, seg := range r.req.Segments {
		if seg.SegmentId == segmentId {
			return seg.Lines[language]
		}
	}
	return nil
}

// assembleStage plans and renders one language's vocal track onto the absolute
// timeline, then writes the timing reports.
func (r *Runner) assembleStage(language string) *log.Status {
	results, status := LoadManifest(r.ctx, r.linesDir, language)
	if status != nil {
		return status
	}
	segments, status := r.conn.SelectSegments()
	if status != nil {
		return status
	}
	plans, status := timeline.Plan(r.ctx, segments, results, language, r.req.Settings)
	if status != nil {
		return status
	}
	songDuration, status := ffmpeg.GetAudioDuration(r.ctx, r.instrumentalOrVocals())
	if status != nil {
		return status
	}
	assembler := timeline.NewAssembler(r.ctx, timeline.NewFFmpegOps(r.ctx, r.tempDir))
	canvas, status := assembler.Render(plans, songDuration, r.req.Settings.SampleRate)
	if status != nil {
		return status
	}
	vocalTrack := filepath.Join(r.outputDir, language+"_vocals.wav")
	if err := os.Rename(canvas, vocalTrack); err != nil {
		content, readErr := os.ReadFile(canvas)
		if readErr != nil {
			return log.Error(r.ctx, 500, readErr, "Error reading rendered track", canvas)
		}
		if err = os.WriteFile(vocalTrack, content, 0644); err != nil {
			return log.Error(r.ctx, 500, err, "Error writing vocal track", vocalTrack)
		}
	}
	reportDir := filepath.Join(r.outputDir, "reports", language)
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return log.Error(r.ctx, 500, err, "Error creating report directory")
	}
	return timeline.WriteReports(r.ctx, reportDir, timeline.ReportRows(plans))
}

// mixStage produces the final song and, when slow_factor is under 1, a slowed
// variant whose vocals are slowed before mixing so the instrumental keeps its
// original tempo. Returns the written file paths.
func (r *Runner) mixStage(language string) ([]string, *log.Status) {
	vocalTrack := filepath.Join(r.outputDir, language+"_vocals.wav")
	if _, err := os.Stat(vocalTrack); err != nil {
		return nil, log.Error(r.ctx, 404, err, "No assembled vocal track; run the assemble stage first", language)
	}
	if r.req.Source.InstrumentalFile == "" {
		return nil, log.ErrorNoErr(r.ctx, 400, "No instrumental track to mix against")
	}
	mixer := mix.NewMixer(r.ctx, mix.NewFFmpegOps(r.ctx, r.tempDir))
	finalFile := filepath.Join(r.outputDir, fmt.Sprintf("%s_%s.wav", r.req.DatasetName, language))
	status := mixer.Mix(vocalTrack, r.req.Source.InstrumentalFile, r.req.Settings, finalFile)
	if status != nil {
		return nil, status
	}
	outputs := []string{finalFile}
	if r.req.Settings.SlowFactor < 1.0 {
		slowFile := filepath.Join(r.outputDir, fmt.Sprintf("%s_%s_slow.wav", r.req.DatasetName, language))
		status = mixer.SlowedVocalMix(vocalTrack, r.req.Source.InstrumentalFile,
			r.req.Settings, r.req.Settings.SlowFactor, slowFile)
		if status != nil {
			return outputs, status
		}
		outputs = append(outputs, slowFile)
	}
	return outputs, nil
}

func (r *Runner) instrumentalOrVocals() string {
	if r.req.Source.InstrumentalFile != "" {
		return r.req.Source.InstrumentalFile
	}
	return r.req.Source.VocalsFile
}

func (r *Runner) notify(outputs []string, failure *log.Status) {
	report := courier.RunReport{
		DatasetName: r.req.DatasetName,
		RunId:       r.runId,
		Languages:   r.req.Languages,
		OutputFiles: outputs,
		Succeeded:   failure == nil,
	}
	if failure != nil {
		report.Error = failure.String()
	}
	if status := courier.NotifyRun(r.ctx, r.req.Notify.SNSTopicArn, report); status != nil {
		log.Warn(r.ctx, "Run notification failed:", status.String())
	}
}
