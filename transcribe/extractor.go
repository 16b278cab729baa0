package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/analysis"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/db"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/decode_yaml/request"
	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/utility/ffmpeg"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Extractor analyzes one segment at a time: chop, transcribe, measure, persist.
type Extractor struct {
	ctx      context.Context
	conn     db.DBAdapter
	whisper  Transcriber
	features FeatureSource
	tempDir  string
	jsonDir  string
}

func NewExtractor(ctx context.Context, conn db.DBAdapter, whisper Transcriber,
	features FeatureSource, tempDir string, jsonDir string) Extractor {
	return Extractor{ctx: ctx, conn: conn, whisper: whisper, features: features,
		tempDir: tempDir, jsonDir: jsonDir}
}

// AnalyzeSegment chops the segment span from the vocals track, transcribes it,
// builds dual-frame word timings, enriches them with pitch and energy, and
// persists the record to sqlite and JSON. Reuse segments are stored without
// analysis; they inherit their source's audio at assembly time.
func (e Extractor) AnalyzeSegment(seg request.Segment, vocalsFile string, sourceText string) (analysis.SegmentAnalysis, *log.Status) {
	var record analysis.SegmentAnalysis
	ctx := log.SetUnit(e.ctx, seg.SegmentId)
	record.SegmentInfo = analysis.SegmentInfo{
		SegmentId:         seg.SegmentId,
		TimeRangeAbsolute: analysis.TimeRange{Start: seg.BeginTS, End: seg.EndTS},
		ReusedFrom:        seg.ReusedFrom,
	}
	if seg.ReusedFrom != "" {
		status := e.conn.UpsertSegment(db.Segment{SegmentId: seg.SegmentId,
			BeginTS: seg.BeginTS, EndTS: seg.EndTS, ReusedFrom: seg.ReusedFrom})
		return record, status
	}
	audioFile, status := ffmpeg.ChopOneSegment(ctx, e.tempDir, vocalsFile, seg.BeginTS, seg.EndTS)
	if status != nil {
		return record, status
	}
	transcript, status := e.whisper.Transcribe(audioFile)
	if status != nil {
		return record, status
	}
	var windows []WordWindow
	for i, w := range transcript.Words {
		windows = append(windows, WordWindow{Seq: i, Start: w.Start, End: w.End})
	}
	features, status := e.features.Measure(audioFile, windows)
	if status != nil {
		return record, status
	}
	record = BuildRecord(seg, audioFile, transcript, features)
	e.warnOnLyricsMismatch(ctx, seg.SegmentId, sourceText, transcript.Text)
	status = e.persist(seg, record)
	return record, status
}

// BuildRecord assembles the analysis record from the transcript and measured
// features. Word timestamps arrive segment-relative; the absolute frame is the
// relative frame shifted by the segment's begin timestamp.
func BuildRecord(seg request.Segment, audioFile string, transcript Transcript, features []WordFeatures) analysis.SegmentAnalysis {
	var record analysis.SegmentAnalysis
	record.SegmentInfo = analysis.SegmentInfo{
		SegmentId:         seg.SegmentId,
		TimeRangeAbsolute: analysis.TimeRange{Start: seg.BeginTS, End: seg.EndTS},
		AudioFile:         audioFile,
		ReusedFrom:        seg.ReusedFrom,
	}
	record.Transcription.Language = transcript.Language
	record.Transcription.FullText = transcript.Text
	bySeq := make(map[int]WordFeatures)
	for _, f := range features {
		bySeq[f.Seq] = f
	}
	for i, w := range transcript.Words {
		timing := analysis.WordTiming{
			Seq:      i,
			Word:     w.Word,
			Relative: analysis.TimeRange{Start: w.Start, End: w.End},
			Absolute: analysis.TimeRange{Start: w.Start + seg.BeginTS, End: w.End + seg.BeginTS},
		}
		if f, found := bySeq[i]; found {
			timing.PitchHz = f.PitchHz
			timing.EnergyDB = f.EnergyDB
		}
		record.Transcription.Words = append(record.Transcription.Words, timing)
	}
	record.ComputeAggregates()
	return record
}

func (e Extractor) persist(seg request.Segment, record analysis.SegmentAnalysis) *log.Status {
	status := e.conn.UpsertSegment(db.Segment{SegmentId: seg.SegmentId,
		BeginTS: seg.BeginTS, EndTS: seg.EndTS, ReusedFrom: seg.ReusedFrom,
		AudioFile: record.SegmentInfo.AudioFile})
	if status != nil {
		return status
	}
	var words []db.Word
	for _, w := range record.Transcription.Words {
		words = append(words, db.Word{
			SegmentId: seg.SegmentId,
			WordSeq:   w.Seq,
			Word:      w.Word,
			BeginTS:   w.Relative.Start,
			EndTS:     w.Relative.End,
			BeginAbs:  w.Absolute.Start,
			EndAbs:    w.Absolute.End,
			PitchHz:   w.PitchHz,
			EnergyDB:  w.EnergyDB,
		})
	}
	status = e.conn.ReplaceWords(seg.SegmentId, words)
	if status != nil {
		return status
	}
	_, status = record.Save(e.ctx, e.jsonDir)
	return status
}

// warnOnLyricsMismatch compares the heard text against the expected source
// lyrics. A low similarity usually means the segment boundaries are wrong.
func (e Extractor) warnOnLyricsMismatch(ctx context.Context, segmentId string, expected string, heard string) {
	expected = normalizeText(expected)
	heard = normalizeText(heard)
	if expected == "" || heard == "" {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(expected, heard, false)
	distance := dmp.DiffLevenshtein(diffs)
	longest := len([]rune(expected))
	if l := len([]rune(heard)); l > longest {
		longest = l
	}
	similarity := 1.0 - float64(distance)/float64(longest)
	if similarity < 0.5 {
		log.Warn(ctx, fmt.Sprintf("Transcription differs from expected lyrics (similarity %.2f)", similarity),
			segmentId, "heard:", heard)
	}
}

func normalizeText(text string) string {
	text = strings.ToLower(text)
	var b strings.Builder
	for _, r := range text {
		if r == ',' || r == '.' || r == '!' || r == '?' || r == ';' || r == ':' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
