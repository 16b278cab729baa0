// Package analysis defines the per-segment analysis record written after
// transcription. The JSON file is the human-auditable artifact of a run; the
// sqlite rows are the machine-readable copy of the same data.
package analysis

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
	"gonum.org/v1/gonum/stat"
)

// TimeRange is a span in one coordinate frame.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (t TimeRange) Duration() float64 {
	return t.End - t.Start
}

// WordTiming carries one word in both frames. Relative is measured from the
// segment start, Absolute from the start of the song.
type WordTiming struct {
	Seq      int       `json:"seq"`
	Word     string    `json:"word"`
	Relative TimeRange `json:"relative"`
	Absolute TimeRange `json:"absolute"`
	PitchHz  float64   `json:"pitch_hz"`
	EnergyDB float64   `json:"energy_db"`
}

type SegmentInfo struct {
	SegmentId         string    `json:"segment_id"`
	TimeRangeAbsolute TimeRange `json:"time_range_absolute"`
	AudioFile         string    `json:"audio_file"`
	ReusedFrom        string    `json:"reused_from,omitempty"`
}

// AudioAnalysis holds aggregates over the segment's words.
type AudioAnalysis struct {
	DurationSec   float64 `json:"duration_sec"`
	TempoWordsSec float64 `json:"tempo_words_per_sec"`
	PitchMeanHz   float64 `json:"pitch_mean_hz"`
	PitchStdHz    float64 `json:"pitch_std_hz"`
	EnergyMeanDB  float64 `json:"energy_mean_db"`
}

type Transcription struct {
	Language string       `json:"language"`
	FullText string       `json:"full_text"`
	Words    []WordTiming `json:"word_timings_dual_frame"`
}

// SegmentAnalysis is the complete per-segment record.
type SegmentAnalysis struct {
	SegmentInfo   SegmentInfo   `json:"segment_info"`
	AudioAnalysis AudioAnalysis `json:"audio_analysis"`
	Transcription Transcription `json:"transcription"`
}

// ComputeAggregates fills AudioAnalysis from the word list and the segment span.
func (s *SegmentAnalysis) ComputeAggregates() {
	duration := s.SegmentInfo.TimeRangeAbsolute.Duration()
	s.AudioAnalysis.DurationSec = duration
	words := s.Transcription.Words
	if duration > 0 {
		s.AudioAnalysis.TempoWordsSec = float64(len(words)) / duration
	}
	if len(words) == 0 {
		return
	}
	var pitches, energies []float64
	for _, w := range words {
		if w.PitchHz > 0 {
			pitches = append(pitches, w.PitchHz)
		}
		energies = append(energies, w.EnergyDB)
	}
	if len(pitches) > 0 {
		mean, std := stat.MeanStdDev(pitches, nil)
		s.AudioAnalysis.PitchMeanHz = mean
		if len(pitches) > 1 {
			s.AudioAnalysis.PitchStdHz = std
		}
	}
	s.AudioAnalysis.EnergyMeanDB = stat.Mean(energies, nil)
}

// TrimAtWord drops every word after seq, renumbers nothing (seq values are
// already stable), shortens both time ranges to the last kept word, and
// rebuilds the full text.
func (s *SegmentAnalysis) TrimAtWord(ctx context.Context, seq int) *log.Status {
	var kept []WordTiming
	var last *WordTiming
	for i := range s.Transcription.Words {
		w := s.Transcription.Words[i]
		if w.Seq > seq {
			break
		}
		kept = append(kept, w)
		last = &kept[len(kept)-1]
	}
	if last == nil || last.Seq != seq {
		return log.ErrorNoErr(ctx, 404, "Trim word seq not found", s.SegmentInfo.SegmentId, seq)
	}
	s.Transcription.Words = kept
	s.SegmentInfo.TimeRangeAbsolute.End = last.Absolute.End
	var texts []string
	for _, w := range kept {
		texts = append(texts, w.Word)
	}
	s.Transcription.FullText = strings.Join(texts, " ")
	s.ComputeAggregates()
	return nil
}

// Save writes the record as indented JSON under directory, named by segment id.
func (s *SegmentAnalysis) Save(ctx context.Context, directory string) (string, *log.Status) {
	content, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error marshalling segment analysis", s.SegmentInfo.SegmentId)
	}
	path := filepath.Join(directory, s.SegmentInfo.SegmentId+"_analysis.json")
	err = os.WriteFile(path, content, 0644)
	if err != nil {
		return "", log.Error(ctx, 500, err, "Error writing segment analysis", path)
	}
	return path, nil
}

func Load(ctx context.Context, path string) (SegmentAnalysis, *log.Status) {
	var result SegmentAnalysis
	content, err := os.ReadFile(path)
	if err != nil {
		return result, log.Error(ctx, 404, err, "Error reading segment analysis", path)
	}
	err = json.Unmarshal(content, &result)
	if err != nil {
		return result, log.Error(ctx, 500, err, "Error parsing segment analysis", path)
	}
	return result, nil
}
