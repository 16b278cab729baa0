// Package request defines the declarative job description consumed by every
// pipeline stage. The segment table and all tunable constants live here, not in
// code, so a run never requires editing a script.
package request

// Request is the top level of the YAML job file.
type Request struct {
	DatasetName string   `yaml:"dataset_name"`
	Source      Source   `yaml:"source"`
	Languages   []string `yaml:"languages"`
	// SourceLanguage names the optional lines entry holding the original
	// lyrics, used only to sanity-check the transcription.
	SourceLanguage string    `yaml:"source_language,omitempty"`
	Segments       []Segment `yaml:"segments"`
	Settings       Settings  `yaml:"settings"`
	Notify         Notify    `yaml:"notify"`
}

type Source struct {
	SongFile         string `yaml:"song_file"`
	VocalsFile       string `yaml:"vocals_file"`
	InstrumentalFile string `yaml:"instrumental_file"`
	OutputDir        string `yaml:"output_dir"`
}

// Segment is one labeled span of the source vocal track. A segment that repeats
// an earlier musical section names it in ReusedFrom and carries no lines of its
// own; its audio is never re-synthesized.
type Segment struct {
	SegmentId  string              `yaml:"segment_id"`
	BeginTS    float64             `yaml:"begin_ts"`
	EndTS      float64             `yaml:"end_ts"`
	ReusedFrom string              `yaml:"reused_from,omitempty"`
	Lines      map[string][]string `yaml:"lines,omitempty"` // language -> one text per chunk
}

type Settings struct {
	ChunkCount         int     `yaml:"chunk_count"`
	ChunkPaddingMS     int     `yaml:"chunk_padding_ms"`
	DriftThresholdSec  float64 `yaml:"drift_threshold_sec"`
	MaxStretchFactor   float64 `yaml:"max_stretch_factor"`
	VocalGainDB        float64 `yaml:"vocal_gain_db"`
	InstrumentalGainDB float64 `yaml:"instrumental_gain_db"`
	SlowFactor         float64 `yaml:"slow_factor"`
	SampleRate         int     `yaml:"sample_rate"`
	Workers            int     `yaml:"workers"`
	SyncGoodSec        float64 `yaml:"sync_good_sec"`
	SyncAcceptableSec  float64 `yaml:"sync_acceptable_sec"`
	WhisperModel       string  `yaml:"whisper_model"`
	SynthesisSpeed     float64 `yaml:"synthesis_speed"`
}

type Notify struct {
	SNSTopicArn string `yaml:"sns_topic_arn,omitempty"`
}

// Duration returns the width of the segment's absolute span.
func (s *Segment) Duration() float64 {
	return s.EndTS - s.BeginTS
}
