package decode_yaml

import (
	"fmt"

	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/decode_yaml/request"
)

func (d *RequestDecoder) Validate(req *request.Request) {
	d.checkRequired(req)
	d.checkSettings(&req.Settings)
	d.checkSegments(req)
}

func (d *RequestDecoder) checkRequired(req *request.Request) {
	if req.DatasetName == `` {
		d.errors = append(d.errors, `Required field dataset_name is empty`)
	}
	if req.Source.VocalsFile == `` && req.Source.SongFile == `` {
		d.errors = append(d.errors, `One of source.vocals_file or source.song_file is required`)
	}
	if len(req.Languages) == 0 {
		d.errors = append(d.errors, `Required field languages is empty`)
	}
	if len(req.Segments) == 0 {
		d.errors = append(d.errors, `Required field segments is empty`)
	}
}

func (d *RequestDecoder) checkSettings(s *request.Settings) {
	if s.ChunkCount < 1 {
		d.errors = append(d.errors, fmt.Sprintf(`chunk_count must be positive, got %d`, s.ChunkCount))
	}
	if s.DriftThresholdSec < 0 {
		d.errors = append(d.errors, `drift_threshold_sec must not be negative`)
	}
	if s.MaxStretchFactor < 1.0 {
		d.errors = append(d.errors, `max_stretch_factor must be at least 1.0`)
	}
	if s.SlowFactor <= 0 || s.SlowFactor > 1.0 {
		d.errors = append(d.errors, `slow_factor must be in (0, 1]`)
	}
	if s.SyncAcceptableSec <= s.SyncGoodSec {
		d.errors = append(d.errors, `sync_acceptable_sec must exceed sync_good_sec`)
	}
}

func (d *RequestDecoder) checkSegments(req *request.Request) {
	seen := make(map[string]*request.Segment)
	var prevEnd float64
	for i := range req.Segments {
		seg := &req.Segments[i]
		if seg.SegmentId == `` {
			d.errors = append(d.errors, fmt.Sprintf(`Segment %d has no segment_id`, i))
			continue
		}
		if _, dup := seen[seg.SegmentId]; dup {
			d.errors = append(d.errors, `Duplicate segment_id `+seg.SegmentId)
		}
		if seg.EndTS <= seg.BeginTS {
			d.errors = append(d.errors, fmt.Sprintf(`Segment %s has begin_ts %.2f >= end_ts %.2f`,
				seg.SegmentId, seg.BeginTS, seg.EndTS))
		}
		if seg.BeginTS < prevEnd-0.001 && i > 0 {
			// Overlap between adjacent segments is tolerated, but out-of-order
			// start times indicate a mis-entered table.
			if seg.BeginTS < req.Segments[i-1].BeginTS {
				d.errors = append(d.errors, `Segment `+seg.SegmentId+` starts before the previous segment`)
			}
		}
		prevEnd = seg.EndTS
		if seg.ReusedFrom != `` {
			source, found := seen[seg.ReusedFrom]
			if !found {
				d.errors = append(d.errors, fmt.Sprintf(
					`Segment %s reuses %s, which is not an earlier segment`, seg.SegmentId, seg.ReusedFrom))
			} else if source.ReusedFrom != `` {
				d.errors = append(d.errors, fmt.Sprintf(
					`Segment %s reuses %s, which is itself a reuse`, seg.SegmentId, seg.ReusedFrom))
			}
			if len(seg.Lines) > 0 {
				d.errors = append(d.errors, `Segment `+seg.SegmentId+` has both reused_from and lines`)
			}
		} else {
			d.checkSegmentLines(req, seg)
		}
		seen[seg.SegmentId] = seg
	}
}

func (d *RequestDecoder) checkSegmentLines(req *request.Request, seg *request.Segment) {
	for _, lang := range req.Languages {
		lines, found := seg.Lines[lang]
		if !found || len(lines) == 0 {
			d.errors = append(d.errors, fmt.Sprintf(
				`Segment %s has no lines for language %s`, seg.SegmentId, lang))
			continue
		}
		if len(lines) != req.Settings.ChunkCount {
			d.errors = append(d.errors, fmt.Sprintf(
				`Segment %s has %d %s lines, chunk_count is %d`,
				seg.SegmentId, len(lines), lang, req.Settings.ChunkCount))
		}
	}
}
