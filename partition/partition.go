// Package partition divides a segment's transcribed words into per-line chunks.
// Each chunk maps to one line of replacement lyrics and is later synthesized on
// its own, so its boundaries carry both time frames.
package partition

import (
	"context"

	"github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/db"
	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
)

// Chunk is one line-sized slice of a segment. Times are in seconds; Begin/End
// are segment-relative, BeginAbs/EndAbs song-absolute. Padding is already
// applied and clamped to the segment boundaries.
type Chunk struct {
	SegmentId string
	LineIndex int
	Words     []db.Word
	Begin     float64
	End       float64
	BeginAbs  float64
	EndAbs    float64
}

func (c *Chunk) Duration() float64 {
	return c.End - c.Begin
}

// Partition splits words into lineCount chunks by word count: every chunk gets
// wordCount/lineCount words and the first wordCount%lineCount chunks get one
// extra, so leftovers land at the front. Each chunk's span is widened by
// padding on both sides, clamped so it never leaves the segment.
func Partition(ctx context.Context, segmentId string, words []db.Word, lineCount int,
	paddingSec float64, segBegin float64, segEnd float64) ([]Chunk, *log.Status) {
	if lineCount < 1 {
		return nil, log.ErrorNoErr(ctx, 400, "Line count must be positive", lineCount)
	}
	if len(words) < lineCount {
		return nil, log.ErrorNoErr(ctx, 400, "Segment has fewer words than lines",
			segmentId, len(words), "words for", lineCount, "lines")
	}
	base := len(words) / lineCount
	extra := len(words) % lineCount
	var results []Chunk
	pos := 0
	segDuration := segEnd - segBegin
	for line := 0; line < lineCount; line++ {
		count := base
		if line < extra {
			count++
		}
		chunkWords := words[pos : pos+count]
		pos += count
		begin := chunkWords[0].BeginTS - paddingSec
		if begin < 0 {
			begin = 0
		}
		end := chunkWords[len(chunkWords)-1].EndTS + paddingSec
		if end > segDuration {
			end = segDuration
		}
		results = append(results, Chunk{
			SegmentId: segmentId,
			LineIndex: line,
			Words:     chunkWords,
			Begin:     begin,
			End:       end,
			BeginAbs:  begin + segBegin,
			EndAbs:    end + segBegin,
		})
	}
	return results, nil
}
