package synthesize

import (
	"context"
	"sync"

	log "github.com/Lnxtanx/singing-ai-pipeline-with-cosyvoice/logger"
)

// RunPool synthesizes all jobs with a bounded number of workers and returns the
// results keyed by chunk identity. A failed job does not stop the pool; its
// Result carries the Status and the caller decides whether silence is an
// acceptable stand-in for that line.
func RunPool(ctx context.Context, synth Synthesizer, jobs []Job, workers int) map[ChunkKey]Result {
	if workers < 1 {
		workers = 1
	}
	jobChan := make(chan Job, len(jobs))
	resultChan := make(chan Result, len(jobs))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				select {
				case <-ctx.Done():
					resultChan <- Result{Job: job,
						Status: log.Error(ctx, 500, ctx.Err(), "Synthesis cancelled")}
					continue
				default:
				}
				resultChan <- synth.SynthesizeLine(job)
			}
		}()
	}
	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)
	wg.Wait()
	close(resultChan)
	results := make(map[ChunkKey]Result, len(jobs))
	for result := range resultChan {
		results[KeyOf(result.Job)] = result
	}
	return results
}

// ChunkKey identifies one synthesized line across the whole run.
type ChunkKey struct {
	Language  string
	SegmentId string
	LineIndex int
}

func KeyOf(job Job) ChunkKey {
	return ChunkKey{Language: job.Language, SegmentId: job.SegmentId, LineIndex: job.LineIndex}
}
