package pipeline

import (
	"context"
	"sync"

	"github.com/invoicehub/invoice-rpa/constants"
)

// ProcessBatch fans the paths out over a bounded worker pool and collects
// every document's result. Completion order is arbitrary; callers needing
// input order must correlate by SourcePath. The returned slice always has
// exactly one entry per input path.
func (p *Processor) ProcessBatch(ctx context.Context, paths []string, workers int) []Result {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(paths) {
		workers = len(paths)
	}
	p.logger.Info("pipeline.batch.start", "documents", len(paths), "workers", workers)

	jobs := make(chan string)
	out := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for path := range jobs {
				out <- p.ProcessOne(ctx, path)
			}
		}(i + 1)
	}

	go func() {
		for _, path := range paths {
			jobs <- path
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()

	results := make([]Result, 0, len(paths))
	for res := range out {
		results = append(results, res)
	}

	snap := p.stats.Snapshot()
	p.logger.Info("pipeline.batch.done",
		"processed", snap.Processed,
		"successful", snap.Successful,
		"manual_review", snap.ManualReview,
		"failed", snap.Failed,
	)
	return results
}

// Stats holds the running batch counters. They are the only cross-worker
// shared state in the pipeline and every update happens under the mutex.
type Stats struct {
	mu           sync.Mutex
	processed    int
	successful   int
	manualReview int
	failed       int
}

func (s *Stats) observe(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	switch {
	case res.Status == constants.DocStatusFailed:
		s.failed++
	case res.Record.RequiresManualReview:
		s.manualReview++
	default:
		s.successful++
	}
}

// StatsSnapshot is a point-in-time copy of the counters with derived rates.
type StatsSnapshot struct {
	Processed    int
	Successful   int
	ManualReview int
	Failed       int

	SuccessRate      float64 // successful / processed
	ManualReviewRate float64 // manualReview / processed
}

// Snapshot returns the current counters; rates are zero when nothing has
// been processed yet.
func (p *Processor) Snapshot() StatsSnapshot {
	return p.stats.Snapshot()
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := StatsSnapshot{
		Processed:    s.processed,
		Successful:   s.successful,
		ManualReview: s.manualReview,
		Failed:       s.failed,
	}
	if s.processed > 0 {
		snap.SuccessRate = float64(s.successful) / float64(s.processed)
		snap.ManualReviewRate = float64(s.manualReview) / float64(s.processed)
	}
	return snap
}
