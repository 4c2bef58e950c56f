package analysis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/coachcall/internal/observability"
)

// Runner executes analysis pipelines as supervised background tasks, at
// most one per meeting id at a time. The webhook request that triggers a
// run never waits on it; outcomes surface through the meeting status and
// metrics.
type Runner struct {
	pipeline *Pipeline
	metrics  *observability.Metrics

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

func NewRunner(pipeline *Pipeline, metrics *observability.Metrics) *Runner {
	return &Runner{
		pipeline: pipeline,
		metrics:  metrics,
		running:  make(map[string]struct{}),
	}
}

// Enqueue launches an analysis run for the meeting unless one is already
// in flight; reports whether a run was started.
func (r *Runner) Enqueue(meetingID string) bool {
	r.mu.Lock()
	if _, busy := r.running[meetingID]; busy {
		r.mu.Unlock()
		slog.Warn("analysis already running for meeting, skipping", "meeting_id", meetingID)
		return false
	}
	r.running[meetingID] = struct{}{}
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.running, meetingID)
			r.mu.Unlock()
		}()
		r.run(meetingID)
	}()
	return true
}

func (r *Runner) run(meetingID string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("analysis run panicked", "meeting_id", meetingID, "panic", rec)
			if r.metrics != nil {
				r.metrics.AnalysisRunsTotal.WithLabelValues("panic").Inc()
			}
		}
	}()

	start := time.Now()
	err := r.pipeline.Run(context.Background(), meetingID)
	if r.metrics != nil {
		r.metrics.AnalysisSeconds.Observe(time.Since(start).Seconds())
		outcome := "completed"
		if err != nil {
			outcome = "failed"
		}
		r.metrics.AnalysisRunsTotal.WithLabelValues(outcome).Inc()
	}
}

// Drain waits for in-flight runs to finish, up to the timeout. Used at
// shutdown so terminal status writes are not cut off mid-flight.
func (r *Runner) Drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("analysis drain timed out with runs still in flight", "timeout", timeout)
	}
}
