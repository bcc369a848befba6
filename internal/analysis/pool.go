// Package analysis runs batches of song analyses on a worker pool with a
// bounded pool of extractor scratch buffers.
package analysis

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AnthonyMichaelTDM/mecomp/internal/features"
	"github.com/AnthonyMichaelTDM/mecomp/internal/logging"
	"github.com/AnthonyMichaelTDM/mecomp/internal/observability/metrics"
)

// Task is one (song, audio source) pair to analyze.
type Task struct {
	SongID string
	Path   string
}

// Outcome is the result of one task. Exactly one of Vector/Err is
// meaningful: Err == nil means Vector holds the song's fingerprint.
type Outcome struct {
	SongID string
	Vector features.Vector
	Err    error
}

// Summary is the terminal batch report.
type Summary struct {
	Successes int
	Failures  int
}

// ProgressFunc receives each task's outcome at completion. It is invoked
// from worker goroutines; callers needing single-threaded delivery must
// marshal themselves.
type ProgressFunc func(Outcome)

// Pool analyzes batches of songs. Extractors (and their scratch buffers)
// are a bounded resource: at most `workers` exist, acquisition blocks, and
// release happens on every exit path.
type Pool struct {
	workers    int
	extractors chan *features.Extractor

	logger  *slog.Logger
	metrics *metrics.AnalysisMetrics
}

// Option configures a Pool.
type Option func(*Pool)

// WithMetrics attaches prometheus collectors to the pool.
func WithMetrics(m *metrics.AnalysisMetrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// NewPool creates a pool with the given parallelism; workers <= 0 selects
// the machine's available parallelism.
func NewPool(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	logger := logging.ForService("analysis")
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		workers:    workers,
		extractors: make(chan *features.Extractor, workers),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	for range workers {
		p.extractors <- features.NewExtractor()
	}

	return p
}

// Analyze runs the batch and returns all outcomes ordered by song ID plus
// the terminal summary. A failing task never cancels the batch; cancelling
// ctx stops new task pickup while in-flight tasks finish naturally.
func (p *Pool) Analyze(ctx context.Context, tasks []Task, progress ProgressFunc) (Summary, []Outcome) {
	feed := make(chan Task)

	// feeder: tasks are pulled one at a time so cancellation stops pickup
	// without touching in-flight work
	go func() {
		defer close(feed)
		for _, task := range tasks {
			select {
			case feed <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	var mu sync.Mutex
	outcomes := make([]Outcome, 0, len(tasks))

	var g errgroup.Group
	for range p.workers {
		g.Go(func() error {
			for task := range feed {
				outcome := p.analyzeOne(task)

				mu.Lock()
				outcomes = append(outcomes, outcome)
				mu.Unlock()

				if progress != nil {
					progress(outcome)
				}
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors; failures are per-task outcomes

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].SongID < outcomes[j].SongID
	})

	var summary Summary
	for i := range outcomes {
		if outcomes[i].Err != nil {
			summary.Failures++
		} else {
			summary.Successes++
		}
	}

	p.logger.Info("analysis batch finished",
		"tasks", len(tasks),
		"completed", len(outcomes),
		"successes", summary.Successes,
		"failures", summary.Failures)

	return summary, outcomes
}

// analyzeOne runs a single task with a pooled extractor.
func (p *Pool) analyzeOne(task Task) Outcome {
	extractor := <-p.extractors
	if p.metrics != nil {
		p.metrics.BuffersInUse.Inc()
		p.metrics.TasksInFlight.Inc()
	}
	defer func() {
		p.extractors <- extractor
		if p.metrics != nil {
			p.metrics.BuffersInUse.Dec()
			p.metrics.TasksInFlight.Dec()
		}
	}()

	start := time.Now()
	vector, err := extractor.ExtractFile(task.Path)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.AnalysisDuration.WithLabelValues(status).Observe(elapsed.Seconds())
		p.metrics.AnalysisOutcomes.WithLabelValues(status).Inc()
	}

	if err != nil {
		p.logger.Warn("song analysis failed",
			"song", task.SongID,
			"path", task.Path,
			"error", err)
		return Outcome{SongID: task.SongID, Err: err}
	}

	return Outcome{SongID: task.SongID, Vector: vector}
}
