// Package recluster runs the end-to-end pipeline that recomputes every
// collection: snapshot vectors, project, pick k, fit, persist.
package recluster

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyMichaelTDM/mecomp/internal/cluster"
	"github.com/AnthonyMichaelTDM/mecomp/internal/datastore"
	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/features"
	"github.com/AnthonyMichaelTDM/mecomp/internal/logging"
	"github.com/AnthonyMichaelTDM/mecomp/internal/observability/metrics"
	"github.com/AnthonyMichaelTDM/mecomp/internal/projection"
)

// State is the orchestrator's lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateSnapshotting
	StateProjecting
	StateSelectingK
	StateFitting
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSnapshotting:
		return "snapshotting"
	case StateProjecting:
		return "projecting"
	case StateSelectingK:
		return "selecting_k"
	case StateFitting:
		return "fitting"
	case StatePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// Config is the enumerated reclustering configuration.
type Config struct {
	Algorithm         string // kmeans | gmm
	ProjectionMethod  string // none | pca | tsne
	MaxClusters       int    // K_max for the gap statistic
	ReferenceDatasets int    // B for the gap statistic
	MaxIterations     int    // clusterer iteration cap
	Seed              int64  // RNG seed for reproducible runs
}

// Result summarizes a successful run.
type Result struct {
	K             int
	CollectionIDs []string
	Songs         int
}

// Orchestrator serializes recluster runs: at most one executes at a time,
// a second request is rejected with ErrBusy.
type Orchestrator struct {
	store   datastore.Interface
	state   atomic.Int32
	logger  *slog.Logger
	metrics *metrics.ReclusterMetrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *metrics.ReclusterMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an orchestrator over the given store.
func New(store datastore.Interface, opts ...Option) *Orchestrator {
	logger := logging.ForService("recluster")
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{store: store, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current lifecycle position.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Run executes one recluster. Cancellation is honored at step boundaries
// only; a failing step aborts the run and leaves the previous collections
// untouched.
func (o *Orchestrator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateSnapshotting)) {
		return nil, errors.Wrap(errors.ErrBusy).
			Component("recluster").
			Context("state", o.State().String()).
			Build()
	}
	defer o.state.Store(int32(StateIdle))

	result, err := o.run(ctx, cfg)
	if o.metrics != nil {
		if err != nil {
			o.metrics.Runs.WithLabelValues("error").Inc()
		} else {
			o.metrics.Runs.WithLabelValues("ok").Inc()
			o.metrics.ChosenK.Set(float64(result.K))
		}
	}
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, cfg Config) (*Result, error) {
	// step 1: snapshot — further analysis writes do not affect this run
	ids, x, vectors, err := o.snapshot()
	if err != nil {
		return nil, err
	}

	if err := o.advance(ctx, StateProjecting); err != nil {
		return nil, err
	}

	// step 2: project
	projector, err := projection.New(projection.Method(cfg.ProjectionMethod))
	if err != nil {
		return nil, err
	}
	projected, err := o.timed("project", func() (*mat.Dense, error) {
		return projector.FitTransform(x)
	})
	if err != nil {
		return nil, err
	}

	if err := o.advance(ctx, StateSelectingK); err != nil {
		return nil, err
	}

	// step 3: pick k
	factory, err := cluster.NewFactory(cfg.Algorithm, cfg.MaxIterations)
	if err != nil {
		return nil, err
	}
	k, err := o.timedInt("select_k", func() (int, error) {
		return cluster.SelectK(context.WithoutCancel(ctx), projected, factory, cluster.GapConfig{
			MaxClusters:       cfg.MaxClusters,
			ReferenceDatasets: cfg.ReferenceDatasets,
			Seed:              cfg.Seed,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := o.advance(ctx, StateFitting); err != nil {
		return nil, err
	}

	// step 4: fit at k*
	var labels []int
	_, err = o.timed("fit", func() (*mat.Dense, error) {
		var centers *mat.Dense
		labels, centers, err = factory(cfg.Seed).FitPredict(projected, k)
		return centers, err
	})
	if err != nil {
		return nil, err
	}

	if err := o.advance(ctx, StatePersisting); err != nil {
		return nil, err
	}

	// step 5: centroids in the unprojected space so radio-from-collection
	// stays comparable with radio-from-song
	writes, err := collectionWrites(ids, vectors, labels, k)
	if err != nil {
		return nil, err
	}

	// step 6: atomic swap
	collectionIDs, err := o.store.ReplaceCollections(writes)
	if err != nil {
		return nil, err
	}

	o.logger.Info("recluster complete",
		"k", k,
		"songs", len(ids),
		"algorithm", cfg.Algorithm,
		"projection", cfg.ProjectionMethod)

	return &Result{K: k, CollectionIDs: collectionIDs, Songs: len(ids)}, nil
}

// snapshot pulls a stable view of every analysis, ordered by song ID so
// the matrix layout is reproducible.
func (o *Orchestrator) snapshot() ([]string, *mat.Dense, map[string]features.Vector, error) {
	start := time.Now()
	analyses, err := o.store.AllAnalyses()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(analyses) < 2 {
		return nil, nil, nil, errors.Newf("reclustering needs at least 2 analyzed songs, have %d", len(analyses)).
			Component("recluster").
			Category(errors.CategoryValidation).
			Build()
	}

	ids := make([]string, 0, len(analyses))
	for id := range analyses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	x := mat.NewDense(len(ids), features.Dimension, nil)
	for i, id := range ids {
		v := analyses[id]
		for j := range features.Dimension {
			x.Set(i, j, float64(v[j]))
		}
	}

	o.observe("snapshot", time.Since(start))
	return ids, x, analyses, nil
}

// collectionWrites groups songs per label and computes each collection's
// centroid as the mean of its member vectors in the unprojected space.
func collectionWrites(ids []string, vectors map[string]features.Vector, labels []int, k int) ([]datastore.CollectionWrite, error) {
	groups := make([][]string, k)
	for i, id := range ids {
		groups[labels[i]] = append(groups[labels[i]], id)
	}

	writes := make([]datastore.CollectionWrite, 0, k)
	for _, members := range groups {
		if len(members) == 0 {
			continue
		}
		memberVectors := make([]features.Vector, len(members))
		for i, id := range members {
			memberVectors[i] = vectors[id]
		}
		centroid, err := features.Mean(memberVectors)
		if err != nil {
			return nil, err
		}
		writes = append(writes, datastore.CollectionWrite{
			Centroid: centroid,
			SongIDs:  members,
		})
	}
	return writes, nil
}

// advance checks cancellation at a step boundary and moves the state.
func (o *Orchestrator) advance(ctx context.Context, next State) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err).
			Component("recluster").
			Category(errors.CategoryCancellation).
			Context("state", o.State().String()).
			Build()
	}
	o.state.Store(int32(next))
	return nil
}

func (o *Orchestrator) observe(phase string, d time.Duration) {
	if o.metrics != nil {
		o.metrics.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	}
}

func (o *Orchestrator) timed(phase string, fn func() (*mat.Dense, error)) (*mat.Dense, error) {
	start := time.Now()
	out, err := fn()
	o.observe(phase, time.Since(start))
	return out, err
}

func (o *Orchestrator) timedInt(phase string, fn func() (int, error)) (int, error) {
	start := time.Now()
	out, err := fn()
	o.observe(phase, time.Since(start))
	return out, err
}
