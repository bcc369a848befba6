package cluster

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/logging"
)

// GapConfig parameterizes the gap-statistic search.
type GapConfig struct {
	MaxClusters       int   // K_max, inclusive upper bound of the search
	ReferenceDatasets int   // B, reference datasets per candidate k
	Seed              int64 // base seed; all derived RNG streams are deterministic under it
}

// SelectK chooses the optimal cluster count by the gap statistic: the
// smallest k whose gap is within one adjusted standard error of the next
// k's gap. Gaps are computed for k in [2, MaxClusters] (MaxClusters clamped
// to n-1), so the chosen k lies in [2, MaxClusters-1]. Reference fits run
// in parallel.
func SelectK(ctx context.Context, x *mat.Dense, factory Factory, cfg GapConfig) (int, error) {
	logger := logging.ForService("cluster")
	if logger == nil {
		logger = slog.Default()
	}

	n, d := x.Dims()
	if n < 2 {
		return 0, errors.Newf("gap statistic needs at least 2 samples, got %d", n).
			Component("cluster").
			Category(errors.CategoryValidation).
			Build()
	}

	maxK := cfg.MaxClusters
	if maxK >= n {
		maxK = n - 1
	}
	if maxK < 3 {
		return 0, errors.Wrap(errors.ErrNoOptimalK).
			Component("cluster").
			Context("samples", n).
			Context("max_clusters", cfg.MaxClusters).
			Build()
	}

	lo, hi := boundingBox(x)

	gaps := make([]float64, maxK+1)     // indexed by k
	adjusted := make([]float64, maxK+1) // s(k), std-dev adjusted dispersion

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for k := 2; k <= maxK; k++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			_, centers, err := factory(cfg.Seed+int64(k)).FitPredict(x, k)
			if err != nil {
				return err
			}
			logW := math.Log(dispersion(x, centers))

			// cluster B uniform reference datasets at the same k
			refLogs := make([]float64, cfg.ReferenceDatasets)
			var refGroup errgroup.Group
			refGroup.SetLimit(runtime.GOMAXPROCS(0))
			for b := range cfg.ReferenceDatasets {
				refGroup.Go(func() error {
					seed := cfg.Seed + int64(k)*100003 + int64(b)
					ref := uniformReference(n, d, lo, hi, seed)
					_, refCenters, err := factory(seed).FitPredict(ref, k)
					if err != nil {
						return err
					}
					refLogs[b] = math.Log(dispersion(ref, refCenters))
					return nil
				})
			}
			if err := refGroup.Wait(); err != nil {
				return err
			}

			meanRef, sdRef := meanStd(refLogs)
			mu.Lock()
			gaps[k] = meanRef - logW
			adjusted[k] = sdRef * math.Sqrt(1+1/float64(cfg.ReferenceDatasets))
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, errors.Wrap(err).
			Component("cluster").
			Category(errors.CategoryClustering).
			Build()
	}

	for k := 2; k < maxK; k++ {
		if gaps[k] >= gaps[k+1]-adjusted[k+1] {
			logger.Info("gap statistic selected k",
				"k", k,
				"gap", gaps[k],
				"next_gap", gaps[k+1])
			return k, nil
		}
	}

	return 0, errors.Wrap(errors.ErrNoOptimalK).
		Component("cluster").
		Context("max_clusters", cfg.MaxClusters).
		Context("reference_datasets", cfg.ReferenceDatasets).
		Build()
}

// dispersion is W(k): the sum of squared distances from each sample to its
// nearest center.
func dispersion(x, centers *mat.Dense) float64 {
	n, _ := x.Dims()
	k, _ := centers.Dims()

	var total float64
	for i := range n {
		best := math.Inf(1)
		for c := range k {
			if dd := squaredRowDistance(x, i, centers, c); dd < best {
				best = dd
			}
		}
		total += best
	}
	if total < 1e-300 {
		// log(0) guard for degenerate corpora of duplicated points
		total = 1e-300
	}
	return total
}

// boundingBox returns the per-dimension min and max of the data.
func boundingBox(x *mat.Dense) (lo, hi []float64) {
	n, d := x.Dims()
	lo = make([]float64, d)
	hi = make([]float64, d)
	for j := range d {
		lo[j] = math.Inf(1)
		hi[j] = math.Inf(-1)
		for i := range n {
			v := x.At(i, j)
			if v < lo[j] {
				lo[j] = v
			}
			if v > hi[j] {
				hi[j] = v
			}
		}
	}
	return lo, hi
}

// uniformReference samples n points uniformly inside the axis-aligned
// bounding box, per Tibshirani's method (a).
func uniformReference(n, d int, lo, hi []float64, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducibility, not crypto
	ref := mat.NewDense(n, d, nil)
	for i := range n {
		for j := range d {
			ref.Set(i, j, lo[j]+rng.Float64()*(hi[j]-lo[j]))
		}
	}
	return ref
}

// meanStd returns the sample mean and population standard deviation.
func meanStd(xs []float64) (mean, sd float64) {
	for _, v := range xs {
		mean += v
	}
	mean /= float64(len(xs))
	for _, v := range xs {
		diff := v - mean
		sd += diff * diff
	}
	sd = math.Sqrt(sd / float64(len(xs)))
	return mean, sd
}
