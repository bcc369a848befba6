// Package cluster partitions projected analysis vectors into collections
// using K-Means or a Gaussian mixture, with the cluster count chosen by
// the gap statistic.
package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyMichaelTDM/mecomp/internal/conf"
	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
)

// Clusterer fits a partition of n samples into k clusters.
type Clusterer interface {
	// FitPredict returns per-sample cluster labels in [0, k) and the k
	// cluster centers (k×d).
	FitPredict(x *mat.Dense, k int) (labels []int, centers *mat.Dense, err error)
}

// Factory builds a clusterer with its own RNG stream; the gap statistic
// uses it to give every parallel reference fit a derived seed.
type Factory func(seed int64) Clusterer

// NewFactory maps a configured algorithm name to its factory.
func NewFactory(algorithm string, maxIterations int) (Factory, error) {
	switch algorithm {
	case conf.AlgorithmKMeans:
		return func(seed int64) Clusterer {
			return NewKMeans(maxIterations, seed)
		}, nil
	case conf.AlgorithmGMM:
		return func(seed int64) Clusterer {
			return NewGMM(maxIterations, seed)
		}, nil
	default:
		return nil, errors.Newf("unknown clustering algorithm %q", algorithm).
			Component("cluster").
			Category(errors.CategoryValidation).
			Build()
	}
}

// kmeansTolerance is the centroid displacement below which Lloyd's
// algorithm is converged.
const kmeansTolerance = 1e-4

// KMeans implements Lloyd's algorithm with k-means++ seeding.
type KMeans struct {
	maxIterations int
	rng           *rand.Rand
}

// NewKMeans creates a K-Means clusterer with a seedable RNG.
func NewKMeans(maxIterations int, seed int64) *KMeans {
	return &KMeans{
		maxIterations: maxIterations,
		rng:           rand.New(rand.NewSource(seed)), //nolint:gosec // reproducibility, not crypto
	}
}

// FitPredict clusters x into k partitions.
func (km *KMeans) FitPredict(x *mat.Dense, k int) ([]int, *mat.Dense, error) {
	n, d := x.Dims()
	if k < 1 || k > n {
		return nil, nil, errors.Newf("k must be in [1, %d], got %d", n, k).
			Component("cluster").
			Category(errors.CategoryValidation).
			Build()
	}

	centers := km.seedPlusPlus(x, k)
	labels := make([]int, n)
	next := mat.NewDense(k, d, nil)
	counts := make([]int, k)

	for iter := 0; iter < km.maxIterations; iter++ {
		assign(x, centers, labels)

		// recompute centers
		next.Zero()
		for i := range counts {
			counts[i] = 0
		}
		for i := range n {
			c := labels[i]
			counts[c]++
			for j := range d {
				next.Set(c, j, next.At(c, j)+x.At(i, j))
			}
		}
		for c := range k {
			if counts[c] == 0 {
				// re-seed an empty cluster on the point farthest from
				// its current center
				far := farthestPoint(x, centers, labels)
				for j := range d {
					next.Set(c, j, x.At(far, j))
				}
				labels[far] = c
				continue
			}
			inv := 1.0 / float64(counts[c])
			for j := range d {
				next.Set(c, j, next.At(c, j)*inv)
			}
		}

		shift := maxDisplacement(centers, next)
		centers.Copy(next)
		if shift < kmeansTolerance {
			break
		}
	}

	assign(x, centers, labels)
	return labels, centers, nil
}

// seedPlusPlus picks initial centers with the k-means++ scheme: each new
// center is drawn with probability proportional to its squared distance
// from the nearest chosen center.
func (km *KMeans) seedPlusPlus(x *mat.Dense, k int) *mat.Dense {
	n, d := x.Dims()
	centers := mat.NewDense(k, d, nil)

	first := km.rng.Intn(n)
	centers.SetRow(0, mat.Row(nil, first, x))

	dists := make([]float64, n)
	for i := range dists {
		dists[i] = squaredRowDistance(x, i, centers, 0)
	}

	for c := 1; c < k; c++ {
		total := floats.Sum(dists)
		var pick int
		if total < 1e-12 {
			pick = km.rng.Intn(n)
		} else {
			target := km.rng.Float64() * total
			var cum float64
			for i, dd := range dists {
				cum += dd
				if cum >= target {
					pick = i
					break
				}
			}
		}

		centers.SetRow(c, mat.Row(nil, pick, x))
		for i := range dists {
			if dd := squaredRowDistance(x, i, centers, c); dd < dists[i] {
				dists[i] = dd
			}
		}
	}

	return centers
}

// assign labels each sample with its nearest center, breaking ties by the
// lower center index.
func assign(x, centers *mat.Dense, labels []int) {
	n, _ := x.Dims()
	k, _ := centers.Dims()
	for i := range n {
		best, bestDist := 0, math.Inf(1)
		for c := range k {
			if dd := squaredRowDistance(x, i, centers, c); dd < bestDist {
				best, bestDist = c, dd
			}
		}
		labels[i] = best
	}
}

// farthestPoint returns the sample index farthest from its assigned center.
func farthestPoint(x, centers *mat.Dense, labels []int) int {
	n, _ := x.Dims()
	far, farDist := 0, -1.0
	for i := range n {
		if dd := squaredRowDistance(x, i, centers, labels[i]); dd > farDist {
			far, farDist = i, dd
		}
	}
	return far
}

// maxDisplacement is the largest L2 move of any center between iterations.
func maxDisplacement(prev, next *mat.Dense) float64 {
	k, d := prev.Dims()
	var worst float64
	for c := range k {
		var sum float64
		for j := range d {
			diff := next.At(c, j) - prev.At(c, j)
			sum += diff * diff
		}
		if dist := math.Sqrt(sum); dist > worst {
			worst = dist
		}
	}
	return worst
}

// squaredRowDistance is the squared Euclidean distance between row i of x
// and row c of centers.
func squaredRowDistance(x *mat.Dense, i int, centers *mat.Dense, c int) float64 {
	_, d := x.Dims()
	var sum float64
	for j := range d {
		diff := x.At(i, j) - centers.At(c, j)
		sum += diff * diff
	}
	return sum
}
