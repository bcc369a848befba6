package cluster

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
)

const (
	// gmmTolerance is the log-likelihood improvement below which EM is
	// converged.
	gmmTolerance = 1e-6
	// varianceFloor keeps diagonal covariances away from zero on
	// degenerate clusters.
	varianceFloor = 1e-6
)

// GMM fits a diagonal-covariance Gaussian mixture with EM, initialized
// from a K-Means partition, and assigns samples by posterior argmax.
type GMM struct {
	maxIterations int
	seed          int64
}

// NewGMM creates a GMM clusterer with a seedable RNG (forwarded to the
// K-Means initialization).
func NewGMM(maxIterations int, seed int64) *GMM {
	return &GMM{maxIterations: maxIterations, seed: seed}
}

// FitPredict clusters x into k components.
func (g *GMM) FitPredict(x *mat.Dense, k int) ([]int, *mat.Dense, error) {
	n, d := x.Dims()
	if k < 1 || k > n {
		return nil, nil, errors.Newf("k must be in [1, %d], got %d", n, k).
			Component("cluster").
			Category(errors.CategoryValidation).
			Build()
	}

	labels, means, err := NewKMeans(g.maxIterations, g.seed).FitPredict(x, k)
	if err != nil {
		return nil, nil, err
	}

	weights := make([]float64, k)
	variances := mat.NewDense(k, d, nil)
	initFromPartition(x, labels, means, weights, variances)

	logResp := mat.NewDense(n, k, nil)
	prevLL := math.Inf(-1)

	for iter := 0; iter < g.maxIterations; iter++ {
		ll := expectation(x, means, variances, weights, logResp)
		maximization(x, logResp, means, variances, weights)

		if ll-prevLL < gmmTolerance && iter > 0 {
			break
		}
		prevLL = ll
	}

	expectation(x, means, variances, weights, logResp)
	for i := range n {
		best, bestVal := 0, math.Inf(-1)
		for c := range k {
			if v := logResp.At(i, c); v > bestVal {
				best, bestVal = c, v
			}
		}
		labels[i] = best
	}

	return labels, means, nil
}

// initFromPartition derives weights and per-dimension variances from the
// K-Means labeling.
func initFromPartition(x *mat.Dense, labels []int, means *mat.Dense, weights []float64, variances *mat.Dense) {
	n, d := x.Dims()
	k := len(weights)
	counts := make([]int, k)

	for _, c := range labels {
		counts[c]++
	}
	for c := range k {
		weights[c] = float64(counts[c]) / float64(n)
	}

	for i := range n {
		c := labels[i]
		for j := range d {
			diff := x.At(i, j) - means.At(c, j)
			variances.Set(c, j, variances.At(c, j)+diff*diff)
		}
	}
	for c := range k {
		div := float64(counts[c])
		if div < 1 {
			div = 1
		}
		for j := range d {
			v := variances.At(c, j)/div + varianceFloor
			variances.Set(c, j, v)
		}
	}
}

// expectation fills logResp with log posteriors and returns the total
// log-likelihood.
func expectation(x, means, variances *mat.Dense, weights []float64, logResp *mat.Dense) float64 {
	n, _ := x.Dims()
	k := len(weights)

	var total float64
	logWeights := make([]float64, k)
	for c := range k {
		w := weights[c]
		if w < varianceFloor {
			w = varianceFloor
		}
		logWeights[c] = math.Log(w)
	}

	joint := make([]float64, k)
	for i := range n {
		for c := range k {
			joint[c] = logWeights[c] + logGaussianDiag(x, i, means, variances, c)
		}
		norm := logSumExp(joint)
		total += norm
		for c := range k {
			logResp.Set(i, c, joint[c]-norm)
		}
	}

	return total
}

// maximization updates weights, means and variances from the posteriors.
func maximization(x, logResp, means, variances *mat.Dense, weights []float64) {
	n, d := x.Dims()
	k := len(weights)

	for c := range k {
		var nk float64
		for i := range n {
			nk += math.Exp(logResp.At(i, c))
		}
		if nk < varianceFloor {
			nk = varianceFloor
		}
		weights[c] = nk / float64(n)

		for j := range d {
			var sum float64
			for i := range n {
				sum += math.Exp(logResp.At(i, c)) * x.At(i, j)
			}
			means.Set(c, j, sum/nk)
		}

		for j := range d {
			var sum float64
			mu := means.At(c, j)
			for i := range n {
				diff := x.At(i, j) - mu
				sum += math.Exp(logResp.At(i, c)) * diff * diff
			}
			variances.Set(c, j, sum/nk+varianceFloor)
		}
	}
}

// logGaussianDiag is the log density of row i under the diagonal Gaussian c.
func logGaussianDiag(x *mat.Dense, i int, means, variances *mat.Dense, c int) float64 {
	_, d := x.Dims()
	sum := -0.5 * float64(d) * math.Log(2*math.Pi)
	for j := range d {
		v := variances.At(c, j)
		diff := x.At(i, j) - means.At(c, j)
		sum += -0.5 * (math.Log(v) + diff*diff/v)
	}
	return sum
}

// logSumExp computes log(sum(exp(xs))) without overflow.
func logSumExp(xs []float64) float64 {
	maxv := math.Inf(-1)
	for _, v := range xs {
		if v > maxv {
			maxv = v
		}
	}
	if math.IsInf(maxv, -1) {
		return maxv
	}
	var sum float64
	for _, v := range xs {
		sum += math.Exp(v - maxv)
	}
	return maxv + math.Log(sum)
}
