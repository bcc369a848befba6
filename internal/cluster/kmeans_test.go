package cluster

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// twoGaussians builds n samples in d dimensions drawn from two clearly
// separated Gaussian clusters, returning data and ground-truth labels.
func twoGaussians(n, d int, seed int64) (*mat.Dense, []int) {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic fixture
	x := mat.NewDense(n, d, nil)
	truth := make([]int, n)
	for i := range n {
		cluster := i % 2
		truth[i] = cluster
		offset := float64(cluster) * 10
		for j := range d {
			x.Set(i, j, offset+rng.NormFloat64()*0.5)
		}
	}
	return x, truth
}

// adjustedRandIndex compares two labelings; 1.0 means identical partitions.
func adjustedRandIndex(a, b []int) float64 {
	n := len(a)
	maxA, maxB := 0, 0
	for i := range n {
		if a[i] > maxA {
			maxA = a[i]
		}
		if b[i] > maxB {
			maxB = b[i]
		}
	}

	contingency := make([][]int, maxA+1)
	for i := range contingency {
		contingency[i] = make([]int, maxB+1)
	}
	rowSums := make([]int, maxA+1)
	colSums := make([]int, maxB+1)
	for i := range n {
		contingency[a[i]][b[i]]++
		rowSums[a[i]]++
		colSums[b[i]]++
	}

	choose2 := func(m int) float64 { return float64(m) * float64(m-1) / 2 }

	var sumIJ, sumA, sumB float64
	for i := range contingency {
		for j := range contingency[i] {
			sumIJ += choose2(contingency[i][j])
		}
	}
	for _, s := range rowSums {
		sumA += choose2(s)
	}
	for _, s := range colSums {
		sumB += choose2(s)
	}

	expected := sumA * sumB / choose2(n)
	maxIndex := (sumA + sumB) / 2
	if maxIndex == expected {
		return 1
	}
	return (sumIJ - expected) / (maxIndex - expected)
}

func TestKMeansSeparatesTwoClusters(t *testing.T) {
	t.Parallel()

	x, truth := twoGaussians(200, 20, 1)
	labels, centers, err := NewKMeans(120, 42).FitPredict(x, 2)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, adjustedRandIndex(truth, labels), 1e-12)

	rows, cols := centers.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 20, cols)
}

func TestKMeansDeterministicUnderSeed(t *testing.T) {
	t.Parallel()

	x, _ := twoGaussians(120, 20, 2)

	l1, c1, err := NewKMeans(120, 7).FitPredict(x, 3)
	require.NoError(t, err)
	l2, c2, err := NewKMeans(120, 7).FitPredict(x, 3)
	require.NoError(t, err)

	assert.Equal(t, l1, l2)
	assert.True(t, mat.EqualApprox(c1, c2, 0))
}

func TestKMeansKEqualsN(t *testing.T) {
	t.Parallel()

	x, _ := twoGaussians(8, 4, 3)
	labels, _, err := NewKMeans(120, 1).FitPredict(x, 8)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, l := range labels {
		seen[l] = true
	}
	assert.Len(t, seen, 8, "with k = n every sample gets its own cluster")
}

func TestKMeansRejectsBadK(t *testing.T) {
	t.Parallel()

	x, _ := twoGaussians(10, 4, 4)

	_, _, err := NewKMeans(120, 1).FitPredict(x, 0)
	assert.Error(t, err)
	_, _, err = NewKMeans(120, 1).FitPredict(x, 11)
	assert.Error(t, err)
}

func TestGMMSeparatesTwoClusters(t *testing.T) {
	t.Parallel()

	x, truth := twoGaussians(200, 20, 5)
	labels, means, err := NewGMM(120, 42).FitPredict(x, 2)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, adjustedRandIndex(truth, labels), 1e-12)

	rows, cols := means.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 20, cols)
}

func TestGMMDeterministicUnderSeed(t *testing.T) {
	t.Parallel()

	x, _ := twoGaussians(100, 10, 6)

	l1, _, err := NewGMM(120, 9).FitPredict(x, 2)
	require.NoError(t, err)
	l2, _, err := NewGMM(120, 9).FitPredict(x, 2)
	require.NoError(t, err)
	assert.Equal(t, l1, l2)
}

func TestFactorySelectsAlgorithm(t *testing.T) {
	t.Parallel()

	kmeansFactory, err := NewFactory("kmeans", 120)
	require.NoError(t, err)
	_, ok := kmeansFactory(1).(*KMeans)
	assert.True(t, ok)

	gmmFactory, err := NewFactory("gmm", 120)
	require.NoError(t, err)
	_, ok = gmmFactory(1).(*GMM)
	assert.True(t, ok)

	_, err = NewFactory("dbscan", 120)
	assert.Error(t, err)
}
