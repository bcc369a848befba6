// Package projection reduces analysis vectors to a lower-dimensional
// space for clustering. Radio never sees projected vectors; only the
// clustering input passes through here.
package projection

import (
	"log/slog"

	"github.com/danaugrs/go-tsne/tsne"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/AnthonyMichaelTDM/mecomp/internal/conf"
	"github.com/AnthonyMichaelTDM/mecomp/internal/errors"
	"github.com/AnthonyMichaelTDM/mecomp/internal/logging"
)

// Method selects the projection variant.
type Method string

const (
	None Method = conf.ProjectionNone
	PCA  Method = conf.ProjectionPCA
	TSNE Method = conf.ProjectionTSNE
)

const (
	// pcaTargetDims is the output dimensionality of the PCA variant.
	pcaTargetDims = 10
	// tsneTargetDims is the output dimensionality of the t-SNE embedding.
	tsneTargetDims = 2
	// tsnePerplexity balances local against global structure.
	tsnePerplexity = 30
	// tsneLearningRate is the gradient step size.
	tsneLearningRate = 200
	// tsneIterations caps the embedding optimization.
	tsneIterations = 1000
	// tsneExactLimit is the largest input the exact O(n²) embedding
	// accepts directly; larger inputs with more than tsnePreReduceDims
	// columns are PCA-reduced first.
	tsneExactLimit = 5000
	// tsnePreReduceDims is the PCA dimensionality used for that pre-pass.
	tsnePreReduceDims = 50
)

// Projector reduces an n×d matrix to n×d'.
type Projector struct {
	method Method
	logger *slog.Logger
}

// New creates a projector for the given method.
func New(method Method) (*Projector, error) {
	logger := logging.ForService("projection")
	if logger == nil {
		logger = slog.Default()
	}

	switch method {
	case None, PCA, TSNE:
		return &Projector{method: method, logger: logger}, nil
	default:
		return nil, errors.Newf("unknown projection method %q", method).
			Component("projection").
			Category(errors.CategoryValidation).
			Build()
	}
}

// Method returns the configured variant.
func (p *Projector) Method() Method {
	return p.method
}

// FitTransform projects X (n samples × d features) to the target space.
// The None variant returns X unchanged.
func (p *Projector) FitTransform(x *mat.Dense) (*mat.Dense, error) {
	n, d := x.Dims()
	if n == 0 {
		return nil, errors.Newf("projection input is empty").
			Component("projection").
			Category(errors.CategoryValidation).
			Build()
	}

	switch p.method {
	case None:
		return x, nil
	case PCA:
		dims := pcaTargetDims
		if dims > d {
			dims = d
		}
		return p.pca(x, dims)
	case TSNE:
		return p.tsne(x)
	}

	return nil, errors.Newf("unknown projection method %q", p.method).
		Component("projection").
		Build()
}

// pca centers the columns and projects onto the leading principal
// components.
func (p *Projector) pca(x *mat.Dense, dims int) (*mat.Dense, error) {
	n, d := x.Dims()
	if n < 2 {
		// a single sample has no principal directions; pass it through
		return x, nil
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, errors.Newf("principal component decomposition failed").
			Component("projection").
			Category(errors.CategoryProjection).
			Build()
	}

	var vectors mat.Dense
	pc.VectorsTo(&vectors)
	// at most min(n, d) components exist
	if _, c := vectors.Dims(); dims > c {
		dims = c
	}

	// column means for centering
	means := make([]float64, d)
	for j := range d {
		col := mat.Col(nil, j, x)
		var sum float64
		for _, v := range col {
			sum += v
		}
		means[j] = sum / float64(n)
	}

	centered := mat.NewDense(n, d, nil)
	for i := range n {
		for j := range d {
			centered.Set(i, j, x.At(i, j)-means[j])
		}
	}

	projected := mat.NewDense(n, dims, nil)
	projected.Mul(centered, vectors.Slice(0, d, 0, dims))

	p.logger.Debug("pca projection", "samples", n, "input_dims", d, "output_dims", dims)
	return projected, nil
}

// tsne embeds the data in tsneTargetDims dimensions. Inputs larger than
// tsneExactLimit that have more than tsnePreReduceDims columns are
// PCA-reduced first; narrower inputs are embedded exactly at any size.
func (p *Projector) tsne(x *mat.Dense) (*mat.Dense, error) {
	n, d := x.Dims()

	input := x
	if n > tsneExactLimit && d > tsnePreReduceDims {
		reduced, err := p.pca(x, tsnePreReduceDims)
		if err != nil {
			return nil, err
		}
		input = reduced
		p.logger.Info("large t-sne input pre-reduced with pca",
			"samples", n, "dims", tsnePreReduceDims)
	}

	t := tsne.NewTSNE(tsneTargetDims, tsnePerplexity, tsneLearningRate, tsneIterations, false)
	embedded := t.EmbedData(input, nil)

	out := mat.DenseCopyOf(embedded)
	rows, cols := out.Dims()
	if rows != n || cols != tsneTargetDims {
		return nil, errors.Newf("t-sne produced %dx%d embedding, want %dx%d",
			rows, cols, n, tsneTargetDims).
			Component("projection").
			Category(errors.CategoryProjection).
			Build()
	}

	p.logger.Debug("t-sne projection", "samples", n, "output_dims", tsneTargetDims)
	return out, nil
}
