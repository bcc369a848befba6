// conf/validate.go settings validation
package conf

import (
	"fmt"
	"slices"
)

// Reclustering algorithm names accepted in configuration.
const (
	AlgorithmKMeans = "kmeans"
	AlgorithmGMM    = "gmm"
)

// Projection method names accepted in configuration.
const (
	ProjectionNone = "none"
	ProjectionPCA  = "pca"
	ProjectionTSNE = "tsne"
)

// ValidateSettings checks configured values against their allowed ranges.
func ValidateSettings(settings *Settings) error {
	var errs []string

	if err := validateReclusterSettings(settings); err != nil {
		errs = append(errs, err.Error())
	}

	if settings.Analysis.Threads < 0 {
		errs = append(errs, "analysis.threads must be >= 0")
	}

	if settings.Index.RebuildThreshold <= 0 || settings.Index.RebuildThreshold > 1 {
		errs = append(errs, "index.rebuildthreshold must be in (0, 1]")
	}

	if settings.Radio.SeedCacheTTL < 0 {
		errs = append(errs, "radio.seedcachettl must be >= 0")
	}

	if settings.Observability.MetricsPort < 0 || settings.Observability.MetricsPort > 65535 {
		errs = append(errs, "observability.metricsport must be in [0, 65535]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs)
	}

	return nil
}

// validateReclusterSettings enforces the enumerated reclustering configuration.
func validateReclusterSettings(settings *Settings) error {
	var errs []string

	if !slices.Contains([]string{AlgorithmKMeans, AlgorithmGMM}, settings.Recluster.Algorithm) {
		errs = append(errs, fmt.Sprintf("recluster.algorithm must be %q or %q, got %q",
			AlgorithmKMeans, AlgorithmGMM, settings.Recluster.Algorithm))
	}

	if !slices.Contains([]string{ProjectionNone, ProjectionPCA, ProjectionTSNE}, settings.Recluster.ProjectionMethod) {
		errs = append(errs, fmt.Sprintf("recluster.projectionmethod must be one of none, pca, tsne, got %q",
			settings.Recluster.ProjectionMethod))
	}

	if settings.Recluster.MaxClusters < 2 {
		errs = append(errs, "recluster.maxclusters must be >= 2")
	}

	if settings.Recluster.GapStatisticReferenceDatasets < 1 {
		errs = append(errs, "recluster.gapstatisticreferencedatasets must be >= 1")
	}

	if settings.Recluster.MaxIterations < 30 {
		errs = append(errs, "recluster.maxiterations must be >= 30")
	}

	if len(errs) > 0 {
		return fmt.Errorf("recluster: %v", errs)
	}

	return nil
}
