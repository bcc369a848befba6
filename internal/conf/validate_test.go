package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Analysis.Threads = 0
	s.Index.RebuildThreshold = 0.1
	s.Radio.SeedCacheTTL = 300
	s.Recluster.Algorithm = AlgorithmKMeans
	s.Recluster.ProjectionMethod = ProjectionNone
	s.Recluster.MaxClusters = 24
	s.Recluster.GapStatisticReferenceDatasets = 50
	s.Recluster.MaxIterations = 120
	return s
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateReclusterBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"bad algorithm", func(s *Settings) { s.Recluster.Algorithm = "dbscan" }},
		{"bad projection", func(s *Settings) { s.Recluster.ProjectionMethod = "umap" }},
		{"max clusters too small", func(s *Settings) { s.Recluster.MaxClusters = 1 }},
		{"no reference datasets", func(s *Settings) { s.Recluster.GapStatisticReferenceDatasets = 0 }},
		{"iteration cap too small", func(s *Settings) { s.Recluster.MaxIterations = 29 }},
		{"negative threads", func(s *Settings) { s.Analysis.Threads = -1 }},
		{"rebuild threshold out of range", func(s *Settings) { s.Index.RebuildThreshold = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}

// The embedded default config must parse and satisfy validation so a fresh
// install starts without manual edits.
func TestEmbeddedDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	raw, err := configFiles.ReadFile("config.yaml")
	require.NoError(t, err)

	var doc struct {
		Recluster struct {
			Algorithm                     string `yaml:"algorithm"`
			ProjectionMethod              string `yaml:"projectionmethod"`
			MaxClusters                   int    `yaml:"maxclusters"`
			GapStatisticReferenceDatasets int    `yaml:"gapstatisticreferencedatasets"`
			MaxIterations                 int    `yaml:"maxiterations"`
		} `yaml:"recluster"`
	}
	require.NoError(t, yaml.Unmarshal(raw, &doc))

	s := validSettings()
	s.Recluster.Algorithm = doc.Recluster.Algorithm
	s.Recluster.ProjectionMethod = doc.Recluster.ProjectionMethod
	s.Recluster.MaxClusters = doc.Recluster.MaxClusters
	s.Recluster.GapStatisticReferenceDatasets = doc.Recluster.GapStatisticReferenceDatasets
	s.Recluster.MaxIterations = doc.Recluster.MaxIterations
	assert.NoError(t, ValidateSettings(s))
}
