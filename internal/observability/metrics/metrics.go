// Package metrics provides prometheus collectors for the mecomp pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics tracks the batch analysis pipeline.
type AnalysisMetrics struct {
	AnalysisDuration *prometheus.HistogramVec
	AnalysisOutcomes *prometheus.CounterVec
	BuffersInUse     prometheus.Gauge
	TasksInFlight    prometheus.Gauge
}

// IndexMetrics tracks the metric-tree index.
type IndexMetrics struct {
	KNNDuration prometheus.Histogram
	KNNQueries  prometheus.Counter
	IndexSize   prometheus.Gauge
	Rebuilds    prometheus.Counter
}

// ReclusterMetrics tracks the recluster orchestrator.
type ReclusterMetrics struct {
	PhaseDuration *prometheus.HistogramVec
	ChosenK       prometheus.Gauge
	Runs          *prometheus.CounterVec
}

// Metrics aggregates all collector groups on one registry.
type Metrics struct {
	Analysis  *AnalysisMetrics
	Index     *IndexMetrics
	Recluster *ReclusterMetrics

	registry *prometheus.Registry
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Analysis: &AnalysisMetrics{
			AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "mecomp_analysis_duration_seconds",
				Help:    "Time spent analyzing a single song",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			}, []string{"status"}),
			AnalysisOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mecomp_analysis_outcomes_total",
				Help: "Per-song analysis outcomes by status",
			}, []string{"status"}),
			BuffersInUse: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "mecomp_analysis_buffers_in_use",
				Help: "Extractor scratch buffers currently acquired",
			}),
			TasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "mecomp_analysis_tasks_in_flight",
				Help: "Analysis tasks currently executing",
			}),
		},
		Index: &IndexMetrics{
			KNNDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "mecomp_index_knn_duration_seconds",
				Help:    "Time spent answering a knn query",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			}),
			KNNQueries: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "mecomp_index_knn_queries_total",
				Help: "Total knn queries answered",
			}),
			IndexSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "mecomp_index_entries",
				Help: "Vectors currently stored in the metric index",
			}),
			Rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "mecomp_index_rebuilds_total",
				Help: "Full index rebuilds performed",
			}),
		},
		Recluster: &ReclusterMetrics{
			PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "mecomp_recluster_phase_duration_seconds",
				Help:    "Duration of each recluster phase",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			}, []string{"phase"}),
			ChosenK: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "mecomp_recluster_chosen_k",
				Help: "Cluster count selected by the last successful recluster",
			}),
			Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "mecomp_recluster_runs_total",
				Help: "Recluster runs by result",
			}, []string{"result"}),
		},
		registry: registry,
	}

	collectors := []prometheus.Collector{
		m.Analysis.AnalysisDuration,
		m.Analysis.AnalysisOutcomes,
		m.Analysis.BuffersInUse,
		m.Analysis.TasksInFlight,
		m.Index.KNNDuration,
		m.Index.KNNQueries,
		m.Index.IndexSize,
		m.Index.Rebuilds,
		m.Recluster.PhaseDuration,
		m.Recluster.ChosenK,
		m.Recluster.Runs,
	}

	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry exposes the underlying registry for scrape handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
