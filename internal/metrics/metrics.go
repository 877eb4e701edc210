package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for Skein
type Metrics struct {
	// Planning pipeline metrics
	StageDuration    *prometheus.HistogramVec
	StageErrors      *prometheus.CounterVec
	SubtasksEnqueued prometheus.Counter

	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	// Experience metrics
	ExperiencesLogged  *prometheus.CounterVec
	ExperiencesDropped prometheus.Counter
	ExperiencesPruned  prometheus.Counter

	// Learning loop metrics
	AnalysisBatches  prometheus.Counter
	AnalysisBacklog  prometheus.Gauge
	InsightsCreated  *prometheus.CounterVec
	InsightsUpdated  *prometheus.CounterVec
	InsightsByStatus *prometheus.GaugeVec

	// Repository analyzer metrics
	ReposAnalyzed *prometheus.CounterVec
	FilesAnalyzed prometheus.Counter
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "skein_stage_duration_seconds",
					Help:    "Duration of planning pipeline stages in seconds",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to 256s
				},
				[]string{"stage"},
			),
			StageErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skein_stage_errors_total",
					Help: "Total planning stage failures",
				},
				[]string{"stage", "kind"},
			),
			SubtasksEnqueued: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "skein_subtasks_enqueued_total",
					Help: "Total sub-tasks placed on the task queue",
				},
			),
			ProviderRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skein_provider_requests_total",
					Help: "Total LLM provider requests",
				},
				[]string{"model"},
			),
			ProviderErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skein_provider_errors_total",
					Help: "Total LLM provider request failures",
				},
				[]string{"model"},
			),
			ProviderLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "skein_provider_latency_seconds",
					Help:    "LLM provider request latency in seconds",
					Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
				},
				[]string{"model"},
			),
			ExperiencesLogged: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skein_experiences_logged_total",
					Help: "Total experience records written to the store",
				},
				[]string{"type", "status"},
			),
			ExperiencesDropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "skein_experiences_dropped_total",
					Help: "Experience records dropped because the recorder buffer was full",
				},
			),
			ExperiencesPruned: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "skein_experiences_pruned_total",
					Help: "Experience records removed by retention pruning",
				},
			),
			AnalysisBatches: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "skein_analysis_batches_total",
					Help: "Total analysis batches processed by the insight engine",
				},
			),
			AnalysisBacklog: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "skein_analysis_backlog",
					Help: "Experience ids waiting on the analysis queue",
				},
			),
			InsightsCreated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skein_insights_created_total",
					Help: "Total insights created",
				},
				[]string{"type"},
			),
			InsightsUpdated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skein_insights_updated_total",
					Help: "Total insight pattern updates",
				},
				[]string{"type"},
			),
			InsightsByStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "skein_insights_by_status",
					Help: "Insights currently in each lifecycle status",
				},
				[]string{"status"},
			),
			ReposAnalyzed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "skein_repos_analyzed_total",
					Help: "Total repository analyses, labelled by outcome",
				},
				[]string{"result"},
			),
			FilesAnalyzed: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "skein_files_analyzed_total",
					Help: "Total files sent through per-file analysis",
				},
			),
		}
	})
	return sharedMetrics
}
