package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Episode sizing buckets: most closed episodes are a handful of fragments
	// spanning well under a minute of speech.
	fragmentBuckets = []float64{1, 2, 3, 5, 8, 13, 21, 34}
	durationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600}

	FragmentsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "stillpoint_fragments_total",
			Help: "Transcript fragments accepted into session buffers",
		},
		[]string{"transport"},
	)

	SessionsActive = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "stillpoint_sessions_active",
			Help: "Session records currently held by the manager",
		},
	)

	EvaluationsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "stillpoint_evaluations_total",
			Help: "Episode evaluations by verdict",
		},
		[]string{"verdict"}, // positive, negative, error
	)

	NudgesTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "stillpoint_nudges_total",
			Help: "Nudge dispatch attempts by outcome",
		},
		[]string{"outcome"}, // delivered, throttled, failed
	)

	StaleTimerFiresTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "stillpoint_stale_timer_fires_total",
			Help: "Silence timer fires superseded by a later re-arm",
		},
	)

	SessionsReapedTotal = promauto.With(registerer).NewCounter(
		prometheus.CounterOpts{
			Name: "stillpoint_sessions_reaped_total",
			Help: "Idle session records removed by the background sweep",
		},
	)

	HTTPRequestsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "stillpoint_http_requests_total",
			Help: "Ingest HTTP requests by method and status class",
		},
		[]string{"method", "status_class"},
	)

	EpisodeFragments = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stillpoint_episode_fragments",
			Help:    "Fragments per closed episode",
			Buckets: fragmentBuckets,
		},
	)

	EpisodeDurationSeconds = promauto.With(registerer).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stillpoint_episode_duration_seconds",
			Help:    "Speech span of closed episodes in seconds",
			Buckets: durationBuckets,
		},
	)
)

func Initialize() {
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
}
