package navmesh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the manager's Prometheus collectors. A nil *Metrics disables
// collection.
type Metrics struct {
	loadProgress  prometheus.Gauge       // Progress of the running load, -1 when idle
	builds        *prometheus.CounterVec // Finished loads by source and result
	buildDuration prometheus.Histogram   // Wall time of finished loads
	queueLength   prometheus.Gauge       // Path requests waiting to start
	pathfinds     *prometheus.CounterVec // Resolved path requests by domain and result
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		loadProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vnavmesh",
			Name:      "load_progress",
			Help:      "Fraction of tiles built by the running load, -1 when no load is running",
		}),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnavmesh",
			Name:      "builds_total",
			Help:      "Finished navmesh loads",
		}, []string{"source", "result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vnavmesh",
			Name:      "build_duration_seconds",
			Help:      "Time taken to load or build a navmesh",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vnavmesh",
			Name:      "pathfind_queue_length",
			Help:      "Path requests waiting to start",
		}),
		pathfinds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vnavmesh",
			Name:      "pathfind_total",
			Help:      "Resolved path requests",
		}, []string{"domain", "result"}),
	}
	m.loadProgress.Set(-1)
	for _, c := range []prometheus.Collector{m.loadProgress, m.builds, m.buildDuration, m.queueLength, m.pathfinds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) setProgress(p float32) {
	if m == nil {
		return
	}
	m.loadProgress.Set(float64(p))
}

func (m *Metrics) buildFinished(source string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.builds.WithLabelValues(source, result).Inc()
	m.buildDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) setQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

func (m *Metrics) pathfindFinished(domain, result string) {
	if m == nil {
		return
	}
	m.pathfinds.WithLabelValues(domain, result).Inc()
}
