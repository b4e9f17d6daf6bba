package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricSnapshotsApplied   = "locamap_snapshots_applied_total"
	MetricReplicaLocations   = "locamap_replica_locations"
	MetricNoticesTotal       = "locamap_notices_total"
	MetricGeocodeRequests    = "locamap_geocode_requests_total"
	MetricBlobOperations     = "locamap_blob_operations_total"
	MetricClusterRebuildTime = "locamap_cluster_rebuild_seconds"
	MetricSubscribeRetries   = "locamap_subscribe_retries_total"
)

// Geocode outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics contains Prometheus metrics for the sync engine.
// All operations are thread-safe.
type Metrics struct {
	snapshotsApplied prometheus.Counter
	replicaLocations prometheus.Gauge
	notices          *prometheus.CounterVec
	geocodeRequests  *prometheus.CounterVec
	blobOperations   *prometheus.CounterVec
	clusterRebuild   prometheus.Histogram
	subscribeRetries prometheus.Counter
}

// NewMetrics creates the collectors. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		snapshotsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSnapshotsApplied,
			Help: "Total number of replica snapshots applied",
		}),
		replicaLocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricReplicaLocations,
			Help: "Number of locations in the current replica",
		}),
		notices: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricNoticesTotal,
				Help: "Total number of user-visible failure notices by kind",
			},
			[]string{"kind"},
		),
		geocodeRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricGeocodeRequests,
				Help: "Total number of geocoding requests by outcome",
			},
			[]string{"outcome"},
		),
		blobOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBlobOperations,
				Help: "Total number of blob store operations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		clusterRebuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricClusterRebuildTime,
			Help:    "Histogram of marker cluster rebuild time in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		subscribeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSubscribeRetries,
			Help: "Total number of failed subscription attempts after the first in a row",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.snapshotsApplied,
		m.replicaLocations,
		m.notices,
		m.geocodeRequests,
		m.blobOperations,
		m.clusterRebuild,
		m.subscribeRetries,
	}
}

func (m *Metrics) snapshotApplied(locations int) {
	m.snapshotsApplied.Inc()
	m.replicaLocations.Set(float64(locations))
}

func (m *Metrics) incNotice(kind string) {
	m.notices.WithLabelValues(kind).Inc()
}

func (m *Metrics) incGeocode(outcome string) {
	m.geocodeRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) incBlobOp(op, outcome string) {
	m.blobOperations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) observeClusterRebuild(seconds float64) {
	m.clusterRebuild.Observe(seconds)
}

func (m *Metrics) incSubscribeRetry() {
	m.subscribeRetries.Inc()
}
