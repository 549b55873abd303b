// Package metrics exposes Prometheus counters/gauges for the responder,
// grounded in the teacher's cmd/snmpsim-api/metrics.go shape (one
// CounterVec/GaugeVec per concern, a package-level Init to register them
// all, small Record* helpers to keep instrumentation calls terse at the
// call site).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snmprecsim_requests_total",
			Help: "Total SNMP requests processed, by PDU type and outcome.",
		},
		[]string{"pdu_type", "outcome"},
	)

	requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snmprecsim_request_latency_seconds",
			Help:    "Time spent answering one SNMP request, by PDU type.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pdu_type"},
	)

	handleCacheOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snmprecsim_handle_cache_open_stores",
			Help: "Number of record stores currently holding live file handles.",
		},
	)

	handleCacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snmprecsim_handle_cache_evictions_total",
			Help: "Total number of record stores evicted from the handle cache.",
		},
	)

	indexRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snmprecsim_index_rebuilds_total",
			Help: "Total number of record-file index rebuilds, by reason.",
		},
		[]string{"reason"},
	)

	variationDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snmprecsim_variation_drops_total",
			Help: "Total requests dropped by a variation module's NoDataNotification.",
		},
		[]string{"module"},
	)
)

// Init registers every collector with the default Prometheus registry. It
// must be called exactly once at process startup.
func Init() {
	prometheus.MustRegister(
		requestsTotal,
		requestLatency,
		handleCacheOpen,
		handleCacheEvictions,
		indexRebuilds,
		variationDrops,
	)
}

// RecordRequest records one completed request's PDU type and outcome
// ("ok", "dropped", "error").
func RecordRequest(pduType, outcome string) {
	requestsTotal.WithLabelValues(pduType, outcome).Inc()
}

// ObserveLatency records how long one request of the given PDU type took.
func ObserveLatency(pduType string, seconds float64) {
	requestLatency.WithLabelValues(pduType).Observe(seconds)
}

// SetHandleCacheOpen reports the handle cache's current occupancy.
func SetHandleCacheOpen(n int) {
	handleCacheOpen.Set(float64(n))
}

// RecordHandleCacheEviction records one LRU eviction.
func RecordHandleCacheEviction() {
	handleCacheEvictions.Inc()
}

// RecordIndexRebuild records one index rebuild, tagged with why it
// happened ("missing", "stale", "forced", "validate-mismatch").
func RecordIndexRebuild(reason string) {
	indexRebuilds.WithLabelValues(reason).Inc()
}

// RecordVariationDrop records one NoDataNotification raised by alias.
func RecordVariationDrop(alias string) {
	variationDrops.WithLabelValues(alias).Inc()
}
