// Package metrics defines the Prometheus metric collectors used across the
// synchronizer and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the synchronizer. Every
// recording method is safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	APIRequestsTotal       *prometheus.CounterVec
	APIRequestDuration     *prometheus.HistogramVec
	ResolverFallbacksTotal *prometheus.CounterVec
	ItemsProcessedTotal    *prometheus.CounterVec
	RecordsWrittenTotal    *prometheus.CounterVec
	ChildrenReplacedTotal  *prometheus.CounterVec
	ReferenceLookupsTotal  *prometheus.CounterVec
	EventsPublishedTotal   *prometheus.CounterVec
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all collectors and registers them on a registry owned by the
// returned Metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openleg_api_requests_total",
				Help: "Total OpenLeg API requests by endpoint and HTTP status.",
			},
			[]string{"endpoint", "status"},
		),
		APIRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "openleg_api_request_duration_seconds",
				Help:    "OpenLeg API request latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		ResolverFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "openleg_response_resolutions_total",
				Help: "Response type resolutions by the step of the fallback chain that matched.",
			},
			[]string{"step"},
		),
		ItemsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_items_processed_total",
				Help: "External items processed by processor and result (success, failure).",
			},
			[]string{"processor", "result"},
		),
		RecordsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_records_written_total",
				Help: "Records saved to the document store by kind.",
			},
			[]string{"kind"},
		),
		ChildrenReplacedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_child_collections_replaced_total",
				Help: "Child record collections replaced by collection name.",
			},
			[]string{"collection"},
		),
		ReferenceLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_reference_lookups_total",
				Help: "Reference lookups by table and result (found, missing, cached, error).",
			},
			[]string{"table", "result"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_events_published_total",
				Help: "Record-imported events published by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.APIRequestsTotal,
		m.APIRequestDuration,
		m.ResolverFallbacksTotal,
		m.ItemsProcessedTotal,
		m.RecordsWrittenTotal,
		m.ChildrenReplacedTotal,
		m.ReferenceLookupsTotal,
		m.EventsPublishedTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPIRequest(endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.APIRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) ResolverStep(step string) {
	if m == nil {
		return
	}
	m.ResolverFallbacksTotal.WithLabelValues(step).Inc()
}

func (m *Metrics) ItemProcessed(processor string, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.ItemsProcessedTotal.WithLabelValues(processor, result).Inc()
}

func (m *Metrics) RecordWritten(kind string) {
	if m == nil {
		return
	}
	m.RecordsWrittenTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ChildrenReplaced(collection string) {
	if m == nil {
		return
	}
	m.ChildrenReplacedTotal.WithLabelValues(collection).Inc()
}

func (m *Metrics) ReferenceLookup(table, result string) {
	if m == nil {
		return
	}
	m.ReferenceLookupsTotal.WithLabelValues(table, result).Inc()
}

func (m *Metrics) EventPublished(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.EventsPublishedTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetCircuitState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
