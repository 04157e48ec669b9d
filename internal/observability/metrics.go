package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "campaign_http_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campaign_http_in_flight",
		Help: "In-flight HTTP requests",
	})
	RequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_request_errors_total",
			Help: "Total errors by type",
		}, []string{"type"},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_events_total",
			Help: "Events evaluated, by action kind",
		}, []string{"action"},
	)
	EffectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_effects_total",
			Help: "Effects emitted, by kind",
		}, []string{"kind"},
	)
	EvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "campaign_evaluation_duration_seconds",
		Help:    "Time spent evaluating one event, retries included",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	})
	CounterContention = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campaign_counter_contention_total",
		Help: "Counter updates that hit contention and were retried or failed",
	})
	JourneyTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journey_transitions_total",
			Help: "Journey advance requests, by outcome",
		}, []string{"outcome"},
	)
	CatalogReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_catalog_reloads_total",
			Help: "Catalog reloads, by result",
		}, []string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, Latency, InFlight, RequestErrors,
		EventsTotal, EffectsTotal, EvaluationDuration, CounterContention,
		JourneyTransitions, CatalogReloads,
	)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
		if rr.code >= http.StatusInternalServerError {
			RequestErrors.WithLabelValues("server").Inc()
		} else if rr.code >= http.StatusBadRequest {
			RequestErrors.WithLabelValues("client").Inc()
		}
	})
}
