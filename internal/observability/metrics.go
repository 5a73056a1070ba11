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
			Name: "relay_requests_total",
			Help: "Total relay API requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_request_duration_seconds",
		Help:    "Relay API request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_in_flight",
		Help: "In-flight relay API requests",
	})
	RequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_request_errors_total",
			Help: "Relay API errors by type",
		}, []string{"type"},
	)

	BeaconsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_sent_total",
			Help: "Beacons handed to the collector by mode and method",
		}, []string{"mode", "method"},
	)
	BeaconErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_errors_total",
			Help: "Beacons that could not be delivered, by reason",
		}, []string{"reason"},
	)
	BeaconLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "beacon_send_duration_seconds",
		Help:    "Collector round trip seconds",
		Buckets: prometheus.DefBuckets,
	})
	BeaconsQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_queued",
		Help: "Beacons waiting for the shutdown flush",
	})
	ActiveVisitors = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_visitors",
		Help: "Visitors held in the relay registry",
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, Latency, InFlight, RequestErrors,
		BeaconsTotal, BeaconErrors, BeaconLatency, BeaconsQueued, ActiveVisitors,
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
	})
}
