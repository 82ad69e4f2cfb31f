// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CatalogRequestsTotal counts catalog gateway calls by operation and outcome (hit, ok, error).
	CatalogRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinemarathon_catalog_requests_total",
		Help: "Catalog gateway requests, by operation and outcome.",
	}, []string{"op", "outcome"})

	// HTTPRequestsTotal counts served requests by route template and status class.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinemarathon_http_requests_total",
		Help: "HTTP requests served, by route and status code.",
	}, []string{"route", "method", "code"})

	// HTTPRequestDuration observes request latency by route template.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cinemarathon_http_request_duration_seconds",
		Help:    "HTTP request latency, by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// MarathonOpsTotal counts saved-marathon store operations by op and outcome.
	MarathonOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cinemarathon_marathon_ops_total",
		Help: "Saved marathon operations, by operation and outcome.",
	}, []string{"op", "outcome"})

	// EventSubscribers tracks open websocket connections.
	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cinemarathon_event_subscribers",
		Help: "Open marathon event websocket connections.",
	})
)

// Outcome maps an error to the outcome label used by the counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type codeRecorder struct {
	http.ResponseWriter
	code int
}

func (r *codeRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *codeRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware records request counts and latency labelled with the mux route template.
// Websocket routes should be registered outside of it since hijacked writers are not tracked.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		start := time.Now()
		rec := &codeRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.code)).Inc()
		HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
