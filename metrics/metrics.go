package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loo",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "loo",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Result cache metrics
	CacheDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loo",
		Subsystem: "cache",
		Name:      "decisions_total",
		Help:      "Location updates evaluated by the result cache, by decision",
	}, []string{"decision"})

	CacheFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loo",
		Subsystem: "cache",
		Name:      "fetches_total",
		Help:      "Completed radius-search fetches, by outcome",
	}, []string{"outcome"})

	InvalidPointsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loo",
		Subsystem: "geo",
		Name:      "invalid_points_dropped_total",
		Help:      "Points rejected for out-of-range coordinates",
	}, []string{"stage"})

	// Clustering metrics
	ClusterDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "loo",
		Subsystem: "cluster",
		Name:      "compute_duration_seconds",
		Help:      "Time spent grouping points into clusters",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	})

	ClustersProduced = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "loo",
		Subsystem: "cluster",
		Name:      "clusters_per_run",
		Help:      "Number of clusters returned per clustering run",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics, labelled by the matched route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
