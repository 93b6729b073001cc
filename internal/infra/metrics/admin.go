package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminAuthTotal, httpRequestsTotal, httpLatencyMs) }

var (
	adminAuthTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_auth_total",
			Help: "Tracks attempts to use admin endpoints.",
		},
		[]string{"action", "status"}, // status: 'authorized', 'unauthorized'
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_latency_ms",
			Help:    "HTTP request latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
		[]string{"route"},
	)
)

func IncAdminAuth(action, status string) {
	adminAuthTotal.WithLabelValues(norm(action), norm(status)).Inc()
}

func ObserveHTTP(method, route string, code int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpLatencyMs.WithLabelValues(route).Observe(float64(d.Milliseconds()))
}
