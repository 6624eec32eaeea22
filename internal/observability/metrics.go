package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "transit_fraud", Name: "swipe_checks_total", Help: "Swipe feasibility checks by status"},
		[]string{"status"},
	)
	CheckLatency  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "transit_fraud", Name: "swipe_check_latency_seconds", Help: "Swipe check latency seconds"})
	SuspectsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "transit_fraud", Name: "cards_flagged_total", Help: "Cards newly flagged as suspect"})
	RingNodes     = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "transit_fraud",
		Name:      "ring_nodes",
		Help:      "Nodes in linked identity rings",
		Buckets:   []float64{0, 1, 3, 5, 10, 25, 50, 100},
	})

	SolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "transit_fraud", Name: "route_solve_seconds", Help: "Feasibility table rebuild duration"})
	TableRoutes   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "transit_fraud", Name: "feasibility_routes", Help: "Routes in the feasibility table"})

	NotifyErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "transit_fraud", Name: "anomaly_notify_errors_total", Help: "Failed anomaly notifications"},
		[]string{"notifier"},
	)
	AlertSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "transit_fraud", Name: "alert_sessions", Help: "Connected alert websocket sessions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "transit_fraud", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "transit_fraud",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
