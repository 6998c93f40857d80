package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "transport_marketplace", Name: "requests_created_total", Help: "Transport requests created"})
	OffersSubmitted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "transport_marketplace", Name: "offers_submitted_total", Help: "Carrier offers submitted"})
	OffersAccepted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "transport_marketplace", Name: "offers_accepted_total", Help: "Offers accepted through a confirmed reservation"})

	ReservationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "transport_marketplace", Name: "reservation_actions_total", Help: "Reservation wizard actions by outcome"},
		[]string{"action", "result"},
	)
	BrowseResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "transport_marketplace",
		Name:      "browse_results",
		Help:      "Number of requests returned per browse query",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})
	LookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "transport_marketplace", Name: "external_lookup_failures_total", Help: "Failed place or route lookups"},
		[]string{"service"},
	)
	WSWatchers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "transport_marketplace", Name: "ws_watchers", Help: "Open websocket sessions watching requests"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "transport_marketplace", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "transport_marketplace",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
