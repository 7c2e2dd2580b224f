package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomcast_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Gateway metrics
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roomcast_connections_active",
			Help: "Open chat connections",
		},
		[]string{"transport"},
	)

	DeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_deliveries_dropped_total",
			Help: "Outbound events dropped because the connection was closed or its queue was full",
		},
	)

	FramesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_frames_rejected_total",
			Help: "Inbound frames that could not be decoded",
		},
		[]string{"transport"},
	)

	// Engine metrics
	Joins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_joins_total",
			Help: "Accepted room joins",
		},
	)

	Leaves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_leaves_total",
			Help: "Room departures, explicit or on disconnect",
		},
	)

	MessagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_messages_stored_total",
			Help: "Chat messages persisted and broadcast",
		},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_validation_failures_total",
			Help: "Rejected inbound events",
		},
		[]string{"event"},
	)

	StorageFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_storage_failures_total",
			Help: "Chat messages dropped because the store failed",
		},
	)

	StoreLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roomcast_store_append_seconds",
			Help:    "Message store append latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .5},
		},
	)
)
