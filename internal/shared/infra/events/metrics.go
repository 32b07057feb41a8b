package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hexashop_events_published_total",
		Help: "Events handed to the broker, by topic and outcome (sent, queued, failed, rejected)",
	}, []string{"topic", "outcome"})

	pendingMessages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hexashop_events_pending",
		Help: "Messages waiting in the producer pending queue",
	}, []string{"service"})

	eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hexashop_events_consumed_total",
		Help: "Events received by consumers, by topic and outcome (handled, failed, malformed, unrouted, duplicate)",
	}, []string{"topic", "outcome"})

	handlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hexashop_event_handler_duration_seconds",
		Help:    "Time spent in event handlers",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
)
