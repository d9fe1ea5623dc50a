// Package metrics registers the pipeline's Prometheus collectors. All
// binaries expose them on /metrics via their health listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_submissions_total",
		Help: "Notification submissions by outcome.",
	}, []string{"outcome"}) // queued | replayed | rejected | failed

	RoutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_routed_total",
		Help: "Envelope fan-outs by channel.",
	}, []string{"channel"})

	RouterNoopTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_router_noop_total",
		Help: "Envelopes with no usable delivery target.",
	})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_deliveries_total",
		Help: "Provider send attempts by channel and outcome.",
	}, []string{"channel", "outcome"}) // sent | failed

	DeadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_dead_lettered_total",
		Help: "Messages republished to the dead-letter exchange.",
	}, []string{"channel"})

	SweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_swept_total",
		Help: "failed.queue messages moved by the sweeper.",
	}, []string{"destination"}) // requeued | parked

	DeliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notify_delivery_duration_seconds",
		Help:    "Provider send latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
)
