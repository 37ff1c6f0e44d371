package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HeartbeatsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detak_heartbeats_received_total",
		Help: "Total number of heartbeat messages delivered by the broker.",
	})

	HeartbeatsAcked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detak_heartbeats_acked_total",
		Help: "Total number of heartbeat messages persisted and acknowledged.",
	})

	HeartbeatsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detak_heartbeats_dead_lettered_total",
		Help: "Total number of malformed messages rejected to the dead-letter queue.",
	})

	HeartbeatsRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "detak_heartbeats_requeued_total",
		Help: "Total number of messages requeued after a transient storage failure.",
	})

	StatusQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detak_status_queries_total",
		Help: "Total number of status queries, labelled by cache outcome.",
	}, []string{"cache"})
)
