package events

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "machine_monitor",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Outbox events accepted by the durable sink and marked published.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "machine_monitor",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox events whose delivery failed; they are retried on the next poll.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "machine_monitor",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent delivering and marking one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	wsClientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "machine_monitor",
		Subsystem: "ws",
		Name:      "clients",
		Help:      "Connected WebSocket subscribers.",
	})

	wsDroppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "machine_monitor",
		Subsystem: "ws",
		Name:      "clients_dropped_total",
		Help:      "Subscribers disconnected because their send buffer was full.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, wsClientsGauge, wsDroppedCounter)
}
