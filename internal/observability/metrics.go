package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "machine_monitor"

// Transition outcomes recorded by the tracker.
const (
	ActionOpened   = "opened"
	ActionReplaced = "replaced"
	ActionNoop     = "noop"
	ActionStale    = "stale"
	ActionSkipped  = "offline_skipped"
)

var (
	transitionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "transitions_total",
		Help:      "Observations handled by the activity writer, labeled by outcome.",
	}, []string{"action"})

	lockTimeoutsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "lock_timeouts_total",
		Help:      "Units of work abandoned because the machine lock was not acquired in time.",
	})

	healedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "self_heal_closures_total",
		Help:      "Extra open intervals closed by self-healing.",
	})

	persistRetriesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "persist_retries_total",
		Help:      "Transitions retried after a persistence error or conflict.",
	})

	persistFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "persist_failures_total",
		Help:      "Transitions that failed after the retry.",
	})

	transitionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tracker",
		Name:      "transition_duration_seconds",
		Help:      "Time spent holding the machine lock for one observation.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	lastSignalGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "last_signal_timestamp_seconds",
		Help:      "Unix timestamp of the most recent signal processed.",
	})
)

func init() {
	prometheus.MustRegister(
		transitionsCounter,
		lockTimeoutsCounter,
		healedCounter,
		persistRetriesCounter,
		persistFailuresCounter,
		transitionDuration,
		lastSignalGauge,
	)
}

func RecordTransition(action string) {
	transitionsCounter.WithLabelValues(action).Inc()
}

func RecordLockTimeout() {
	lockTimeoutsCounter.Inc()
}

func RecordHealed(n int) {
	if n <= 0 {
		return
	}
	healedCounter.Add(float64(n))
}

func RecordPersistRetry() {
	persistRetriesCounter.Inc()
}

func RecordPersistFailure() {
	persistFailuresCounter.Inc()
}

// ObserveTransition records how long the lock was held.
func ObserveTransition(start time.Time) {
	transitionDuration.Observe(time.Since(start).Seconds())
}

// RecordSignal updates the ingest watermark gauge.
func RecordSignal(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSignalGauge.Set(float64(ts.Unix()))
}
