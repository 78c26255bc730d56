// Package metrics holds the Prometheus collectors of the monitoring engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pulsewatch"

// Tick outcomes.
const (
	TickRun     = "run"
	TickSkipped = "skipped"
)

// Notification outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

var (
	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Total number of checks executed, partitioned by monitor type and resulting status.",
		},
		[]string{"type", "status"},
	)

	checkDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Check latency in seconds, including timeouts.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"type"},
	)

	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduler ticks, partitioned by whether they ran or were skipped because the previous tick was still running.",
		},
		[]string{"outcome"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts created, partitioned by alert type.",
		},
		[]string{"type"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, partitioned by channel type and final outcome.",
		},
		[]string{"channel", "outcome"},
	)

	streamConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connections",
			Help:      "Open real-time stream connections, partitioned by audience.",
		},
		[]string{"audience"},
	)
)

// Register attaches the engine collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		checksTotal,
		checkDurationSeconds,
		ticksTotal,
		alertsTotal,
		notificationsTotal,
		streamConnections,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCheck records a completed check.
func ObserveCheck(monitorType, status string, duration time.Duration) {
	checksTotal.WithLabelValues(monitorType, status).Inc()
	if duration < 0 {
		duration = 0
	}
	checkDurationSeconds.WithLabelValues(monitorType).Observe(duration.Seconds())
}

// ObserveTick records whether a scheduler tick ran or was skipped.
func ObserveTick(outcome string) {
	ticksTotal.WithLabelValues(outcome).Inc()
}

// ObserveAlert records a created alert.
func ObserveAlert(alertType string) {
	alertsTotal.WithLabelValues(alertType).Inc()
}

// ObserveNotification records the final outcome of one delivery.
func ObserveNotification(channel string, delivered bool) {
	outcome := OutcomeFailed
	if delivered {
		outcome = OutcomeDelivered
	}
	notificationsTotal.WithLabelValues(channel, outcome).Inc()
}

// StreamOpened increments the open connection gauge for an audience.
func StreamOpened(audience string) {
	streamConnections.WithLabelValues(audience).Inc()
}

// StreamClosed decrements the open connection gauge for an audience.
func StreamClosed(audience string) {
	streamConnections.WithLabelValues(audience).Dec()
}
