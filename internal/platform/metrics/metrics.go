package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level collectors registered once at init. Methods below keep call
// sites terse and make the label sets impossible to misspell.
var (
	grievancesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nivaran_grievances_submitted_total",
		Help: "Total grievances accepted for processing",
	})

	stageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nivaran_stage_duration_seconds",
		Help:    "Wall-clock duration of pipeline stage executions",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
	}, []string{"stage"})

	stageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nivaran_stage_retries_total",
		Help: "Retry attempts per pipeline stage",
	}, []string{"stage"})

	terminalStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nivaran_terminal_status_total",
		Help: "Grievances reaching a terminal status",
	}, []string{"status"})

	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nivaran_deliveries_total",
		Help: "Delivery outcomes per channel",
	}, []string{"channel", "result"})

	auditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nivaran_audit_write_failures_total",
		Help: "Audit log writes that failed; audit durability is monitored, not a pipeline gate",
	})
)

func GrievanceSubmitted() { grievancesSubmitted.Inc() }

func ObserveStage(stage string, d time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

func StageRetried(stage string) { stageRetries.WithLabelValues(stage).Inc() }

func TerminalStatus(status string) { terminalStatus.WithLabelValues(status).Inc() }

func DeliveryResult(channel, result string) { deliveries.WithLabelValues(channel, result).Inc() }

func AuditWriteFailed() { auditWriteFailures.Inc() }
