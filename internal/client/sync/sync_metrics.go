package sync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK    = "ok"
	resultError = "error"

	requestAccepted = "accepted"
	requestDropped  = "dropped"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kbsync",
		Subsystem: "scheduler",
		Name:      "dispatch_total",
		Help:      "Sync operations dispatched by the scheduler, by action and result.",
	}, []string{"action", "result"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kbsync",
		Subsystem: "scheduler",
		Name:      "dispatch_duration_seconds",
		Help:      "Duration of sync operations dispatched by the scheduler.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
	}, []string{"action"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kbsync",
		Subsystem: "scheduler",
		Name:      "requests_total",
		Help:      "Sync requests submitted to the scheduler, by kind and outcome.",
	}, []string{"kind", "outcome"})

	pendingQuickTargets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kbsync",
		Subsystem: "scheduler",
		Name:      "pending_quick_targets",
		Help:      "Knowledge bases waiting for a quick sync.",
	})

	workerBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kbsync",
		Subsystem: "scheduler",
		Name:      "busy",
		Help:      "1 while a sync operation is executing.",
	})
)

func observeDispatch(action SyncAction, err error, took time.Duration) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	dispatchTotal.WithLabelValues(action.String(), result).Inc()
	dispatchDuration.WithLabelValues(action.String()).Observe(took.Seconds())
}

func observeRequest(kind SyncAction, accepted bool) {
	outcome := requestAccepted
	if !accepted {
		outcome = requestDropped
	}
	requestsTotal.WithLabelValues(kind.String(), outcome).Inc()
}
