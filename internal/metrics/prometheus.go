package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cortex"

// Collector records assignment engine metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	assignments       *prometheus.CounterVec
	noAssignment      *prometheus.CounterVec
	invalidRequests   prometheus.Counter
	selectionDuration prometheus.Histogram
	weightedCount     *prometheus.GaugeVec
	rosterWorkers     *prometheus.GaugeVec
	snapshotFailures  prometheus.Counter
}

// New registers the collector's metrics with reg, or with the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Assignments made, by modality and routing level.",
		}, []string{"modality", "level"}),
		noAssignment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "no_assignment_total",
			Help:      "Requests that found no qualified worker on shift.",
		}, []string{"modality"}),
		invalidRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_requests_total",
			Help:      "Requests rejected for an unknown modality or skill.",
		}),
		selectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selection_duration_seconds",
			Help:      "Time spent inside the modality lock selecting and recording.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 12), // 50µs .. ~100ms
		}),
		weightedCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "weighted_count",
			Help:      "Weighted assignment count per worker.",
		}, []string{"modality", "worker"}),
		rosterWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "roster",
			Name:      "workers",
			Help:      "Workers currently on shift.",
		}, []string{"modality"}),
		snapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "snapshot_failures_total",
			Help:      "Ledger snapshots that could not be persisted.",
		}),
	}
	reg.MustRegister(
		c.assignments,
		c.noAssignment,
		c.invalidRequests,
		c.selectionDuration,
		c.weightedCount,
		c.rosterWorkers,
		c.snapshotFailures,
	)
	return c
}

func (c *Collector) Assigned(modality string, level int, weightedCount float64, worker string) {
	if c == nil {
		return
	}
	c.assignments.WithLabelValues(modality, levelLabel(level)).Inc()
	c.weightedCount.WithLabelValues(modality, worker).Set(weightedCount)
}

func (c *Collector) NoAssignment(modality string) {
	if c == nil {
		return
	}
	c.noAssignment.WithLabelValues(modality).Inc()
}

func (c *Collector) InvalidRequest() {
	if c == nil {
		return
	}
	c.invalidRequests.Inc()
}

func (c *Collector) ObserveSelection(d time.Duration) {
	if c == nil {
		return
	}
	c.selectionDuration.Observe(d.Seconds())
}

func (c *Collector) SetOnShift(modality string, n int) {
	if c == nil {
		return
	}
	c.rosterWorkers.WithLabelValues(modality).Set(float64(n))
}

// ResetLedger drops the per-worker gauges of a modality, or of every
// modality when modality is empty.
func (c *Collector) ResetLedger(modality string) {
	if c == nil {
		return
	}
	if modality == "" {
		c.weightedCount.Reset()
		return
	}
	c.weightedCount.DeletePartialMatch(prometheus.Labels{"modality": modality})
}

func (c *Collector) SnapshotFailed() {
	if c == nil {
		return
	}
	c.snapshotFailures.Inc()
}

func levelLabel(level int) string {
	switch level {
	case 1:
		return "1"
	case 2:
		return "2"
	}
	return "0"
}
