package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// LoadsTotal counts report hydrations by result (ok, aborted, error, empty).
	LoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipyard",
		Subsystem: "report",
		Name:      "loads_total",
		Help:      "Total number of report loads, labeled by result.",
	}, []string{"result"})

	LoadDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shipyard",
		Subsystem: "report",
		Name:      "load_duration_seconds",
		Help:      "Time to hydrate a report (header, rows, assignments, operator labels).",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// SavesTotal counts saves by trigger (manual, autosave) and result (ok, error).
	SavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipyard",
		Subsystem: "report",
		Name:      "saves_total",
		Help:      "Total number of report saves, labeled by trigger and result.",
	}, []string{"trigger", "result"})

	SaveDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shipyard",
		Subsystem: "report",
		Name:      "save_duration_seconds",
		Help:      "Time to replace a report and its child rows.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"trigger"})

	// AutosaveDecisionsTotal counts edits seen by the autosave scheduler by
	// outcome (armed, or the first gate that rejected it).
	AutosaveDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shipyard",
		Subsystem: "autosave",
		Name:      "decisions_total",
		Help:      "Edits observed by the autosave scheduler, labeled by decision.",
	}, []string{"decision"})

	// InboxReturned is the last returned-report count seen per crew role.
	InboxReturned = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shipyard",
		Subsystem: "inbox",
		Name:      "returned_reports",
		Help:      "Returned reports waiting for their author, as of the last refresh.",
	}, []string{"crew_role"})
)

// Register adds the collectors to reg once.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		reg.MustRegister(
			LoadsTotal,
			LoadDurationSeconds,
			SavesTotal,
			SaveDurationSeconds,
			AutosaveDecisionsTotal,
			InboxReturned,
		)
	})
}
