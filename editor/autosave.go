package editor

import (
	"context"
	"sync"
	"time"

	"shipyard_report/metrics"
	"shipyard_report/report"
)

const DefaultAutosaveDelay = 1200 * time.Millisecond

// Gate carries the editor state the autosave scheduler cannot see itself.
type Gate struct {
	Enabled bool
	CanEdit bool
	Loaded  bool
	// Saving is true while a manual save runs.
	Saving bool
}

type SaveFunc func(ctx context.Context, doc report.Report) error

// Autosave saves a document a short while after its last qualifying change.
// At most one autosave runs at a time and a document whose signature matches
// the last successful save is never sent again.
type Autosave struct {
	delay     time.Duration
	save      SaveFunc
	onSuccess func(report.Report)
	onError   func(error)

	mu         sync.Mutex
	timer      *time.Timer
	gen        uint64
	latest     report.Report
	latestGate Gate
	inFlight   bool
	lastSaved  string
	closed     bool
	wg         sync.WaitGroup
}

type AutosaveOption func(*Autosave)

func WithDelay(d time.Duration) AutosaveOption {
	return func(a *Autosave) { a.delay = d }
}

func OnSaved(fn func(report.Report)) AutosaveOption {
	return func(a *Autosave) { a.onSuccess = fn }
}

func OnSaveError(fn func(error)) AutosaveOption {
	return func(a *Autosave) { a.onError = fn }
}

func NewAutosave(save SaveFunc, opts ...AutosaveOption) *Autosave {
	a := &Autosave{delay: DefaultAutosaveDelay, save: save}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetBaseline records sig as already persisted, e.g. after a load or a manual save.
func (a *Autosave) SetBaseline(sig string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSaved = sig
}

func (a *Autosave) Baseline() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSaved
}

// Changed reports an edit. It restarts the debounce timer and returns true
// when every gate holds; otherwise any pending autosave is dropped.
func (a *Autosave) Changed(doc report.Report, gate Gate) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.latest = doc.Clone()
	a.latestGate = gate
	return a.armLocked()
}

func (a *Autosave) armLocked() bool {
	decision := a.gateLocked()
	metrics.AutosaveDecisionsTotal.WithLabelValues(decision).Inc()
	if decision != "armed" {
		if decision != "in_flight" {
			a.stopLocked()
		}
		return false
	}
	a.stopLocked()
	gen := a.gen
	a.timer = time.AfterFunc(a.delay, func() { a.fire(gen) })
	return true
}

// gateLocked names the first unmet condition, or "armed".
func (a *Autosave) gateLocked() string {
	g, doc := a.latestGate, a.latest
	switch {
	case !g.Enabled:
		return "disabled"
	case !g.CanEdit:
		return "read_only"
	case doc.AuthorID == "":
		return "no_author"
	case !g.Loaded:
		return "not_loaded"
	case g.Saving:
		return "manual_save"
	case a.inFlight:
		return "in_flight"
	case !report.HasContent(doc):
		return "empty"
	case report.Signature(doc) == a.lastSaved:
		return "unchanged"
	}
	return "armed"
}

func (a *Autosave) stopLocked() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Autosave) fire(gen uint64) {
	a.mu.Lock()
	if a.closed || a.inFlight || gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	doc := a.latest.Clone()
	sig := report.Signature(doc)
	if sig == a.lastSaved {
		a.mu.Unlock()
		return
	}
	a.inFlight = true
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	err := a.save(context.Background(), doc)

	a.mu.Lock()
	a.inFlight = false
	if err == nil {
		a.lastSaved = sig
		// edits that arrived while saving were held back by the in-flight gate
		if !a.closed {
			a.armLocked()
		}
	}
	onSuccess, onError := a.onSuccess, a.onError
	a.mu.Unlock()

	if err != nil {
		if onError != nil {
			onError(err)
		}
		return
	}
	if onSuccess != nil {
		onSuccess(doc)
	}
}

// Pending reports whether a debounce timer is armed.
func (a *Autosave) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}

// Close drops any pending autosave and waits for a running one to finish.
// A save already in progress is not interrupted.
func (a *Autosave) Close() {
	a.mu.Lock()
	a.closed = true
	a.stopLocked()
	a.mu.Unlock()
	a.wg.Wait()
}
