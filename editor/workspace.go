package editor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/apex/log"

	"shipyard_report/inbox"
	"shipyard_report/kv"
	"shipyard_report/report"
	"shipyard_report/store"
)

var (
	ErrClosed           = errors.New("workspace closed")
	ErrNotLoaded        = errors.New("no report loaded")
	ErrReadOnly         = errors.New("report is read-only for this user")
	ErrRowNotFound      = errors.New("row not found")
	ErrLineNotFound     = errors.New("operator line not found")
	ErrOperatorNotFound = errors.New("operator not found")
	ErrSaveInProgress   = errors.New("a save is already in progress")
	ErrStatusForbidden  = errors.New("only the office may set this status")
)

const (
	RoleForeman = "foreman"
	RoleOffice  = "office"
	RoleAdmin   = "admin"
)

// User is the authenticated user a workspace edits for.
type User struct {
	ID   string
	Role string
}

// CanEdit reports whether u may change doc. Office and admin users edit any
// report; authors edit their own until the office approves it.
func CanEdit(u User, doc report.Report) bool {
	switch u.Role {
	case RoleOffice, RoleAdmin:
		return true
	}
	return u.ID != "" && u.ID == doc.AuthorID && doc.Status != report.StatusApprovedByOffice
}

// CanSetStatus reports whether u may move a report to status. Approving and
// returning a report are office decisions.
func CanSetStatus(u User, status report.Status) bool {
	switch status {
	case report.StatusApprovedByOffice, report.StatusReturned:
		return u.Role == RoleOffice || u.Role == RoleAdmin
	}
	return true
}

type Options struct {
	AutosaveEnabled bool
	AutosaveDelay   time.Duration
	ShiftHours      float64
}

// Problem is a user-facing error with its technical detail.
type Problem struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func problemOf(err error) *Problem {
	msg, detail := report.Describe(err)
	return &Problem{Message: msg, Detail: detail}
}

// Snapshot is a consistent copy of the workspace state.
type Snapshot struct {
	ID              string        `json:"workspace_id"`
	Document        report.Report `json:"document"`
	Loaded          bool          `json:"loaded"`
	CanEdit         bool          `json:"can_edit"`
	Saving          bool          `json:"saving"`
	AutosavePending bool          `json:"autosave_pending"`
	LoadError       *Problem      `json:"load_error,omitempty"`
	AutosaveError   *Problem      `json:"autosave_error,omitempty"`
}

// HeaderPatch carries the header fields to change; nil fields are kept.
type HeaderPatch struct {
	SiteCode     *string
	ContractCode *string
	TotalOutput  *float64
}

// Workspace owns the document one user is editing. HTTP handlers run
// concurrently, so every access goes through mu.
//
// Lock order: loader, then mu, then the autosave lock. saveMu is taken
// before mu and serializes manual saves with autosaves.
type Workspace struct {
	ID string

	user     User
	opts     Options
	backend  store.Backend
	cache    kv.Store
	loader   *Loader
	saver    *Saver
	autosave *Autosave
	inbox    *inbox.Notifier

	saveMu sync.Mutex

	mu          sync.Mutex
	doc         report.Report
	loaded      bool
	saving      bool
	closed      bool
	loadErr     *Problem
	autosaveErr *Problem
	rosterSeq   uint64

	// pubMu orders roster publications; it is never held together with mu.
	pubMu  sync.Mutex
	pubSeq uint64
}

// rosterUpdate is a document copy waiting to be published to the roster.
type rosterUpdate struct {
	seq uint64
	doc report.Report
}

func NewWorkspace(id string, user User, backend store.Backend, cache kv.Store, opts Options) *Workspace {
	if opts.ShiftHours <= 0 {
		opts.ShiftHours = 8
	}
	w := &Workspace{
		ID:      id,
		user:    user,
		opts:    opts,
		backend: backend,
		cache:   cache,
		loader:  NewLoader(backend),
		inbox:   inbox.New(backend),
	}
	w.saver = NewSaver(backend, w.inbox)
	autosaveOpts := []AutosaveOption{OnSaveError(w.autosaveFailed), OnSaved(w.autosaved)}
	if opts.AutosaveDelay > 0 {
		autosaveOpts = append(autosaveOpts, WithDelay(opts.AutosaveDelay))
	}
	w.autosave = NewAutosave(w.autosaveDoc, autosaveOpts...)
	return w
}

func (w *Workspace) User() User { return w.user }

func (w *Workspace) Inbox() *inbox.Notifier { return w.inbox }

// Load hydrates the report for key and makes it the current document. A load
// superseded by a newer one returns an error matching report.ErrAborted and
// leaves the workspace untouched.
func (w *Workspace) Load(ctx context.Context, key report.Key) (Snapshot, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	w.mu.Unlock()

	var roster rosterUpdate
	err := w.loader.Load(ctx, key, func(doc report.Report, err error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		if err != nil {
			// keep the old document but stop autosave from writing it
			w.loaded = false
			w.loadErr = problemOf(err)
			return
		}
		w.doc = doc
		w.loaded = true
		w.loadErr = nil
		w.autosaveErr = nil
		w.autosave.SetBaseline(report.Signature(doc))
		roster = w.rosterLocked()
	})
	if err != nil {
		if report.IsAborted(err) {
			return Snapshot{}, err
		}
		log.WithError(err).WithField("key", key.String()).Error("load report")
		return w.Snapshot(), err
	}
	w.publish(roster)

	w.inbox.SetScope(key.AuthorID, key.CrewRole)
	if err := w.inbox.Refresh(ctx); err != nil {
		log.WithError(err).Warn("returned inbox refresh failed")
	}
	return w.Snapshot(), nil
}

func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workspace) snapshotLocked() Snapshot {
	return Snapshot{
		ID:              w.ID,
		Document:        w.doc.Clone(),
		Loaded:          w.loaded,
		CanEdit:         w.loaded && CanEdit(w.user, w.doc),
		Saving:          w.saving,
		AutosavePending: w.autosave.Pending(),
		LoadError:       w.loadErr,
		AutosaveError:   w.autosaveErr,
	}
}

func (w *Workspace) gateLocked() Gate {
	return Gate{
		Enabled: w.opts.AutosaveEnabled,
		CanEdit: CanEdit(w.user, w.doc),
		Loaded:  w.loaded,
		Saving:  w.saving,
	}
}

func (w *Workspace) editableLocked() error {
	switch {
	case w.closed:
		return ErrClosed
	case !w.loaded:
		return ErrNotLoaded
	case !CanEdit(w.user, w.doc):
		return ErrReadOnly
	}
	return nil
}

// mutate applies fn to the current document, re-arms autosave and publishes
// the roster snapshot.
func (w *Workspace) mutate(fn func(doc *report.Report) error) (Snapshot, error) {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return Snapshot{}, err
	}
	if err := fn(&w.doc); err != nil {
		w.mu.Unlock()
		return Snapshot{}, err
	}
	w.autosave.Changed(w.doc, w.gateLocked())
	roster := w.rosterLocked()
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.publish(roster)
	return snap, nil
}

func (w *Workspace) rosterLocked() rosterUpdate {
	w.rosterSeq++
	return rosterUpdate{seq: w.rosterSeq, doc: w.doc.Clone()}
}

// publish writes u to the roster cache unless a newer update already went
// out. Subscribers run outside mu and may call back into the workspace.
func (w *Workspace) publish(u rosterUpdate) {
	if u.seq == 0 {
		return
	}
	w.pubMu.Lock()
	defer w.pubMu.Unlock()
	if u.seq <= w.pubSeq {
		return
	}
	w.pubSeq = u.seq
	publishRoster(w.cache, u.doc, w.opts.ShiftHours)
}

func checkRow(rows []report.Row, index int) error {
	if index < 0 || index >= len(rows) {
		return ErrRowNotFound
	}
	return nil
}

func (w *Workspace) AddRow(tmpl report.Row) (Snapshot, error) {
	return w.mutate(func(doc *report.Report) error {
		doc.Rows = report.AddRow(doc.Rows, tmpl)
		return nil
	})
}

func (w *Workspace) RemoveRow(index int) (Snapshot, error) {
	return w.mutate(func(doc *report.Report) error {
		if err := checkRow(doc.Rows, index); err != nil {
			return err
		}
		doc.Rows = report.RemoveRow(doc.Rows, index)
		return nil
	})
}

func (w *Workspace) UpdateCell(index int, field report.Field, value string) (Snapshot, error) {
	return w.mutate(func(doc *report.Report) error {
		if !field.Valid() {
			return &report.ValidationError{Invalid: []string{string(field)}}
		}
		if err := checkRow(doc.Rows, index); err != nil {
			return err
		}
		doc.Rows = report.UpdateCell(doc.Rows, index, field, value)
		return nil
	})
}

func (w *Workspace) UpdateHeader(p HeaderPatch) (Snapshot, error) {
	return w.mutate(func(doc *report.Report) error {
		if p.SiteCode != nil {
			doc.SiteCode = *p.SiteCode
		}
		if p.ContractCode != nil {
			doc.ContractCode = *p.ContractCode
		}
		if p.TotalOutput != nil {
			doc.TotalOutput = *p.TotalOutput
		}
		return nil
	})
}

// operator resolves the label snapshot stored with a new assignment.
func (w *Workspace) operator(ctx context.Context, id string) (report.Operator, error) {
	recs, err := w.backend.Operators(ctx, []string{id})
	if err != nil {
		return report.Operator{}, err
	}
	for _, rec := range recs {
		if rec.ID == id {
			return report.Operator{ID: rec.ID, Label: OperatorLabel(rec)}, nil
		}
	}
	return report.Operator{}, ErrOperatorNotFound
}

func (w *Workspace) AddOperator(ctx context.Context, rowIndex int, operatorID string) (Snapshot, error) {
	op, err := w.operator(ctx, operatorID)
	if err != nil {
		return Snapshot{}, err
	}
	return w.mutate(func(doc *report.Report) error {
		if err := checkRow(doc.Rows, rowIndex); err != nil {
			return err
		}
		doc.Rows = report.AddOperatorAssignment(doc.Rows, rowIndex, op)
		return nil
	})
}

func (w *Workspace) RemoveOperator(rowIndex int, operatorID string) (Snapshot, error) {
	return w.mutate(func(doc *report.Report) error {
		if err := checkRow(doc.Rows, rowIndex); err != nil {
			return err
		}
		doc.Rows = report.RemoveOperatorAssignment(doc.Rows, rowIndex, operatorID)
		return nil
	})
}

// ToggleOperator flips the assignment of operatorID on a row. action may be
// nil, a report.ToggleAction, its string form or a checkbox bool.
func (w *Workspace) ToggleOperator(ctx context.Context, rowIndex int, operatorID string, action any) (Snapshot, error) {
	op, err := w.operator(ctx, operatorID)
	if err != nil {
		return Snapshot{}, err
	}
	return w.mutate(func(doc *report.Report) error {
		if err := checkRow(doc.Rows, rowIndex); err != nil {
			return err
		}
		rows, err := report.ToggleOperatorAssignment(doc.Rows, rowIndex, op, action)
		if err != nil {
			return &report.ValidationError{Invalid: []string{"action"}}
		}
		doc.Rows = rows
		return nil
	})
}

func (w *Workspace) SetHours(rowIndex, lineIndex int, raw string) (Snapshot, error) {
	return w.mutate(func(doc *report.Report) error {
		if err := checkRow(doc.Rows, rowIndex); err != nil {
			return err
		}
		if lineIndex < 0 || lineIndex >= len(doc.Rows[rowIndex].OperatorAssignments) {
			return ErrLineNotFound
		}
		doc.Rows = report.SetAssignmentHours(doc.Rows, rowIndex, lineIndex, raw)
		return nil
	})
}

func (w *Workspace) SetLegacyHours(rowIndex int, value string) (Snapshot, error) {
	return w.mutate(func(doc *report.Report) error {
		if err := checkRow(doc.Rows, rowIndex); err != nil {
			return err
		}
		doc.Rows = report.SetLegacyHours(doc.Rows, rowIndex, value)
		return nil
	})
}

// refreshIdentityLocked copies the durable id and status the workspace holds
// for doc's key. A save queued behind another one must not insert the same
// report twice or revert a status the earlier save set.
func (w *Workspace) refreshIdentityLocked(doc *report.Report) {
	if w.doc.Key() != doc.Key() {
		return
	}
	doc.ID = w.doc.ID
	doc.Status = w.doc.Status
}

// Save persists the current document at once. status, when not empty,
// replaces the document status.
func (w *Workspace) Save(ctx context.Context, status report.Status) (SaveResult, Snapshot, error) {
	w.mu.Lock()
	if err := w.editableLocked(); err != nil {
		w.mu.Unlock()
		return SaveResult{}, Snapshot{}, err
	}
	if w.saving {
		w.mu.Unlock()
		return SaveResult{}, Snapshot{}, ErrSaveInProgress
	}
	if !CanSetStatus(w.user, status) {
		w.mu.Unlock()
		return SaveResult{}, Snapshot{}, ErrStatusForbidden
	}
	w.saving = true
	// drops any pending autosave
	w.autosave.Changed(w.doc, w.gateLocked())
	w.mu.Unlock()

	w.saveMu.Lock()
	w.mu.Lock()
	doc := w.doc.Clone()
	w.mu.Unlock()
	res, err := w.saver.Save(ctx, doc, SaveOptions{EffectiveAuthorID: w.user.ID, Status: status, Trigger: TriggerManual})

	w.mu.Lock()
	w.saving = false
	if err == nil {
		saved := doc
		res.Apply(&saved)
		// a load may have replaced the document while the save ran
		if w.doc.Key() == saved.Key() {
			res.Apply(&w.doc)
			w.autosave.SetBaseline(report.Signature(saved))
			w.autosaveErr = nil
		}
	}
	// edits made during the save are still owed an autosave
	w.autosave.Changed(w.doc, w.gateLocked())
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.saveMu.Unlock()

	if err != nil {
		return SaveResult{}, snap, err
	}
	return res, snap, nil
}

func (w *Workspace) autosaveDoc(ctx context.Context, doc report.Report) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	w.mu.Lock()
	w.refreshIdentityLocked(&doc)
	w.mu.Unlock()

	res, err := w.saver.Save(ctx, doc, SaveOptions{EffectiveAuthorID: w.user.ID, Trigger: TriggerAutosave})
	if err != nil {
		return err
	}
	w.mu.Lock()
	if w.doc.Key() == doc.Key() {
		res.Apply(&w.doc)
	}
	w.mu.Unlock()
	return nil
}

func (w *Workspace) autosaved(doc report.Report) {
	w.mu.Lock()
	w.autosaveErr = nil
	w.mu.Unlock()
	log.WithFields(log.Fields{"workspace": w.ID, "key": doc.Key().String()}).Debug("autosaved")
}

func (w *Workspace) autosaveFailed(err error) {
	w.mu.Lock()
	w.autosaveErr = problemOf(err)
	w.mu.Unlock()
	log.WithError(err).WithField("workspace", w.ID).Warn("autosave failed")
}

// Close cancels a running load, drops the pending autosave and waits for an
// autosave already writing to finish.
func (w *Workspace) Close() {
	w.loader.Cancel()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.autosave.Close()
}
