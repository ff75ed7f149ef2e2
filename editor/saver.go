package editor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/apex/log"

	"shipyard_report/metrics"
	"shipyard_report/report"
	"shipyard_report/store"
)

// Refresher is notified after every successful save. Its failure never fails the save.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerAutosave Trigger = "autosave"
)

type SaveOptions struct {
	// EffectiveAuthorID is the user performing the save; it may differ from
	// the report author when the office edits on someone's behalf.
	EffectiveAuthorID string
	// Status overrides the document status when set.
	Status  report.Status
	Trigger Trigger
}

type SaveResult struct {
	ReportID string        `json:"report_id"`
	Status   report.Status `json:"status"`
	// RowIDs maps the row ids the document had before the save to their new durable ids.
	RowIDs    map[string]string `json:"row_ids"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Saver replaces the remote state of a report with an in-memory document.
type Saver struct {
	backend  store.Backend
	notifier Refresher
}

func NewSaver(backend store.Backend, notifier Refresher) *Saver {
	return &Saver{backend: backend, notifier: notifier}
}

func validate(doc report.Report, opts SaveOptions) (time.Time, error) {
	verr := &report.ValidationError{}
	if doc.AuthorID == "" {
		verr.Missing = append(verr.Missing, "author_id")
	}
	if opts.EffectiveAuthorID == "" {
		verr.Missing = append(verr.Missing, "effective_author_id")
	}
	if doc.CrewRole == "" {
		verr.Missing = append(verr.Missing, "crew_role")
	} else if !doc.CrewRole.Valid() {
		verr.Invalid = append(verr.Invalid, "crew_role")
	}
	var date time.Time
	if doc.Date == "" {
		verr.Missing = append(verr.Missing, "date")
	} else {
		var err error
		if date, err = time.Parse(report.DateLayout, doc.Date); err != nil {
			verr.Invalid = append(verr.Invalid, "date")
		}
	}
	if opts.Status != "" && !opts.Status.Valid() {
		verr.Invalid = append(verr.Invalid, "status")
	}
	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 {
		return time.Time{}, verr
	}
	return date, nil
}

// Save writes the header, deletes every stored row and assignment of the
// report, and inserts the document's rows and assignments in their current
// order. When the backend supports transactions the whole sequence is atomic.
func (s *Saver) Save(ctx context.Context, doc report.Report, opts SaveOptions) (SaveResult, error) {
	date, err := validate(doc, opts)
	if err != nil {
		return SaveResult{}, err
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}
	status := opts.Status
	if status == "" {
		status = doc.Status
	}
	if status == "" {
		status = report.StatusDraft
	}

	start := time.Now()
	var res SaveResult
	run := func(b store.Backend) error {
		var err error
		res, err = s.replace(ctx, b, doc, date, status)
		return err
	}
	if tx, ok := s.backend.(store.Transactor); ok {
		err = tx.InTx(ctx, run)
	} else {
		err = run(s.backend)
	}
	metrics.SaveDurationSeconds.WithLabelValues(string(opts.Trigger)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SavesTotal.WithLabelValues(string(opts.Trigger), "error").Inc()
		log.WithError(err).WithFields(log.Fields{"key": doc.Key().String(), "trigger": opts.Trigger}).Error("save failed")
		return SaveResult{}, err
	}
	metrics.SavesTotal.WithLabelValues(string(opts.Trigger), "ok").Inc()
	log.WithFields(log.Fields{
		"report":  res.ReportID,
		"rows":    len(doc.Rows),
		"by":      opts.EffectiveAuthorID,
		"trigger": opts.Trigger,
	}).Info("report saved")

	if s.notifier != nil {
		if err := s.notifier.Refresh(ctx); err != nil {
			log.WithError(err).Warn("returned inbox refresh failed")
		}
	}
	return res, nil
}

func (s *Saver) replace(ctx context.Context, b store.Backend, doc report.Report, date time.Time, status report.Status) (SaveResult, error) {
	header := store.ReportRecord{
		ID:           doc.ID,
		AuthorID:     doc.AuthorID,
		CrewRole:     string(doc.CrewRole),
		Date:         date,
		SiteCode:     nullString(doc.SiteCode),
		ContractCode: nullString(doc.ContractCode),
		Status:       sql.NullString{String: string(status), Valid: true},
		TotalOutput:  sql.NullFloat64{Float64: doc.TotalOutput, Valid: true},
	}
	var err error
	if report.IsTempID(doc.ID) {
		header, err = b.InsertReport(ctx, header)
	} else {
		header, err = b.UpdateReport(ctx, header)
	}
	if err != nil {
		return SaveResult{}, err
	}

	existing, err := b.RowIDs(ctx, header.ID)
	if err != nil {
		return SaveResult{}, err
	}
	// children before parents
	if err := b.DeleteAssignments(ctx, existing); err != nil {
		return SaveResult{}, err
	}
	if err := b.DeleteRows(ctx, existing); err != nil {
		return SaveResult{}, err
	}

	rows := doc.Clone().Rows
	report.Normalize(rows)
	recs := make([]store.RowRecord, len(rows))
	for i, row := range rows {
		recs[i] = store.RowRecord{
			ReportID:            header.ID,
			Position:            i,
			SecondaryOrderIndex: i + 1,
			Category:            sql.NullString{String: row.Category, Valid: true},
			Description:         sql.NullString{String: row.Description, Valid: true},
			LegacyOperatorsText: sql.NullString{String: row.LegacyOperatorsText, Valid: true},
			LegacyHoursText:     sql.NullString{String: row.LegacyHoursText, Valid: true},
			PlannedQuantity:     nullFloat64(row.PlannedQuantity),
			ProducedQuantity:    nullFloat64(row.ProducedQuantity),
			Note:                sql.NullString{String: row.Note, Valid: true},
		}
		if row.ActivityReferenceID != nil {
			recs[i].ActivityReferenceID = nullString(*row.ActivityReferenceID)
		}
	}
	ids, err := b.InsertRows(ctx, recs)
	if err != nil {
		return SaveResult{}, err
	}

	res := SaveResult{
		ReportID:  header.ID,
		Status:    status,
		RowIDs:    make(map[string]string, len(rows)),
		CreatedAt: header.CreatedAt,
		UpdatedAt: header.UpdatedAt,
	}
	var assignments []store.AssignmentRecord
	for i, row := range rows {
		rowID, ok := ids[i]
		if !ok {
			return SaveResult{}, &report.PersistenceError{Op: "insert rows", Err: fmt.Errorf("no id returned for position %d", i)}
		}
		res.RowIDs[row.ID] = rowID
		for j, a := range row.OperatorAssignments {
			parsed := a.ParsedHours
			if parsed == nil {
				parsed = report.ParseHours(a.RawHoursText)
			}
			assignments = append(assignments, store.AssignmentRecord{
				RowID:        rowID,
				OperatorID:   a.OperatorID,
				LineIndex:    j,
				RawHoursText: sql.NullString{String: a.RawHoursText, Valid: true},
				ParsedHours:  nullFloat64(parsed),
			})
		}
	}
	if err := b.InsertAssignments(ctx, assignments); err != nil {
		return SaveResult{}, err
	}
	return res, nil
}

// Apply copies the durable identifiers of res onto doc.
func (r SaveResult) Apply(doc *report.Report) {
	doc.ID = r.ReportID
	doc.Status = r.Status
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.CreatedAt
	}
	doc.UpdatedAt = r.UpdatedAt
	for i := range doc.Rows {
		if id, ok := r.RowIDs[doc.Rows[i].ID]; ok {
			doc.Rows[i].ID = id
		}
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
