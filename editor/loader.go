package editor

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"shipyard_report/metrics"
	"shipyard_report/report"
	"shipyard_report/store"
)

// Loader hydrates editable documents from the backend. Each Load supersedes
// the previous one: its requests are cancelled and its result is discarded.
type Loader struct {
	backend store.Backend

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func NewLoader(backend store.Backend) *Loader {
	return &Loader{backend: backend}
}

// Load reads the report for key and, if no newer Load started meanwhile,
// passes the outcome to commit while still holding the loader lock. A
// superseded load never reaches commit and returns report.ErrAborted.
func (l *Loader) Load(ctx context.Context, key report.Key, commit func(report.Report, error)) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.seq++
	seq := l.seq
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()
	defer cancel()

	start := time.Now()
	doc, err := l.hydrate(ctx, key)

	l.mu.Lock()
	defer l.mu.Unlock()
	if seq != l.seq || (err != nil && report.IsAborted(err)) {
		metrics.LoadsTotal.WithLabelValues("aborted").Inc()
		return fmt.Errorf("load %s: %w", key, report.ErrAborted)
	}
	l.cancel = nil
	if err != nil {
		metrics.LoadsTotal.WithLabelValues("error").Inc()
		commit(report.Report{}, err)
		return err
	}
	metrics.LoadDurationSeconds.Observe(time.Since(start).Seconds())
	if doc.ID == "" {
		metrics.LoadsTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.LoadsTotal.WithLabelValues("ok").Inc()
	}
	commit(doc, nil)
	return nil
}

// Cancel aborts the load in progress, if any.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.seq++
}

func (l *Loader) hydrate(ctx context.Context, key report.Key) (report.Report, error) {
	if !key.Complete() {
		return report.NewDraft(key), nil
	}
	date, err := time.Parse(report.DateLayout, key.Date)
	if err != nil {
		return report.Report{}, &report.ValidationError{Invalid: []string{"date"}}
	}

	headers, err := l.backend.FindReports(ctx, key.AuthorID, string(key.CrewRole), date)
	if err != nil {
		return report.Report{}, err
	}
	if len(headers) == 0 {
		return report.NewDraft(key), nil
	}
	header := newest(headers)
	if len(headers) > 1 {
		log.WithFields(log.Fields{"key": key.String(), "count": len(headers), "picked": header.ID}).
			Warn("duplicate reports for key")
	}

	rowRecs, err := l.backend.Rows(ctx, header.ID)
	if err != nil {
		return report.Report{}, err
	}
	rowIDs := make([]string, len(rowRecs))
	for i, r := range rowRecs {
		rowIDs[i] = r.ID
	}

	var assignRecs []store.AssignmentRecord
	if len(rowIDs) > 0 {
		if assignRecs, err = l.backend.Assignments(ctx, rowIDs); err != nil {
			return report.Report{}, err
		}
	}

	labels := map[string]string{}
	if ids := operatorIDs(assignRecs); len(ids) > 0 {
		ops, err := l.backend.Operators(ctx, ids)
		if err != nil {
			return report.Report{}, err
		}
		for _, o := range ops {
			labels[o.ID] = OperatorLabel(o)
		}
	}

	doc := reportFromRecord(header)
	doc.Rows = rowsFromRecords(rowRecs, assignRecs, labels)
	return doc, nil
}

// newest picks the most recently created header; ties go to the larger id.
func newest(headers []store.ReportRecord) store.ReportRecord {
	best := headers[0]
	for _, h := range headers[1:] {
		if h.CreatedAt.After(best.CreatedAt) || (h.CreatedAt.Equal(best.CreatedAt) && h.ID > best.ID) {
			best = h
		}
	}
	return best
}

func operatorIDs(recs []store.AssignmentRecord) []string {
	seen := make(map[string]bool, len(recs))
	var ids []string
	for _, a := range recs {
		if !seen[a.OperatorID] {
			seen[a.OperatorID] = true
			ids = append(ids, a.OperatorID)
		}
	}
	return ids
}

// OperatorLabel is the name shown for an operator: the display name, else
// "Last First", else the id.
func OperatorLabel(o store.OperatorRecord) string {
	if s := strings.TrimSpace(o.DisplayName.String); s != "" {
		return s
	}
	name := strings.TrimSpace(strings.TrimSpace(o.LastName.String) + " " + strings.TrimSpace(o.FirstName.String))
	if name != "" {
		return name
	}
	return o.ID
}

func reportFromRecord(rec store.ReportRecord) report.Report {
	status := report.Status(rec.Status.String)
	if !status.Valid() {
		status = report.StatusDraft
	}
	return report.Report{
		ID:           rec.ID,
		AuthorID:     rec.AuthorID,
		CrewRole:     report.CrewRole(rec.CrewRole),
		Date:         rec.Date.Format(report.DateLayout),
		SiteCode:     rec.SiteCode.String,
		ContractCode: rec.ContractCode.String,
		Status:       status,
		TotalOutput:  rec.TotalOutput.Float64,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func rowsFromRecords(rowRecs []store.RowRecord, assignRecs []store.AssignmentRecord, labels map[string]string) []report.Row {
	byRow := make(map[string][]store.AssignmentRecord)
	for _, a := range assignRecs {
		byRow[a.RowID] = append(byRow[a.RowID], a)
	}

	rows := make([]report.Row, len(rowRecs))
	for i, r := range rowRecs {
		row := report.Row{
			ID:                  r.ID,
			Category:            r.Category.String,
			Description:         r.Description.String,
			LegacyOperatorsText: r.LegacyOperatorsText.String,
			LegacyHoursText:     r.LegacyHoursText.String,
			PlannedQuantity:     nullFloat(r.PlannedQuantity.Float64, r.PlannedQuantity.Valid),
			ProducedQuantity:    nullFloat(r.ProducedQuantity.Float64, r.ProducedQuantity.Valid),
			Note:                r.Note.String,
		}
		if r.ActivityReferenceID.Valid && r.ActivityReferenceID.String != "" {
			ref := r.ActivityReferenceID.String
			row.ActivityReferenceID = &ref
		}

		recs := byRow[r.ID]
		slices.SortStableFunc(recs, func(a, b store.AssignmentRecord) int { return a.LineIndex - b.LineIndex })
		seen := make(map[string]bool, len(recs))
		for _, a := range recs {
			if seen[a.OperatorID] {
				continue
			}
			seen[a.OperatorID] = true
			parsed := nullFloat(a.ParsedHours.Float64, a.ParsedHours.Valid)
			if parsed == nil || *parsed < 0 {
				parsed = report.ParseHours(a.RawHoursText.String)
			}
			row.OperatorAssignments = append(row.OperatorAssignments, report.OperatorAssignment{
				OperatorID:   a.OperatorID,
				Label:        labels[a.OperatorID],
				RawHoursText: a.RawHoursText.String,
				ParsedHours:  parsed,
			})
		}
		rows[i] = row
	}
	report.Normalize(rows)
	return rows
}

func nullFloat(v float64, valid bool) *float64 {
	if !valid {
		return nil
	}
	return &v
}
