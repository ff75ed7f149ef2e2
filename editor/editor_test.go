package editor

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"shipyard_report/report"
	"shipyard_report/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errBackendDown = errors.New("connection refused")

func ptr(v float64) *float64 { return &v }

func seededMemory() *store.Memory {
	mem := store.NewMemory()
	mem.AddOperator(store.OperatorRecord{ID: "op-a", DisplayName: sql.NullString{String: "Rossi Mario", Valid: true}})
	mem.AddOperator(store.OperatorRecord{
		ID:        "op-b",
		FirstName: sql.NullString{String: "Luca", Valid: true},
		LastName:  sql.NullString{String: "Bruno", Valid: true},
	})
	mem.AddOperator(store.OperatorRecord{ID: "op-c"})
	return mem
}

var keyMay2 = report.Key{AuthorID: "u-1", CrewRole: report.CrewElectrician, Date: "2024-05-02"}

// draftWithOperators returns a document whose first row has op-a "8" and op-b "4,5".
func draftWithOperators(key report.Key) report.Report {
	doc := report.NewDraft(key)
	doc.SiteCode = "SDC"
	doc.ContractCode = "006368"
	doc.Rows = report.AddRow(doc.Rows, report.Row{Category: "CABLAGGIO", Description: "pull cable deck 4"})
	doc.Rows = report.AddOperatorAssignment(doc.Rows, 0, report.Operator{ID: "op-a", Label: "Rossi Mario"})
	doc.Rows = report.AddOperatorAssignment(doc.Rows, 0, report.Operator{ID: "op-b", Label: "Bruno Luca"})
	doc.Rows = report.SetAssignmentHours(doc.Rows, 0, 0, "8")
	doc.Rows = report.SetAssignmentHours(doc.Rows, 0, 1, "4,5")
	doc.Rows = report.AddRow(doc.Rows, report.Row{
		Category:            "MONTAGGIO",
		LegacyOperatorsText: "Verdi\nNeri",
		LegacyHoursText:     "6",
		PlannedQuantity:     ptr(12),
	})
	return doc
}

// countingBackend records how many times each read is issued.
type countingBackend struct {
	*store.Memory

	mu    sync.Mutex
	calls map[string]int
}

func newCounting(mem *store.Memory) *countingBackend {
	return &countingBackend{Memory: mem, calls: map[string]int{}}
}

func (c *countingBackend) hit(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
}

func (c *countingBackend) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *countingBackend) FindReports(ctx context.Context, authorID, crewRole string, date time.Time) ([]store.ReportRecord, error) {
	c.hit("FindReports")
	return c.Memory.FindReports(ctx, authorID, crewRole, date)
}

func (c *countingBackend) Rows(ctx context.Context, reportID string) ([]store.RowRecord, error) {
	c.hit("Rows")
	return c.Memory.Rows(ctx, reportID)
}

func (c *countingBackend) Assignments(ctx context.Context, rowIDs []string) ([]store.AssignmentRecord, error) {
	c.hit("Assignments")
	return c.Memory.Assignments(ctx, rowIDs)
}

func (c *countingBackend) Operators(ctx context.Context, ids []string) ([]store.OperatorRecord, error) {
	c.hit("Operators")
	return c.Memory.Operators(ctx, ids)
}

// failingBackend fails the named write and keeps transactions on itself.
type failingBackend struct {
	*store.Memory
	failFind        bool
	failAssignments bool
}

func (f *failingBackend) InTx(ctx context.Context, fn func(store.Backend) error) error {
	return f.Memory.InTx(ctx, func(store.Backend) error { return fn(f) })
}

func (f *failingBackend) FindReports(ctx context.Context, authorID, crewRole string, date time.Time) ([]store.ReportRecord, error) {
	if f.failFind {
		return nil, &report.PersistenceError{Op: "find report", Err: errBackendDown}
	}
	return f.Memory.FindReports(ctx, authorID, crewRole, date)
}

func (f *failingBackend) InsertAssignments(ctx context.Context, recs []store.AssignmentRecord) error {
	if f.failAssignments {
		return &report.PersistenceError{Op: "insert assignments", Err: errBackendDown}
	}
	return f.Memory.InsertAssignments(ctx, recs)
}

type failingRefresher struct{ calls int }

func (f *failingRefresher) Refresh(context.Context) error {
	f.calls++
	return errBackendDown
}

// saveDoc persists doc on mem and returns it with its durable ids.
func saveDoc(t *testing.T, backend store.Backend, doc report.Report) report.Report {
	t.Helper()
	res, err := NewSaver(backend, nil).Save(context.Background(), doc, SaveOptions{EffectiveAuthorID: doc.AuthorID})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	res.Apply(&doc)
	return doc
}

func tryLoad(backend store.Backend, key report.Key) (report.Report, error) {
	var out report.Report
	err := NewLoader(backend).Load(context.Background(), key, func(doc report.Report, _ error) { out = doc })
	return out, err
}

func loadDoc(t *testing.T, backend store.Backend, key report.Key) report.Report {
	t.Helper()
	doc, err := tryLoad(backend, key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return doc
}
