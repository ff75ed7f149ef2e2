package editor

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipyard_report/report"
	"shipyard_report/store"
)

func TestLoadIncompleteKeyIsDraft(t *testing.T) {
	backend := newCounting(seededMemory())
	doc := loadDoc(t, backend, report.Key{AuthorID: "u-1", Date: "2024-05-02"})

	assert.Empty(t, doc.ID)
	assert.Equal(t, report.StatusDraft, doc.Status)
	assert.Empty(t, doc.Rows)
	assert.Zero(t, backend.count("FindReports"))
}

func TestLoadMissingReportIsDraft(t *testing.T) {
	doc := loadDoc(t, seededMemory(), keyMay2)

	assert.Empty(t, doc.ID)
	assert.Equal(t, keyMay2, doc.Key())
	assert.Equal(t, report.StatusDraft, doc.Status)
	assert.NotNil(t, doc.Rows)
}

func TestLoadInvalidDate(t *testing.T) {
	var committed error
	err := NewLoader(seededMemory()).Load(context.Background(),
		report.Key{AuthorID: "u-1", CrewRole: report.CrewElectrician, Date: "02/05/2024"},
		func(_ report.Report, err error) { committed = err })

	var verr *report.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"date"}, verr.Invalid)
	assert.Equal(t, err, committed)
}

func TestLoadPicksNewestDuplicate(t *testing.T) {
	mem := seededMemory()
	ctx := context.Background()
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	created := time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC)
	for i, site := range []string{"OLD", "NEW", "MID"} {
		_, err := mem.InsertReport(ctx, store.ReportRecord{
			AuthorID:  "u-1",
			CrewRole:  string(report.CrewElectrician),
			Date:      date,
			SiteCode:  sql.NullString{String: site, Valid: true},
			CreatedAt: created.Add(time.Duration([]int{0, 2, 1}[i]) * time.Hour),
		})
		require.NoError(t, err)
	}

	doc := loadDoc(t, mem, keyMay2)
	assert.Equal(t, "NEW", doc.SiteCode)
}

func TestLoadBatchesChildQueries(t *testing.T) {
	mem := seededMemory()
	doc := draftWithOperators(keyMay2)
	for range 6 {
		doc.Rows = report.AddRow(doc.Rows, report.Row{Category: "EXTRA"})
		n := len(doc.Rows) - 1
		doc.Rows = report.AddOperatorAssignment(doc.Rows, n, report.Operator{ID: "op-c"})
	}
	saveDoc(t, mem, doc)

	backend := newCounting(mem)
	loaded := loadDoc(t, backend, keyMay2)

	require.Len(t, loaded.Rows, 8)
	for _, name := range []string{"FindReports", "Rows", "Assignments", "Operators"} {
		assert.Equal(t, 1, backend.count(name), name)
	}
}

func TestLoadResolvesLabelsAndLegacyProjection(t *testing.T) {
	mem := seededMemory()
	saveDoc(t, mem, draftWithOperators(keyMay2))

	doc := loadDoc(t, mem, keyMay2)
	require.Len(t, doc.Rows, 2)

	row := doc.Rows[0]
	require.Len(t, row.OperatorAssignments, 2)
	assert.Equal(t, "Rossi Mario", row.OperatorAssignments[0].Label)
	assert.Equal(t, "Bruno Luca", row.OperatorAssignments[1].Label)
	assert.Equal(t, "Rossi Mario\nBruno Luca", row.LegacyOperatorsText)
	assert.Equal(t, "8\n4,5", row.LegacyHoursText)

	legacy := doc.Rows[1]
	assert.Empty(t, legacy.OperatorAssignments)
	assert.Equal(t, "Verdi\nNeri", legacy.LegacyOperatorsText)
	assert.Equal(t, "6\n", legacy.LegacyHoursText)
	assert.Equal(t, ptr(12), legacy.PlannedQuantity)
	assert.Nil(t, legacy.ProducedQuantity)
}

func TestLoadLabelFallsBackToID(t *testing.T) {
	mem := seededMemory()
	doc := report.NewDraft(keyMay2)
	doc.Rows = report.AddRow(doc.Rows, report.Row{Category: "X"})
	doc.Rows = report.AddOperatorAssignment(doc.Rows, 0, report.Operator{ID: "op-c", Label: "stale"})
	saveDoc(t, mem, doc)

	loaded := loadDoc(t, mem, keyMay2)
	assert.Equal(t, "op-c", loaded.Rows[0].OperatorAssignments[0].Label)
}

// stallingBackend holds the first Assignments call until its context ends.
type stallingBackend struct {
	*store.Memory
	calls   atomic.Int32
	stalled chan struct{}
}

func (s *stallingBackend) Assignments(ctx context.Context, rowIDs []string) ([]store.AssignmentRecord, error) {
	if s.calls.Add(1) == 1 {
		close(s.stalled)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Memory.Assignments(ctx, rowIDs)
}

func TestLoadSupersededByNewerKey(t *testing.T) {
	mem := seededMemory()
	saveDoc(t, mem, draftWithOperators(keyMay2))
	may3 := keyMay2
	may3.Date = "2024-05-03"
	next := draftWithOperators(may3)
	next.SiteCode = "MON"
	saveDoc(t, mem, next)

	backend := &stallingBackend{Memory: mem, stalled: make(chan struct{})}
	loader := NewLoader(backend)

	var mu sync.Mutex
	var committed []report.Report
	commit := func(doc report.Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		committed = append(committed, doc)
	}

	first := make(chan error, 1)
	go func() { first <- loader.Load(context.Background(), keyMay2, commit) }()
	<-backend.stalled

	require.NoError(t, loader.Load(context.Background(), may3, commit))
	err := <-first

	assert.ErrorIs(t, err, report.ErrAborted)
	assert.True(t, report.IsAborted(err))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, committed, 1)
	assert.Equal(t, "2024-05-03", committed[0].Date)
	assert.Equal(t, "MON", committed[0].SiteCode)
}

func TestLoaderCancel(t *testing.T) {
	mem := seededMemory()
	saveDoc(t, mem, draftWithOperators(keyMay2))
	backend := &stallingBackend{Memory: mem, stalled: make(chan struct{})}
	loader := NewLoader(backend)

	done := make(chan error, 1)
	go func() {
		done <- loader.Load(context.Background(), keyMay2, func(report.Report, error) {
			t.Error("cancelled load must not commit")
		})
	}()
	<-backend.stalled
	loader.Cancel()

	assert.ErrorIs(t, <-done, report.ErrAborted)
}

func TestLoadBackendErrorIsCommitted(t *testing.T) {
	backend := &failingBackend{Memory: seededMemory(), failFind: true}
	var committed error
	err := NewLoader(backend).Load(context.Background(), keyMay2, func(_ report.Report, err error) { committed = err })

	require.Error(t, err)
	assert.False(t, report.IsAborted(err))
	assert.Equal(t, err, committed)
	msg, detail := report.Describe(err)
	assert.Equal(t, "Could not reach the report archive.", msg)
	assert.Contains(t, detail, "connection refused")
}
