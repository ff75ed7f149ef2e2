package editor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipyard_report/report"
	"shipyard_report/store"
)

// noIO panics on any backend call.
type noIO struct{ store.Backend }

func TestSaveValidationPerformsNoIO(t *testing.T) {
	s := NewSaver(noIO{}, nil)
	tests := []struct {
		name    string
		doc     report.Report
		opts    SaveOptions
		missing []string
		invalid []string
	}{
		{
			name:    "no author",
			doc:     report.NewDraft(report.Key{CrewRole: report.CrewElectrician, Date: "2024-05-02"}),
			opts:    SaveOptions{EffectiveAuthorID: "u-1"},
			missing: []string{"author_id"},
		},
		{
			name:    "no effective author",
			doc:     report.NewDraft(keyMay2),
			missing: []string{"effective_author_id"},
		},
		{
			name:    "no crew role or date",
			doc:     report.NewDraft(report.Key{AuthorID: "u-1"}),
			opts:    SaveOptions{EffectiveAuthorID: "u-1"},
			missing: []string{"crew_role", "date"},
		},
		{
			name:    "unknown status",
			doc:     report.NewDraft(keyMay2),
			opts:    SaveOptions{EffectiveAuthorID: "u-1", Status: "SIGNED"},
			invalid: []string{"status"},
		},
		{
			name:    "bad crew role",
			doc:     report.NewDraft(report.Key{AuthorID: "u-1", CrewRole: "PAINTER", Date: "2024-05-02"}),
			opts:    SaveOptions{EffectiveAuthorID: "u-1"},
			invalid: []string{"crew_role"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Save(context.Background(), tt.doc, tt.opts)
			var verr *report.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.missing, verr.Missing)
			assert.Equal(t, tt.invalid, verr.Invalid)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	mem := seededMemory()
	doc := draftWithOperators(keyMay2)
	res, err := NewSaver(mem, nil).Save(context.Background(), doc, SaveOptions{EffectiveAuthorID: "u-1"})
	require.NoError(t, err)
	assert.False(t, report.IsTempID(res.ReportID))
	assert.Equal(t, report.StatusDraft, res.Status)

	loaded := loadDoc(t, mem, keyMay2)
	assert.Equal(t, res.ReportID, loaded.ID)
	require.Len(t, loaded.Rows, 2)
	assert.Equal(t, []report.OperatorAssignment{
		{OperatorID: "op-a", Label: "Rossi Mario", RawHoursText: "8", ParsedHours: ptr(8), LineIndex: 0},
		{OperatorID: "op-b", Label: "Bruno Luca", RawHoursText: "4,5", ParsedHours: ptr(4.5), LineIndex: 1},
	}, loaded.Rows[0].OperatorAssignments)
	assert.Equal(t, report.Signature(doc), report.Signature(loaded))
}

func TestSaveWritesDensePositions(t *testing.T) {
	mem := seededMemory()
	doc := draftWithOperators(keyMay2)
	doc.Rows[0].Position = 7
	doc.Rows[1].Position = 3
	doc = saveDoc(t, mem, doc)

	recs, err := mem.Rows(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for i, rec := range recs {
		assert.Equal(t, i, rec.Position)
		assert.Equal(t, i+1, rec.SecondaryOrderIndex)
	}
	assert.Equal(t, "CABLAGGIO", recs[0].Category.String)
	assert.False(t, recs[0].PlannedQuantity.Valid)
	assert.True(t, recs[1].PlannedQuantity.Valid)
	assert.Equal(t, 12.0, recs[1].PlannedQuantity.Float64)
}

func TestSaveTwiceIsIdempotent(t *testing.T) {
	mem := seededMemory()
	doc := saveDoc(t, mem, draftWithOperators(keyMay2))
	first := loadDoc(t, mem, keyMay2)

	doc = saveDoc(t, mem, doc)
	second := loadDoc(t, mem, keyMay2)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, report.Signature(first), report.Signature(second))
	require.Len(t, second.Rows, len(first.Rows))
	assert.NotEqual(t, first.Rows[0].ID, second.Rows[0].ID, "rows are replaced, not updated")
	ids, err := mem.RowIDs(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Len(t, ids, len(first.Rows))
}

func TestSaveMapsRowIDs(t *testing.T) {
	mem := seededMemory()
	doc := draftWithOperators(keyMay2)
	tmp := doc.Rows[1].ID

	res, err := NewSaver(mem, nil).Save(context.Background(), doc, SaveOptions{EffectiveAuthorID: "u-1"})
	require.NoError(t, err)
	require.Contains(t, res.RowIDs, tmp)

	res.Apply(&doc)
	assert.Equal(t, res.ReportID, doc.ID)
	assert.Equal(t, res.RowIDs[tmp], doc.Rows[1].ID)
	assert.False(t, report.IsTempID(doc.Rows[0].ID))
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestSaveStatusOverride(t *testing.T) {
	mem := seededMemory()
	doc := draftWithOperators(keyMay2)
	s := NewSaver(mem, nil)

	res, err := s.Save(context.Background(), doc, SaveOptions{EffectiveAuthorID: "u-1", Status: report.StatusValidatedByForeman})
	require.NoError(t, err)
	assert.Equal(t, report.StatusValidatedByForeman, res.Status)
	res.Apply(&doc)

	// without an override the document status is kept
	res, err = s.Save(context.Background(), doc, SaveOptions{EffectiveAuthorID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, report.StatusValidatedByForeman, res.Status)

	doc.Status = ""
	res, err = s.Save(context.Background(), doc, SaveOptions{EffectiveAuthorID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, report.StatusDraft, res.Status)
}

func TestSaveToleratesNotifierFailure(t *testing.T) {
	notifier := &failingRefresher{}
	_, err := NewSaver(seededMemory(), notifier).Save(context.Background(), draftWithOperators(keyMay2), SaveOptions{EffectiveAuthorID: "u-1"})

	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)
}

func TestSaveFailureRollsBack(t *testing.T) {
	backend := &failingBackend{Memory: seededMemory()}
	doc := saveDoc(t, backend, draftWithOperators(keyMay2))
	before := loadDoc(t, backend, keyMay2)

	backend.failAssignments = true
	doc.Rows = report.RemoveRow(doc.Rows, 1)
	_, err := NewSaver(backend, nil).Save(context.Background(), doc, SaveOptions{EffectiveAuthorID: "u-1"})

	var perr *report.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, errBackendDown)

	after := loadDoc(t, backend, keyMay2)
	assert.Equal(t, before.Rows, after.Rows)
}

func TestSaveSurfacesConstraintViolation(t *testing.T) {
	doc := draftWithOperators(keyMay2)
	// two lines for the same operator bypassing the duplicate guard
	doc.Rows[0].OperatorAssignments[1].OperatorID = "op-a"

	_, err := NewSaver(seededMemory(), nil).Save(context.Background(), doc, SaveOptions{EffectiveAuthorID: "u-1"})

	var cerr *report.ConstraintViolationError
	require.ErrorAs(t, err, &cerr)
	msg, _ := report.Describe(err)
	assert.Equal(t, "This entry has already been recorded and cannot be registered twice.", msg)
}
