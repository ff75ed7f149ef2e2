package report

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureIgnoresIdentifiers(t *testing.T) {
	doc := NewDraft(Key{AuthorID: "u1", CrewRole: CrewElectrician, Date: "2024-05-02"})
	doc.Rows = rowWith(opA)
	saved := doc.Clone()
	saved.ID = "r-1"
	saved.Rows[0].ID = "row-1"

	assert.Equal(t, Signature(doc), Signature(saved))
}

func TestSignatureTracksContent(t *testing.T) {
	doc := NewDraft(Key{AuthorID: "u1", CrewRole: CrewElectrician, Date: "2024-05-02"})
	base := Signature(doc)

	doc.SiteCode = "SDC"
	assert.NotEqual(t, base, Signature(doc))

	withRow := doc
	withRow.Rows = rowWith(opA)
	withHours := withRow
	withHours.Rows = SetAssignmentHours(withRow.Rows, 0, 0, "8")
	assert.NotEqual(t, Signature(withRow), Signature(withHours))

	withStatus := withHours
	withStatus.Status = StatusValidatedByForeman
	assert.NotEqual(t, Signature(withHours), Signature(withStatus))
}

func TestSignatureWithNonFiniteNumbers(t *testing.T) {
	doc := NewDraft(Key{AuthorID: "u1", CrewRole: CrewElectrician, Date: "2024-05-02"})
	doc.Rows = AddRow(doc.Rows, Row{Category: "CABLAGGIO", PlannedQuantity: ptr(math.Inf(1))})
	base := Signature(doc)
	assert.NotEqual(t, Signature(NewDraft(doc.Key())), base)

	edited := doc.Clone()
	edited.Rows[0].Description = "deck 4"
	assert.NotEqual(t, base, Signature(edited))

	edited.SiteCode = "SDC"
	assert.NotEqual(t, base, Signature(edited))

	negative := doc.Clone()
	negative.Rows[0].PlannedQuantity = ptr(math.Inf(-1))
	assert.NotEqual(t, base, Signature(negative))
}

func TestSignatureSeparatesNullFromZero(t *testing.T) {
	doc := NewDraft(Key{AuthorID: "u1", CrewRole: CrewElectrician, Date: "2024-05-02"})
	doc.Rows = AddRow(doc.Rows, Row{Category: "CABLAGGIO"})
	zero := doc.Clone()
	zero.Rows[0].ProducedQuantity = ptr(0)
	assert.NotEqual(t, Signature(doc), Signature(zero))

	ref := ""
	withRef := doc.Clone()
	withRef.Rows[0].ActivityReferenceID = &ref
	assert.NotEqual(t, Signature(doc), Signature(withRef))
}

func TestHasContent(t *testing.T) {
	doc := NewDraft(Key{AuthorID: "u1", CrewRole: CrewElectrician, Date: "2024-05-02"})
	assert.False(t, HasContent(doc))

	doc.Rows = AddRow(nil, Row{})
	assert.False(t, HasContent(doc), "blank row")

	doc.Rows = UpdateCell(doc.Rows, 0, FieldDescription, "pull cable")
	assert.True(t, HasContent(doc))

	doc = NewDraft(doc.Key())
	doc.SiteCode = "SDC"
	doc.ContractCode = "006368"
	assert.True(t, HasContent(doc))

	doc = NewDraft(doc.Key())
	doc.Rows = rowWith(opA)
	doc.Rows[0].Category = ""
	assert.True(t, HasContent(doc))
}

func TestCloneIsDeep(t *testing.T) {
	doc := NewDraft(Key{AuthorID: "u1", CrewRole: CrewElectrician, Date: "2024-05-02"})
	doc.Rows = rowWith(opA)
	doc.Rows = SetAssignmentHours(doc.Rows, 0, 0, "8")

	c := doc.Clone()
	*c.Rows[0].OperatorAssignments[0].ParsedHours = 1
	c.Rows[0].OperatorAssignments[0].Label = "changed"

	assert.Equal(t, 8.0, *doc.Rows[0].OperatorAssignments[0].ParsedHours)
	assert.Equal(t, opA.Label, doc.Rows[0].OperatorAssignments[0].Label)
}

func TestNormalizeDate(t *testing.T) {
	d, err := NormalizeDate("2024-05-02T00:00:00Z")
	assert.NoError(t, err)
	assert.Equal(t, "2024-05-02", d)

	_, err = NormalizeDate("02/05/2024")
	assert.Error(t, err)
}
