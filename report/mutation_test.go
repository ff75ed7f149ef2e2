package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	opA = Operator{ID: "op-a", Label: "Bianchi A."}
	opB = Operator{ID: "op-b", Label: "Conti B."}
	opC = Operator{ID: "op-c", Label: "Ferri C."}
)

func rowWith(ops ...Operator) []Row {
	rows := AddRow(nil, Row{Category: "CABLAGGIO"})
	for _, op := range ops {
		rows = AddOperatorAssignment(rows, 0, op)
	}
	return rows
}

func TestAddRow(t *testing.T) {
	rows := AddRow(nil, Row{Description: "pull cable", ID: "ignored"})
	rows = AddRow(rows, Row{Description: "terminate"})

	require.Len(t, rows, 2)
	assert.True(t, IsTempID(rows[0].ID))
	assert.NotEqual(t, rows[0].ID, rows[1].ID)
	assert.Equal(t, 1, rows[1].Position)
	assert.Empty(t, rows[1].OperatorAssignments)
	assert.NotNil(t, rows[1].OperatorAssignments)
}

func TestRemoveRowKeepsPositionsDense(t *testing.T) {
	rows := AddRow(nil, Row{Description: "a"})
	rows = AddRow(rows, Row{Description: "b"})
	rows = AddRow(rows, Row{Description: "c"})

	out := RemoveRow(rows, 0)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Description)
	assert.Equal(t, 0, out[0].Position)
	assert.Equal(t, 1, out[1].Position)
	assert.Len(t, rows, 3, "input must stay untouched")
	assert.Equal(t, 1, rows[1].Position)

	assert.Equal(t, rows, RemoveRow(rows, 5))
}

func TestUpdateCell(t *testing.T) {
	rows := AddRow(nil, Row{})
	rows = UpdateCell(rows, 0, FieldPlannedQuantity, "12,5")
	rows = UpdateCell(rows, 0, FieldProducedQuantity, "")
	rows = UpdateCell(rows, 0, FieldNote, "late delivery")
	rows = UpdateCell(rows, 0, FieldActivityReferenceID, "act-9")

	require.NotNil(t, rows[0].PlannedQuantity)
	assert.Equal(t, 12.5, *rows[0].PlannedQuantity)
	assert.Nil(t, rows[0].ProducedQuantity)
	assert.Equal(t, "late delivery", rows[0].Note)
	require.NotNil(t, rows[0].ActivityReferenceID)
	assert.Equal(t, "act-9", *rows[0].ActivityReferenceID)

	rows = UpdateCell(rows, 0, FieldActivityReferenceID, " ")
	assert.Nil(t, rows[0].ActivityReferenceID)

	before := rows
	assert.Equal(t, before, UpdateCell(rows, 0, Field("bogus"), "x"))
}

func TestAddOperatorAssignmentIgnoresDuplicates(t *testing.T) {
	rows := rowWith(opA)
	again := AddOperatorAssignment(rows, 0, opA)

	assert.Len(t, again[0].OperatorAssignments, 1)
	assert.Equal(t, rows, again)
}

func TestAddOperatorAssignmentProjectsLegacyText(t *testing.T) {
	rows := rowWith(opA, opB)
	rows = SetAssignmentHours(rows, 0, 0, "8")
	rows = SetAssignmentHours(rows, 0, 1, "4,5")

	assert.Equal(t, "Bianchi A.\nConti B.", rows[0].LegacyOperatorsText)
	assert.Equal(t, "8\n4,5", rows[0].LegacyHoursText)
	assert.Equal(t, 1, rows[0].OperatorAssignments[1].LineIndex)
}

func TestRemoveOperatorAssignmentReindexes(t *testing.T) {
	rows := rowWith(opA, opB, opC)
	out := RemoveOperatorAssignment(rows, 0, opA.ID)

	got := out[0].OperatorAssignments
	require.Len(t, got, 2)
	assert.Equal(t, opB.ID, got[0].OperatorID)
	assert.Equal(t, 0, got[0].LineIndex)
	assert.Equal(t, opC.ID, got[1].OperatorID)
	assert.Equal(t, 1, got[1].LineIndex)
	assert.Equal(t, "Conti B.\nFerri C.", out[0].LegacyOperatorsText)

	assert.Len(t, rows[0].OperatorAssignments, 3, "input must stay untouched")
	assert.Equal(t, opA.ID, rows[0].OperatorAssignments[0].OperatorID)
}

func TestRemoveOperatorAssignmentFromMiddle(t *testing.T) {
	for k := 0; k < 3; k++ {
		out := RemoveOperatorAssignment(rowWith(opA, opB, opC), 0, []Operator{opA, opB, opC}[k].ID)
		for i, a := range out[0].OperatorAssignments {
			assert.Equal(t, i, a.LineIndex)
		}
		assert.Len(t, out[0].OperatorAssignments, 2)
	}
}

func TestSetAssignmentHoursRejectsNegative(t *testing.T) {
	rows := rowWith(opA)
	rows = SetAssignmentHours(rows, 0, 0, "-1")

	assert.Equal(t, "-1", rows[0].OperatorAssignments[0].RawHoursText)
	assert.Nil(t, rows[0].OperatorAssignments[0].ParsedHours)

	rows = SetAssignmentHours(rows, 0, 0, "7,5")
	require.NotNil(t, rows[0].OperatorAssignments[0].ParsedHours)
	assert.Equal(t, 7.5, *rows[0].OperatorAssignments[0].ParsedHours)
}

func TestSetLegacyHoursLockedByAssignments(t *testing.T) {
	free := AddRow(nil, Row{LegacyOperatorsText: "A"})
	free = SetLegacyHours(free, 0, "8")
	assert.Equal(t, "8", free[0].LegacyHoursText)

	locked := rowWith(opA)
	locked = SetAssignmentHours(locked, 0, 0, "6")
	out := SetLegacyHours(locked, 0, "99")
	assert.Equal(t, "6", out[0].LegacyHoursText)

	out = UpdateCell(locked, 0, FieldLegacyHoursText, "99")
	assert.Equal(t, "6", out[0].LegacyHoursText)
}

func TestToggleOperatorAssignment(t *testing.T) {
	rows := AddRow(nil, Row{})

	rows, err := ToggleOperatorAssignment(rows, 0, opA, nil)
	require.NoError(t, err)
	assert.Len(t, rows[0].OperatorAssignments, 1)

	rows, err = ToggleOperatorAssignment(rows, 0, opA, nil)
	require.NoError(t, err)
	assert.Empty(t, rows[0].OperatorAssignments)

	// explicit action first, operator second
	rows, err = ToggleOperatorAssignment(rows, 0, ToggleAdd, opB)
	require.NoError(t, err)
	rows, err = ToggleOperatorAssignment(rows, 0, true, &opB)
	require.NoError(t, err)
	assert.Len(t, rows[0].OperatorAssignments, 1)

	rows, err = ToggleOperatorAssignment(rows, 0, &opB, "remove")
	require.NoError(t, err)
	assert.Empty(t, rows[0].OperatorAssignments)

	_, err = ToggleOperatorAssignment(rows, 0, ToggleAdd, nil)
	assert.Error(t, err)
	_, err = ToggleOperatorAssignment(rows, 0, opA, 42)
	assert.Error(t, err)
	_, err = ToggleOperatorAssignment(rows, 0, opA, "flip")
	assert.Error(t, err)
}
