package report

import (
	"fmt"
	"slices"
	"strings"
)

// The functions in this file never modify their input slice: the returned
// slice shares unchanged rows with the input and carries fresh copies of the
// rows that were edited. An out-of-range index returns the input unchanged.

type Field string

const (
	FieldCategory            Field = "category"
	FieldDescription         Field = "description"
	FieldLegacyOperatorsText Field = "legacy_operators_text"
	FieldLegacyHoursText     Field = "legacy_hours_text"
	FieldPlannedQuantity     Field = "planned_quantity"
	FieldProducedQuantity    Field = "produced_quantity"
	FieldNote                Field = "note"
	FieldActivityReferenceID Field = "activity_reference_id"
)

func (f Field) Valid() bool {
	switch f {
	case FieldCategory, FieldDescription, FieldLegacyOperatorsText, FieldLegacyHoursText,
		FieldPlannedQuantity, FieldProducedQuantity, FieldNote, FieldActivityReferenceID:
		return true
	}
	return false
}

func inRange(rows []Row, index int) bool {
	return index >= 0 && index < len(rows)
}

// edit copies rows, applies fn to a private copy of rows[index] and returns the copy.
func edit(rows []Row, index int, fn func(row *Row)) []Row {
	if !inRange(rows, index) {
		return rows
	}
	out := slices.Clone(rows)
	row := rows[index].clone()
	fn(&row)
	out[index] = row
	return out
}

// AddRow appends tmpl with a temporary id and no operator assignments.
func AddRow(rows []Row, tmpl Row) []Row {
	row := tmpl.clone()
	row.ID = NewTempID()
	row.Position = len(rows)
	row.OperatorAssignments = []OperatorAssignment{}
	syncLegacy(&row)
	return append(slices.Clone(rows), row)
}

func RemoveRow(rows []Row, index int) []Row {
	if !inRange(rows, index) {
		return rows
	}
	out := make([]Row, 0, len(rows)-1)
	out = append(out, rows[:index]...)
	out = append(out, rows[index+1:]...)
	for i := index; i < len(out); i++ {
		if out[i].Position != i {
			out[i].Position = i
		}
	}
	return out
}

// UpdateCell sets one editable field of a row from its textual value.
// Quantities accept comma or dot decimals; blank clears them. Legacy text
// fields are ignored while the row has canonical assignments.
func UpdateCell(rows []Row, index int, field Field, value string) []Row {
	if !field.Valid() || !inRange(rows, index) {
		return rows
	}
	if (field == FieldLegacyHoursText || field == FieldLegacyOperatorsText) && rows[index].HoursLocked() {
		return rows
	}
	return edit(rows, index, func(row *Row) {
		switch field {
		case FieldCategory:
			row.Category = value
		case FieldDescription:
			row.Description = value
		case FieldLegacyOperatorsText:
			row.LegacyOperatorsText = value
		case FieldLegacyHoursText:
			row.LegacyHoursText = value
		case FieldPlannedQuantity:
			row.PlannedQuantity = ParseNumber(value)
		case FieldProducedQuantity:
			row.ProducedQuantity = ParseNumber(value)
		case FieldNote:
			row.Note = value
		case FieldActivityReferenceID:
			if v := strings.TrimSpace(value); v != "" {
				row.ActivityReferenceID = &v
			} else {
				row.ActivityReferenceID = nil
			}
		}
	})
}

func indexOfOperator(assignments []OperatorAssignment, operatorID string) int {
	return slices.IndexFunc(assignments, func(a OperatorAssignment) bool {
		return a.OperatorID == operatorID
	})
}

// AddOperatorAssignment appends op to the row unless it is already assigned there.
func AddOperatorAssignment(rows []Row, rowIndex int, op Operator) []Row {
	if op.ID == "" || !inRange(rows, rowIndex) {
		return rows
	}
	if indexOfOperator(rows[rowIndex].OperatorAssignments, op.ID) >= 0 {
		return rows
	}
	return edit(rows, rowIndex, func(row *Row) {
		row.OperatorAssignments = append(row.OperatorAssignments, OperatorAssignment{
			OperatorID: op.ID,
			Label:      op.Label,
			LineIndex:  len(row.OperatorAssignments),
		})
		syncLegacy(row)
	})
}

// RemoveOperatorAssignment drops operatorID from the row and renumbers the
// remaining lines 0..n-1 in their previous order.
func RemoveOperatorAssignment(rows []Row, rowIndex int, operatorID string) []Row {
	if !inRange(rows, rowIndex) {
		return rows
	}
	at := indexOfOperator(rows[rowIndex].OperatorAssignments, operatorID)
	if at < 0 {
		return rows
	}
	return edit(rows, rowIndex, func(row *Row) {
		row.OperatorAssignments = slices.Delete(row.OperatorAssignments, at, at+1)
		for i := range row.OperatorAssignments {
			row.OperatorAssignments[i].LineIndex = i
		}
		syncLegacy(row)
	})
}

// SetAssignmentHours stores rawText on the assignment at lineIndex. Negative
// or unreadable values keep the text but leave the parsed hours empty.
func SetAssignmentHours(rows []Row, rowIndex, lineIndex int, rawText string) []Row {
	if !inRange(rows, rowIndex) {
		return rows
	}
	at := slices.IndexFunc(rows[rowIndex].OperatorAssignments, func(a OperatorAssignment) bool {
		return a.LineIndex == lineIndex
	})
	if at < 0 {
		return rows
	}
	return edit(rows, rowIndex, func(row *Row) {
		row.OperatorAssignments[at].RawHoursText = rawText
		row.OperatorAssignments[at].ParsedHours = ParseHours(rawText)
		syncLegacy(row)
	})
}

// SetLegacyHours edits the free-text hours of a row that has no canonical
// assignments. It is a no-op otherwise.
func SetLegacyHours(rows []Row, rowIndex int, value string) []Row {
	if !inRange(rows, rowIndex) || rows[rowIndex].HoursLocked() {
		return rows
	}
	return edit(rows, rowIndex, func(row *Row) {
		row.LegacyHoursText = value
	})
}

type ToggleAction string

const (
	ToggleAuto   ToggleAction = ""
	ToggleAdd    ToggleAction = "add"
	ToggleRemove ToggleAction = "remove"
)

// ToggleOperatorAssignment adds op when absent and removes it when present,
// unless an explicit action says otherwise. The operator and the action may
// be passed in either order; the action may also be a checkbox state (true
// means add).
func ToggleOperatorAssignment(rows []Row, rowIndex int, a, b any) ([]Row, error) {
	op, action, err := normalizeToggleArgs(a, b)
	if err != nil {
		return rows, err
	}
	return toggle(rows, rowIndex, op, action), nil
}

func normalizeToggleArgs(a, b any) (Operator, ToggleAction, error) {
	var op *Operator
	action := ToggleAuto
	for _, arg := range []any{a, b} {
		switch v := arg.(type) {
		case nil:
		case Operator:
			op = &v
		case *Operator:
			if v != nil {
				c := *v
				op = &c
			}
		case ToggleAction:
			action = v
		case string:
			action = ToggleAction(v)
		case bool:
			if v {
				action = ToggleAdd
			} else {
				action = ToggleRemove
			}
		default:
			return Operator{}, "", fmt.Errorf("unsupported toggle argument %T", arg)
		}
	}
	if op == nil || op.ID == "" {
		return Operator{}, "", fmt.Errorf("toggle requires an operator")
	}
	switch action {
	case ToggleAuto, ToggleAdd, ToggleRemove:
	default:
		return Operator{}, "", fmt.Errorf("unknown toggle action %q", action)
	}
	return *op, action, nil
}

func toggle(rows []Row, rowIndex int, op Operator, action ToggleAction) []Row {
	if !inRange(rows, rowIndex) {
		return rows
	}
	present := indexOfOperator(rows[rowIndex].OperatorAssignments, op.ID) >= 0
	switch {
	case action == ToggleAdd || (action == ToggleAuto && !present):
		return AddOperatorAssignment(rows, rowIndex, op)
	default:
		return RemoveOperatorAssignment(rows, rowIndex, op.ID)
	}
}
