package report

import "strings"

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// AlignLegacy pads the operator and hour line lists to the same length.
// Trailing lines that are blank in both lists are dropped.
func AlignLegacy(operators, hours string) (string, string) {
	ops := splitLines(operators)
	hrs := splitLines(hours)
	n := max(len(ops), len(hrs))
	for len(ops) < n {
		ops = append(ops, "")
	}
	for len(hrs) < n {
		hrs = append(hrs, "")
	}
	for n > 0 && strings.TrimSpace(ops[n-1]) == "" && strings.TrimSpace(hrs[n-1]) == "" {
		n--
	}
	return strings.Join(ops[:n], "\n"), strings.Join(hrs[:n], "\n")
}

// ProjectLegacy renders canonical assignments as the two aligned legacy text
// fields used by exports and print layouts.
func ProjectLegacy(assignments []OperatorAssignment) (string, string) {
	ops := make([]string, len(assignments))
	hrs := make([]string, len(assignments))
	for i, a := range assignments {
		label := a.Label
		if label == "" {
			label = a.OperatorID
		}
		ops[i] = label
		hrs[i] = strings.TrimSpace(a.RawHoursText)
	}
	return strings.Join(ops, "\n"), strings.Join(hrs, "\n")
}

// syncLegacy recomputes the legacy fields of row from whichever
// representation is authoritative for it.
func syncLegacy(row *Row) {
	if row.HoursLocked() {
		row.LegacyOperatorsText, row.LegacyHoursText = ProjectLegacy(row.OperatorAssignments)
		return
	}
	row.LegacyOperatorsText, row.LegacyHoursText = AlignLegacy(row.LegacyOperatorsText, row.LegacyHoursText)
}

// Normalize reindexes rows and assignments densely and refreshes the legacy projections.
func Normalize(rows []Row) {
	for i := range rows {
		rows[i].Position = i
		if rows[i].OperatorAssignments == nil {
			rows[i].OperatorAssignments = []OperatorAssignment{}
		}
		for j := range rows[i].OperatorAssignments {
			rows[i].OperatorAssignments[j].LineIndex = j
		}
		syncLegacy(&rows[i])
	}
}
