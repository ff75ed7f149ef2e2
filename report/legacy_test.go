package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignLegacy(t *testing.T) {
	testCases := []struct {
		name      string
		ops, hrs  string
		wantOps   string
		wantHours string
	}{
		{"equal", "A\nB", "8\n4", "A\nB", "8\n4"},
		{"missing hours", "A\nB\nC", "8", "A\nB\nC", "8\n\n"},
		{"extra hours", "A", "8\n4", "A\n", "8\n4"},
		{"trailing blank lines", "A\n\n", "8\n\n", "A", "8"},
		{"both empty", "", "", "", ""},
		{"windows newlines", "A\r\nB", "1\r\n2", "A\nB", "1\n2"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ops, hrs := AlignLegacy(tc.ops, tc.hrs)
			assert.Equal(t, tc.wantOps, ops)
			assert.Equal(t, tc.wantHours, hrs)
			assert.Equal(t, len(strings.Split(ops, "\n")), len(strings.Split(hrs, "\n")))
		})
	}
}

func TestProjectLegacy(t *testing.T) {
	ops, hrs := ProjectLegacy([]OperatorAssignment{
		{OperatorID: "a", Label: "Rossi M.", RawHoursText: "8"},
		{OperatorID: "b", RawHoursText: " 4,5 "},
	})
	assert.Equal(t, "Rossi M.\nb", ops)
	assert.Equal(t, "8\n4,5", hrs)
}

func TestNormalize(t *testing.T) {
	rows := []Row{
		{Position: 7, LegacyOperatorsText: "A\nB", LegacyHoursText: "8"},
		{Position: 3, OperatorAssignments: []OperatorAssignment{
			{OperatorID: "x", Label: "X", RawHoursText: "2", LineIndex: 4},
			{OperatorID: "y", Label: "Y", RawHoursText: "3", LineIndex: 9},
		}},
	}
	Normalize(rows)

	assert.Equal(t, 0, rows[0].Position)
	assert.Equal(t, "8\n", rows[0].LegacyHoursText)
	assert.NotNil(t, rows[0].OperatorAssignments)
	assert.Equal(t, 1, rows[1].Position)
	assert.Equal(t, 0, rows[1].OperatorAssignments[0].LineIndex)
	assert.Equal(t, 1, rows[1].OperatorAssignments[1].LineIndex)
	assert.Equal(t, "X\nY", rows[1].LegacyOperatorsText)
	assert.Equal(t, "2\n3", rows[1].LegacyHoursText)
}
