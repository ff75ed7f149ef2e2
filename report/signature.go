package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type signatureAssignment struct {
	OperatorID   string `json:"o"`
	Label        string `json:"l"`
	RawHoursText string `json:"r"`
	ParsedHours  string `json:"h"`
	LineIndex    int    `json:"i"`
}

type signatureRow struct {
	Category            string                `json:"c"`
	Description         string                `json:"d"`
	LegacyOperatorsText string                `json:"lo"`
	LegacyHoursText     string                `json:"lh"`
	PlannedQuantity     string                `json:"pq"`
	ProducedQuantity    string                `json:"xq"`
	Note                string                `json:"n"`
	ActivityReferenceID string                `json:"a"`
	Assignments         []signatureAssignment `json:"op"`
}

type signatureDoc struct {
	AuthorID     string         `json:"au"`
	CrewRole     CrewRole       `json:"cr"`
	Date         string         `json:"dt"`
	Status       Status         `json:"st"`
	SiteCode     string         `json:"si"`
	ContractCode string         `json:"co"`
	Rows         []signatureRow `json:"rows"`
}

// signatureNumber renders an optional number so that null, zero and
// non-finite values stay distinct and encoding cannot fail.
func signatureNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func signatureRef(v *string) string {
	if v == nil {
		return ""
	}
	return "=" + *v
}

// Signature fingerprints the persisted content of r. Ids, positions and
// timestamps are left out, so a document reads the same before and after a save.
func Signature(r Report) string {
	doc := signatureDoc{
		AuthorID:     r.AuthorID,
		CrewRole:     r.CrewRole,
		Date:         r.Date,
		Status:       r.Status,
		SiteCode:     r.SiteCode,
		ContractCode: r.ContractCode,
		Rows:         make([]signatureRow, len(r.Rows)),
	}
	for i, row := range r.Rows {
		sr := signatureRow{
			Category:            row.Category,
			Description:         row.Description,
			LegacyOperatorsText: row.LegacyOperatorsText,
			LegacyHoursText:     row.LegacyHoursText,
			PlannedQuantity:     signatureNumber(row.PlannedQuantity),
			ProducedQuantity:    signatureNumber(row.ProducedQuantity),
			Note:                row.Note,
			ActivityReferenceID: signatureRef(row.ActivityReferenceID),
			Assignments:         make([]signatureAssignment, len(row.OperatorAssignments)),
		}
		for j, a := range row.OperatorAssignments {
			sr.Assignments[j] = signatureAssignment{
				OperatorID:   a.OperatorID,
				Label:        a.Label,
				RawHoursText: a.RawHoursText,
				ParsedHours:  signatureNumber(a.ParsedHours),
				LineIndex:    a.LineIndex,
			}
		}
		doc.Rows[i] = sr
	}
	b, err := json.Marshal(doc)
	if err != nil {
		// the projection holds only strings and ints; keep distinct documents distinct anyway
		b = fmt.Appendf(nil, "%#v", doc)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HasContent reports whether r is worth saving: a site or contract code, or a
// row carrying text or at least one operator.
func HasContent(r Report) bool {
	if strings.TrimSpace(r.SiteCode) != "" || strings.TrimSpace(r.ContractCode) != "" {
		return true
	}
	for _, row := range r.Rows {
		if len(row.OperatorAssignments) > 0 {
			return true
		}
		for _, s := range []string{row.Category, row.Description, row.LegacyOperatorsText, row.LegacyHoursText, row.Note} {
			if strings.TrimSpace(s) != "" {
				return true
			}
		}
	}
	return false
}
