package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DateLayout = "2006-01-02"

type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusValidatedByForeman Status = "VALIDATED_BY_FOREMAN"
	StatusApprovedByOffice   Status = "APPROVED_BY_OFFICE"
	StatusReturned           Status = "RETURNED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusValidatedByForeman, StatusApprovedByOffice, StatusReturned:
		return true
	}
	return false
}

// CrewRole is the job family a report is written for.
type CrewRole string

const (
	CrewElectrician     CrewRole = "ELECTRICIAN"
	CrewCableLayer      CrewRole = "CABLE_LAYER"
	CrewInstrumentation CrewRole = "INSTRUMENTATION"
	CrewCarpenter       CrewRole = "CARPENTER"
	CrewMechanic        CrewRole = "MECHANIC"
)

func (c CrewRole) Valid() bool {
	switch c {
	case CrewElectrician, CrewCableLayer, CrewInstrumentation, CrewCarpenter, CrewMechanic:
		return true
	}
	return false
}

type Report struct {
	ID           string    `json:"id,omitempty"`
	AuthorID     string    `json:"author_id"`
	CrewRole     CrewRole  `json:"crew_role"`
	Date         string    `json:"date"`
	SiteCode     string    `json:"site_code"`
	ContractCode string    `json:"contract_code"`
	Status       Status    `json:"status"`
	TotalOutput  float64   `json:"total_output"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
	Rows         []Row     `json:"rows"`
}

type Row struct {
	ID                  string               `json:"id"`
	Position            int                  `json:"position"`
	Category            string               `json:"category"`
	Description         string               `json:"description"`
	LegacyOperatorsText string               `json:"legacy_operators_text"`
	LegacyHoursText     string               `json:"legacy_hours_text"`
	PlannedQuantity     *float64             `json:"planned_quantity"`
	ProducedQuantity    *float64             `json:"produced_quantity"`
	Note                string               `json:"note"`
	ActivityReferenceID *string              `json:"activity_reference_id"`
	OperatorAssignments []OperatorAssignment `json:"operator_assignments"`
}

// HoursLocked reports whether the legacy hour text is a read-only projection
// of the canonical assignments.
func (r Row) HoursLocked() bool {
	return len(r.OperatorAssignments) > 0
}

type OperatorAssignment struct {
	OperatorID   string   `json:"operator_id"`
	Label        string   `json:"label"`
	RawHoursText string   `json:"raw_hours_text"`
	ParsedHours  *float64 `json:"parsed_hours"`
	LineIndex    int      `json:"line_index"`
}

type Operator struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Key identifies the single logical report of an author, crew role and day.
type Key struct {
	AuthorID string
	CrewRole CrewRole
	Date     string
}

func (k Key) Complete() bool {
	return k.AuthorID != "" && k.CrewRole != "" && k.Date != ""
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.AuthorID, k.CrewRole, k.Date)
}

func (r Report) Key() Key {
	return Key{AuthorID: r.AuthorID, CrewRole: r.CrewRole, Date: r.Date}
}

// NewDraft returns an empty, unsaved document for key.
func NewDraft(key Key) Report {
	return Report{
		AuthorID: key.AuthorID,
		CrewRole: key.CrewRole,
		Date:     key.Date,
		Status:   StatusDraft,
		Rows:     []Row{},
	}
}

// Clone returns a deep copy, so the result can be handed to another goroutine.
func (r Report) Clone() Report {
	out := r
	out.Rows = make([]Row, len(r.Rows))
	for i, row := range r.Rows {
		out.Rows[i] = row.clone()
	}
	return out
}

func (r Row) clone() Row {
	out := r
	out.PlannedQuantity = cloneFloat(r.PlannedQuantity)
	out.ProducedQuantity = cloneFloat(r.ProducedQuantity)
	if r.ActivityReferenceID != nil {
		v := *r.ActivityReferenceID
		out.ActivityReferenceID = &v
	}
	out.OperatorAssignments = make([]OperatorAssignment, len(r.OperatorAssignments))
	for i, a := range r.OperatorAssignments {
		a.ParsedHours = cloneFloat(a.ParsedHours)
		out.OperatorAssignments[i] = a
	}
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// NormalizeDate accepts a calendar date or an RFC 3339 timestamp and returns
// it in DateLayout.
func NormalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.Format(DateLayout), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q", s)
	}
	return t.Format(DateLayout), nil
}

const tempIDPrefix = "tmp-"

// NewTempID returns a client-side identifier for a record that has not been saved yet.
func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

func IsTempID(id string) bool {
	return id == "" || strings.HasPrefix(id, tempIDPrefix)
}
