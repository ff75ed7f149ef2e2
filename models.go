package main

import (
	"shipyard_report/editor"
	"shipyard_report/report"
)

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Aborted bool   `json:"aborted,omitempty"`
}

type HeaderRequest struct {
	SiteCode     *string  `json:"site_code"`
	ContractCode *string  `json:"contract_code"`
	TotalOutput  *float64 `json:"total_output"`
}

type RowRequest struct {
	Category            string   `json:"category"`
	Description         string   `json:"description"`
	LegacyOperatorsText string   `json:"legacy_operators_text"`
	LegacyHoursText     string   `json:"legacy_hours_text"`
	PlannedQuantity     *float64 `json:"planned_quantity"`
	ProducedQuantity    *float64 `json:"produced_quantity"`
	Note                string   `json:"note"`
	ActivityReferenceID *string  `json:"activity_reference_id"`
}

func (r RowRequest) template() report.Row {
	return report.Row{
		Category:            r.Category,
		Description:         r.Description,
		LegacyOperatorsText: r.LegacyOperatorsText,
		LegacyHoursText:     r.LegacyHoursText,
		PlannedQuantity:     r.PlannedQuantity,
		ProducedQuantity:    r.ProducedQuantity,
		Note:                r.Note,
		ActivityReferenceID: r.ActivityReferenceID,
	}
}

type CellRequest struct {
	Field report.Field `json:"field"`
	Value string       `json:"value"`
}

type OperatorRequest struct {
	OperatorID string `json:"operator_id"`
}

// ToggleRequest carries the operator and an optional action. Action may be
// "add", "remove", a checkbox bool or absent.
type ToggleRequest struct {
	OperatorID string `json:"operator_id"`
	Action     any    `json:"action"`
}

type HoursRequest struct {
	RawHoursText string `json:"raw_hours_text"`
}

type LegacyHoursRequest struct {
	Value string `json:"value"`
}

type SaveRequest struct {
	Status report.Status `json:"status"`
}

type SaveResponse struct {
	Result    editor.SaveResult `json:"result"`
	Workspace editor.Snapshot   `json:"workspace"`
}
