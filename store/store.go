// Package store persists daily work reports. Records mirror the backend tables
// and keep their nullable columns nullable; callers normalize them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type ReportRecord struct {
	ID           string
	AuthorID     string
	CrewRole     string
	Date         time.Time
	SiteCode     sql.NullString
	ContractCode sql.NullString
	Status       sql.NullString
	TotalOutput  sql.NullFloat64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RowRecord struct {
	ID                  string
	ReportID            string
	Position            int
	SecondaryOrderIndex int
	Category            sql.NullString
	Description         sql.NullString
	LegacyOperatorsText sql.NullString
	LegacyHoursText     sql.NullString
	PlannedQuantity     sql.NullFloat64
	ProducedQuantity    sql.NullFloat64
	Note                sql.NullString
	ActivityReferenceID sql.NullString
}

type AssignmentRecord struct {
	ID           string
	RowID        string
	OperatorID   string
	LineIndex    int
	RawHoursText sql.NullString
	ParsedHours  sql.NullFloat64
}

type OperatorRecord struct {
	ID          string
	DisplayName sql.NullString
	FirstName   sql.NullString
	LastName    sql.NullString
}

type User struct {
	ID           string
	Username     string
	FullName     string
	Role         string
	PasswordHash string
}

// ReturnedSummary counts the RETURNED reports of an author and crew role.
type ReturnedSummary struct {
	Count  int
	Latest *ReportRecord
}

// Backend is the relational backend the report editor talks to. Every method
// is one round trip.
type Backend interface {
	// FindReports returns the headers matching the key, newest first.
	FindReports(ctx context.Context, authorID, crewRole string, date time.Time) ([]ReportRecord, error)
	// Rows returns the rows of a report ordered by position.
	Rows(ctx context.Context, reportID string) ([]RowRecord, error)
	// Assignments returns the assignments of every row in rowIDs in one query.
	Assignments(ctx context.Context, rowIDs []string) ([]AssignmentRecord, error)
	// Operators returns the operators in ids in one query.
	Operators(ctx context.Context, ids []string) ([]OperatorRecord, error)
	ListOperators(ctx context.Context) ([]OperatorRecord, error)

	InsertReport(ctx context.Context, rec ReportRecord) (ReportRecord, error)
	UpdateReport(ctx context.Context, rec ReportRecord) (ReportRecord, error)
	RowIDs(ctx context.Context, reportID string) ([]string, error)
	DeleteAssignments(ctx context.Context, rowIDs []string) error
	DeleteRows(ctx context.Context, rowIDs []string) error
	// InsertRows stores rows and returns their new ids keyed by position.
	InsertRows(ctx context.Context, rows []RowRecord) (map[int]string, error)
	InsertAssignments(ctx context.Context, assignments []AssignmentRecord) error

	Returned(ctx context.Context, authorID, crewRole string) (ReturnedSummary, error)

	UserByUsername(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
}

// Transactor is implemented by backends that can run several calls atomically.
type Transactor interface {
	InTx(ctx context.Context, fn func(Backend) error) error
}
