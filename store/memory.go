package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"shipyard_report/report"
)

// Memory is an in-process Backend used in development mode and tests.
// InTx restores the previous state when fn fails; concurrent writers outside
// the transaction may be overwritten by that restore.
type Memory struct {
	mu          sync.Mutex
	now         func() time.Time
	reports     map[string]ReportRecord
	rows        map[string]RowRecord
	assignments map[string]AssignmentRecord
	operators   map[string]OperatorRecord
	users       map[string]User
}

func NewMemory() *Memory {
	return &Memory{
		now:         time.Now,
		reports:     make(map[string]ReportRecord),
		rows:        make(map[string]RowRecord),
		assignments: make(map[string]AssignmentRecord),
		operators:   make(map[string]OperatorRecord),
		users:       make(map[string]User),
	}
}

func (m *Memory) AddOperator(rec OperatorRecord) OperatorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.operators[rec.ID] = rec
	return rec
}

func (m *Memory) AddUser(u User) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.ID] = u
	return u
}

func (m *Memory) InTx(ctx context.Context, fn func(Backend) error) error {
	m.mu.Lock()
	reports, rows, assignments := maps.Clone(m.reports), maps.Clone(m.rows), maps.Clone(m.assignments)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.reports, m.rows, m.assignments = reports, rows, assignments
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) FindReports(ctx context.Context, authorID, crewRole string, date time.Time) ([]ReportRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("find report", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ReportRecord
	for _, r := range m.reports {
		if r.AuthorID == authorID && r.CrewRole == crewRole && r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b ReportRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (m *Memory) Rows(ctx context.Context, reportID string) ([]RowRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("load rows", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []RowRecord
	for _, r := range m.rows {
		if r.ReportID == reportID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b RowRecord) int {
		return cmp.Or(cmp.Compare(a.Position, b.Position), cmp.Compare(a.SecondaryOrderIndex, b.SecondaryOrderIndex))
	})
	return out, nil
}

func (m *Memory) Assignments(ctx context.Context, rowIDs []string) ([]AssignmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("load assignments", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []AssignmentRecord
	for _, a := range m.assignments {
		if slices.Contains(rowIDs, a.RowID) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b AssignmentRecord) int {
		return cmp.Or(cmp.Compare(a.RowID, b.RowID), cmp.Compare(a.LineIndex, b.LineIndex))
	})
	return out, nil
}

func (m *Memory) Operators(ctx context.Context, ids []string) ([]OperatorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("load operators", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []OperatorRecord
	for _, id := range ids {
		if o, ok := m.operators[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) ListOperators(ctx context.Context) ([]OperatorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := slices.Collect(maps.Values(m.operators))
	slices.SortFunc(out, func(a, b OperatorRecord) int {
		return cmp.Or(
			cmp.Compare(a.LastName.String, b.LastName.String),
			cmp.Compare(a.FirstName.String, b.FirstName.String),
			cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *Memory) InsertReport(ctx context.Context, rec ReportRecord) (ReportRecord, error) {
	if err := ctx.Err(); err != nil {
		return ReportRecord{}, classify("insert report", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	rec.UpdatedAt = rec.CreatedAt
	m.reports[rec.ID] = rec
	return rec, nil
}

func (m *Memory) UpdateReport(ctx context.Context, rec ReportRecord) (ReportRecord, error) {
	if err := ctx.Err(); err != nil {
		return ReportRecord{}, classify("update report", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.reports[rec.ID]
	if !ok {
		return ReportRecord{}, fmt.Errorf("update report %s: %w", rec.ID, ErrNotFound)
	}
	rec.CreatedAt = prev.CreatedAt
	rec.UpdatedAt = m.now()
	m.reports[rec.ID] = rec
	return rec, nil
}

func (m *Memory) RowIDs(ctx context.Context, reportID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("read row ids", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, r := range m.rows {
		if r.ReportID == reportID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *Memory) DeleteAssignments(ctx context.Context, rowIDs []string) error {
	if err := ctx.Err(); err != nil {
		return classify("delete assignments", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	maps.DeleteFunc(m.assignments, func(_ string, a AssignmentRecord) bool {
		return slices.Contains(rowIDs, a.RowID)
	})
	return nil
}

func (m *Memory) DeleteRows(ctx context.Context, rowIDs []string) error {
	if err := ctx.Err(); err != nil {
		return classify("delete rows", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.assignments {
		if slices.Contains(rowIDs, a.RowID) {
			return classify("delete rows", fmt.Errorf("row %s still referenced by assignment %s", a.RowID, a.ID))
		}
	}
	for _, id := range rowIDs {
		delete(m.rows, id)
	}
	return nil
}

func (m *Memory) InsertRows(ctx context.Context, recs []RowRecord) (map[int]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("insert rows", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make(map[int]string, len(recs))
	for _, r := range recs {
		if _, ok := m.reports[r.ReportID]; !ok {
			return nil, classify("insert rows", fmt.Errorf("report %s does not exist", r.ReportID))
		}
		r.ID = uuid.NewString()
		m.rows[r.ID] = r
		ids[r.Position] = r.ID
	}
	return ids, nil
}

func (m *Memory) InsertAssignments(ctx context.Context, recs []AssignmentRecord) error {
	if err := ctx.Err(); err != nil {
		return classify("insert assignments", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range recs {
		if _, ok := m.rows[a.RowID]; !ok {
			return classify("insert assignments", fmt.Errorf("row %s does not exist", a.RowID))
		}
		for _, existing := range m.assignments {
			if existing.RowID == a.RowID && existing.OperatorID == a.OperatorID {
				return &report.ConstraintViolationError{
					Constraint: "row_operator_assignment_report_row_id_operator_id_key",
					Detail:     fmt.Sprintf("Key (report_row_id, operator_id)=(%s, %s) already exists.", a.RowID, a.OperatorID),
				}
			}
		}
		a.ID = uuid.NewString()
		m.assignments[a.ID] = a
	}
	return nil
}

func (m *Memory) Returned(ctx context.Context, authorID, crewRole string) (ReturnedSummary, error) {
	if err := ctx.Err(); err != nil {
		return ReturnedSummary{}, classify("count returned reports", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum ReturnedSummary
	for _, r := range m.reports {
		if r.AuthorID != authorID || r.CrewRole != crewRole || r.Status.String != "RETURNED" {
			continue
		}
		sum.Count++
		if sum.Latest == nil || r.UpdatedAt.After(sum.Latest.UpdatedAt) {
			latest := r
			sum.Latest = &latest
		}
	}
	return sum, nil
}

func (m *Memory) UserByUsername(ctx context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *Memory) UserByID(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}
