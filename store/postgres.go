package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres is the Backend over the hosted PostgreSQL database.
type Postgres struct {
	db *sql.DB
	q  querier
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, q: db}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (p *Postgres) InTx(ctx context.Context, fn func(Backend) error) error {
	if p.db == nil {
		// already inside a transaction
		return fn(p)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&Postgres{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

const reportColumns = `id, author_id, crew_role, date, site_code, contract_code, status, total_output, created_at, updated_at`

func scanReport(s interface{ Scan(...any) error }) (ReportRecord, error) {
	var rec ReportRecord
	err := s.Scan(&rec.ID, &rec.AuthorID, &rec.CrewRole, &rec.Date, &rec.SiteCode, &rec.ContractCode,
		&rec.Status, &rec.TotalOutput, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (p *Postgres) FindReports(ctx context.Context, authorID, crewRole string, date time.Time) ([]ReportRecord, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT `+reportColumns+`
		FROM report
		WHERE author_id = $1 AND crew_role = $2 AND date = $3
		ORDER BY created_at DESC, id DESC`, authorID, crewRole, date)
	if err != nil {
		return nil, classify("find report", err)
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, classify("scan report", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("find report", err)
	}
	return out, nil
}

func (p *Postgres) Rows(ctx context.Context, reportID string) ([]RowRecord, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT id, report_id, position, secondary_order_index, category, description,
		       legacy_operators_text, legacy_hours_text, planned_quantity, produced_quantity,
		       note, activity_reference_id
		FROM report_row
		WHERE report_id = $1
		ORDER BY position, secondary_order_index`, reportID)
	if err != nil {
		return nil, classify("load rows", err)
	}
	defer rows.Close()

	var out []RowRecord
	for rows.Next() {
		var r RowRecord
		if err := rows.Scan(&r.ID, &r.ReportID, &r.Position, &r.SecondaryOrderIndex, &r.Category, &r.Description,
			&r.LegacyOperatorsText, &r.LegacyHoursText, &r.PlannedQuantity, &r.ProducedQuantity,
			&r.Note, &r.ActivityReferenceID); err != nil {
			return nil, classify("scan row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load rows", err)
	}
	return out, nil
}

func (p *Postgres) Assignments(ctx context.Context, rowIDs []string) ([]AssignmentRecord, error) {
	if len(rowIDs) == 0 {
		return nil, nil
	}
	rows, err := p.q.QueryContext(ctx, `
		SELECT id, report_row_id, operator_id, line_index, raw_hours_text, parsed_hours
		FROM row_operator_assignment
		WHERE report_row_id = ANY($1)
		ORDER BY report_row_id, line_index`, pq.Array(rowIDs))
	if err != nil {
		return nil, classify("load assignments", err)
	}
	defer rows.Close()

	var out []AssignmentRecord
	for rows.Next() {
		var a AssignmentRecord
		if err := rows.Scan(&a.ID, &a.RowID, &a.OperatorID, &a.LineIndex, &a.RawHoursText, &a.ParsedHours); err != nil {
			return nil, classify("scan assignment", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load assignments", err)
	}
	return out, nil
}

func (p *Postgres) Operators(ctx context.Context, ids []string) ([]OperatorRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return p.operators(ctx, `
		SELECT id, display_name, first_name, last_name
		FROM operator
		WHERE id = ANY($1)`, pq.Array(ids))
}

func (p *Postgres) ListOperators(ctx context.Context) ([]OperatorRecord, error) {
	return p.operators(ctx, `
		SELECT id, display_name, first_name, last_name
		FROM operator
		ORDER BY last_name, first_name`)
}

func (p *Postgres) operators(ctx context.Context, query string, args ...any) ([]OperatorRecord, error) {
	rows, err := p.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("load operators", err)
	}
	defer rows.Close()

	var out []OperatorRecord
	for rows.Next() {
		var o OperatorRecord
		if err := rows.Scan(&o.ID, &o.DisplayName, &o.FirstName, &o.LastName); err != nil {
			return nil, classify("scan operator", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load operators", err)
	}
	return out, nil
}

func (p *Postgres) InsertReport(ctx context.Context, rec ReportRecord) (ReportRecord, error) {
	row := p.q.QueryRowContext(ctx, `
		INSERT INTO report (author_id, crew_role, date, site_code, contract_code, status, total_output)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+reportColumns,
		rec.AuthorID, rec.CrewRole, rec.Date, rec.SiteCode, rec.ContractCode, rec.Status, rec.TotalOutput)
	out, err := scanReport(row)
	if err != nil {
		return ReportRecord{}, classify("insert report", err)
	}
	return out, nil
}

func (p *Postgres) UpdateReport(ctx context.Context, rec ReportRecord) (ReportRecord, error) {
	row := p.q.QueryRowContext(ctx, `
		UPDATE report SET
			author_id = $1,
			crew_role = $2,
			date = $3,
			site_code = $4,
			contract_code = $5,
			status = $6,
			total_output = $7,
			updated_at = now()
		WHERE id = $8
		RETURNING `+reportColumns,
		rec.AuthorID, rec.CrewRole, rec.Date, rec.SiteCode, rec.ContractCode, rec.Status, rec.TotalOutput, rec.ID)
	out, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ReportRecord{}, fmt.Errorf("update report %s: %w", rec.ID, ErrNotFound)
	}
	if err != nil {
		return ReportRecord{}, classify("update report", err)
	}
	return out, nil
}

func (p *Postgres) RowIDs(ctx context.Context, reportID string) ([]string, error) {
	rows, err := p.q.QueryContext(ctx, `SELECT id FROM report_row WHERE report_id = $1`, reportID)
	if err != nil {
		return nil, classify("read row ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("scan row id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("read row ids", err)
	}
	return ids, nil
}

func (p *Postgres) DeleteAssignments(ctx context.Context, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}
	_, err := p.q.ExecContext(ctx, `DELETE FROM row_operator_assignment WHERE report_row_id = ANY($1)`, pq.Array(rowIDs))
	return classify("delete assignments", err)
}

func (p *Postgres) DeleteRows(ctx context.Context, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}
	_, err := p.q.ExecContext(ctx, `DELETE FROM report_row WHERE id = ANY($1)`, pq.Array(rowIDs))
	return classify("delete rows", err)
}

// values renders "($1, $2), ($3, $4)" for n tuples of width columns.
func values(n, width int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < width; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*width+j+1)
		}
		b.WriteByte(')')
	}
	return b.String()
}

func (p *Postgres) InsertRows(ctx context.Context, recs []RowRecord) (map[int]string, error) {
	ids := make(map[int]string, len(recs))
	if len(recs) == 0 {
		return ids, nil
	}
	args := make([]any, 0, len(recs)*12)
	for _, r := range recs {
		args = append(args, r.ReportID, r.Position, r.SecondaryOrderIndex, r.Category, r.Description,
			r.LegacyOperatorsText, r.LegacyHoursText, r.PlannedQuantity, r.ProducedQuantity, r.Note,
			r.ActivityReferenceID)
	}
	rows, err := p.q.QueryContext(ctx, `
		INSERT INTO report_row (report_id, position, secondary_order_index, category, description,
		                        legacy_operators_text, legacy_hours_text, planned_quantity, produced_quantity,
		                        note, activity_reference_id)
		VALUES `+values(len(recs), 11)+`
		RETURNING id, position`, args...)
	if err != nil {
		return nil, classify("insert rows", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var position int
		if err := rows.Scan(&id, &position); err != nil {
			return nil, classify("scan inserted row", err)
		}
		ids[position] = id
	}
	if err := rows.Err(); err != nil {
		return nil, classify("insert rows", err)
	}
	return ids, nil
}

func (p *Postgres) InsertAssignments(ctx context.Context, recs []AssignmentRecord) error {
	if len(recs) == 0 {
		return nil
	}
	args := make([]any, 0, len(recs)*5)
	for _, a := range recs {
		args = append(args, a.RowID, a.OperatorID, a.LineIndex, a.RawHoursText, a.ParsedHours)
	}
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO row_operator_assignment (report_row_id, operator_id, line_index, raw_hours_text, parsed_hours)
		VALUES `+values(len(recs), 5), args...)
	return classify("insert assignments", err)
}

func (p *Postgres) Returned(ctx context.Context, authorID, crewRole string) (ReturnedSummary, error) {
	var sum ReturnedSummary
	err := p.q.QueryRowContext(ctx, `
		SELECT count(*) FROM report
		WHERE author_id = $1 AND crew_role = $2 AND status = 'RETURNED'`, authorID, crewRole).Scan(&sum.Count)
	if err != nil {
		return ReturnedSummary{}, classify("count returned reports", err)
	}
	if sum.Count == 0 {
		return sum, nil
	}
	latest, err := scanReport(p.q.QueryRowContext(ctx, `
		SELECT `+reportColumns+`
		FROM report
		WHERE author_id = $1 AND crew_role = $2 AND status = 'RETURNED'
		ORDER BY updated_at DESC, created_at DESC
		LIMIT 1`, authorID, crewRole))
	if errors.Is(err, sql.ErrNoRows) {
		return sum, nil
	}
	if err != nil {
		return ReturnedSummary{}, classify("latest returned report", err)
	}
	sum.Latest = &latest
	return sum, nil
}

func (p *Postgres) UserByUsername(ctx context.Context, username string) (User, error) {
	return p.user(ctx, `SELECT id, username, full_name, role, password FROM users WHERE username = $1`, username)
}

func (p *Postgres) UserByID(ctx context.Context, id string) (User, error) {
	return p.user(ctx, `SELECT id, username, full_name, role, password FROM users WHERE id = $1`, id)
}

func (p *Postgres) user(ctx context.Context, query string, arg string) (User, error) {
	var u User
	err := p.q.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, classify("load user", err)
	}
	return u, nil
}
