// Package inbox tracks the reports an office sent back to their author.
package inbox

import (
	"context"
	"sync"
	"time"

	"shipyard_report/metrics"
	"shipyard_report/report"
	"shipyard_report/store"
)

type Latest struct {
	ReportID  string    `json:"report_id"`
	Date      string    `json:"date"`
	SiteCode  string    `json:"site_code"`
	UpdatedAt time.Time `json:"updated_at"`
}

type State struct {
	AuthorID  string          `json:"author_id"`
	CrewRole  report.CrewRole `json:"crew_role"`
	Count     int             `json:"count"`
	Latest    *Latest         `json:"latest,omitempty"`
	CheckedAt time.Time       `json:"checked_at"`
}

// Notifier keeps the returned-report count of one author and crew role.
type Notifier struct {
	backend store.Backend

	mu    sync.Mutex
	state State
}

func New(backend store.Backend) *Notifier {
	return &Notifier{backend: backend}
}

// SetScope switches the author and crew role being watched and forgets the
// previous state.
func (n *Notifier) SetScope(authorID string, crewRole report.CrewRole) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state.AuthorID == authorID && n.state.CrewRole == crewRole {
		return
	}
	n.state = State{AuthorID: authorID, CrewRole: crewRole}
}

func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := n.state
	if s.Latest != nil {
		l := *s.Latest
		s.Latest = &l
	}
	return s
}

func (n *Notifier) Refresh(ctx context.Context) error {
	n.mu.Lock()
	authorID, crewRole := n.state.AuthorID, n.state.CrewRole
	n.mu.Unlock()
	if authorID == "" || crewRole == "" {
		return nil
	}

	sum, err := n.backend.Returned(ctx, authorID, string(crewRole))
	if err != nil {
		return err
	}
	next := State{AuthorID: authorID, CrewRole: crewRole, Count: sum.Count, CheckedAt: time.Now()}
	if sum.Latest != nil {
		next.Latest = &Latest{
			ReportID:  sum.Latest.ID,
			Date:      sum.Latest.Date.Format(report.DateLayout),
			SiteCode:  sum.Latest.SiteCode.String,
			UpdatedAt: sum.Latest.UpdatedAt,
		}
	}
	metrics.InboxReturned.WithLabelValues(string(crewRole)).Set(float64(sum.Count))

	n.mu.Lock()
	defer n.mu.Unlock()
	// the scope may have moved on while the query ran
	if n.state.AuthorID == authorID && n.state.CrewRole == crewRole {
		n.state = next
	}
	return nil
}
