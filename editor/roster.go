package editor

import (
	"encoding/json"

	"github.com/apex/log"

	"shipyard_report/kv"
	"shipyard_report/report"
)

// RosterTopic is the kv topic roster snapshots are published on.
const RosterTopic = "roster"

// RosterSnapshot is the per site and day view of operator hours read by the
// roster sidebar.
type RosterSnapshot struct {
	Worked  map[string]float64 `json:"worked"`
	Planned map[string]float64 `json:"planned"`
}

func RosterKey(siteCode, date string) string {
	return RosterTopic + ":" + siteCode + ":" + date
}

// rosterFor sums worked hours per operator and plans a standard shift for
// every assigned operator.
func rosterFor(doc report.Report, shiftHours float64) RosterSnapshot {
	snap := RosterSnapshot{Worked: report.SumHours(doc.Rows), Planned: map[string]float64{}}
	for _, row := range doc.Rows {
		for _, a := range row.OperatorAssignments {
			snap.Planned[a.OperatorID] = shiftHours
			if _, ok := snap.Worked[a.OperatorID]; !ok {
				snap.Worked[a.OperatorID] = 0
			}
		}
	}
	return snap
}

func publishRoster(cache kv.Store, doc report.Report, shiftHours float64) {
	if cache == nil || doc.SiteCode == "" || doc.Date == "" {
		return
	}
	b, err := json.Marshal(rosterFor(doc, shiftHours))
	if err != nil {
		log.WithError(err).Warn("encode roster snapshot")
		return
	}
	cache.Set(RosterKey(doc.SiteCode, doc.Date), b)
}

// ReadRoster returns the last snapshot published for a site and day.
func ReadRoster(cache kv.Store, siteCode, date string) (RosterSnapshot, bool) {
	b, ok := cache.Get(RosterKey(siteCode, date))
	if !ok {
		return RosterSnapshot{}, false
	}
	var snap RosterSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return RosterSnapshot{}, false
	}
	return snap, true
}
