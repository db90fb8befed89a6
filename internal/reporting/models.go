package reporting

import "time"

// DailyMetric is the per-person, per-day projection of CallEvent rows.
//
// Invariants:
// - At most one row per (TenantID, PersonID, MetricDate).
// - Fully recomputable; every aggregation pass overwrites the numeric fields.
type DailyMetric struct {
	ID         string `json:"id" db:"id"`
	TenantID   string `json:"tenant_id" db:"tenant_id"`
	PersonID   string `json:"person_id" db:"person_id"`
	MetricDate string `json:"metric_date" db:"metric_date"` // YYYY-MM-DD, tenant-local

	Counts

	ComputedAt time.Time `json:"computed_at" db:"computed_at"`
}

// Counts are the numeric fields of a DailyMetric.
type Counts struct {
	TotalCalls    int `json:"total_calls" db:"total_calls"`
	InboundCalls  int `json:"inbound_calls" db:"inbound_calls"`
	OutboundCalls int `json:"outbound_calls" db:"outbound_calls"`
	AnsweredCalls int `json:"answered_calls" db:"answered_calls"`
	MissedCalls   int `json:"missed_calls" db:"missed_calls"`
	TalkSeconds   int `json:"talk_seconds" db:"talk_seconds"`
}

// Group is one aggregation bucket. Unattributed groups (no person id) are keyed by extension.
type Group struct {
	PersonID    string
	ExtensionID string
	Counts
}

func (g Group) Attributed() bool { return g.PersonID != "" }

// RollupResult describes one Recompute call.
type RollupResult struct {
	TenantID string
	Date     string
	Groups   []Group
	Written  int
}

const dateLayout = "2006-01-02"

// DayStart returns midnight of t's calendar day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}
