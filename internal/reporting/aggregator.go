package reporting

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"callsync/internal/calls"
	"callsync/internal/metrics"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// EventLister reads the day's call events for a tenant.
type EventLister interface {
	ListForDay(ctx context.Context, tenantID string, dayStart time.Time) ([]calls.CallEvent, error)
}

// Repository persists DailyMetric rows. Every method is tenant-scoped.
type Repository interface {
	// UpsertDaily writes rows keyed by (tenant, person, date), overwriting numeric fields.
	UpsertDaily(ctx context.Context, rows []DailyMetric) error
	ListDaily(ctx context.Context, tenantID, date string) ([]DailyMetric, error)
}

// Aggregator recomputes the daily rollup from whatever CallEvent rows exist.
// It does not care whether the fetch that preceded it succeeded.
type Aggregator struct {
	events EventLister
	repo   Repository
	clock  func() time.Time
	log    *slog.Logger
}

func NewAggregator(events EventLister, repo Repository, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{events: events, repo: repo, clock: time.Now, log: log}
}

// Recompute aggregates the tenant's events starting in [dayStart, dayStart+1d) and upserts one row
// per resolved person. Events without a person id are counted per extension but not written.
func (a *Aggregator) Recompute(ctx context.Context, tenantID string, dayStart time.Time) (RollupResult, error) {
	if tenantID == "" || dayStart.IsZero() {
		return RollupResult{}, ErrInvalidRequest
	}
	if a.events == nil || a.repo == nil {
		return RollupResult{}, errors.New("reporting: aggregator not configured")
	}

	events, err := a.events.ListForDay(ctx, tenantID, dayStart)
	if err != nil {
		return RollupResult{}, err
	}

	res := RollupResult{
		TenantID: tenantID,
		Date:     dayStart.Format(dateLayout),
		Groups:   GroupEvents(events),
	}

	computedAt := a.clock().UTC()
	rows := make([]DailyMetric, 0, len(res.Groups))
	for _, g := range res.Groups {
		if !g.Attributed() {
			continue
		}
		rows = append(rows, DailyMetric{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			PersonID:   g.PersonID,
			MetricDate: res.Date,
			Counts:     g.Counts,
			ComputedAt: computedAt,
		})
	}
	if len(rows) > 0 {
		if err := a.repo.UpsertDaily(ctx, rows); err != nil {
			return res, err
		}
	}
	res.Written = len(rows)
	metrics.DailyMetricsWritten.Add(float64(len(rows)))

	if dropped := len(res.Groups) - len(rows); dropped > 0 {
		a.log.Debug("unattributed call groups not persisted",
			slog.String("tenant_id", tenantID),
			slog.Int("groups", dropped),
		)
	}
	return res, nil
}

// GroupEvents buckets events by person id, falling back to extension id.
// Groups are returned attributed first, then by key.
func GroupEvents(events []calls.CallEvent) []Group {
	type key struct {
		person    string
		extension string
	}
	byKey := map[key]*Group{}
	for _, e := range events {
		k := key{person: e.PersonID}
		if k.person == "" {
			k.extension = e.ExtensionID
		}
		g, ok := byKey[k]
		if !ok {
			g = &Group{PersonID: k.person, ExtensionID: e.ExtensionID}
			byKey[k] = g
		}
		g.TotalCalls++
		switch e.Direction {
		case calls.DirectionInbound:
			g.InboundCalls++
		case calls.DirectionOutbound:
			g.OutboundCalls++
		}
		if e.IsAnswered() {
			g.AnsweredCalls++
		}
		if e.IsMissed() {
			g.MissedCalls++
		}
		g.TalkSeconds += e.DurationSeconds
	}

	out := make([]Group, 0, len(byKey))
	for _, g := range byKey {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attributed() != out[j].Attributed() {
			return out[i].Attributed()
		}
		if out[i].PersonID != out[j].PersonID {
			return out[i].PersonID < out[j].PersonID
		}
		return out[i].ExtensionID < out[j].ExtensionID
	})
	return out
}
