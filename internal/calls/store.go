package calls

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidEvent = errors.New("calls: invalid call event")

// Store persists call events exactly once, however many times the fetcher observes them.
type Store struct {
	repo  Repository
	clock func() time.Time
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo, clock: time.Now}
}

// Persist inserts e keyed by (provider, external id). A conflicting key is a silent no-op.
func (s *Store) Persist(ctx context.Context, e CallEvent) (inserted bool, err error) {
	if e.TenantID == "" || e.Provider == "" || e.ExternalID == "" || e.StartedAt.IsZero() {
		return false, ErrInvalidEvent
	}
	if e.Direction == "" {
		e.Direction = DirectionOther
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Insert(ctx, e)
}

// ListForDay returns the tenant's events starting in [dayStart, dayStart+24h).
func (s *Store) ListForDay(ctx context.Context, tenantID string, dayStart time.Time) ([]CallEvent, error) {
	return s.repo.ListByStartRange(ctx, tenantID, dayStart, dayStart.AddDate(0, 0, 1))
}
