package calls

import (
	"context"
	"time"
)

// Repository is the persistence contract for CallEvent rows.
// There is no update path; the first write for a key wins.
type Repository interface {
	// Insert stores e unless (provider, external_id) already exists.
	// inserted is false for the conflict no-op.
	Insert(ctx context.Context, e CallEvent) (inserted bool, err error)

	// ListByStartRange returns the tenant's events with from <= started_at < to.
	ListByStartRange(ctx context.Context, tenantID string, from, to time.Time) ([]CallEvent, error)
}
