package audit

import "time"

// Event is an immutable, append-only record of an integration lifecycle change.
//
// Invariants:
// - Events are never updated or deleted.
// - tenant_id is required for tenancy isolation.
// - Recording is best-effort; sync never blocks on audit failures.
type Event struct {
	ID            string `json:"id" db:"id"`
	TenantID      string `json:"tenant_id" db:"tenant_id"`
	IntegrationID string `json:"integration_id,omitempty" db:"integration_id"`

	Type EventType `json:"type" db:"type"`

	// Message is a short human-readable description for admin tooling.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeIntegrationDisabled EventType = "integration_disabled"
	EventTypeSyncFailed          EventType = "sync_failed"
)
