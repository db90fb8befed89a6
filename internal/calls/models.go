package calls

import (
	"encoding/json"
	"strings"
	"time"
)

// CallEvent is one normalized, deduplicated record of an observed call.
//
// Invariants:
// - (Provider, ExternalID) is globally unique; it is the idempotency key.
// - TenantID is required on every row.
// - Rows are append-only here. PersonID is attached by a separate matching pass and only read.
type CallEvent struct {
	ID            string `json:"id" db:"id"`
	TenantID      string `json:"tenant_id" db:"tenant_id"`
	IntegrationID string `json:"integration_id" db:"integration_id"`

	Provider   string `json:"provider" db:"provider"`
	ExternalID string `json:"external_id" db:"external_id"`

	Direction Direction `json:"direction" db:"direction"`
	Kind      string    `json:"kind,omitempty" db:"kind"`

	// From/To are normalized digit strings; "" means the provider sent no usable number.
	FromNumber string `json:"from_number,omitempty" db:"from_number"`
	ToNumber   string `json:"to_number,omitempty" db:"to_number"`

	StartedAt       time.Time `json:"started_at" db:"started_at"`
	EndedAt         time.Time `json:"ended_at" db:"ended_at"`
	DurationSeconds int       `json:"duration_seconds" db:"duration_seconds"`

	Result string `json:"result,omitempty" db:"result"`

	ExtensionID   string `json:"extension_id,omitempty" db:"extension_id"`
	ExtensionName string `json:"extension_name,omitempty" db:"extension_name"`

	PersonID string `json:"person_id,omitempty" db:"person_id"`

	// Raw is the verbatim provider payload.
	Raw json.RawMessage `json:"raw,omitempty" db:"raw"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionOther    Direction = "other"
)

// ParseDirection maps a provider direction string onto Direction. Unknown values are DirectionOther.
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inbound":
		return DirectionInbound
	case "outbound":
		return DirectionOutbound
	default:
		return DirectionOther
	}
}

// IsAnswered reports whether the outcome indicates the call connected.
func (e CallEvent) IsAnswered() bool {
	switch strings.ToLower(strings.TrimSpace(e.Result)) {
	case "accepted", "call connected":
		return true
	}
	return false
}

// IsMissed reports whether the outcome indicates a missed call.
func (e CallEvent) IsMissed() bool {
	return strings.EqualFold(strings.TrimSpace(e.Result), "missed")
}
