package integrations

import "time"

// Integration is one tenant's credential and sync-state record for a provider.
//
// It is the only cross-run state the sync engine depends on:
// - token material (refreshed by CredentialManager)
// - the LastSyncAt watermark (advanced only after a complete page sequence)
// - LastSyncError and Active (written at run boundaries)
//
// Rows are provisioned by onboarding and never deleted here; disabling is a flag flip.
type Integration struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Provider string `json:"provider" db:"provider"`

	AccessToken    string    `json:"-" db:"access_token"`
	RefreshToken   string    `json:"-" db:"refresh_token"`
	TokenExpiresAt time.Time `json:"token_expires_at" db:"token_expires_at"`

	// LastSyncAt is nil until the first fully successful run.
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	LastSyncError string     `json:"last_sync_error,omitempty" db:"last_sync_error"`

	Active bool `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SyncSince is the lower bound for the next fetch: the watermark, or now-bootstrap on first run.
func (i Integration) SyncSince(now time.Time, bootstrap time.Duration) time.Time {
	if i.LastSyncAt != nil && !i.LastSyncAt.IsZero() {
		return *i.LastSyncAt
	}
	return now.Add(-bootstrap)
}

// TokenUpdate is the persisted result of a successful refresh.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
