package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callsync/internal/metrics"
	"callsync/internal/telephony"
)

// DefaultRefreshSkew is how close to expiry a token may get before it is refreshed.
const DefaultRefreshSkew = 5 * time.Minute

// ErrIntegrationUnavailable means the integration cannot be used this run; it needs re-authorization.
var ErrIntegrationUnavailable = errors.New("integrations: integration unavailable")

// AuthRefreshError wraps a failed refresh grant. It matches ErrIntegrationUnavailable with errors.Is.
type AuthRefreshError struct {
	IntegrationID string
	Err           error
}

func (e *AuthRefreshError) Error() string {
	return fmt.Sprintf("integrations: token refresh failed for %s: %v", e.IntegrationID, e.Err)
}

func (e *AuthRefreshError) Unwrap() error { return e.Err }

func (e *AuthRefreshError) Is(target error) bool { return target == ErrIntegrationUnavailable }

// DisableAuditor records that an integration was switched off.
type DisableAuditor interface {
	LogIntegrationDisabled(ctx context.Context, tenantID, integrationID, reason string) error
}

// CredentialManager guarantees a usable access token before any fetch.
type CredentialManager struct {
	repo      Repository
	refresher telephony.TokenRefresher
	audit     DisableAuditor
	skew      time.Duration
	log       *slog.Logger
}

type CredentialOption func(*CredentialManager)

func WithRefreshSkew(d time.Duration) CredentialOption {
	return func(m *CredentialManager) {
		if d > 0 {
			m.skew = d
		}
	}
}

func WithLogger(l *slog.Logger) CredentialOption {
	return func(m *CredentialManager) {
		if l != nil {
			m.log = l
		}
	}
}

func NewCredentialManager(repo Repository, refresher telephony.TokenRefresher, auditor DisableAuditor, opts ...CredentialOption) *CredentialManager {
	m := &CredentialManager{
		repo:      repo,
		refresher: refresher,
		audit:     auditor,
		skew:      DefaultRefreshSkew,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// EnsureValidToken returns an access token valid for at least the refresh skew.
//
// When the stored token is within skew of expiry it is refreshed and the new pair persisted
// before returning. A rejected refresh disables the integration and returns an
// *AuthRefreshError; the caller must skip the integration for this run.
// in is updated in place with the new token material.
func (m *CredentialManager) EnsureValidToken(ctx context.Context, in *Integration, now time.Time) (string, error) {
	if in == nil || in.ID == "" {
		return "", ErrInvalidArgument
	}
	if !in.Active {
		return "", ErrIntegrationUnavailable
	}
	if in.AccessToken != "" && in.TokenExpiresAt.Sub(now) > m.skew {
		return in.AccessToken, nil
	}

	grant, err := m.refresher.RefreshToken(ctx, in.RefreshToken)
	if err == nil && grant.AccessToken == "" {
		err = errors.New("provider returned an empty access token")
	}
	if err != nil {
		// Our own deadline or shutdown is not a credential problem.
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.TokenRefreshes.WithLabelValues(in.Provider, "canceled").Inc()
			return "", fmt.Errorf("integrations: token refresh for %s: %w", in.ID, ctxErr)
		}
		metrics.TokenRefreshes.WithLabelValues(in.Provider, "failure").Inc()
		m.disable(ctx, in, err, now)
		return "", &AuthRefreshError{IntegrationID: in.ID, Err: err}
	}
	metrics.TokenRefreshes.WithLabelValues(in.Provider, "success").Inc()

	update := TokenUpdate{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    now.Add(grant.ExpiresIn),
	}
	if err := m.repo.UpdateTokens(ctx, in.ID, update, now); err != nil {
		// Refresh tokens rotate; using a token we failed to store would strand the integration.
		return "", fmt.Errorf("integrations: persist refreshed tokens for %s: %w", in.ID, err)
	}

	in.AccessToken = update.AccessToken
	if update.RefreshToken != "" {
		in.RefreshToken = update.RefreshToken
	}
	in.TokenExpiresAt = update.ExpiresAt
	in.UpdatedAt = now

	m.log.Debug("access token refreshed",
		slog.String("integration_id", in.ID),
		slog.Time("expires_at", update.ExpiresAt),
	)
	return in.AccessToken, nil
}

func (m *CredentialManager) disable(ctx context.Context, in *Integration, cause error, now time.Time) {
	reason := "token refresh failed: " + cause.Error()
	ctx = context.WithoutCancel(ctx)

	in.Active = false
	in.LastSyncError = truncateMessage(reason)

	if err := m.repo.Disable(ctx, in.ID, reason, now); err != nil {
		m.log.Error("disable integration failed",
			slog.String("integration_id", in.ID),
			slog.Any("err", err),
		)
	}
	if m.audit != nil {
		if err := m.audit.LogIntegrationDisabled(ctx, in.TenantID, in.ID, reason); err != nil {
			m.log.Warn("audit integration_disabled failed",
				slog.String("integration_id", in.ID),
				slog.Any("err", err),
			)
		}
	}
	m.log.Warn("integration disabled after refresh failure",
		slog.String("tenant_id", in.TenantID),
		slog.String("integration_id", in.ID),
		slog.String("provider", in.Provider),
	)
}
