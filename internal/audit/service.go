package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// No Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records integration lifecycle events for out-of-band admin tooling.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogIntegrationDisabled records that credentials could not be recovered and the
// integration now needs re-authorization.
func (s *Service) LogIntegrationDisabled(ctx context.Context, tenantID, integrationID, reason string) error {
	return s.Append(ctx, Event{
		TenantID:      tenantID,
		IntegrationID: integrationID,
		Type:          EventTypeIntegrationDisabled,
		Message:       reason,
	})
}

// LogSyncFailed records an aborted fetch; the watermark stayed where it was.
func (s *Service) LogSyncFailed(ctx context.Context, tenantID, integrationID, reason string) error {
	return s.Append(ctx, Event{
		TenantID:      tenantID,
		IntegrationID: integrationID,
		Type:          EventTypeSyncFailed,
		Message:       reason,
	})
}
