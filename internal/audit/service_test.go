package audit

import (
	"context"
	"testing"
	"time"
)

func TestService_AppendRequiresTenantAndType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{Type: EventTypeSyncFailed}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{TenantID: "t"}); err == nil {
		t.Fatalf("expected error")
	}
	if len(repo.Events()) != 0 {
		t.Fatalf("expected nothing appended")
	}
}

func TestService_LogIntegrationDisabled(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0) }

	if err := svc.LogIntegrationDisabled(context.Background(), "t1", "int-1", "refresh rejected: invalid_grant"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].Type != EventTypeIntegrationDisabled || evs[0].IntegrationID != "int-1" {
		t.Fatalf("unexpected event: %+v", evs[0])
	}
	if evs[0].ID == "" || !evs[0].CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("expected id and clock timestamp, got %+v", evs[0])
	}
}

func TestService_NilIsNotConfigured(t *testing.T) {
	var svc *Service
	if err := svc.LogSyncFailed(context.Background(), "t", "i", "x"); err == nil {
		t.Fatalf("expected error from nil service")
	}
}
