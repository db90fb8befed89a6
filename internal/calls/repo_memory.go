package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	byKey  map[string]CallEvent
	insErr error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byKey: map[string]CallEvent{}}
}

func eventKey(provider, externalID string) string { return provider + "\x00" + externalID }

func (r *MemoryRepo) Insert(_ context.Context, e CallEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insErr != nil {
		return false, r.insErr
	}
	k := eventKey(e.Provider, e.ExternalID)
	if _, ok := r.byKey[k]; ok {
		return false, nil
	}
	r.byKey[k] = e
	return true, nil
}

func (r *MemoryRepo) ListByStartRange(_ context.Context, tenantID string, from, to time.Time) ([]CallEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallEvent
	for _, e := range r.byKey {
		if e.TenantID != tenantID {
			continue
		}
		if e.StartedAt.Before(from) || !e.StartedAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Len returns the number of stored events across all tenants.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// ForTenant returns every stored event for tenantID.
func (r *MemoryRepo) ForTenant(tenantID string) []CallEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallEvent
	for _, e := range r.byKey {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

// FailInserts makes every subsequent Insert return err (nil restores normal behavior).
func (r *MemoryRepo) FailInserts(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insErr = err
}
