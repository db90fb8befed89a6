package integrations

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Integration
}

func NewMemoryRepo(seed ...Integration) *MemoryRepo {
	r := &MemoryRepo{rows: map[string]Integration{}}
	for _, in := range seed {
		r.rows[in.ID] = cloneIntegration(in)
	}
	return r
}

func (r *MemoryRepo) Put(in Integration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[in.ID] = cloneIntegration(in)
}

func (r *MemoryRepo) ListActive(_ context.Context) ([]Integration, error) {
	return r.list(func(in Integration) bool { return in.Active }), nil
}

func (r *MemoryRepo) List(_ context.Context) ([]Integration, error) {
	return r.list(func(Integration) bool { return true }), nil
}

func (r *MemoryRepo) list(keep func(Integration) bool) []Integration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Integration, 0, len(r.rows))
	for _, in := range r.rows {
		if keep(in) {
			out = append(out, cloneIntegration(in))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.rows[id]
	if !ok {
		return Integration{}, ErrNotFound
	}
	return cloneIntegration(in), nil
}

func (r *MemoryRepo) UpdateTokens(_ context.Context, id string, u TokenUpdate, now time.Time) error {
	if u.AccessToken == "" {
		return ErrInvalidArgument
	}
	return r.mutate(id, func(in *Integration) error {
		in.AccessToken = u.AccessToken
		if u.RefreshToken != "" {
			in.RefreshToken = u.RefreshToken
		}
		in.TokenExpiresAt = u.ExpiresAt
		in.UpdatedAt = now
		return nil
	})
}

func (r *MemoryRepo) Disable(_ context.Context, id, reason string, now time.Time) error {
	return r.mutate(id, func(in *Integration) error {
		in.Active = false
		in.LastSyncError = truncateMessage(reason)
		in.UpdatedAt = now
		return nil
	})
}

func (r *MemoryRepo) RecordSyncError(_ context.Context, id, message string, now time.Time) error {
	return r.mutate(id, func(in *Integration) error {
		in.LastSyncError = truncateMessage(message)
		in.UpdatedAt = now
		return nil
	})
}

func (r *MemoryRepo) AdvanceWatermark(_ context.Context, id string, expected *time.Time, next time.Time) error {
	return r.mutate(id, func(in *Integration) error {
		if !sameWatermark(in.LastSyncAt, expected) {
			return ErrStaleWatermark
		}
		n := next
		in.LastSyncAt = &n
		in.LastSyncError = ""
		in.UpdatedAt = next
		return nil
	})
}

func (r *MemoryRepo) mutate(id string, fn func(in *Integration) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&in); err != nil {
		return err
	}
	r.rows[id] = in
	return nil
}

func cloneIntegration(in Integration) Integration {
	if in.LastSyncAt != nil {
		t := *in.LastSyncAt
		in.LastSyncAt = &t
	}
	return in
}
