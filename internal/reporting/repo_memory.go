package reporting

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo keeps daily metrics in process, enforcing the (tenant, person, date) key.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]DailyMetric
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]DailyMetric{}} }

func metricKey(tenantID, personID, date string) string {
	return tenantID + "|" + personID + "|" + date
}

func (r *MemoryRepo) UpsertDaily(_ context.Context, rows []DailyMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range rows {
		k := metricKey(m.TenantID, m.PersonID, m.MetricDate)
		if existing, ok := r.rows[k]; ok {
			m.ID = existing.ID
		}
		r.rows[k] = m
	}
	return nil
}

func (r *MemoryRepo) ListDaily(_ context.Context, tenantID, date string) ([]DailyMetric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DailyMetric
	for _, m := range r.rows {
		if m.TenantID == tenantID && m.MetricDate == date {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID < out[j].PersonID })
	return out, nil
}
