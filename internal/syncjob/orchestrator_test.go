package syncjob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callsync/internal/audit"
	"callsync/internal/calls"
	"callsync/internal/ingest"
	"callsync/internal/integrations"
	"callsync/internal/metrics"
	"callsync/internal/reporting"
	"callsync/internal/telephony"
)

var now = time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

// fakeProvider serves one page per token; the "panic" token blows up mid-fetch.
type fakeProvider struct {
	pages      map[string][]telephony.CallRecord
	refreshErr error
}

func (p *fakeProvider) FetchCallLog(_ context.Context, token string, req telephony.CallLogRequest) (telephony.CallLogPage, error) {
	if token == "panic" {
		panic("decoder exploded")
	}
	if token == "fail" {
		return telephony.CallLogPage{}, &telephony.APIError{Op: "call-log", StatusCode: 500}
	}
	return telephony.CallLogPage{Page: req.Page, TotalPages: 1, Records: p.pages[token]}, nil
}

func (p *fakeProvider) RefreshToken(context.Context, string) (telephony.TokenGrant, error) {
	if p.refreshErr != nil {
		return telephony.TokenGrant{}, p.refreshErr
	}
	return telephony.TokenGrant{AccessToken: "refreshed", ExpiresIn: time.Hour}, nil
}

type harness struct {
	integrations *integrations.MemoryRepo
	events       *calls.MemoryRepo
	daily        *reporting.MemoryRepo
	audit        *audit.MemoryRepo
	locker       *MemoryLocker
	orch         *Orchestrator
}

func newHarness(t *testing.T, provider *fakeProvider, seed ...integrations.Integration) *harness {
	t.Helper()
	h := &harness{
		integrations: integrations.NewMemoryRepo(seed...),
		events:       calls.NewMemoryRepo(),
		daily:        reporting.NewMemoryRepo(),
		audit:        audit.NewMemoryRepo(),
		locker:       NewMemoryLocker(),
	}
	auditSvc := audit.NewService(h.audit)
	store := calls.NewStore(h.events)
	creds := integrations.NewCredentialManager(h.integrations, provider, auditSvc)
	fetcher := ingest.NewFetcher(provider, store, h.integrations, auditSvc, ingest.Config{PageDelay: 0}, nil)
	agg := reporting.NewAggregator(store, h.daily, nil)

	h.orch = NewOrchestrator(h.integrations, creds, fetcher, agg, h.locker, Config{}, nil)
	h.orch.clock = func() time.Time { return now }
	return h
}

func integration(id, tenant, token string) integrations.Integration {
	return integrations.Integration{
		ID:             id,
		TenantID:       tenant,
		Provider:       telephony.ProviderRingCentral,
		AccessToken:    token,
		RefreshToken:   "refresh-" + id,
		TokenExpiresAt: now.Add(time.Hour),
		Active:         true,
	}
}

func rec(id string) telephony.CallRecord {
	return telephony.CallRecord{ID: id, StartTime: now.Add(-time.Hour), Duration: 30, Direction: "Inbound", Result: "Accepted"}
}

// seedMatched stores an already person-matched event so the rollup has something to write.
func (h *harness) seedMatched(t *testing.T, tenant, person, externalID string) {
	t.Helper()
	_, err := h.events.Insert(context.Background(), calls.CallEvent{
		ID: externalID, TenantID: tenant, IntegrationID: "seed", Provider: "seed", ExternalID: externalID,
		Direction: calls.DirectionOutbound, StartedAt: now.Add(-2 * time.Hour), PersonID: person,
	})
	require.NoError(t, err)
}

func (h *harness) watermark(t *testing.T, id string) *time.Time {
	t.Helper()
	in, err := h.integrations.Get(context.Background(), id)
	require.NoError(t, err)
	return in.LastSyncAt
}

func (h *harness) dailyRows(t *testing.T, tenant string) []reporting.DailyMetric {
	t.Helper()
	rows, err := h.daily.ListDaily(context.Background(), tenant, "2024-06-01")
	require.NoError(t, err)
	return rows
}

func TestRunActive_TenantIsolation(t *testing.T) {
	provider := &fakeProvider{pages: map[string][]telephony.CallRecord{
		"tok-1": {rec("a1"), rec("a2")},
		"tok-3": {rec("c1")},
	}}
	h := newHarness(t, provider,
		integration("int-1", "tenant-1", "tok-1"),
		integration("int-2", "tenant-2", "panic"),
		integration("int-3", "tenant-3", "tok-3"),
	)
	for _, tenant := range []string{"tenant-1", "tenant-2", "tenant-3"} {
		h.seedMatched(t, tenant, "person-"+tenant, "seed-"+tenant)
	}

	sum := h.orch.RunActive(context.Background())

	assert.True(t, sum.Success)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 3, sum.CallsSynced)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Results, 3)
	assert.Equal(t, StatusSynced, sum.Results[0].Status)
	assert.Equal(t, StatusFailed, sum.Results[1].Status)
	assert.Contains(t, sum.Results[1].Error, "panicked")
	assert.Equal(t, StatusSynced, sum.Results[2].Status)

	require.NotNil(t, h.watermark(t, "int-1"))
	assert.Equal(t, now, *h.watermark(t, "int-1"))
	assert.Nil(t, h.watermark(t, "int-2"))
	require.NotNil(t, h.watermark(t, "int-3"))
	assert.Equal(t, now, *h.watermark(t, "int-3"))

	assert.Len(t, h.dailyRows(t, "tenant-1"), 1)
	assert.Len(t, h.dailyRows(t, "tenant-3"), 1)
	// The rollup still runs after a failed fetch.
	assert.Len(t, h.dailyRows(t, "tenant-2"), 1)
}

func TestRun_FetchFailureKeepsPartialCountAndWatermark(t *testing.T) {
	provider := &fakeProvider{}
	h := newHarness(t, provider, integration("int-1", "tenant-1", "fail"))

	list, err := h.integrations.ListActive(context.Background())
	require.NoError(t, err)
	sum := h.orch.Run(context.Background(), now, list)

	require.Len(t, sum.Results, 1)
	assert.Equal(t, StatusFailed, sum.Results[0].Status)
	assert.Nil(t, h.watermark(t, "int-1"))
	assert.Len(t, h.audit.ForIntegration("int-1", audit.EventTypeSyncFailed), 1)
}

func TestRun_RefreshFailureDisablesAndStillRollsUp(t *testing.T) {
	provider := &fakeProvider{refreshErr: errors.New("invalid_grant")}
	stale := integration("int-1", "tenant-1", "tok-1")
	stale.TokenExpiresAt = now.Add(time.Minute)
	h := newHarness(t, provider, stale)
	h.seedMatched(t, "tenant-1", "p1", "seed-1")

	sum := h.orch.RunActive(context.Background())

	require.Len(t, sum.Results, 1)
	assert.Equal(t, StatusDisabled, sum.Results[0].Status)
	assert.Equal(t, 1, sum.Failed)
	assert.Len(t, h.dailyRows(t, "tenant-1"), 1)

	in, err := h.integrations.Get(context.Background(), "int-1")
	require.NoError(t, err)
	assert.False(t, in.Active)
	assert.Len(t, h.audit.ForIntegration("int-1", audit.EventTypeIntegrationDisabled), 1)

	// Disabled integrations are not picked up again.
	next := h.orch.RunActive(context.Background())
	assert.Zero(t, next.Processed)
	assert.Empty(t, next.Results)
}

func TestRun_HeldLeaseSkipsIntegration(t *testing.T) {
	provider := &fakeProvider{pages: map[string][]telephony.CallRecord{"tok-1": {rec("a1")}}}
	h := newHarness(t, provider, integration("int-1", "tenant-1", "tok-1"))

	release, err := h.locker.Acquire(context.Background(), "int-1", time.Minute)
	require.NoError(t, err)

	sum := h.orch.RunActive(context.Background())
	assert.Equal(t, 1, sum.Skipped)
	assert.Zero(t, sum.Processed)
	assert.Equal(t, StatusSkipped, sum.Results[0].Status)
	assert.Zero(t, h.events.Len())

	require.NoError(t, release(context.Background()))
	sum = h.orch.RunActive(context.Background())
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, h.events.Len())
}

func TestRun_ExpiredDeadlineSkipsRemaining(t *testing.T) {
	h := newHarness(t, &fakeProvider{}, integration("int-1", "tenant-1", "tok-1"))
	list, err := h.integrations.ListActive(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := h.orch.Run(ctx, now, list)

	assert.Equal(t, 1, sum.Skipped)
	assert.Nil(t, h.watermark(t, "int-1"))
}

// cancelingFetcher stores nothing and cancels the run, as if the deadline hit mid-fetch.
type cancelingFetcher struct{ cancel context.CancelFunc }

func (f cancelingFetcher) Sync(ctx context.Context, _ *integrations.Integration, _ string, _ time.Time) (ingest.Result, error) {
	f.cancel()
	return ingest.Result{Synced: 1}, ctx.Err()
}

type recordingRollup struct{ ctxErr []error }

func (r *recordingRollup) Recompute(ctx context.Context, _ string, _ time.Time) (reporting.RollupResult, error) {
	r.ctxErr = append(r.ctxErr, ctx.Err())
	return reporting.RollupResult{Written: 1}, nil
}

func TestRun_RollupRunsAfterDeadlineHitsMidFetch(t *testing.T) {
	h := newHarness(t, &fakeProvider{}, integration("int-1", "tenant-1", "tok-1"))
	list, err := h.integrations.ListActive(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rollup := &recordingRollup{}
	creds := integrations.NewCredentialManager(h.integrations, &fakeProvider{}, nil)
	orch := NewOrchestrator(h.integrations, creds, cancelingFetcher{cancel: cancel}, rollup, NewMemoryLocker(), Config{}, nil)

	sum := orch.Run(ctx, now, list)

	require.Len(t, sum.Results, 1)
	assert.Equal(t, StatusFailed, sum.Results[0].Status)
	assert.Equal(t, 1, sum.Results[0].MetricsWritten)
	require.Len(t, rollup.ctxErr, 1)
	assert.NoError(t, rollup.ctxErr[0])
}

func TestRun_LastSuccessGaugeOnlyOnCleanRuns(t *testing.T) {
	metrics.SyncLastSuccess.Set(0)

	failing := newHarness(t, &fakeProvider{}, integration("int-1", "tenant-1", "fail"))
	list, err := failing.integrations.ListActive(context.Background())
	require.NoError(t, err)
	sum := failing.orch.Run(context.Background(), now, list)
	require.Equal(t, 1, sum.Failed)
	assert.Zero(t, testutil.ToFloat64(metrics.SyncLastSuccess))

	clean := newHarness(t, &fakeProvider{}, integration("int-2", "tenant-2", "tok-2"))
	list, err = clean.integrations.ListActive(context.Background())
	require.NoError(t, err)
	sum = clean.orch.Run(context.Background(), now, list)
	require.Zero(t, sum.Failed)
	assert.Positive(t, testutil.ToFloat64(metrics.SyncLastSuccess))
}

type failingSource struct{}

func (failingSource) ListActive(context.Context) ([]integrations.Integration, error) {
	return nil, errors.New("db unavailable")
}

func TestRunActive_LoadFailure(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	h.orch.source = failingSource{}

	sum := h.orch.RunActive(context.Background())
	assert.False(t, sum.Success)
	assert.Contains(t, sum.Error, "db unavailable")
	assert.NotNil(t, sum.Results)
}

func TestMemoryLocker_ExpiresAndOwnsRelease(t *testing.T) {
	l := NewMemoryLocker()
	clock := now
	l.clock = func() time.Time { return clock }

	first, err := l.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	clock = clock.Add(2 * time.Minute)
	second, err := l.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	// The expired holder must not release the new owner's lease.
	require.NoError(t, first(context.Background()))
	_, err = l.Acquire(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, second(context.Background()))
	_, err = l.Acquire(context.Background(), "k", time.Minute)
	assert.NoError(t, err)
}
