// Package ingest pulls provider call logs page by page into the event store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"callsync/internal/calls"
	"callsync/internal/integrations"
	"callsync/internal/metrics"
	"callsync/internal/telephony"
)

const (
	DefaultPageSize        = 100
	DefaultPageDelay       = 200 * time.Millisecond
	DefaultBootstrapWindow = 24 * time.Hour

	// maxPages guards against a provider that never reports the last page.
	maxPages = 10000
)

// EventPersister is the slice of calls.Store the fetcher needs.
type EventPersister interface {
	Persist(ctx context.Context, e calls.CallEvent) (bool, error)
}

// SyncStateWriter is the slice of integrations.Repository the fetcher writes.
type SyncStateWriter interface {
	RecordSyncError(ctx context.Context, id, message string, now time.Time) error
	AdvanceWatermark(ctx context.Context, id string, expected *time.Time, next time.Time) error
}

// FailureAuditor records aborted fetches.
type FailureAuditor interface {
	LogSyncFailed(ctx context.Context, tenantID, integrationID, reason string) error
}

type Config struct {
	PageSize        int
	PageDelay       time.Duration
	BootstrapWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	}
	if c.BootstrapWindow <= 0 {
		c.BootstrapWindow = DefaultBootstrapWindow
	}
	return c
}

// Result describes one Sync call.
type Result struct {
	Synced   int
	Rejected int
	Pages    int

	// Advanced is true when the watermark moved to the run's start time.
	Advanced bool
}

// Fetcher performs the incremental fetch for one integration.
type Fetcher struct {
	provider telephony.CallLogFetcher
	store    EventPersister
	state    SyncStateWriter
	audit    FailureAuditor
	cfg      Config
	log      *slog.Logger
}

func NewFetcher(provider telephony.CallLogFetcher, store EventPersister, state SyncStateWriter, auditor FailureAuditor, cfg Config, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		provider: provider,
		store:    store,
		state:    state,
		audit:    auditor,
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

// Sync fetches every page created since the integration's watermark and persists each record.
//
// The watermark advances to now only after the whole page sequence succeeds, including an empty
// first page. A failed page stops the loop, records the error on the integration and returns the
// partial count together with the error; the watermark stays put so the next run re-covers the window.
func (f *Fetcher) Sync(ctx context.Context, in *integrations.Integration, accessToken string, now time.Time) (Result, error) {
	if in == nil {
		return Result{}, integrations.ErrInvalidArgument
	}
	var (
		res      Result
		since    = in.SyncSince(now, f.cfg.BootstrapWindow)
		expected = in.LastSyncAt
		log      = f.log.With(
			slog.String("tenant_id", in.TenantID),
			slog.String("integration_id", in.ID),
		)
	)

	for page := 1; ; page++ {
		if page > 1 {
			if err := f.pause(ctx); err != nil {
				return res, f.fail(ctx, in, page, err, now)
			}
		}
		if page > maxPages {
			return res, f.fail(ctx, in, page, errors.New("page limit exceeded"), now)
		}

		p, err := f.provider.FetchCallLog(ctx, accessToken, telephony.CallLogRequest{
			DateFrom: since,
			Page:     page,
			PerPage:  f.cfg.PageSize,
		})
		if err != nil {
			metrics.PagesFetched.WithLabelValues(in.Provider, "error").Inc()
			return res, f.fail(ctx, in, page, err, now)
		}
		metrics.PagesFetched.WithLabelValues(in.Provider, "ok").Inc()
		res.Pages++

		for _, rej := range p.Rejected {
			res.Rejected++
			log.Warn("call record rejected", slog.Int("page", page), slog.Any("err", rej.Err))
		}
		for _, rec := range p.Records {
			if _, err := f.store.Persist(ctx, ToCallEvent(*in, rec)); err != nil {
				metrics.RecordPersistErrors.WithLabelValues(in.Provider).Inc()
				log.Error("persist call record failed",
					slog.String("external_id", rec.ID),
					slog.Any("err", err),
				)
				continue
			}
			res.Synced++
			metrics.CallRecordsSynced.WithLabelValues(in.Provider).Inc()
		}

		if !p.HasMore() {
			break
		}
	}

	if err := f.state.AdvanceWatermark(ctx, in.ID, expected, now); err != nil {
		if errors.Is(err, integrations.ErrStaleWatermark) {
			log.Warn("watermark advanced by a concurrent run; keeping theirs")
			return res, nil
		}
		return res, fmt.Errorf("ingest: advance watermark: %w", err)
	}
	mark := now
	in.LastSyncAt = &mark
	in.LastSyncError = ""
	res.Advanced = true

	log.Info("call log synced",
		slog.Int("synced", res.Synced),
		slog.Int("pages", res.Pages),
		slog.Int("rejected", res.Rejected),
	)
	return res, nil
}

// pause waits PageDelay after a page has been handled, however long that page took.
// The limiter starts drained, so its first token is one full delay away.
func (f *Fetcher) pause(ctx context.Context) error {
	if f.cfg.PageDelay <= 0 {
		return ctx.Err()
	}
	l := rate.NewLimiter(rate.Every(f.cfg.PageDelay), 1)
	l.Allow()
	return l.Wait(ctx)
}

func (f *Fetcher) fail(ctx context.Context, in *integrations.Integration, page int, cause error, now time.Time) error {
	msg := fmt.Sprintf("fetch page %d: %v", page, cause)
	// Record the failure even when the run's own deadline caused it.
	wctx := context.WithoutCancel(ctx)

	if err := f.state.RecordSyncError(wctx, in.ID, msg, now); err != nil {
		f.log.Error("record sync error failed", slog.String("integration_id", in.ID), slog.Any("err", err))
	}
	in.LastSyncError = msg
	if f.audit != nil {
		if err := f.audit.LogSyncFailed(wctx, in.TenantID, in.ID, msg); err != nil {
			f.log.Warn("audit sync_failed failed", slog.String("integration_id", in.ID), slog.Any("err", err))
		}
	}
	f.log.Warn("call log sync aborted",
		slog.String("tenant_id", in.TenantID),
		slog.String("integration_id", in.ID),
		slog.Int("page", page),
		slog.Any("err", cause),
	)
	return fmt.Errorf("ingest: fetch page %d: %w", page, cause)
}
