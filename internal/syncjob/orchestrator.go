// Package syncjob drives the call-log pipeline across every active integration.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"callsync/internal/ingest"
	"callsync/internal/integrations"
	"callsync/internal/metrics"
	"callsync/internal/reporting"
	"callsync/pkg/logger"
)

const (
	DefaultDeadline = 10 * time.Minute
	DefaultLeaseTTL = 15 * time.Minute
	// DefaultRollupGrace is the budget a rollup gets when the run deadline has already passed.
	DefaultRollupGrace = 30 * time.Second
)

// IntegrationSource loads the integrations a run should process.
type IntegrationSource interface {
	ListActive(ctx context.Context) ([]integrations.Integration, error)
}

type TokenProvider interface {
	EnsureValidToken(ctx context.Context, in *integrations.Integration, now time.Time) (string, error)
}

type CallFetcher interface {
	Sync(ctx context.Context, in *integrations.Integration, accessToken string, now time.Time) (ingest.Result, error)
}

type Rollup interface {
	Recompute(ctx context.Context, tenantID string, dayStart time.Time) (reporting.RollupResult, error)
}

type Config struct {
	// Deadline bounds one whole invocation.
	Deadline time.Duration
	LeaseTTL time.Duration

	// Location decides the calendar day the rollup recomputes.
	Location *time.Location

	// RollupGrace bounds a rollup that starts after the run was cancelled.
	RollupGrace time.Duration
}

// Status is the per-integration outcome of a run.
type Status string

const (
	StatusSynced   Status = "synced"
	StatusFailed   Status = "failed"
	StatusDisabled Status = "disabled"
	StatusSkipped  Status = "skipped"
)

// IntegrationResult records what happened to one integration.
type IntegrationResult struct {
	TenantID       string `json:"tenant_id"`
	IntegrationID  string `json:"integration_id"`
	Provider       string `json:"provider"`
	Status         Status `json:"status"`
	Synced         int    `json:"synced"`
	MetricsWritten int    `json:"metrics_written"`
	Error          string `json:"error,omitempty"`
}

// Summary is returned by every run.
type Summary struct {
	Success     bool                `json:"success"`
	Processed   int                 `json:"processed"`
	CallsSynced int                 `json:"calls_synced"`
	Skipped     int                 `json:"skipped"`
	Failed      int                 `json:"failed"`
	Results     []IntegrationResult `json:"results"`
	Error       string              `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Orchestrator runs credential check, fetch and rollup for each integration in sequence.
//
// Failure of one integration (error or panic) never stops the others. The rollup runs for every
// processed integration, including ones whose token or fetch step failed.
type Orchestrator struct {
	source  IntegrationSource
	creds   TokenProvider
	fetcher CallFetcher
	rollup  Rollup
	locker  Locker
	cfg     Config
	clock   func() time.Time
	log     *slog.Logger
}

func NewOrchestrator(source IntegrationSource, creds TokenProvider, fetcher CallFetcher, rollup Rollup, locker Locker, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RollupGrace <= 0 {
		cfg.RollupGrace = DefaultRollupGrace
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		source:  source,
		creds:   creds,
		fetcher: fetcher,
		rollup:  rollup,
		locker:  locker,
		cfg:     cfg,
		clock:   time.Now,
		log:     log,
	}
}

// RunActive loads every active integration and runs the pipeline over them.
func (o *Orchestrator) RunActive(ctx context.Context) Summary {
	// Postgres keeps microseconds; the watermark must round-trip exactly.
	now := o.clock().UTC().Truncate(time.Microsecond)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	list, err := o.source.ListActive(ctx)
	if err != nil {
		logger.FromOr(ctx, o.log).Error("load active integrations failed", slog.Any("err", err))
		return Summary{
			Success:    false,
			Error:      err.Error(),
			Results:    []IntegrationResult{},
			StartedAt:  now,
			FinishedAt: o.clock().UTC(),
		}
	}
	return o.Run(ctx, now, list)
}

// Run processes list sequentially as of now. It only depends on its inputs and the collaborators,
// so it can be driven directly with fixed clocks and in-memory repositories.
func (o *Orchestrator) Run(ctx context.Context, now time.Time, list []integrations.Integration) Summary {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()
	log := logger.FromOr(ctx, o.log)

	sum := Summary{Success: true, StartedAt: now, Results: make([]IntegrationResult, 0, len(list))}
	for i := range list {
		in := list[i]
		var res IntegrationResult
		if err := ctx.Err(); err != nil {
			res = IntegrationResult{
				TenantID:      in.TenantID,
				IntegrationID: in.ID,
				Provider:      in.Provider,
				Status:        StatusSkipped,
				Error:         err.Error(),
			}
		} else {
			res = o.processOne(ctx, log, now, &in)
		}

		switch res.Status {
		case StatusSkipped:
			sum.Skipped++
		case StatusFailed, StatusDisabled:
			sum.Processed++
			sum.Failed++
		default:
			sum.Processed++
		}
		sum.CallsSynced += res.Synced
		sum.Results = append(sum.Results, res)
		metrics.IntegrationsProcessed.WithLabelValues(string(res.Status)).Inc()
	}
	sum.FinishedAt = now.Add(time.Since(started))

	metrics.SyncRunDuration.Observe(time.Since(started).Seconds())
	if sum.Failed == 0 {
		metrics.SyncLastSuccess.SetToCurrentTime()
	}

	log.Info("call sync run finished",
		slog.Int("processed", sum.Processed),
		slog.Int("calls_synced", sum.CallsSynced),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed),
		slog.Duration("duration", time.Since(started)),
	)
	return sum
}

func (o *Orchestrator) processOne(ctx context.Context, log *slog.Logger, now time.Time, in *integrations.Integration) IntegrationResult {
	res := IntegrationResult{TenantID: in.TenantID, IntegrationID: in.ID, Provider: in.Provider, Status: StatusSynced}
	log = logger.ForIntegration(log, in.TenantID, in.ID, in.Provider)

	release, err := o.locker.Acquire(ctx, in.ID, o.cfg.LeaseTTL)
	switch {
	case errors.Is(err, ErrLeaseHeld):
		log.Info("integration already being synced; skipping")
		res.Status = StatusSkipped
		res.Error = err.Error()
		return res
	case err != nil:
		// Without a lock, idempotent inserts and the watermark compare-and-set still hold.
		log.Warn("lease unavailable; continuing without it", slog.Any("err", err))
	default:
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release lease failed", slog.Any("err", err))
			}
		}()
	}

	var token string
	err = o.guard(log, "credentials", func() error {
		var err error
		token, err = o.creds.EnsureValidToken(ctx, in, now)
		return err
	})
	if err != nil {
		res.Status = StatusFailed
		if errors.Is(err, integrations.ErrIntegrationUnavailable) {
			res.Status = StatusDisabled
		}
		res.Error = err.Error()
		log.Warn("no usable access token; skipping fetch", slog.Any("err", err))
	} else {
		err = o.guard(log, "fetch", func() error {
			r, err := o.fetcher.Sync(ctx, in, token, now)
			res.Synced = r.Synced
			return err
		})
		if err != nil {
			res.Status = StatusFailed
			res.Error = err.Error()
		}
	}

	rctx := ctx
	if ctx.Err() != nil {
		// The fetch used up the run; the rollup still covers what was stored.
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), o.cfg.RollupGrace)
		defer cancel()
	}
	err = o.guard(log, "rollup", func() error {
		r, err := o.rollup.Recompute(rctx, in.TenantID, reporting.DayStart(now, o.cfg.Location))
		res.MetricsWritten = r.Written
		return err
	})
	if err != nil {
		log.Error("daily rollup failed", slog.Any("err", err))
		if res.Status == StatusSynced {
			res.Status = StatusFailed
			res.Error = "rollup: " + err.Error()
		}
	}
	return res
}

// guard runs one pipeline step, turning a panic into an error.
func (o *Orchestrator) guard(log *slog.Logger, step string, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("sync step panicked",
				slog.String("step", step),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("syncjob: %s panicked: %v", step, p)
		}
	}()
	return fn()
}
