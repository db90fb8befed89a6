package syncjob

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler fires the sync job on a cron expression.
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	log       *slog.Logger
}

// NewScheduler registers run under expr. Overlapping ticks are skipped while a run is in progress.
func NewScheduler(expr string, loc *time.Location, run func(ctx context.Context) Summary, log *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()

	job, err := s.Cron(expr).Do(func() {
		log.Info("scheduled call sync starting")
		sum := run(ctx)
		log.Info("scheduled call sync finished",
			slog.Bool("success", sum.Success),
			slog.Int("processed", sum.Processed),
			slog.Int("calls_synced", sum.CallsSynced),
		)
	})
	if err != nil {
		cancel()
		return nil, err
	}
	job.Tag("call-sync")

	return &Scheduler{scheduler: s, ctx: ctx, cancel: cancel, log: log}, nil
}

func (s *Scheduler) Start() {
	s.log.Info("starting scheduler")
	s.scheduler.StartAsync()
}

// Stop halts future ticks and cancels a run in progress.
func (s *Scheduler) Stop() {
	s.log.Info("stopping scheduler")
	s.cancel()
	s.scheduler.Stop()
}

// NextRun reports when the job fires next.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}
