package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/tabbackup/internal/config"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
	"git.home.luguber.info/inful/tabbackup/internal/window"
)

const jobName = "incremental-backup"

// RunFunc performs one backup with the configuration current at trigger time.
type RunFunc func(ctx context.Context, cfg *config.Config, mode window.Mode) error

// Scheduler wraps a gocron scheduler running a single periodic backup job.
// Runs never overlap; a trigger that fires while a run is active is skipped.
type Scheduler struct {
	scheduler gocron.Scheduler
	run       RunFunc
	logger    *slog.Logger

	mu     sync.RWMutex
	cfg    *config.Config
	job    gocron.Job
	runCtx context.Context
}

// New creates a scheduler. Nothing runs until Start.
func New(cfg *config.Config, run RunFunc, logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{scheduler: s, run: run, cfg: cfg, logger: logger}, nil
}

// Config returns the configuration the next run will use.
func (s *Scheduler) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Start schedules the backup job, runs it immediately and then every
// schedule.every. Runs stop being triggered once ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Schedule.Every <= 0 {
		return fmt.Errorf("schedule interval must be positive, got %s", s.cfg.Schedule.Every)
	}
	s.runCtx = ctx
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(s.cfg.Schedule.Every),
		gocron.NewTask(s.execute),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create periodic backup job: %w", err)
	}
	s.job = job

	s.logger.Info("Starting scheduler",
		slog.String("job_id", job.ID().String()),
		slog.Duration("every", s.cfg.Schedule.Every),
		slog.Int("hours", s.cfg.Schedule.Hours))
	s.scheduler.Start()
	return nil
}

// Stop waits for an active run to finish and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// NextRun reports when the backup job fires next.
func (s *Scheduler) NextRun() (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.job == nil {
		return time.Time{}, fmt.Errorf("scheduler not started")
	}
	return s.job.NextRun()
}

// Reload swaps the configuration used by later runs. A changed interval
// reschedules the job without triggering an immediate run.
func (s *Scheduler) Reload(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	s.cfg = cfg
	if s.job == nil || prev.Schedule.Every == cfg.Schedule.Every {
		return nil
	}
	if cfg.Schedule.Every <= 0 {
		s.cfg = prev
		return fmt.Errorf("schedule interval must be positive, got %s", cfg.Schedule.Every)
	}

	job, err := s.scheduler.Update(s.job.ID(),
		gocron.DurationJob(cfg.Schedule.Every),
		gocron.NewTask(s.execute),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		s.cfg = prev
		return fmt.Errorf("failed to reschedule backup job: %w", err)
	}
	s.job = job
	s.logger.Info("Backup job rescheduled",
		slog.Duration("every", cfg.Schedule.Every),
		slog.Duration("previous", prev.Schedule.Every))
	return nil
}

// execute is called by gocron for every trigger.
func (s *Scheduler) execute() {
	s.mu.RLock()
	ctx, cfg := s.runCtx, s.cfg
	s.mu.RUnlock()
	if ctx.Err() != nil {
		return
	}

	mode := window.Incremental(cfg.Schedule.Hours)
	s.logger.Info("Executing scheduled backup", slog.String("mode", mode.String()))
	start := time.Now()
	if err := s.run(ctx, cfg, mode); err != nil {
		s.logger.Error("Scheduled backup failed",
			logfields.Duration(time.Since(start)),
			logfields.Error(err))
		return
	}
	s.logger.Info("Scheduled backup finished", logfields.Duration(time.Since(start)))
}
