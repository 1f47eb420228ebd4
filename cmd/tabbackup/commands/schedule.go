package commands

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/tabbackup/internal/backup"
	"git.home.luguber.info/inful/tabbackup/internal/config"
	"git.home.luguber.info/inful/tabbackup/internal/credentials"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
	"git.home.luguber.info/inful/tabbackup/internal/metrics"
	"git.home.luguber.info/inful/tabbackup/internal/scheduler"
	"git.home.luguber.info/inful/tabbackup/internal/window"
)

const shutdownTimeout = 30 * time.Second

// ScheduleCmd implements the 'schedule' command.
type ScheduleCmd struct {
	Every time.Duration `help:"Interval between backups (overrides schedule.every)"`
	Hours int           `help:"Incremental window per run in hours (overrides schedule.hours)"`
}

// apply layers the command line overrides on cfg. Reloaded files get the same
// treatment so flags keep precedence.
func (s *ScheduleCmd) apply(cfg *config.Config) {
	if s.Every > 0 {
		cfg.Schedule.Every = s.Every
		cfg.Schedule.Hours = config.HoursCovering(s.Every)
	}
	if s.Hours > 0 {
		cfg.Schedule.Hours = s.Hours
	}
}

func (s *ScheduleCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	s.apply(cfg)

	ctx, cancel := signalContext()
	defer cancel()
	return RunSchedule(ctx, cfg, root.Config, g.Logger, s.apply)
}

// RunSchedule runs incremental backups until ctx is done. Passwords are resolved
// up front so that scheduled runs never prompt.
func RunSchedule(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger, override func(*config.Config)) error {
	logger.Info("Starting schedule mode",
		slog.Duration("every", cfg.Schedule.Every),
		slog.Int("hours", cfg.Schedule.Hours))

	store := credentials.NewStore(cfg.Credentials.Service, credentials.WithLogger(logger))
	if _, err := store.Resolve(ctx, cfg.TableauServer.User, cfg.Git.Login, credentials.RotateNone); err != nil {
		return err
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Listen != "" {
		reg := metrics.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, reg)
		go func() {
			logger.Info("Serving metrics", slog.String("listen", cfg.Metrics.Listen), logfields.Path(cfg.Metrics.Path))
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", logfields.Error(err))
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			_ = srv.Shutdown(stopCtx)
		}()
	}

	run := func(ctx context.Context, cfg *config.Config, mode window.Mode) error {
		_, err := backup.NewRunner(cfg, store,
			backup.WithLogger(logger),
			backup.WithRecorder(recorder)).Run(ctx, backup.Options{Mode: mode})
		return err
	}
	sched, err := scheduler.New(cfg, run, logger)
	if err != nil {
		return err
	}

	watcher, err := scheduler.NewConfigWatcher(configPath, func(next *config.Config) error {
		if override != nil {
			override(next)
		}
		return sched.Reload(next)
	}, logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = watcher.Stop() }()

	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping scheduler...")
	if err := sched.Stop(); err != nil {
		return err
	}
	logger.Info("Scheduler stopped successfully")
	return nil
}
