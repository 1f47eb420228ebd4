// Package logging configures the process-wide slog logger and carries run-scoped
// log fields through a context.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"git.home.luguber.info/inful/tabbackup/internal/config"
	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "TABBACKUP_LOG_LEVEL"

// ResolveLevel picks the effective level: verbose wins, then the environment,
// then the configuration; info otherwise.
func ResolveLevel(cfg config.LoggingConfig, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	raw := string(cfg.Level)
	if env := os.Getenv(EnvLevel); env != "" {
		raw = env
	}
	switch config.NormalizeLogLevel(raw) {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn:
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a text logger writing to stderr and, when cfg.File is set, to a
// rotated log file. The returned closer releases the file.
func New(cfg config.LoggingConfig, verbose bool, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	out := stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return nil, nil, errors.FileSystemError("failed to create log directory").
				WithCause(err).
				WithContext("path", cfg.File).
				Build()
		}
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, config.DefaultLogMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, config.DefaultLogMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, config.DefaultLogMaxAgeDays),
			Compress:   true,
		}
		out = io.MultiWriter(stderr, rotated)
		closer = rotated
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: ResolveLevel(cfg, verbose)})
	return slog.New(handler), closer, nil
}

// Setup builds the logger with New and installs it as the slog default.
func Setup(cfg config.LoggingConfig, verbose bool) (io.Closer, error) {
	logger, closer, err := New(cfg, verbose, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
