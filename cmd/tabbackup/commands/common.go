package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/tabbackup/internal/config"
	"git.home.luguber.info/inful/tabbackup/internal/logging"
	"git.home.luguber.info/inful/tabbackup/internal/window"
)

// Global holds state shared by every command.
type Global struct {
	Logger *slog.Logger
	closer io.Closer
}

// Close releases the log file, if any.
func (g *Global) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer.Close()
}

func (g *Global) setupLogging(cfg config.LoggingConfig, verbose bool) error {
	closer, err := logging.Setup(cfg, verbose)
	if err != nil {
		return err
	}
	_ = g.Close()
	g.closer = closer
	g.Logger = slog.Default()
	return nil
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Backup   BackupCmd   `cmd:"" default:"withargs" help:"Back up changed workbooks and data sources into git (default)"`
	Schedule ScheduleCmd `cmd:"" help:"Run incremental backups periodically"`
	Init     InitCmd     `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; sets up console logging until the
// configuration file has been read.
func (c *CLI) AfterApply(g *Global) error {
	return g.setupLogging(config.LoggingConfig{}, c.Verbose)
}

// loadConfig reads the configuration and applies its logging section.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	if err := g.setupLogging(cfg.Logging, root.Verbose); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// NormalizeArgs gives a bare --incremental (or -i) its default window of one hour,
// so that "--incremental" and "--incremental 6" both parse.
func NormalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if arg != "--incremental" && arg != "-i" {
			out = append(out, arg)
			continue
		}
		if i+1 < len(args) {
			if _, err := strconv.Atoi(args[i+1]); err == nil {
				out = append(out, arg)
				continue
			}
		}
		out = append(out, "--incremental="+strconv.Itoa(window.DefaultHours))
	}
	return out
}
