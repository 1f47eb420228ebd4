package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"git.home.luguber.info/inful/tabbackup/internal/backup"
	"git.home.luguber.info/inful/tabbackup/internal/config"
	"git.home.luguber.info/inful/tabbackup/internal/credentials"
	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/window"
)

// BackupCmd implements the 'backup' command.
type BackupCmd struct {
	Incremental string `short:"i" placeholder:"HOURS" help:"Back up artifacts updated within the last HOURS (default 1)"`
	FullLoad    bool   `short:"f" name:"full-load" help:"Back up every artifact regardless of update time"`
	Password    string `short:"p" placeholder:"a|t|g" help:"Re-enter stored passwords: a=all, t=Tableau Server, g=git"`
}

// Validate requires exactly one of --incremental and --full-load.
func (b *BackupCmd) Validate() error {
	if _, err := b.mode(); err != nil {
		return err
	}
	_, err := credentials.ParseRotation(b.Password)
	return err
}

func (b *BackupCmd) mode() (window.Mode, error) {
	switch {
	case b.FullLoad && b.Incremental != "":
		return window.Mode{}, errors.ValidationError("--incremental and --full-load are mutually exclusive").Build()
	case b.FullLoad:
		return window.FullLoad(), nil
	case b.Incremental == "":
		return window.Mode{}, errors.ValidationError("one of --incremental or --full-load is required").Build()
	}

	hours, err := strconv.Atoi(b.Incremental)
	if err != nil {
		return window.Mode{}, errors.ValidationError("--incremental takes a whole number of hours").
			WithCause(err).
			WithContext("value", b.Incremental).
			Build()
	}
	m := window.Incremental(hours)
	return m, m.Validate()
}

func (b *BackupCmd) Run(g *Global, root *CLI) error {
	mode, err := b.mode()
	if err != nil {
		return err
	}
	rotation, err := credentials.ParseRotation(b.Password)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := RunBackup(ctx, cfg, g.Logger, backup.Options{Mode: mode, Rotation: rotation})
	if err != nil {
		return err
	}
	fmt.Printf("Backed up %d artifacts from %d sites (%d skipped)\n", res.Extracted, res.Sites, res.Skipped)
	if res.Commit == "" {
		fmt.Println("No changes to commit")
	} else {
		fmt.Printf("Committed %s\n", res.Commit)
	}
	return nil
}

// RunBackup performs one backup with credentials from the configured secret store.
func RunBackup(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts backup.Options, runnerOpts ...backup.RunnerOption) (backup.Result, error) {
	store := credentials.NewStore(cfg.Credentials.Service, credentials.WithLogger(logger))
	runnerOpts = append([]backup.RunnerOption{backup.WithLogger(logger)}, runnerOpts...)
	return backup.NewRunner(cfg, store, runnerOpts...).Run(ctx, opts)
}
