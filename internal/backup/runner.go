package backup

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/tabbackup/internal/config"
	"git.home.luguber.info/inful/tabbackup/internal/credentials"
	"git.home.luguber.info/inful/tabbackup/internal/extract"
	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/git"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
	"git.home.luguber.info/inful/tabbackup/internal/logging"
	"git.home.luguber.info/inful/tabbackup/internal/metrics"
	"git.home.luguber.info/inful/tabbackup/internal/retry"
	"git.home.luguber.info/inful/tabbackup/internal/tableau"
	"git.home.luguber.info/inful/tabbackup/internal/window"
	"git.home.luguber.info/inful/tabbackup/internal/workspace"
)

// signOutTimeout bounds the best-effort sign-out after a canceled run.
const signOutTimeout = 10 * time.Second

// CredentialResolver supplies the two passwords a run needs.
type CredentialResolver interface {
	Resolve(ctx context.Context, remoteUser, vcsUser string, rotate credentials.Rotation) (credentials.Credentials, error)
}

// Committer owns the backup working tree.
type Committer interface {
	OpenOrClone(ctx context.Context) (fresh bool, err error)
	Sync(ctx context.Context, startedAt time.Time) (string, error)
}

// RemoteFactory builds a server client for one run.
type RemoteFactory func(cfg config.ServerConfig, policy retry.Policy) (RemoteClient, error)

// CommitterFactory builds the repository client once the VCS password is known.
type CommitterFactory func(dir string, cfg config.GitConfig, password string, policy retry.Policy) Committer

// Options selects the window mode and which stored passwords to replace.
type Options struct {
	Mode     window.Mode
	Rotation credentials.Rotation
}

// Result summarizes a run.
type Result struct {
	RunID     string
	StartedAt time.Time
	Since     time.Time
	Fresh     bool
	Sites     int
	Extracted int
	Skipped   int
	Commit    string // empty when nothing changed
	Duration  time.Duration
}

// Runner executes backup runs against one configuration.
type Runner struct {
	cfg          *config.Config
	creds        CredentialResolver
	newRemote    RemoteFactory
	newCommitter CommitterFactory
	extractor    Extractor
	recorder     metrics.Recorder
	logger       *slog.Logger
	now          func() time.Time
	policy       retry.Policy
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithRecorder(r metrics.Recorder) RunnerOption { return func(x *Runner) { x.recorder = r } }
func WithLogger(l *slog.Logger) RunnerOption       { return func(x *Runner) { x.logger = l } }
func WithClock(now func() time.Time) RunnerOption  { return func(x *Runner) { x.now = now } }
func WithRetryPolicy(p retry.Policy) RunnerOption  { return func(x *Runner) { x.policy = p } }
func WithExtractor(e Extractor) RunnerOption       { return func(x *Runner) { x.extractor = e } }

// WithRemoteFactory replaces the server client constructor.
func WithRemoteFactory(f RemoteFactory) RunnerOption {
	return func(x *Runner) { x.newRemote = f }
}

// WithCommitterFactory replaces the repository client constructor.
func WithCommitterFactory(f CommitterFactory) RunnerOption {
	return func(x *Runner) { x.newCommitter = f }
}

// NewRunner creates a runner using the production server, git and extraction clients.
func NewRunner(cfg *config.Config, creds CredentialResolver, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:          cfg,
		creds:        creds,
		newRemote:    defaultRemote,
		newCommitter: defaultCommitter,
		extractor:    extract.New(),
		recorder:     metrics.NoopRecorder{},
		logger:       slog.Default(),
		now:          time.Now,
		policy:       retry.FromConfig(cfg.Retry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultRemote(cfg config.ServerConfig, policy retry.Policy) (RemoteClient, error) {
	c, err := tableau.New(cfg, tableau.WithRetryPolicy(policy))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func defaultCommitter(dir string, cfg config.GitConfig, password string, policy retry.Policy) Committer {
	return git.NewClient(dir, cfg, git.WithBasicAuth(cfg.Login, password), git.WithRetryPolicy(policy))
}

// Run performs one backup. Skipped artifacts do not fail the run; any returned
// error means nothing was committed.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	res := Result{RunID: uuid.NewString(), StartedAt: r.now()}
	ctx = logging.WithRunID(ctx, res.RunID)
	log := logging.Logger(ctx, r.logger)

	err := r.run(ctx, log, opts, &res)
	res.Duration = time.Since(res.StartedAt)
	r.recorder.ObserveRunDuration(res.Duration)

	switch {
	case err != nil && (ctx.Err() != nil || errors.HasCategory(err, errors.CategoryCanceled)):
		r.recorder.IncRunOutcome(metrics.OutcomeCanceled)
		log.Warn("Backup canceled", logfields.Error(err))
	case err != nil:
		r.recorder.IncRunOutcome(metrics.OutcomeFailed)
		log.Error("Backup failed", logfields.Error(err))
	case res.Skipped > 0:
		r.recorder.IncRunOutcome(metrics.OutcomePartial)
		r.recorder.SetLastSuccess(res.StartedAt)
	default:
		r.recorder.IncRunOutcome(metrics.OutcomeSuccess)
		r.recorder.SetLastSuccess(res.StartedAt)
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, opts Options, res *Result) error {
	if err := opts.Mode.Validate(); err != nil {
		return err
	}

	server, repo := r.cfg.TableauServer, r.cfg.Git
	creds, err := r.creds.Resolve(ctx, server.User, repo.Login, opts.Rotation)
	if err != nil {
		return err
	}

	log.Info("Preparing backup repository", logfields.Path(repo.ProjectName), logfields.Remote(repo.Remote))
	committer := r.newCommitter(repo.ProjectName, repo, creds.VCSPassword.Reveal(), r.policy)
	fresh, err := committer.OpenOrClone(ctx)
	if err != nil {
		return err
	}
	res.Fresh = fresh
	res.Since = window.Compute(opts.Mode, !fresh, res.StartedAt)
	log.Info("Change window computed",
		slog.String("mode", opts.Mode.String()),
		logfields.Window(res.Since),
		slog.Bool("fresh", fresh))

	remote, err := r.newRemote(server, r.policy)
	if err != nil {
		return err
	}
	walker := NewWalker(remote, r.extractor, workspace.NewLayout(repo.ProjectName),
		server.User, creds.RemotePassword.Reveal(), server.Concurrency).
		WithRecorder(r.recorder).
		WithLogger(r.logger)

	var stats Stats
	walkErr := walker.Walk(ctx, res.Since, &stats)
	res.Sites, res.Extracted, res.Skipped = stats.Sites(), stats.Extracted(), stats.Skipped()
	r.signOut(ctx, log, remote)
	if walkErr != nil {
		return walkErr
	}

	hash, err := committer.Sync(ctx, res.StartedAt)
	if err != nil {
		return err
	}
	res.Commit = hash

	log.Info("Backup complete",
		slog.Int("sites", res.Sites),
		slog.Int("extracted", res.Extracted),
		slog.Int("skipped", res.Skipped),
		logfields.Commit(hash),
		logfields.Duration(time.Since(res.StartedAt)))
	return nil
}

func (r *Runner) signOut(ctx context.Context, log *slog.Logger, remote RemoteClient) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), signOutTimeout)
	defer cancel()
	if err := remote.SignOut(ctx); err != nil {
		log.Warn("Sign out failed", logfields.Error(err))
	}
}
