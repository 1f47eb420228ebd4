package backup

import (
	"context"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
	"git.home.luguber.info/inful/tabbackup/internal/logging"
	"git.home.luguber.info/inful/tabbackup/internal/metrics"
	"git.home.luguber.info/inful/tabbackup/internal/tableau"
	"git.home.luguber.info/inful/tabbackup/internal/window"
	"git.home.luguber.info/inful/tabbackup/internal/workspace"
)

// RemoteClient is the subset of the server client the walker drives.
type RemoteClient interface {
	SignIn(ctx context.Context, user, password, contentURL string) (tableau.Session, error)
	SignOut(ctx context.Context) error
	Sites(ctx context.Context) iter.Seq2[tableau.Site, error]
	Artifacts(ctx context.Context, kind tableau.Kind, filter string) iter.Seq2[tableau.Artifact, error]
	Download(ctx context.Context, a tableau.Artifact, dir string) (tableau.Staged, error)
}

// Extractor turns a download into its canonical definition file.
type Extractor interface {
	Extract(downloadedPath, fileName, artifactID, destDir string) (string, error)
}

// Stats counts what a walk did. Safe for concurrent updates.
type Stats struct {
	sites     atomic.Int64
	extracted atomic.Int64
	skipped   atomic.Int64
}

// Sites returns the number of sites walked.
func (s *Stats) Sites() int { return int(s.sites.Load()) }

// Extracted returns the number of artifacts written to their canonical file.
func (s *Stats) Extracted() int { return int(s.extracted.Load()) }

// Skipped returns the number of artifacts that failed and were left out.
func (s *Stats) Skipped() int { return int(s.skipped.Load()) }

// Walker enumerates sites and their changed artifacts and materializes each one
// under the layout.
type Walker struct {
	remote      RemoteClient
	extractor   Extractor
	layout      *workspace.Layout
	user        string
	password    string
	concurrency int
	recorder    metrics.Recorder
	logger      *slog.Logger
}

// NewWalker creates a walker. concurrency below 1 means sequential.
func NewWalker(remote RemoteClient, extractor Extractor, layout *workspace.Layout, user, password string, concurrency int) *Walker {
	return &Walker{
		remote:      remote,
		extractor:   extractor,
		layout:      layout,
		user:        user,
		password:    password,
		concurrency: max(concurrency, 1),
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}
}

// WithRecorder sets the metrics recorder.
func (w *Walker) WithRecorder(r metrics.Recorder) *Walker { w.recorder = r; return w }

// WithLogger sets the base logger.
func (w *Walker) WithLogger(l *slog.Logger) *Walker { w.logger = l; return w }

// Walk backs up every artifact updated at or after since. The returned error is
// fatal for the run; skipped artifacts are only counted.
func (w *Walker) Walk(ctx context.Context, since time.Time, stats *Stats) error {
	filter := window.Filter(since)

	if _, err := w.remote.SignIn(ctx, w.user, w.password, ""); err != nil {
		return err
	}
	for site, err := range w.remote.Sites(ctx) {
		if err != nil {
			return fatalWalkError(ctx, err, "list sites", "")
		}
		if err := w.walkSite(ctx, site, filter, stats); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) walkSite(ctx context.Context, site tableau.Site, filter string, stats *Stats) error {
	ctx = logging.WithSite(ctx, site.Name)
	log := logging.Logger(ctx, w.logger)
	log.Info("Backing up site", logfields.SiteURL(site.ContentURL), slog.String("filter", filter))

	if _, err := w.remote.SignIn(ctx, w.user, w.password, site.ContentURL); err != nil {
		return fatalWalkError(ctx, err, "sign in", site.Name)
	}
	if _, err := w.layout.EnsureSite(site.Name); err != nil {
		return err
	}
	stats.sites.Add(1)
	w.recorder.IncSites()

	for _, kind := range tableau.Kinds() {
		if err := w.walkKind(logging.WithKind(ctx, kind.String()), site, kind, filter, stats); err != nil {
			return err
		}
	}
	return nil
}

// walkKind fetches pages sequentially and hands artifacts to a bounded worker pool.
// A full pool blocks the page loop.
func (w *Walker) walkKind(ctx context.Context, site tableau.Site, kind tableau.Kind, filter string, stats *Stats) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	var listErr error
	for a, err := range w.remote.Artifacts(gctx, kind, filter) {
		if err != nil {
			listErr = err
			break
		}
		g.Go(func() error { return w.process(gctx, site, a, stats) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if listErr != nil {
		return fatalWalkError(ctx, listErr, "list "+kind.Collection(), site.Name)
	}
	return nil
}

// process downloads and extracts one artifact. Only cancellation is returned as an
// error; every other failure skips the artifact.
func (w *Walker) process(ctx context.Context, site tableau.Site, a tableau.Artifact, stats *Stats) error {
	log := logging.Logger(ctx, w.logger).With(
		logfields.ArtifactID(a.ID),
		logfields.ArtifactName(a.Name),
		logfields.Project(a.ProjectName))

	if err := ctx.Err(); err != nil {
		return errors.CanceledError("backup canceled").WithCause(err).Build()
	}

	dir, err := w.layout.EnsureProject(site.Name, a.ProjectName)
	if err != nil {
		w.skip(log, stats, a, "mkdir", err)
		return nil
	}

	start := time.Now()
	staged, err := w.remote.Download(ctx, a, dir)
	w.recorder.ObserveDownloadDuration(a.Kind.String(), time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return errors.CanceledError("backup canceled").WithCause(err).Build()
		}
		w.skip(log, stats, a, "download", err)
		return nil
	}

	path, err := w.extractor.Extract(staged.Path, staged.Name, a.ID, dir)
	if err != nil {
		w.skip(log, stats, a, "extract", err)
		return nil
	}

	stats.extracted.Add(1)
	w.recorder.IncArtifact(a.Kind.String(), metrics.ResultExtracted)
	log.Debug("Artifact backed up", logfields.Path(path))
	return nil
}

func (w *Walker) skip(log *slog.Logger, stats *Stats, a tableau.Artifact, op string, err error) {
	stats.skipped.Add(1)
	w.recorder.IncArtifact(a.Kind.String(), metrics.ResultSkipped)
	log.Warn("Skipping artifact", logfields.Operation(op), logfields.Error(err))
}

// fatalWalkError marks a sign-in or listing failure as fatal, keeping
// cancellation recognizable.
func fatalWalkError(ctx context.Context, err error, op, site string) error {
	if ctx.Err() != nil && !errors.HasCategory(err, errors.CategoryCanceled) {
		return errors.CanceledError("backup canceled").WithCause(err).WithContext("op", op).Build()
	}
	if ce, ok := errors.AsClassified(err); ok && ce.IsFatal() {
		return ce
	}
	b := errors.WrapError(err, errors.GetCategory(err), op+" failed").
		Fatal().
		WithContext("op", op)
	if site != "" {
		b = b.WithContext("site", site)
	}
	return b.Build()
}
