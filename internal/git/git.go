package git

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/tabbackup/internal/config"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
	"git.home.luguber.info/inful/tabbackup/internal/retry"
)

// CommitMessageLayout formats the run start time in commit messages.
const CommitMessageLayout = "2006-01-02 15-04-05"

// CommitMessage returns the message recorded for a run started at t.
func CommitMessage(t time.Time) string {
	return "last backup: " + t.Format(CommitMessageLayout)
}

// Client handles Git operations on the backup working tree.
type Client struct {
	dir         string
	url         string
	remote      string
	authorName  string
	authorEmail string
	auth        transport.AuthMethod
	policy      retry.Policy
}

// Option customizes a Client.
type Option func(*Client)

// WithBasicAuth authenticates HTTP(S) remotes with login and password. Other
// transports ignore it.
func WithBasicAuth(login, password string) Option {
	return func(c *Client) { c.auth = basicAuth(c.url, login, password) }
}

// WithRetryPolicy sets the policy applied to clone and push.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a client for the working tree at dir, mirroring cfg.URL.
func NewClient(dir string, cfg config.GitConfig, opts ...Option) *Client {
	c := &Client{
		dir:         dir,
		url:         cfg.URL,
		remote:      cfg.Remote,
		authorName:  cfg.AuthorName,
		authorEmail: cfg.AuthorEmail,
		policy:      retry.DefaultPolicy(),
	}
	if c.remote == "" {
		c.remote = config.DefaultRemote
	}
	if c.authorName == "" {
		c.authorName = config.DefaultAuthorName
	}
	if c.authorEmail == "" {
		c.authorEmail = config.DefaultAuthorEmail
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the working tree path.
func (c *Client) Dir() string { return c.dir }

// basicAuth returns HTTP basic auth for http(s) remotes and nil otherwise.
func basicAuth(remoteURL, login, password string) transport.AuthMethod {
	if login == "" {
		return nil
	}
	u, err := url.Parse(remoteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	return &http.BasicAuth{Username: login, Password: password}
}

// OpenOrClone makes sure the working tree exists. fresh reports whether it was
// created by this call. An empty remote yields a freshly initialized repository
// with the remote configured.
func (c *Client) OpenOrClone(ctx context.Context) (fresh bool, err error) {
	if _, err := os.Stat(filepath.Join(c.dir, ".git")); err == nil {
		if _, err := git.PlainOpen(c.dir); err != nil {
			return false, ClassifyGitError(err, "open", c.url)
		}
		slog.Debug("Using existing repository", logfields.Path(c.dir))
		return false, nil
	}
	if entries, err := os.ReadDir(c.dir); err == nil && len(entries) > 0 {
		return false, GitError("destination exists but is not a git repository").
			WithContext("path", c.dir).
			Build()
	}

	slog.Info("Cloning backup repository", logfields.URL(redactURL(c.url)), logfields.Path(c.dir))
	err = retry.Do(ctx, c.policy, func() error {
		_, cerr := git.PlainCloneContext(ctx, c.dir, false, &git.CloneOptions{
			URL:        c.url,
			RemoteName: c.remote,
			Auth:       c.auth,
		})
		if stderrors.Is(cerr, transport.ErrEmptyRemoteRepository) {
			return c.initEmpty()
		}
		if cerr != nil {
			_ = os.RemoveAll(c.dir)
			return ClassifyGitError(cerr, "clone", c.url)
		}
		return nil
	}, func(attempt int, err error) {
		slog.Warn("Retrying clone", slog.Int("attempt", attempt), logfields.Error(err))
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// initEmpty initializes a repository whose remote has no commits yet.
func (c *Client) initEmpty() error {
	_ = os.RemoveAll(c.dir)
	repo, err := git.PlainInit(c.dir, false)
	if err != nil {
		return ClassifyGitError(err, "init", c.url)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: c.remote, URLs: []string{c.url}}); err != nil {
		return ClassifyGitError(err, "init", c.url)
	}
	slog.Info("Remote repository is empty, initialized locally", logfields.Path(c.dir))
	return nil
}

// HasChanges reports whether the working tree differs from the last commit,
// counting untracked, modified and deleted files.
func (c *Client) HasChanges() (bool, error) {
	repo, err := git.PlainOpen(c.dir)
	if err != nil {
		return false, ClassifyGitError(err, "open", c.url)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return false, ClassifyGitError(err, "status", c.url)
	}
	status, err := wt.Status()
	if err != nil {
		return false, ClassifyGitError(err, "status", c.url)
	}
	return !status.IsClean(), nil
}

// Sync stages every change, commits with the message for startedAt and pushes.
// With nothing to commit it returns an empty hash and no error, but still pushes
// commits an earlier run failed to push. The push is retried per the client's
// policy; an up-to-date remote is not an error.
func (c *Client) Sync(ctx context.Context, startedAt time.Time) (string, error) {
	changed, err := c.HasChanges()
	if err != nil {
		return "", err
	}
	repo, err := git.PlainOpen(c.dir)
	if err != nil {
		return "", ClassifyGitError(err, "open", c.url)
	}
	if !changed {
		pending, err := c.unpushed(repo)
		if err != nil {
			return "", err
		}
		if !pending {
			slog.Info("Nothing to commit", logfields.Path(c.dir))
			return "", nil
		}
		slog.Info("Pushing commits from an earlier run", logfields.Remote(c.remote))
		return "", c.push(ctx, repo)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", ClassifyGitError(err, "add", c.url)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", ClassifyGitError(err, "add", c.url)
	}
	hash, err := wt.Commit(CommitMessage(startedAt), &git.CommitOptions{
		All: true,
		Author: &object.Signature{
			Name:  c.authorName,
			Email: c.authorEmail,
			When:  startedAt,
		},
	})
	if err != nil {
		return "", ClassifyGitError(err, "commit", c.url)
	}
	slog.Info("Committed backup", logfields.Commit(hash.String()[:8]))

	if err := c.push(ctx, repo); err != nil {
		return hash.String(), err
	}
	return hash.String(), nil
}

// unpushed reports whether HEAD differs from the last state known to be on the
// remote. A branch never pushed counts as unpushed; a repository without commits
// does not.
func (c *Client) unpushed(repo *git.Repository) (bool, error) {
	head, err := repo.Head()
	if stderrors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, ClassifyGitError(err, "status", c.url)
	}
	tracking, err := repo.Reference(plumbing.NewRemoteReferenceName(c.remote, head.Name().Short()), true)
	if stderrors.Is(err, plumbing.ErrReferenceNotFound) {
		return true, nil
	}
	if err != nil {
		return false, ClassifyGitError(err, "status", c.url)
	}
	return tracking.Hash() != head.Hash(), nil
}

func (c *Client) push(ctx context.Context, repo *git.Repository) error {
	err := retry.Do(ctx, c.policy, func() error {
		err := repo.PushContext(ctx, &git.PushOptions{RemoteName: c.remote, Auth: c.auth})
		if err == nil || stderrors.Is(err, git.NoErrAlreadyUpToDate) {
			slog.Info("Pushed backup", logfields.Remote(c.remote))
			return nil
		}
		return ClassifyGitError(err, "push", c.url)
	}, func(attempt int, err error) {
		slog.Warn("Retrying push", slog.Int("attempt", attempt), logfields.Remote(c.remote), logfields.Error(err))
	})
	if err != nil {
		return err
	}
	return c.recordPushed(repo)
}

// recordPushed points the remote-tracking branch at HEAD.
func (c *Client) recordPushed(repo *git.Repository) error {
	head, err := repo.Head()
	if err != nil {
		return ClassifyGitError(err, "push", c.url)
	}
	ref := plumbing.NewHashReference(plumbing.NewRemoteReferenceName(c.remote, head.Name().Short()), head.Hash())
	if err := repo.Storer.SetReference(ref); err != nil {
		return ClassifyGitError(err, "push", c.url)
	}
	return nil
}

// redactURL strips userinfo so credentials embedded in a remote URL are not logged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return strings.TrimSuffix(u.String(), "/")
}
