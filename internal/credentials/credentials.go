package credentials

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/foundation/normalization"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
)

// Rotation selects which stored secrets are replaced on this run.
type Rotation int

const (
	RotateNone Rotation = iota
	RotateRemote
	RotateVCS
	RotateBoth
)

var rotationNormalizer = normalization.NewNormalizer(map[string]Rotation{
	"":  RotateNone,
	"t": RotateRemote,
	"g": RotateVCS,
	"a": RotateBoth,
}, RotateNone)

// ParseRotation maps the CLI letters: t = Tableau Server, g = git, a = all.
// The empty string means no rotation.
func ParseRotation(s string) (Rotation, error) {
	r, ok := rotationNormalizer.Lookup(s)
	if !ok {
		return RotateNone, errors.ValidationError("invalid password rotation flag").
			WithContext("value", s).
			WithContext("allowed", "a|t|g").
			Build()
	}
	return r, nil
}

func (r Rotation) remote() bool { return r == RotateRemote || r == RotateBoth }
func (r Rotation) vcs() bool    { return r == RotateVCS || r == RotateBoth }

func (r Rotation) String() string {
	switch r {
	case RotateRemote:
		return "remote"
	case RotateVCS:
		return "vcs"
	case RotateBoth:
		return "both"
	default:
		return "none"
	}
}

// Secret is a string that never prints its value.
type Secret string

// Reveal returns the raw value.
func (s Secret) Reveal() string { return string(s) }

func (s Secret) String() string { return "[REDACTED]" }

// GoString keeps %#v from leaking the value.
func (s Secret) GoString() string { return `"[REDACTED]"` }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue("[REDACTED]") }

// Credentials are the resolved passwords for one run.
type Credentials struct {
	RemotePassword Secret
	VCSPassword    Secret
}

// Backend persists secrets keyed by service and user.
type Backend interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
}

// Prompter reads a secret interactively without echo.
type Prompter interface {
	PromptSecret(prompt string) (string, error)
}

// KeyringBackend stores secrets in the OS keyring.
type KeyringBackend struct{}

func (KeyringBackend) Get(service, user string) (string, error) {
	secret, err := keyring.Get(service, user)
	if stderrors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return secret, err
}

func (KeyringBackend) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}

// ErrNotFound is returned by a Backend when no secret is stored.
var ErrNotFound = stderrors.New("secret not found")

// Store resolves credentials from a backend, prompting when needed.
type Store struct {
	service  string
	backend  Backend
	prompter Prompter
	logger   *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithBackend replaces the OS keyring.
func WithBackend(b Backend) Option { return func(s *Store) { s.backend = b } }

// WithPrompter replaces the terminal prompter.
func WithPrompter(p Prompter) Option { return func(s *Store) { s.prompter = p } }

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// NewStore creates a store for the given keyring service namespace.
func NewStore(service string, opts ...Option) *Store {
	s := &Store{
		service:  service,
		backend:  KeyringBackend{},
		prompter: NewTerminalPrompter(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the server and git passwords for remoteUser and vcsUser. Missing
// secrets are prompted for and stored; rotated secrets are prompted for and
// overwritten even when present.
func (s *Store) Resolve(ctx context.Context, remoteUser, vcsUser string, rotate Rotation) (Credentials, error) {
	remote, err := s.resolveOne(ctx, "Tableau Server", remoteUser, rotate.remote())
	if err != nil {
		return Credentials{}, err
	}
	vcs, err := s.resolveOne(ctx, "Git", vcsUser, rotate.vcs())
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{RemotePassword: remote, VCSPassword: vcs}, nil
}

func (s *Store) resolveOne(ctx context.Context, label, user string, rotate bool) (Secret, error) {
	if user == "" {
		return "", errors.ConfigError("user name required to resolve secret").
			WithContext("secret", label).
			Build()
	}
	if !rotate {
		secret, err := s.backend.Get(s.service, user)
		switch {
		case err == nil && secret != "":
			return Secret(secret), nil
		case err != nil && !stderrors.Is(err, ErrNotFound):
			return "", errors.NewError(errors.CategoryRuntime, "secret store unavailable").
				Fatal().
				WithCause(err).
				WithContext("service", s.service).
				WithContext("user", user).
				Build()
		}
	}

	if err := ctx.Err(); err != nil {
		return "", errors.CanceledError("credential prompt canceled").WithCause(err).Build()
	}
	prompt := fmt.Sprintf("Enter %s Password For %s: ", label, user)
	if rotate {
		prompt = fmt.Sprintf("Enter New %s Password For %s: ", label, user)
	}
	secret, err := s.prompter.PromptSecret(prompt)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", errors.ValidationError("empty password").
			WithContext("secret", label).
			WithContext("user", user).
			Build()
	}
	if err := s.backend.Set(s.service, user, secret); err != nil {
		return "", errors.NewError(errors.CategoryRuntime, "failed to store secret").
			Fatal().
			WithCause(err).
			WithContext("service", s.service).
			WithContext("user", user).
			Build()
	}
	s.logger.Info("Stored secret", slog.String("secret", label), logfields.User(user), slog.Bool("rotated", rotate))
	return Secret(secret), nil
}
