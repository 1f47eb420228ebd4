package credentials

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
)

type fakePrompter struct {
	answers []string
	prompts []string
	err     error
}

func (p *fakePrompter) PromptSecret(prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return "", p.err
	}
	if len(p.answers) == 0 {
		return "", fmt.Errorf("unexpected prompt %q", prompt)
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

type brokenBackend struct{}

func (brokenBackend) Get(string, string) (string, error) { return "", stderrors.New("dbus unavailable") }
func (brokenBackend) Set(string, string, string) error   { return stderrors.New("dbus unavailable") }

func newTestStore(t *testing.T, p Prompter) (*Store, *bytes.Buffer) {
	t.Helper()
	keyring.MockInit()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewStore("TableauBackup", WithPrompter(p), WithLogger(logger)), &logs
}

func TestResolve_PromptsOnceThenCaches(t *testing.T) {
	p := &fakePrompter{answers: []string{"tab-pass", "git-pass"}}
	s, logs := newTestStore(t, p)
	ctx := context.Background()

	creds, err := s.Resolve(ctx, "admin", "gitbot", RotateNone)
	require.NoError(t, err)
	assert.Equal(t, "tab-pass", creds.RemotePassword.Reveal())
	assert.Equal(t, "git-pass", creds.VCSPassword.Reveal())
	assert.Equal(t, []string{
		"Enter Tableau Server Password For admin: ",
		"Enter Git Password For gitbot: ",
	}, p.prompts)

	again, err := s.Resolve(ctx, "admin", "gitbot", RotateNone)
	require.NoError(t, err)
	assert.Equal(t, creds, again)
	assert.Len(t, p.prompts, 2, "stored secrets are not prompted for again")

	stored, err := keyring.Get("TableauBackup", "admin")
	require.NoError(t, err)
	assert.Equal(t, "tab-pass", stored)

	assert.NotContains(t, logs.String(), "tab-pass")
	assert.NotContains(t, logs.String(), "git-pass")
}

func TestResolve_Rotation(t *testing.T) {
	tests := []struct {
		name       string
		rotate     Rotation
		answers    []string
		wantRemote string
		wantVCS    string
		wantPrompt []string
	}{
		{
			name:       "remote only",
			rotate:     RotateRemote,
			answers:    []string{"new-tab"},
			wantRemote: "new-tab",
			wantVCS:    "old-git",
			wantPrompt: []string{"Enter New Tableau Server Password For admin: "},
		},
		{
			name:       "vcs only",
			rotate:     RotateVCS,
			answers:    []string{"new-git"},
			wantRemote: "old-tab",
			wantVCS:    "new-git",
			wantPrompt: []string{"Enter New Git Password For gitbot: "},
		},
		{
			name:       "both",
			rotate:     RotateBoth,
			answers:    []string{"new-tab", "new-git"},
			wantRemote: "new-tab",
			wantVCS:    "new-git",
			wantPrompt: []string{
				"Enter New Tableau Server Password For admin: ",
				"Enter New Git Password For gitbot: ",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePrompter{answers: tt.answers}
			s, logs := newTestStore(t, p)
			require.NoError(t, keyring.Set("TableauBackup", "admin", "old-tab"))
			require.NoError(t, keyring.Set("TableauBackup", "gitbot", "old-git"))

			creds, err := s.Resolve(context.Background(), "admin", "gitbot", tt.rotate)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemote, creds.RemotePassword.Reveal())
			assert.Equal(t, tt.wantVCS, creds.VCSPassword.Reveal())
			assert.Equal(t, tt.wantPrompt, p.prompts)

			stored, err := keyring.Get("TableauBackup", "admin")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemote, stored)
			for _, a := range tt.answers {
				assert.NotContains(t, logs.String(), a)
			}
		})
	}
}

func TestResolve_EmptyPasswordRejected(t *testing.T) {
	s, _ := newTestStore(t, &fakePrompter{answers: []string{""}})

	_, err := s.Resolve(context.Background(), "admin", "gitbot", RotateNone)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestResolve_PromptFailure(t *testing.T) {
	promptErr := errors.AuthError("secret missing and stdin is not a terminal").Build()
	s, _ := newTestStore(t, &fakePrompter{err: promptErr})

	_, err := s.Resolve(context.Background(), "admin", "gitbot", RotateNone)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryAuth))
}

func TestResolve_BackendFailure(t *testing.T) {
	s := NewStore("TableauBackup", WithBackend(brokenBackend{}), WithPrompter(&fakePrompter{}))

	_, err := s.Resolve(context.Background(), "admin", "gitbot", RotateNone)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryRuntime))
	assert.True(t, errors.IsFatal(err))
}

func TestResolve_MissingUser(t *testing.T) {
	s, _ := newTestStore(t, &fakePrompter{})

	_, err := s.Resolve(context.Background(), "", "gitbot", RotateNone)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestResolve_CanceledBeforePrompt(t *testing.T) {
	p := &fakePrompter{answers: []string{"x"}}
	s, _ := newTestStore(t, p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Resolve(ctx, "admin", "gitbot", RotateNone)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryCanceled))
	assert.Empty(t, p.prompts)
}

func TestParseRotation(t *testing.T) {
	cases := map[string]Rotation{"": RotateNone, "t": RotateRemote, "g": RotateVCS, "a": RotateBoth, "A": RotateBoth}
	for in, want := range cases {
		got, err := ParseRotation(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRotation("x")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestSecretNeverFormats(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", fmt.Sprint(s))
	assert.NotContains(t, fmt.Sprintf("%#v", Credentials{RemotePassword: s}), "hunter2")

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("creds", slog.Any("password", s))
	assert.NotContains(t, buf.String(), "hunter2")
}
