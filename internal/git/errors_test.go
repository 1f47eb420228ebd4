package git

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
)

func TestClassifyGitError(t *testing.T) {
	tests := []struct {
		msg       string
		category  errors.ErrorCategory
		transient bool
	}{
		{msg: "authentication required", category: errors.CategoryAuth},
		{msg: "repository not found", category: errors.CategoryNotFound},
		{msg: "read tcp: i/o timeout", category: errors.CategoryNetwork, transient: true},
		{msg: "the remote end hung up unexpectedly: remote hung up", category: errors.CategoryNetwork, transient: true},
		{msg: "too many requests", category: errors.CategoryNetwork, transient: true},
		{msg: "non-fast-forward update", category: errors.CategoryGit},
		{msg: "unsupported protocol scheme", category: errors.CategoryConfig},
		{msg: "something odd", category: errors.CategoryGit},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := ClassifyGitError(stderrors.New(tt.msg), "push", "https://bot:pw@git.example.com/b.git")
			ce, ok := errors.AsClassified(err)
			if !assert.True(t, ok) {
				return
			}
			assert.Equal(t, tt.category, ce.Category())
			assert.Equal(t, tt.transient, ce.IsTransient())
			assert.NotContains(t, err.Error(), "pw@")
		})
	}
}

func TestClassifyGitError_PassThrough(t *testing.T) {
	assert.NoError(t, ClassifyGitError(nil, "push", ""))

	orig := errors.AuthError("already classified").Build()
	assert.Same(t, orig, ClassifyGitError(orig, "push", ""))
}
