// Package testutil holds git fixtures shared by package tests.
package testutil

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// DefaultBranch is the branch go-git creates on init and pushes to.
const DefaultBranch = "master"

// NewBareRemote initializes an empty bare repository in a temporary directory
// and returns its path, usable as a push/clone URL.
func NewBareRemote(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remote.git")
	_, err := git.PlainInit(path, true)
	require.NoError(t, err)
	return path
}

// RemoteHead returns the tip of DefaultBranch in the repository at path, or
// false when the branch does not exist yet.
func RemoteHead(t *testing.T, path string) (*object.Commit, bool) {
	t.Helper()
	repo, err := git.PlainOpen(path)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(DefaultBranch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, false
	}
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	return commit, true
}

// FileAt returns the content of path in commit's tree.
func FileAt(t *testing.T, c *object.Commit, path string) string {
	t.Helper()
	file, err := c.File(path)
	require.NoError(t, err, path)
	content, err := file.Contents()
	require.NoError(t, err)
	return content
}

// CommitCount walks the first-parent history from commit.
func CommitCount(t *testing.T, c *object.Commit) int {
	t.Helper()
	n := 0
	for c != nil {
		n++
		if c.NumParents() == 0 {
			break
		}
		parent, err := c.Parent(0)
		require.NoError(t, err)
		c = parent
	}
	return n
}
