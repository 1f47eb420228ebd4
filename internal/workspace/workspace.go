package workspace

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
	"git.home.luguber.info/inful/tabbackup/internal/pathsafe"
)

const dirPerm os.FileMode = 0o750

// Layout maps sites and projects to directories under a root.
type Layout struct {
	fs   afero.Fs
	root string
}

// NewLayout creates a layout rooted at root on the OS filesystem.
func NewLayout(root string) *Layout {
	return NewLayoutFs(afero.NewOsFs(), root)
}

// NewLayoutFs creates a layout on an arbitrary filesystem (in-memory in tests).
func NewLayoutFs(fs afero.Fs, root string) *Layout {
	return &Layout{fs: fs, root: root}
}

// dotSegment replaces a sanitized segment that would name the current or parent
// directory.
const dotSegment = "_"

// SiteDir returns <root>/<sanitized site>.
func (l *Layout) SiteDir(site string) string {
	return filepath.Join(l.root, segment(site))
}

// ProjectDir returns <root>/<sanitized site>/<sanitized project>. An empty
// sanitized segment collapses into its parent.
func (l *Layout) ProjectDir(site, project string) string {
	return filepath.Join(l.SiteDir(site), segment(project))
}

// segment sanitizes name for use as one directory level. "." and ".." become
// dotSegment so no name leaves its parent.
func segment(name string) string {
	s := pathsafe.Sanitize(name)
	if s == "." || s == ".." {
		return dotSegment
	}
	return s
}

// EnsureSite creates the site directory if absent and returns it.
func (l *Layout) EnsureSite(site string) (string, error) {
	dir := l.SiteDir(site)
	return dir, l.EnsureDir(dir)
}

// EnsureProject creates the project directory if absent and returns it.
func (l *Layout) EnsureProject(site, project string) (string, error) {
	dir := l.ProjectDir(site, project)
	return dir, l.EnsureDir(dir)
}

// EnsureDir creates dir and any missing parents. Existing directories are not an error.
func (l *Layout) EnsureDir(dir string) error {
	return EnsureDir(l.fs, dir)
}

// EnsureDir creates dir and any missing parents on fs.
func EnsureDir(fs afero.Fs, dir string) error {
	if err := fs.MkdirAll(dir, dirPerm); err != nil {
		return errors.FileSystemError("failed to create directory").
			WithCause(err).
			WithContext("path", dir).
			Build()
	}
	slog.Debug("Directory ready", logfields.Path(dir))
	return nil
}
