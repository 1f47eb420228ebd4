package extract

import (
	"archive/zip"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
	"git.home.luguber.info/inful/tabbackup/internal/pathsafe"
	"git.home.luguber.info/inful/tabbackup/internal/workspace"
)

// archiveMembers maps a compound extension to the bare extension of its definition member.
var archiveMembers = map[string]string{
	".twbx": ".twb",
	".tdsx": ".tds",
}

var bareExtensions = map[string]bool{
	".twb": true,
	".tds": true,
}

// Extractor extracts downloads on a filesystem.
type Extractor struct {
	fs afero.Fs
}

// New returns an extractor on the OS filesystem.
func New() *Extractor {
	return NewWithFs(afero.NewOsFs())
}

// NewWithFs returns an extractor on fs.
func NewWithFs(fs afero.Fs) *Extractor {
	return &Extractor{fs: fs}
}

// CanonicalName returns <sanitized base>_<id><ext>.
func CanonicalName(base, artifactID, bareExt string) string {
	return pathsafe.Sanitize(base) + "_" + artifactID + bareExt
}

// BareExtension returns the definition extension a download with extension ext
// produces, and whether ext is supported at all.
func BareExtension(ext string) (string, bool) {
	ext = strings.ToLower(ext)
	if bare, ok := archiveMembers[ext]; ok {
		return bare, true
	}
	return ext, bareExtensions[ext]
}

// Extract converts downloadedPath into the canonical definition file inside destDir
// and returns its path. fileName is the name the server gave the download; its
// extension selects the variant and its base names the canonical file. The download
// is removed unless it already is the canonical file. On failure the download is
// removed as well so no partial artifact remains in the tree.
func (e *Extractor) Extract(downloadedPath, fileName, artifactID, destDir string) (path string, err error) {
	name := filepath.Base(fileName)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	bareExt, ok := BareExtension(ext)
	if !ok {
		e.discard(downloadedPath)
		return "", errors.ExtractionError("unexpected extension").
			WithContext("path", downloadedPath).
			WithContext("extension", ext).
			WithContext("artifact_id", artifactID).
			Build()
	}

	if err := workspace.EnsureDir(e.fs, destDir); err != nil {
		return "", err
	}
	canonical := filepath.Join(destDir, CanonicalName(base, artifactID, bareExt))

	defer func() {
		if err != nil && downloadedPath != canonical {
			e.discard(downloadedPath)
		}
	}()

	if _, isArchive := archiveMembers[strings.ToLower(ext)]; isArchive {
		if err := e.extractMember(downloadedPath, bareExt, canonical); err != nil {
			return "", err
		}
		if err := e.fs.Remove(downloadedPath); err != nil {
			return "", errors.FileSystemError("failed to remove download").
				WithCause(err).
				WithContext("path", downloadedPath).
				Build()
		}
	} else if downloadedPath != canonical {
		if err := e.fs.Rename(downloadedPath, canonical); err != nil {
			return "", errors.FileSystemError("failed to rename download").
				WithCause(err).
				WithContext("path", downloadedPath).
				WithContext("target", canonical).
				Build()
		}
	}

	slog.Debug("Artifact extracted", logfields.ArtifactID(artifactID), logfields.Path(canonical))
	return canonical, nil
}

// extractMember copies the single definition member of the archive at archivePath to
// target. The archive is closed before returning.
func (e *Extractor) extractMember(archivePath, bareExt, target string) error {
	f, err := e.fs.Open(archivePath)
	if err != nil {
		return errors.ExtractionError("failed to open archive").
			WithCause(err).
			WithContext("path", archivePath).
			Build()
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return errors.ExtractionError("failed to stat archive").
			WithCause(err).
			WithContext("path", archivePath).
			Build()
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return errors.ExtractionError("not a valid archive").
			WithCause(err).
			WithContext("path", archivePath).
			Build()
	}

	matches := definitionMembers(zr.File, bareExt)
	if len(matches) == 0 {
		return errors.ExtractionError("no definition member").
			WithContext("path", archivePath).
			WithContext("extension", bareExt).
			Build()
	}
	if len(matches) > 1 {
		return errors.ExtractionError("ambiguous definition members").
			WithContext("path", archivePath).
			WithContext("extension", bareExt).
			WithContext("count", len(matches)).
			Build()
	}
	return e.writeMember(matches[0], target)
}

// definitionMembers returns the non-directory members whose name ends in bareExt,
// case-insensitively.
func definitionMembers(files []*zip.File, bareExt string) []*zip.File {
	var matches []*zip.File
	for _, zf := range files {
		if zf.FileInfo().IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(zf.Name), bareExt) {
			matches = append(matches, zf)
		}
	}
	return matches
}

// writeMember streams member into a temp file next to target and renames it into place.
func (e *Extractor) writeMember(member *zip.File, target string) error {
	rc, err := member.Open()
	if err != nil {
		return errors.ExtractionError("failed to open archive member").
			WithCause(err).
			WithContext("member", member.Name).
			Build()
	}
	defer func() { _ = rc.Close() }()

	tmp, err := afero.TempFile(e.fs, filepath.Dir(target), ".extract-*")
	if err != nil {
		return errors.FileSystemError("failed to create temp file").
			WithCause(err).
			WithContext("path", filepath.Dir(target)).
			Build()
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, rc); err != nil {
		_ = tmp.Close()
		_ = e.fs.Remove(tmpName)
		return errors.ExtractionError("failed to read archive member").
			WithCause(err).
			WithContext("member", member.Name).
			Build()
	}
	if err := tmp.Close(); err != nil {
		_ = e.fs.Remove(tmpName)
		return errors.FileSystemError("failed to write definition file").
			WithCause(err).
			WithContext("path", tmpName).
			Build()
	}
	if err := e.fs.Rename(tmpName, target); err != nil {
		_ = e.fs.Remove(tmpName)
		return errors.FileSystemError("failed to move definition file into place").
			WithCause(err).
			WithContext("path", target).
			Build()
	}
	return nil
}

func (e *Extractor) discard(path string) {
	if err := e.fs.Remove(path); err != nil {
		slog.Warn("Failed to remove download", logfields.Path(path), logfields.Error(err))
	}
}
