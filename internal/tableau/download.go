package tableau

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/logfields"
	"git.home.luguber.info/inful/tabbackup/internal/pathsafe"
)

const stagingPrefix = ".download-"

// Staged is a downloaded artifact waiting for extraction.
type Staged struct {
	// Path is a staging file unique to this download.
	Path string
	// Name is the file name the server sent. Its extension and base decide the
	// canonical file.
	Name string
}

// Download fetches the content of a without embedded extracts into a fresh staging
// file inside dir. The file name comes from Content-Disposition; when absent the
// artifact name with the archive extension of its kind is used.
func (c *Client) Download(ctx context.Context, a Artifact, dir string) (Staged, error) {
	s, err := c.requireSession()
	if err != nil {
		return Staged{}, err
	}
	endpoint := "sites/" + url.PathEscape(s.SiteID) + "/" + a.Kind.Collection() + "/" +
		url.PathEscape(a.ID) + "/content?includeExtract=false"

	var staged Staged
	start := time.Now()
	err = c.withRetry(ctx, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, c.apiVersion, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "*/*")
		resp, err := c.send(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		path, err := c.stage(dir, a.ID, resp.Body)
		if err != nil {
			return err
		}
		staged = Staged{Path: path, Name: downloadName(resp.Header.Get("Content-Disposition"), a)}
		return nil
	})
	if err != nil {
		return Staged{}, err
	}
	slog.Debug("Downloaded artifact",
		logfields.ArtifactKind(a.Kind.String()),
		logfields.ArtifactID(a.ID),
		logfields.Path(staged.Path),
		slog.String("file_name", staged.Name),
		logfields.Duration(time.Since(start)))
	return staged, nil
}

// stage writes body to a new uniquely named file in dir and returns its path.
func (c *Client) stage(dir, artifactID string, body io.Reader) (string, error) {
	f, err := afero.TempFile(c.fs, dir, stagingPrefix+pathsafe.Sanitize(artifactID)+"-*")
	if err != nil {
		return "", errors.FileSystemError("failed to create download file").
			WithCause(err).
			WithContext("path", dir).
			Build()
	}
	target := f.Name()
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = c.fs.Remove(target)
		return "", errors.NetworkError("failed to read download body").
			WithCause(err).
			WithContext("path", target).
			Build()
	}
	if err := f.Close(); err != nil {
		_ = c.fs.Remove(target)
		return "", errors.FileSystemError("failed to write download file").
			WithCause(err).
			WithContext("path", target).
			Build()
	}
	return target, nil
}

// downloadName derives a safe file name for a download.
func downloadName(contentDisposition string, a Artifact) string {
	fallback := pathsafe.Sanitize(a.Name) + a.Kind.ArchiveExt()
	if contentDisposition == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return fallback
	}
	name := pathsafe.Sanitize(norm.NFC.String(filepath.Base(params["filename"])))
	if name == "" || name == "." || name == ".." {
		return fallback
	}
	return name
}
