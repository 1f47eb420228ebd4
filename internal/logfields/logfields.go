package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID        = "run_id"
	KeySite         = "site"
	KeySiteURL      = "site_content_url"
	KeyProject      = "project"
	KeyArtifactID   = "artifact_id"
	KeyArtifactKind = "artifact_kind"
	KeyArtifactName = "artifact_name"
	KeyOperation    = "op"
	KeyPath         = "path"
	KeyURL          = "url"
	KeyUser         = "user"
	KeyPage         = "page"
	KeyWindow       = "changed_since"
	KeyCommit       = "commit"
	KeyRemote       = "remote"
	KeyDurationMS   = "duration_ms"
	KeyError        = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr          { return slog.String(KeyRunID, id) }
func Site(name string) slog.Attr         { return slog.String(KeySite, name) }
func SiteURL(contentURL string) slog.Attr { return slog.String(KeySiteURL, contentURL) }
func Project(name string) slog.Attr      { return slog.String(KeyProject, name) }
func ArtifactID(id string) slog.Attr     { return slog.String(KeyArtifactID, id) }
func ArtifactKind(k string) slog.Attr    { return slog.String(KeyArtifactKind, k) }
func ArtifactName(n string) slog.Attr    { return slog.String(KeyArtifactName, n) }
func Operation(op string) slog.Attr      { return slog.String(KeyOperation, op) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr             { return slog.String(KeyURL, u) }
func User(u string) slog.Attr            { return slog.String(KeyUser, u) }
func Page(n int) slog.Attr               { return slog.Int(KeyPage, n) }
func Commit(hash string) slog.Attr       { return slog.String(KeyCommit, hash) }
func Remote(name string) slog.Attr       { return slog.String(KeyRemote, name) }
func Window(t time.Time) slog.Attr       { return slog.String(KeyWindow, t.UTC().Format(time.RFC3339)) }
func Duration(d time.Duration) slog.Attr { return slog.Int64(KeyDurationMS, d.Milliseconds()) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
