// Package testtableau provides an in-process fake Tableau Server for tests.
package testtableau

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"git.home.luguber.info/inful/tabbackup/internal/tableau"
)

// FailMode defines how the fake server misbehaves.
type FailMode int

const (
	FailModeNone FailMode = iota
	// FailModeAuth rejects every sign-in with 401.
	FailModeAuth
	// FailModeListing answers artifact listings with 500.
	FailModeListing
	// FailModeRateLimitOnce answers the first listing request with 429.
	FailModeRateLimitOnce
)

// Site is a tenant on the fake server.
type Site struct {
	ID         string
	Name       string
	ContentURL string
}

// Artifact is a workbook or data source stored on the fake server.
type Artifact struct {
	Kind        tableau.Kind
	ID          string
	Name        string
	ProjectID   string
	ProjectName string
	UpdatedAt   time.Time
	FileName    string // Content-Disposition file name
	Content     []byte
}

// Server is a fake Tableau Server bound to an httptest listener.
type Server struct {
	*httptest.Server

	Version  string
	User     string
	Password string

	mu           sync.Mutex
	sites        []Site
	artifacts    map[string][]Artifact // site content URL -> artifacts
	tokens       map[string]string     // token -> site ID
	failMode     FailMode
	failDownload map[string]int // artifact ID -> status code
	filters      []string
	requests     []string
	signIns      []string
	signOuts     int
}

// New starts a fake server with one default site ("" content URL, "Default").
// It is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		Version:      "3.19",
		User:         "admin",
		Password:     "secret",
		sites:        []Site{{ID: "site-default", Name: "Default", ContentURL: ""}},
		artifacts:    make(map[string][]Artifact),
		tokens:       make(map[string]string),
		failDownload: make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// AddSite registers a site.
func (s *Server) AddSite(site Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites = append(s.sites, site)
}

// ClearSites removes every site, including the default one.
func (s *Server) ClearSites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites = nil
}

// AddArtifact stores an artifact on the site with the given content URL.
func (s *Server) AddArtifact(contentURL string, a Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[contentURL] = append(s.artifacts[contentURL], a)
}

// SetFailMode switches failure behavior.
func (s *Server) SetFailMode(mode FailMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMode = mode
}

// FailDownload makes the content endpoint of artifact id answer with status.
func (s *Server) FailDownload(id string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDownload[id] = status
}

// Filters returns the filter expressions received on artifact listings.
func (s *Server) Filters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.filters...)
}

// Requests returns "METHOD path" for every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// SignIns returns the site content URLs of successful sign-ins, in order.
func (s *Server) SignIns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.signIns...)
}

// SignOuts returns the number of sign-out calls.
func (s *Server) SignOuts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signOuts
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{version}/serverinfo", s.handleServerInfo)
	mux.HandleFunc("POST /api/{version}/auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/{version}/auth/signout", s.handleSignOut)
	mux.HandleFunc("GET /api/{version}/sites", s.authenticated(s.handleSites))
	mux.HandleFunc("GET /api/{version}/sites/{site}/{collection}", s.authenticated(s.handleArtifacts))
	mux.HandleFunc("GET /api/{version}/sites/{site}/{collection}/{id}/content", s.authenticated(s.handleContent))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		siteID, ok := s.tokens[r.Header.Get("X-Tableau-Auth")]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		if want := r.PathValue("site"); want != "" && want != siteID {
			writeError(w, http.StatusForbidden, "token is scoped to another site")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleServerInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"serverInfo": map[string]any{
			"productVersion": map[string]string{"value": "2023.3.0", "build": "20233.23.1017.0948"},
			"restApiVersion": s.Version,
		},
	})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credentials struct {
			Name     string `json:"name"`
			Password string `json:"password"`
			Site     struct {
				ContentURL string `json:"contentUrl"`
			} `json:"site"`
		} `json:"credentials"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed sign-in body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMode == FailModeAuth || req.Credentials.Name != s.User || req.Credentials.Password != s.Password {
		writeError(w, http.StatusUnauthorized, "Signin Error")
		return
	}
	site, ok := s.siteByContentURL(req.Credentials.Site.ContentURL)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown site")
		return
	}
	token := fmt.Sprintf("token-%d-%s", len(s.tokens)+1, site.ID)
	s.tokens[token] = site.ID
	s.signIns = append(s.signIns, site.ContentURL)

	writeJSON(w, http.StatusOK, map[string]any{
		"credentials": map[string]any{
			"token": token,
			"site":  map[string]string{"id": site.ID, "contentUrl": site.ContentURL},
			"user":  map[string]string{"id": "user-1"},
		},
	})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.tokens, r.Header.Get("X-Tableau-Auth"))
	s.signOuts++
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sites := append([]Site(nil), s.sites...)
	s.mu.Unlock()

	page, size := pageParams(r)
	items := make([]map[string]string, 0)
	for _, site := range window(sites, page, size) {
		items = append(items, map[string]string{"id": site.ID, "name": site.Name, "contentUrl": site.ContentURL})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pagination": paginationJSON(page, size, len(sites)),
		"sites":      map[string]any{"site": items},
	})
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromCollection(r.PathValue("collection"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown collection")
		return
	}
	filter := r.URL.Query().Get("filter")

	s.mu.Lock()
	s.filters = append(s.filters, filter)
	mode := s.failMode
	if mode == FailModeRateLimitOnce {
		s.failMode = FailModeNone
	}
	site, _ := s.siteByID(r.PathValue("site"))
	all := append([]Artifact(nil), s.artifacts[site.ContentURL]...)
	s.mu.Unlock()

	switch mode {
	case FailModeListing:
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	case FailModeRateLimitOnce:
		writeError(w, http.StatusTooManyRequests, "slow down")
		return
	}

	since, err := parseFilter(filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var matched []Artifact
	for _, a := range all {
		if a.Kind == kind && !a.UpdatedAt.Before(since) {
			matched = append(matched, a)
		}
	}

	page, size := pageParams(r)
	items := make([]map[string]any, 0)
	for _, a := range window(matched, page, size) {
		items = append(items, map[string]any{
			"id":        a.ID,
			"name":      a.Name,
			"updatedAt": a.UpdatedAt.UTC().Format(time.RFC3339),
			"project":   map[string]string{"id": a.ProjectID, "name": a.ProjectName},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pagination":      paginationJSON(page, size, len(matched)),
		kind.Collection(): map[string]any{string(kind): items},
	})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	status := s.failDownload[id]
	site, _ := s.siteByID(r.PathValue("site"))
	var found *Artifact
	for _, a := range s.artifacts[site.ContentURL] {
		if a.ID == id {
			found = &a
			break
		}
	}
	s.mu.Unlock()

	if status != 0 {
		writeError(w, status, "download failed")
		return
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "no such artifact")
		return
	}
	if r.URL.Query().Get("includeExtract") != "false" {
		writeError(w, http.StatusBadRequest, "extracts must be excluded")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", found.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(found.Content)
}

func (s *Server) siteByContentURL(contentURL string) (Site, bool) {
	for _, site := range s.sites {
		if site.ContentURL == contentURL {
			return site, true
		}
	}
	return Site{}, false
}

func (s *Server) siteByID(id string) (Site, bool) {
	for _, site := range s.sites {
		if site.ID == id {
			return site, true
		}
	}
	return Site{}, false
}

func kindFromCollection(collection string) (tableau.Kind, bool) {
	for _, k := range tableau.Kinds() {
		if k.Collection() == collection {
			return k, true
		}
	}
	return "", false
}

func parseFilter(filter string) (time.Time, error) {
	if filter == "" {
		return time.Time{}, nil
	}
	literal, ok := strings.CutPrefix(filter, "updatedAt:gte:")
	if !ok {
		return time.Time{}, fmt.Errorf("unsupported filter %q", filter)
	}
	return time.Parse("2006-01-02T15:04:05Z", literal)
}

func pageParams(r *http.Request) (page, size int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("pageNumber"))
	size, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 100
	}
	return page, size
}

func window[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(items) {
		return nil
	}
	end := min(start+size, len(items))
	return items[start:end]
}

// paginationJSON renders numbers as strings, the way the real server does.
func paginationJSON(page, size, total int) map[string]string {
	return map[string]string{
		"pageNumber":     strconv.Itoa(page),
		"pageSize":       strconv.Itoa(size),
		"totalAvailable": strconv.Itoa(total),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, summary string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": strconv.Itoa(status * 1000), "summary": summary},
	})
}

// Archive builds an in-memory zip with the given members.
func Archive(t testing.TB, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create archive member %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write archive member %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}
