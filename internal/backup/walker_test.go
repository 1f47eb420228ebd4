package backup

import (
	"context"
	stderrors "errors"
	"iter"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tabbackup/internal/extract"
	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
	"git.home.luguber.info/inful/tabbackup/internal/tableau"
	"git.home.luguber.info/inful/tabbackup/internal/window"
	"git.home.luguber.info/inful/tabbackup/internal/workspace"
)

type fakeRemote struct {
	fs         afero.Fs
	sites      []tableau.Site
	artifacts  map[string][]tableau.Artifact // content URL -> artifacts
	content    map[string]string             // artifact ID -> bare file body
	listErr    error
	delay      time.Duration
	onDownload func(a tableau.Artifact) error

	mu       sync.Mutex
	current  string
	signIns  []string
	filters  []string
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeRemote) SignIn(_ context.Context, _, _, contentURL string) (tableau.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = contentURL
	f.signIns = append(f.signIns, contentURL)
	return tableau.Session{Token: "t", ContentURL: contentURL}, nil
}

func (f *fakeRemote) SignOut(context.Context) error { return nil }

func (f *fakeRemote) Sites(context.Context) iter.Seq2[tableau.Site, error] {
	return func(yield func(tableau.Site, error) bool) {
		for _, s := range f.sites {
			if !yield(s, nil) {
				return
			}
		}
	}
}

func (f *fakeRemote) Artifacts(ctx context.Context, kind tableau.Kind, filter string) iter.Seq2[tableau.Artifact, error] {
	f.mu.Lock()
	site := f.current
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	return func(yield func(tableau.Artifact, error) bool) {
		if f.listErr != nil {
			yield(tableau.Artifact{}, f.listErr)
			return
		}
		for _, a := range f.artifacts[site] {
			if ctx.Err() != nil {
				yield(tableau.Artifact{}, ctx.Err())
				return
			}
			if a.Kind == kind && !yield(a, nil) {
				return
			}
		}
	}
}

func (f *fakeRemote) Download(ctx context.Context, a tableau.Artifact, dir string) (tableau.Staged, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.onDownload != nil {
		if err := f.onDownload(a); err != nil {
			return tableau.Staged{}, err
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return tableau.Staged{}, ctx.Err()
		}
	}
	tmp, err := afero.TempFile(f.fs, dir, ".download-"+a.ID+"-*")
	if err != nil {
		return tableau.Staged{}, err
	}
	defer func() { _ = tmp.Close() }()
	if _, err := tmp.WriteString(f.content[a.ID]); err != nil {
		return tableau.Staged{}, err
	}
	return tableau.Staged{Path: tmp.Name(), Name: a.Name + ".twb"}, nil
}

func workbook(id, name, project string) tableau.Artifact {
	return tableau.Artifact{Kind: tableau.KindWorkbook, ID: id, Name: name, ProjectName: project}
}

func newTestWalker(remote *fakeRemote, concurrency int) (*Walker, *workspace.Layout) {
	layout := workspace.NewLayoutFs(remote.fs, "/backup")
	return NewWalker(remote, extract.NewWithFs(remote.fs), layout, "admin", "pw", concurrency), layout
}

func TestWalker_WalksEverySiteAndKind(t *testing.T) {
	remote := &fakeRemote{
		fs: afero.NewMemMapFs(),
		sites: []tableau.Site{
			{ID: "1", Name: "Default", ContentURL: ""},
			{ID: "2", Name: "Sales", ContentURL: "sales"},
		},
		artifacts: map[string][]tableau.Artifact{
			"sales": {workbook("123", "Q1", "Finance")},
		},
		content: map[string]string{"123": "<workbook/>"},
	}
	w, layout := newTestWalker(remote, 1)
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var stats Stats
	require.NoError(t, w.Walk(context.Background(), since, &stats))

	assert.Equal(t, 2, stats.Sites())
	assert.Equal(t, 1, stats.Extracted())
	assert.Equal(t, []string{"", "", "sales"}, remote.signIns)
	assert.Len(t, remote.filters, 4, "two kinds per site")
	for _, f := range remote.filters {
		assert.Equal(t, window.Filter(since), f)
	}

	body, err := afero.ReadFile(remote.fs, filepath.Join(layout.ProjectDir("Sales", "Finance"), "Q1_123.twb"))
	require.NoError(t, err)
	assert.Equal(t, "<workbook/>", string(body))
	exists, err := afero.DirExists(remote.fs, layout.SiteDir("Default"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWalker_BoundsConcurrency(t *testing.T) {
	remote := &fakeRemote{
		fs:        afero.NewMemMapFs(),
		sites:     []tableau.Site{{ID: "1", Name: "Default"}},
		artifacts: map[string][]tableau.Artifact{},
		content:   map[string]string{},
		delay:     10 * time.Millisecond,
	}
	for i := range 12 {
		id := string(rune('a' + i))
		remote.artifacts[""] = append(remote.artifacts[""], workbook(id, "wb-"+id, "P"))
		remote.content[id] = "<workbook/>"
	}
	w, _ := newTestWalker(remote, 3)

	var stats Stats
	require.NoError(t, w.Walk(context.Background(), window.Epoch, &stats))
	assert.Equal(t, 12, stats.Extracted())
	assert.LessOrEqual(t, remote.peak.Load(), int32(3))
}

func TestWalker_SkipsFailedArtifacts(t *testing.T) {
	remote := &fakeRemote{
		fs:    afero.NewMemMapFs(),
		sites: []tableau.Site{{ID: "1", Name: "Default"}},
		artifacts: map[string][]tableau.Artifact{"": {
			workbook("1", "ok", "P"),
			workbook("2", "broken", "P"),
			workbook("3", "empty", "P"),
		}},
		content: map[string]string{"1": "<workbook/>", "3": "<workbook/>"},
		onDownload: func(a tableau.Artifact) error {
			if a.ID == "2" {
				return errors.ServerError("download failed").Build()
			}
			return nil
		},
	}
	w, _ := newTestWalker(remote, 2)

	var stats Stats
	require.NoError(t, w.Walk(context.Background(), window.Epoch, &stats))
	assert.Equal(t, 2, stats.Extracted())
	assert.Equal(t, 1, stats.Skipped())
}

func TestWalker_ListingFailureIsFatal(t *testing.T) {
	remote := &fakeRemote{
		fs:      afero.NewMemMapFs(),
		sites:   []tableau.Site{{ID: "1", Name: "Default"}},
		listErr: errors.ServerError("listing failed").Build(),
	}
	w, _ := newTestWalker(remote, 2)

	var stats Stats
	err := w.Walk(context.Background(), window.Epoch, &stats)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.True(t, errors.HasCategory(err, errors.CategoryServer))
}

func TestWalker_CancellationStopsTheRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remote := &fakeRemote{
		fs:        afero.NewMemMapFs(),
		sites:     []tableau.Site{{ID: "1", Name: "Default"}},
		artifacts: map[string][]tableau.Artifact{"": {workbook("1", "a", "P"), workbook("2", "b", "P")}},
		content:   map[string]string{"1": "x", "2": "x"},
		onDownload: func(tableau.Artifact) error {
			cancel()
			return stderrors.New("connection reset")
		},
	}
	w, _ := newTestWalker(remote, 1)

	var stats Stats
	err := w.Walk(ctx, window.Epoch, &stats)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryCanceled), "got %v", err)
	assert.Equal(t, 0, stats.Extracted())
}

func TestWalker_NameMatchingAnotherCanonicalFileDoesNotClobberIt(t *testing.T) {
	remote := &fakeRemote{
		fs:    afero.NewMemMapFs(),
		sites: []tableau.Site{{ID: "1", Name: "Default"}},
		artifacts: map[string][]tableau.Artifact{"": {
			workbook("12", "Sales", "P"),
			workbook("99", "Sales_12", "P"),
		}},
		content: map[string]string{"12": "A", "99": "B"},
	}
	w, layout := newTestWalker(remote, 1)

	var stats Stats
	require.NoError(t, w.Walk(context.Background(), window.Epoch, &stats))
	assert.Equal(t, 2, stats.Extracted())

	dir := layout.ProjectDir("Default", "P")
	first, err := afero.ReadFile(remote.fs, filepath.Join(dir, "Sales_12.twb"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(first))
	second, err := afero.ReadFile(remote.fs, filepath.Join(dir, "Sales_12_99.twb"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(second))

	entries, err := afero.ReadDir(remote.fs, dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no staging files remain")
}

func TestWalker_SameFileNameInMergedProjectDirs(t *testing.T) {
	remote := &fakeRemote{
		fs:    afero.NewMemMapFs(),
		sites: []tableau.Site{{ID: "1", Name: "Default"}},
		artifacts: map[string][]tableau.Artifact{"": {
			workbook("1", "Q1", "A/B"),
			workbook("2", "Q1", "AB"),
		}},
		content: map[string]string{"1": "one", "2": "two"},
		delay:   20 * time.Millisecond,
	}
	w, layout := newTestWalker(remote, 2)

	var stats Stats
	require.NoError(t, w.Walk(context.Background(), window.Epoch, &stats))
	assert.Equal(t, 2, stats.Extracted())
	assert.Equal(t, 0, stats.Skipped())
	assert.Equal(t, int32(2), remote.peak.Load(), "both downloads overlap")

	dir := layout.ProjectDir("Default", "AB")
	for id, want := range map[string]string{"1": "one", "2": "two"} {
		body, err := afero.ReadFile(remote.fs, filepath.Join(dir, "Q1_"+id+".twb"))
		require.NoError(t, err)
		assert.Equal(t, want, string(body))
	}
}

func TestWalker_DotNamesStayUnderRoot(t *testing.T) {
	remote := &fakeRemote{
		fs:        afero.NewMemMapFs(),
		sites:     []tableau.Site{{ID: "1", Name: "..", ContentURL: "up"}},
		artifacts: map[string][]tableau.Artifact{"up": {workbook("7", "Q1", "..")}},
		content:   map[string]string{"7": "<workbook/>"},
	}
	w, _ := newTestWalker(remote, 1)

	var stats Stats
	require.NoError(t, w.Walk(context.Background(), window.Epoch, &stats))
	assert.Equal(t, 1, stats.Extracted())

	body, err := afero.ReadFile(remote.fs, filepath.Join("/backup", "_", "_", "Q1_7.twb"))
	require.NoError(t, err)
	assert.Equal(t, "<workbook/>", string(body))
}
