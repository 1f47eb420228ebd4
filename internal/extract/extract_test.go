package extract

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
)

const destDir = "/repo/Sales/Finance"

func writeArchive(t *testing.T, fs afero.Fs, path string, members map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o640))
}

func assertGone(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	ok, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.False(t, ok, "%s should have been removed", path)
}

func TestExtract_ArchiveRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	download := filepath.Join(destDir, "Q1.twbx")
	writeArchive(t, fs, download, map[string]string{
		"Q1.twb":             "<workbook/>",
		"Data/extract.hyper": "binary",
		"Image/logo.png":     "png",
	})

	got, err := NewWithFs(fs).Extract(download, filepath.Base(download), "123", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "Q1_123.twb"), got)

	body, err := afero.ReadFile(fs, got)
	require.NoError(t, err)
	assert.Equal(t, "<workbook/>", string(body))
	assertGone(t, fs, download)

	entries, err := afero.ReadDir(fs, destDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the canonical file remains")
}

func TestExtract_DatasourceArchiveCaseInsensitive(t *testing.T) {
	fs := afero.NewMemMapFs()
	download := filepath.Join(destDir, "Orders.tdsx")
	writeArchive(t, fs, download, map[string]string{"ORDERS.TDS": "<datasource/>"})

	got, err := NewWithFs(fs).Extract(download, filepath.Base(download), "9", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "Orders_9.tds"), got)
}

func TestExtract_Idempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	ex := NewWithFs(fs)
	download := filepath.Join(destDir, "Q1.twbx")

	writeArchive(t, fs, download, map[string]string{"Q1.twb": "v1"})
	first, err := ex.Extract(download, filepath.Base(download), "123", destDir)
	require.NoError(t, err)

	writeArchive(t, fs, download, map[string]string{"Q1.twb": "v2"})
	second, err := ex.Extract(download, filepath.Base(download), "123", destDir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	body, err := afero.ReadFile(fs, second)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))
}

func TestExtract_BareFileRenamed(t *testing.T) {
	fs := afero.NewMemMapFs()
	download := filepath.Join(destDir, "Rev.tds")
	require.NoError(t, afero.WriteFile(fs, download, []byte("<datasource/>"), 0o640))

	got, err := NewWithFs(fs).Extract(download, filepath.Base(download), "55", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "Rev_55.tds"), got)
	assertGone(t, fs, download)
}

func TestExtract_SanitizesBase(t *testing.T) {
	fs := afero.NewMemMapFs()
	download := filepath.Join(destDir, "Q1: a|b.twb")
	require.NoError(t, afero.WriteFile(fs, download, []byte("x"), 0o640))

	got, err := NewWithFs(fs).Extract(download, filepath.Base(download), "7", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "Q1 ab_7.twb"), got)
}

func TestExtract_StagedDownloadUsesServerName(t *testing.T) {
	fs := afero.NewMemMapFs()
	ex := NewWithFs(fs)
	existing := filepath.Join(destDir, "Sales_12.twb")
	require.NoError(t, afero.WriteFile(fs, existing, []byte("A"), 0o640))

	staged := filepath.Join(destDir, ".download-99-0001")
	require.NoError(t, afero.WriteFile(fs, staged, []byte("B"), 0o640))

	got, err := ex.Extract(staged, "Sales_12.twb", "99", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "Sales_12_99.twb"), got)
	assertGone(t, fs, staged)

	body, err := afero.ReadFile(fs, existing)
	require.NoError(t, err)
	assert.Equal(t, "A", string(body), "another artifact's canonical file is untouched")
}

func TestExtract_StagedArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	staged := filepath.Join(destDir, ".download-123-0001")
	writeArchive(t, fs, staged, map[string]string{"Q1.twb": "<workbook/>"})

	got, err := NewWithFs(fs).Extract(staged, "Q1.twbx", "123", destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "Q1_123.twb"), got)
	assertGone(t, fs, staged)
}

func TestExtract_DistinctIDsDoNotCollide(t *testing.T) {
	fs := afero.NewMemMapFs()
	ex := NewWithFs(fs)

	a := filepath.Join(destDir, "Q:1.twb")
	require.NoError(t, afero.WriteFile(fs, a, []byte("a"), 0o640))
	gotA, err := ex.Extract(a, filepath.Base(a), "1", destDir)
	require.NoError(t, err)

	b := filepath.Join(destDir, "Q1.twb")
	require.NoError(t, afero.WriteFile(fs, b, []byte("b"), 0o640))
	gotB, err := ex.Extract(b, filepath.Base(b), "2", destDir)
	require.NoError(t, err)

	assert.NotEqual(t, gotA, gotB)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		members map[string]string
		message string
	}{
		{name: "no member", file: "A.twbx", members: map[string]string{"readme.txt": "x"}, message: "no definition member"},
		{name: "ambiguous", file: "A.twbx", members: map[string]string{"a.twb": "1", "b.twb": "2"}, message: "ambiguous definition members"},
		{name: "wrong member kind", file: "A.tdsx", members: map[string]string{"a.twb": "1"}, message: "no definition member"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			download := filepath.Join(destDir, tt.file)
			writeArchive(t, fs, download, tt.members)

			_, err := NewWithFs(fs).Extract(download, filepath.Base(download), "1", destDir)
			require.Error(t, err)
			ce, ok := errors.AsClassified(err)
			require.True(t, ok)
			assert.Equal(t, errors.CategoryExtraction, ce.Category())
			assert.Equal(t, tt.message, ce.Message())
			assertGone(t, fs, download)
		})
	}
}

func TestExtract_UnexpectedExtension(t *testing.T) {
	fs := afero.NewMemMapFs()
	download := filepath.Join(destDir, "notes.pdf")
	require.NoError(t, afero.WriteFile(fs, download, []byte("x"), 0o640))

	_, err := NewWithFs(fs).Extract(download, filepath.Base(download), "1", destDir)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryExtraction))
	assert.Contains(t, err.Error(), "unexpected extension")
}

func TestExtract_CorruptArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	download := filepath.Join(destDir, "bad.twbx")
	require.NoError(t, afero.WriteFile(fs, download, []byte("not a zip"), 0o640))

	_, err := NewWithFs(fs).Extract(download, filepath.Base(download), "1", destDir)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryExtraction))
}

func TestBareExtension(t *testing.T) {
	ext, ok := BareExtension(".TWBX")
	assert.True(t, ok)
	assert.Equal(t, ".twb", ext)

	ext, ok = BareExtension(".tds")
	assert.True(t, ok)
	assert.Equal(t, ".tds", ext)

	_, ok = BareExtension(".zip")
	assert.False(t, ok)
}
