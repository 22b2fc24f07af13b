package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestFingerprintBytes_Deterministic(t *testing.T) {
	a := FingerprintBytes([]byte("scan"))
	b := FingerprintBytes([]byte("scan"))
	c := FingerprintBytes([]byte("scan2"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.String(), 64)
}

func TestFingerprinter_ContentModeMatchesBytes(t *testing.T) {
	content := []byte("%PDF-1.4 fake")
	path := writeFile(t, "doc.pdf", content)

	fp, err := NewFingerprinter(domain.FingerprintContent).FingerprintFile(path)
	require.NoError(t, err)
	assert.Equal(t, FingerprintBytes(content), fp)
}

func TestFingerprinter_ContentModeIgnoresLocation(t *testing.T) {
	content := []byte("same bytes")
	a := writeFile(t, "a.pdf", content)
	b := writeFile(t, "b.pdf", content)

	f := NewFingerprinter(domain.FingerprintContent)
	fa, err := f.FingerprintFile(a)
	require.NoError(t, err)
	fb, err := f.FingerprintFile(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestFingerprinter_StatModeChangesWithMtime(t *testing.T) {
	path := writeFile(t, "doc.pdf", []byte("bytes"))
	f := NewFingerprinter(domain.FingerprintStat)

	before, err := f.FingerprintFile(path)
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	after, err := f.FingerprintFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestFingerprinter_InvalidModeFallsBack(t *testing.T) {
	f := NewFingerprinter("bogus")
	assert.Equal(t, domain.FingerprintContent, f.Mode())
}

func TestFingerprinter_Errors(t *testing.T) {
	f := NewFingerprinter(domain.FingerprintContent)

	_, err := f.FingerprintFile(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.FingerprintFile(t.TempDir())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.Load("  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFingerprinter_Load(t *testing.T) {
	path := writeFile(t, "boi.pdf", []byte("content"))

	doc, err := NewFingerprinter(domain.FingerprintContent).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "boi", doc.Title)
	assert.Equal(t, int64(7), doc.Size)
	assert.True(t, filepath.IsAbs(doc.Path))
	assert.Equal(t, FingerprintBytes([]byte("content")), doc.Fingerprint)
}
