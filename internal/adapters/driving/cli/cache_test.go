package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

const otherFingerprint = domain.Fingerprint("9b8a7c6d5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2d1e0f9a8b")

func testArtifacts() []domain.ArtifactInfo {
	created := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	return []domain.ArtifactInfo{
		{Key: domain.ArtifactKey{Fingerprint: testFingerprint, Stage: domain.StageIndex, ConfigHash: "aaaabbbbcccc"},
			Size: 2048, CreatedAt: created},
		{Key: domain.ArtifactKey{Fingerprint: testFingerprint, Stage: domain.StageExtract, ConfigHash: "11112222"},
			Size: 300, CreatedAt: created},
		{Key: domain.ArtifactKey{Fingerprint: otherFingerprint, Stage: domain.StageChunk, ConfigHash: "ddddeeee"},
			Size: 100, CreatedAt: created},
	}
}

func TestCacheCmd_Subcommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range cacheCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"list", "clear"}, names)
}

func TestCacheList_All(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()
	svc.cache.artifacts = testArtifacts()

	out, err := runCommand("cache", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "FINGERPRINT")
	assert.Contains(t, out, "3f2a9c0d1e4b5a69")
	assert.Contains(t, out, "9b8a7c6d5e4f3a2b")
	assert.Contains(t, out, "aaaabbbb")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "Total: 3 entries")
	// Stages of one document are listed in pipeline order.
	assert.Less(t, strings.Index(out, "extract"), strings.Index(out, "index"))
}

func TestCacheList_Empty(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := runCommand("cache", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache is empty.")
}

func TestCacheList_ByPrefix(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()
	svc.cache.artifacts = testArtifacts()

	out, err := runCommand("cache", "list", "9b8a")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 1 entries")
	assert.NotContains(t, out, "3f2a9c0d1e4b5a69")
}

func TestCacheClear_ByFile(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()
	svc.cache.artifacts = testArtifacts()

	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0600))

	out, err := runCommand("cache", "clear", path)
	require.NoError(t, err)
	assert.Equal(t, []domain.Fingerprint{testFingerprint}, svc.cache.invalidated)
	assert.Contains(t, out, "Removed 2 cached entries for 3f2a9c0d1e4b5a69")
}

func TestCacheClear_ByFingerprint(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()
	svc.cache.artifacts = testArtifacts()

	_, err := runCommand("cache", "clear", otherFingerprint.String())
	require.NoError(t, err)
	assert.Equal(t, []domain.Fingerprint{otherFingerprint}, svc.cache.invalidated)
}

func TestCacheClear_All(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()
	defer func() { cacheClearAll = false }()
	svc.cache.artifacts = testArtifacts()

	out, err := runCommand("cache", "clear", "--all")
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Fingerprint{testFingerprint, otherFingerprint}, svc.cache.invalidated)
	assert.Contains(t, out, "Removed 3 cached entries for 2 documents")
}

func TestCacheClear_RequiresArg(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := runCommand("cache", "clear")
	assert.Error(t, err)
}

func TestResolveFingerprint(t *testing.T) {
	svc, cleanup := setupTestServices()
	defer cleanup()
	svc.cache.artifacts = testArtifacts()
	ctx := context.Background()

	t.Run("unique prefix", func(t *testing.T) {
		fp, err := resolveFingerprint(ctx, "3F2A")
		require.NoError(t, err)
		assert.Equal(t, testFingerprint, fp)
	})

	t.Run("full fingerprint is used as is", func(t *testing.T) {
		fp, err := resolveFingerprint(ctx, otherFingerprint.String())
		require.NoError(t, err)
		assert.Equal(t, otherFingerprint, fp)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		svc.cache.artifacts = append(testArtifacts(), domain.ArtifactInfo{
			Key: domain.ArtifactKey{Fingerprint: "3f2a0000" + otherFingerprint[8:], Stage: domain.StageChunk},
		})
		defer func() { svc.cache.artifacts = testArtifacts() }()

		_, err := resolveFingerprint(ctx, "3f2a")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown prefix", func(t *testing.T) {
		_, err := resolveFingerprint(ctx, "ffff")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("not a file or fingerprint", func(t *testing.T) {
		_, err := resolveFingerprint(ctx, "missing.pdf")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.5 KiB", formatSize(1536))
	assert.Equal(t, "0 B", formatSize(-1))
}
