package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/scanqa/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { store.Close() })

	return store, dir
}

func testKey(stage domain.Stage) domain.ArtifactKey {
	return domain.ArtifactKey{
		Fingerprint: "f00dfeed",
		Stage:       stage,
		ConfigHash:  "cfg-1",
	}
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	store, dir := setupTestStore(t)

	assert.Equal(t, filepath.Join(dir, DatabaseFile), store.Path())
	assert.FileExists(t, store.Path())
}

func TestNewStore_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	first, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewStore(dir)
	require.NoError(t, err)
	defer second.Close()

	var versions int
	require.NoError(t, second.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Get(context.Background(), testKey(domain.StageChunk))

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	key := testKey(domain.StageExtract)

	require.NoError(t, store.Put(ctx, key, []byte(`{"text":"বাংলা"}`)))
	got, err := store.Get(ctx, key)

	require.NoError(t, err)
	assert.Equal(t, `{"text":"বাংলা"}`, string(got))
}

func TestStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	key := testKey(domain.StageEmbed)

	require.NoError(t, store.Put(ctx, key, []byte("old")))
	require.NoError(t, store.Put(ctx, key, []byte("new")))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	infos, err := store.List(ctx, key.Fingerprint)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestStore_PutRejectsInvalidKey(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.Put(context.Background(), domain.ArtifactKey{Fingerprint: "fp", Stage: "bogus"}, []byte("x"))

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_ConfigHashMismatchIsMiss(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	key := testKey(domain.StageEmbed)
	require.NoError(t, store.Put(ctx, key, []byte("vectors")))

	key.ConfigHash = "cfg-2"
	_, err := store.Get(ctx, key)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ChecksumMismatchIsCorruption(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	key := testKey(domain.StageIndex)
	require.NoError(t, store.Put(ctx, key, []byte("index-bytes")))

	_, err := store.db.Exec("UPDATE artifacts SET payload = ? WHERE stage = ?", []byte("tampered"), "index")
	require.NoError(t, err)

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, domain.ErrCacheCorruption)
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	key := testKey(domain.StageChunk)

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, key, []byte("chunks")))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "chunks", string(got))
}

func TestStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	for _, stage := range []domain.Stage{domain.StageIndex, domain.StageExtract, domain.StageEmbed, domain.StageChunk} {
		require.NoError(t, store.Put(ctx, testKey(stage), []byte(stage)))
	}
	other := domain.ArtifactKey{Fingerprint: "beef", Stage: domain.StageChunk, ConfigHash: "cfg-1"}
	require.NoError(t, store.Put(ctx, other, []byte("other")))

	infos, err := store.List(ctx, "f00dfeed")
	require.NoError(t, err)
	require.Len(t, infos, 4)
	for i, stage := range domain.AllStages() {
		assert.Equal(t, stage, infos[i].Key.Stage)
		assert.Equal(t, len(stage), infos[i].Size)
		assert.False(t, infos[i].CreatedAt.IsZero())
	}

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	removed, err := store.Delete(ctx, "f00dfeed")
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	_, err = store.Get(ctx, other)
	assert.NoError(t, err, "other documents are untouched")
}

func TestStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTestStore(t)
	key := testKey(domain.StageChunk)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Put(ctx, key, []byte("same payload")))
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "same payload", string(got))
}
