package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/scanqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/scanqa/internal/adapters/driven/vectorindex/flat"
	"github.com/custodia-labs/scanqa/internal/core/domain"
)

func artifactKey(stage domain.Stage) domain.ArtifactKey {
	return domain.ArtifactKey{
		Fingerprint: FingerprintBytes([]byte("doc")),
		Stage:       stage,
		ConfigHash:  domain.DefaultPipelineConfig().StageHash(stage),
	}
}

func TestEncodeDecodeEmbeddings(t *testing.T) {
	set := domain.EmbeddingSet{
		Model:      "text-embedding-3-small",
		Dimensions: 3,
		Vectors: []domain.ChunkVector{
			{ChunkIndex: 0, Vector: []float32{0.1, -0.2, 0.3}},
			{ChunkIndex: 4, Vector: []float32{1, 0, -1}},
		},
	}

	got, err := DecodeEmbeddings(EncodeEmbeddings(set))

	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestDecodeEmbeddings_Corrupt(t *testing.T) {
	valid := EncodeEmbeddings(domain.EmbeddingSet{
		Model:      "m",
		Dimensions: 2,
		Vectors:    []domain.ChunkVector{{ChunkIndex: 0, Vector: []float32{1, 2}}},
	})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), valid[4:]...)},
		{"truncated", valid[:len(valid)-3]},
		{"trailing bytes", append(append([]byte{}, valid...), 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEmbeddings(tt.data)
			assert.ErrorIs(t, err, domain.ErrCacheCorruption)
		})
	}
}

func TestArtifactStore_RoundTrip(t *testing.T) {
	store := NewArtifactStore(memory.NewArtifactCache(), flat.NewBuilder())
	ctx := context.Background()

	ext := domain.Extraction{
		Text:      "এক\n\nদুই",
		Pages:     []domain.PageSpan{{Index: 0, Start: 0, End: 2}, {Index: 1, Start: 4, End: 7}},
		PageCount: 2,
		Engine:    "tesseract/ben",
	}
	store.SaveExtraction(ctx, artifactKey(domain.StageExtract), ext)
	gotExt, err := store.LoadExtraction(ctx, artifactKey(domain.StageExtract))
	require.NoError(t, err)
	assert.Equal(t, ext, gotExt)

	chunks := makeChunks("এক", "দুই")
	store.SaveChunks(ctx, artifactKey(domain.StageChunk), chunks)
	gotChunks, err := store.LoadChunks(ctx, artifactKey(domain.StageChunk))
	require.NoError(t, err)
	assert.Equal(t, chunks, gotChunks)

	vectors := []domain.ChunkVector{{ChunkIndex: 0, Vector: []float32{1, 0}}, {ChunkIndex: 1, Vector: []float32{0, 1}}}
	idx, err := flat.NewBuilder().Build(ctx, 2, vectors)
	require.NoError(t, err)
	store.SaveIndex(ctx, artifactKey(domain.StageIndex), idx)
	gotIdx, err := store.LoadIndex(ctx, artifactKey(domain.StageIndex))
	require.NoError(t, err)
	assert.Equal(t, 2, gotIdx.Len())
	assert.Equal(t, 2, gotIdx.Dimensions())
}

func TestArtifactStore_Miss(t *testing.T) {
	store := NewArtifactStore(memory.NewArtifactCache(), flat.NewBuilder())

	_, err := store.LoadExtraction(context.Background(), artifactKey(domain.StageExtract))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArtifactStore_CorruptEntries(t *testing.T) {
	cache := memory.NewArtifactCache()
	store := NewArtifactStore(cache, flat.NewBuilder())
	ctx := context.Background()

	for _, stage := range domain.AllStages() {
		require.NoError(t, cache.Put(ctx, artifactKey(stage), []byte("garbage")))
	}

	_, err := store.LoadExtraction(ctx, artifactKey(domain.StageExtract))
	assert.ErrorIs(t, err, domain.ErrCacheCorruption)
	_, err = store.LoadChunks(ctx, artifactKey(domain.StageChunk))
	assert.ErrorIs(t, err, domain.ErrCacheCorruption)
	_, err = store.LoadEmbeddings(ctx, artifactKey(domain.StageEmbed))
	assert.ErrorIs(t, err, domain.ErrCacheCorruption)
	_, err = store.LoadIndex(ctx, artifactKey(domain.StageIndex))
	assert.ErrorIs(t, err, domain.ErrCacheCorruption)
}

func TestArtifactStore_InconsistentChunks(t *testing.T) {
	store := NewArtifactStore(memory.NewArtifactCache(), flat.NewBuilder())
	ctx := context.Background()

	chunks := makeChunks("a", "b")
	chunks[1].Index = 5
	store.SaveChunks(ctx, artifactKey(domain.StageChunk), chunks)

	_, err := store.LoadChunks(ctx, artifactKey(domain.StageChunk))
	assert.ErrorIs(t, err, domain.ErrCacheCorruption)
}

func TestArtifactStore_Disabled(t *testing.T) {
	store := NewArtifactStore(nil, flat.NewBuilder())
	ctx := context.Background()

	store.SaveChunks(ctx, artifactKey(domain.StageChunk), makeChunks("a"))
	_, err := store.LoadChunks(ctx, artifactKey(domain.StageChunk))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	infos, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, infos)

	n, err := store.Delete(ctx, "abc")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKeyedMutex_SerialisesSameKey(t *testing.T) {
	km := newKeyedMutex()
	key := artifactKey(domain.StageEmbed)

	var mu sync.Mutex
	inside, peak := 0, 0
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()

			mu.Lock()
			inside++
			peak = max(peak, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak)
	assert.Empty(t, km.locks)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock(artifactKey(domain.StageChunk))
	done := make(chan struct{})
	go func() {
		unlock := km.Lock(artifactKey(domain.StageEmbed))
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	unlockA()
}
