package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
	"github.com/custodia-labs/scanqa/internal/logger"
)

// embeddingsMagic prefixes encoded embedding sets.
var embeddingsMagic = [4]byte{'S', 'Q', 'E', 'M'}

const embeddingsVersion uint16 = 1

// ArtifactStore encodes stage outputs for the artifact cache.
// Loads return domain.ErrNotFound on a miss and domain.ErrCacheCorruption
// when an entry cannot be decoded. A nil cache disables caching.
type ArtifactStore struct {
	cache   driven.ArtifactCache
	builder driven.IndexBuilder
	locks   *keyedMutex
}

// NewArtifactStore creates an artifact store over cache.
func NewArtifactStore(cache driven.ArtifactCache, builder driven.IndexBuilder) *ArtifactStore {
	return &ArtifactStore{
		cache:   cache,
		builder: builder,
		locks:   newKeyedMutex(),
	}
}

// Lock serialises writers of key. Call the returned func to release.
func (a *ArtifactStore) Lock(key domain.ArtifactKey) func() {
	return a.locks.Lock(key)
}

func (a *ArtifactStore) get(ctx context.Context, key domain.ArtifactKey) ([]byte, error) {
	if a.cache == nil {
		return nil, domain.ErrNotFound
	}
	return a.cache.Get(ctx, key)
}

func (a *ArtifactStore) put(ctx context.Context, key domain.ArtifactKey, payload []byte) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Put(ctx, key, payload); err != nil {
		logger.Warn("Failed to cache %s artifact for %s: %v", key.Stage, key.Fingerprint.Short(), err)
		return
	}
	logger.Debug("Cached %s artifact for %s (%d bytes)", key.Stage, key.Fingerprint.Short(), len(payload))
}

func loadJSON[T any](ctx context.Context, a *ArtifactStore, key domain.ArtifactKey) (T, error) {
	var v T
	data, err := a.get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: decode %s artifact: %w", domain.ErrCacheCorruption, key.Stage, err)
	}
	return v, nil
}

func saveJSON(ctx context.Context, a *ArtifactStore, key domain.ArtifactKey, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn("Failed to encode %s artifact: %v", key.Stage, err)
		return
	}
	a.put(ctx, key, data)
}

// LoadExtraction restores the extract stage output.
func (a *ArtifactStore) LoadExtraction(ctx context.Context, key domain.ArtifactKey) (domain.Extraction, error) {
	ext, err := loadJSON[domain.Extraction](ctx, a, key)
	if err != nil {
		return domain.Extraction{}, err
	}
	if err := validateExtraction(ext); err != nil {
		return domain.Extraction{}, err
	}
	return ext, nil
}

// SaveExtraction stores the extract stage output.
func (a *ArtifactStore) SaveExtraction(ctx context.Context, key domain.ArtifactKey, ext domain.Extraction) {
	saveJSON(ctx, a, key, ext)
}

// LoadChunks restores the chunk stage output for fp.
func (a *ArtifactStore) LoadChunks(ctx context.Context, key domain.ArtifactKey) ([]domain.Chunk, error) {
	chunks, err := loadJSON[[]domain.Chunk](ctx, a, key)
	if err != nil {
		return nil, err
	}
	for i, c := range chunks {
		if c.Index != i || c.DocumentID != key.Fingerprint || c.End < c.Start {
			return nil, fmt.Errorf("%w: chunk %d is inconsistent", domain.ErrCacheCorruption, i)
		}
	}
	return chunks, nil
}

// SaveChunks stores the chunk stage output.
func (a *ArtifactStore) SaveChunks(ctx context.Context, key domain.ArtifactKey, chunks []domain.Chunk) {
	saveJSON(ctx, a, key, chunks)
}

// LoadEmbeddings restores the embed stage output.
func (a *ArtifactStore) LoadEmbeddings(ctx context.Context, key domain.ArtifactKey) (domain.EmbeddingSet, error) {
	data, err := a.get(ctx, key)
	if err != nil {
		return domain.EmbeddingSet{}, err
	}
	return DecodeEmbeddings(data)
}

// SaveEmbeddings stores the embed stage output.
func (a *ArtifactStore) SaveEmbeddings(ctx context.Context, key domain.ArtifactKey, set domain.EmbeddingSet) {
	a.put(ctx, key, EncodeEmbeddings(set))
}

// LoadIndex restores the index stage output.
func (a *ArtifactStore) LoadIndex(ctx context.Context, key domain.ArtifactKey) (driven.VectorIndex, error) {
	data, err := a.get(ctx, key)
	if err != nil {
		return nil, err
	}
	idx, err := a.builder.Load(data)
	if err != nil {
		if errors.Is(err, domain.ErrCacheCorruption) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrCacheCorruption, err)
	}
	return idx, nil
}

// SaveIndex stores the index stage output.
func (a *ArtifactStore) SaveIndex(ctx context.Context, key domain.ArtifactKey, idx driven.VectorIndex) {
	data, err := idx.MarshalBinary()
	if err != nil {
		logger.Warn("Failed to encode index: %v", err)
		return
	}
	a.put(ctx, key, data)
}

// List enumerates the entries of fp, or all entries if fp is empty.
func (a *ArtifactStore) List(ctx context.Context, fp domain.Fingerprint) ([]domain.ArtifactInfo, error) {
	if a.cache == nil {
		return []domain.ArtifactInfo{}, nil
	}
	if fp == "" {
		return a.cache.ListAll(ctx)
	}
	return a.cache.List(ctx, fp)
}

// Delete removes every entry of fp.
func (a *ArtifactStore) Delete(ctx context.Context, fp domain.Fingerprint) (int, error) {
	if a.cache == nil {
		return 0, nil
	}
	if fp == "" {
		return 0, fmt.Errorf("%w: fingerprint is required", domain.ErrInvalidInput)
	}
	return a.cache.Delete(ctx, fp)
}

func validateExtraction(ext domain.Extraction) error {
	n := len([]rune(ext.Text))
	prev := 0
	for _, p := range ext.Pages {
		if p.Start < prev || p.End < p.Start || p.End > n {
			return fmt.Errorf("%w: page span %d is out of range", domain.ErrCacheCorruption, p.Index)
		}
		prev = p.End
	}
	return nil
}

// EncodeEmbeddings serialises an embedding set as little-endian records:
// magic, version, model length, model, dimensions, count, then
// (chunk index, vector) per entry.
func EncodeEmbeddings(set domain.EmbeddingSet) []byte {
	var buf bytes.Buffer
	buf.Grow(16 + len(set.Model) + len(set.Vectors)*(4+4*set.Dimensions))

	buf.Write(embeddingsMagic[:])
	writeUint16(&buf, embeddingsVersion)
	writeUint32(&buf, uint32(len(set.Model)))
	buf.WriteString(set.Model)
	writeUint32(&buf, uint32(set.Dimensions))
	writeUint32(&buf, uint32(len(set.Vectors)))
	for _, v := range set.Vectors {
		writeUint32(&buf, uint32(v.ChunkIndex))
		for _, f := range v.Vector {
			writeUint32(&buf, math.Float32bits(f))
		}
	}
	return buf.Bytes()
}

// DecodeEmbeddings restores an embedding set written by EncodeEmbeddings.
func DecodeEmbeddings(data []byte) (domain.EmbeddingSet, error) {
	corrupt := func(what string) (domain.EmbeddingSet, error) {
		return domain.EmbeddingSet{}, fmt.Errorf("%w: embeddings: %s", domain.ErrCacheCorruption, what)
	}

	r := bytes.NewReader(data)
	var magic [4]byte
	if _, err := r.Read(magic[:]); err != nil || magic != embeddingsMagic {
		return corrupt("bad magic")
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil || version != embeddingsVersion {
		return corrupt("unsupported version")
	}

	var modelLen uint32
	if err := binary.Read(r, binary.LittleEndian, &modelLen); err != nil || int(modelLen) > r.Len() {
		return corrupt("truncated model name")
	}
	model := make([]byte, modelLen)
	if _, err := r.Read(model); err != nil && modelLen > 0 {
		return corrupt("truncated model name")
	}

	var dims, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
		return corrupt("truncated header")
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return corrupt("truncated header")
	}
	if uint64(r.Len()) != uint64(count)*uint64(4+4*dims) {
		return corrupt("payload length does not match header")
	}

	set := domain.EmbeddingSet{
		Model:      string(model),
		Dimensions: int(dims),
		Vectors:    make([]domain.ChunkVector, count),
	}
	for i := range set.Vectors {
		var idx uint32
		_ = binary.Read(r, binary.LittleEndian, &idx)
		vec := make([]float32, dims)
		for j := range vec {
			var bits uint32
			_ = binary.Read(r, binary.LittleEndian, &bits)
			vec[j] = math.Float32frombits(bits)
		}
		if i > 0 && int(idx) <= set.Vectors[i-1].ChunkIndex {
			return corrupt("chunk indices out of order")
		}
		set.Vectors[i] = domain.ChunkVector{ChunkIndex: int(idx), Vector: vec}
	}
	return set, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// keyedMutex serialises work per key. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.ArtifactKey]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[domain.ArtifactKey]*refLock)}
}

// Lock acquires the lock for key and returns its release func.
func (k *keyedMutex) Lock(key domain.ArtifactKey) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
