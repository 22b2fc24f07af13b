// Package flat provides an exact cosine-similarity vector index.
//
// Vectors are L2-normalised at build time, so a query is a linear scan of
// dot products. At the scale of one document (hundreds to low thousands of
// chunks) this is fast enough and keeps ranking exact and deterministic.
package flat

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/custodia-labs/scanqa/internal/core/domain"
	"github.com/custodia-labs/scanqa/internal/core/ports/driven"
)

// Kind is the index kind recorded in the cache key.
const Kind = "flat"

// Ensure interfaces are implemented.
var (
	_ driven.VectorIndex  = (*Index)(nil)
	_ driven.IndexBuilder = (*Builder)(nil)
)

var magic = [4]byte{'S', 'Q', 'V', 'I'}

const formatVersion uint16 = 1

// Index is an immutable exact nearest-neighbour index.
type Index struct {
	dims    int
	ids     []int       // chunk indices, ascending
	vectors [][]float32 // unit vectors, parallel to ids
}

// Builder creates flat indexes.
type Builder struct{}

// NewBuilder creates a flat index builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Kind returns "flat".
func (b *Builder) Kind() string {
	return Kind
}

// Build normalises and stores the vectors. O(N) in the number of vectors
// plus a sort by chunk index.
func (b *Builder) Build(ctx context.Context, dims int, vectors []domain.ChunkVector) (driven.VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: index dimensions must be positive", domain.ErrInvalidInput)
	}

	sorted := make([]domain.ChunkVector, len(vectors))
	copy(sorted, vectors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ChunkIndex < sorted[j].ChunkIndex
	})

	idx := &Index{
		dims:    dims,
		ids:     make([]int, 0, len(sorted)),
		vectors: make([][]float32, 0, len(sorted)),
	}
	for i, cv := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(cv.Vector) != dims {
			return nil, fmt.Errorf("%w: chunk %d has %d dimensions, index has %d",
				domain.ErrConfigurationMismatch, cv.ChunkIndex, len(cv.Vector), dims)
		}
		if i > 0 && cv.ChunkIndex == sorted[i-1].ChunkIndex {
			return nil, fmt.Errorf("%w: duplicate chunk %d", domain.ErrInvalidInput, cv.ChunkIndex)
		}
		idx.ids = append(idx.ids, cv.ChunkIndex)
		idx.vectors = append(idx.vectors, normalise(cv.Vector))
	}
	return idx, nil
}

// Load restores an index written by MarshalBinary.
func (b *Builder) Load(data []byte) (driven.VectorIndex, error) {
	r := bytes.NewReader(data)

	var header struct {
		Magic   [4]byte
		Version uint16
		Dims    uint32
		Count   uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: reading index header: %w", domain.ErrCacheCorruption, err)
	}
	if header.Magic != magic || header.Version != formatVersion || header.Dims == 0 {
		return nil, fmt.Errorf("%w: unrecognised index header", domain.ErrCacheCorruption)
	}

	dims, count := int(header.Dims), int(header.Count)
	if want := int64(count) * int64(4+4*dims); int64(r.Len()) != want {
		return nil, fmt.Errorf("%w: index payload is %d bytes, want %d", domain.ErrCacheCorruption, r.Len(), want)
	}

	idx := &Index{
		dims:    dims,
		ids:     make([]int, count),
		vectors: make([][]float32, count),
	}
	for i := 0; i < count; i++ {
		var id uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("%w: reading chunk id: %w", domain.ErrCacheCorruption, err)
		}
		vec := make([]float32, dims)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return nil, fmt.Errorf("%w: reading vector: %w", domain.ErrCacheCorruption, err)
		}
		if i > 0 && int(id) <= idx.ids[i-1] {
			return nil, fmt.Errorf("%w: chunk ids out of order", domain.ErrCacheCorruption)
		}
		idx.ids[i] = int(id)
		idx.vectors[i] = vec
	}
	return idx, nil
}

// Kind returns "flat".
func (x *Index) Kind() string {
	return Kind
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	return len(x.ids)
}

// Dimensions returns the vector length.
func (x *Index) Dimensions() int {
	return x.dims
}

// Search scores every vector against the query by cosine similarity and
// returns the best k, highest first. Equal scores are ordered by ascending
// chunk index. k larger than Len returns every vector.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error) {
	if len(query) != x.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrConfigurationMismatch, len(query), x.dims)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	q := normalise(query)

	hits := make([]domain.VectorHit, len(x.ids))
	for i, v := range x.vectors {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hits[i] = domain.VectorHit{ChunkIndex: x.ids[i], Similarity: dot(v, q)}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// MarshalBinary writes the header then (chunk id, vector) records,
// little-endian.
func (x *Index) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(14 + len(x.ids)*(4+4*x.dims))

	header := struct {
		Magic   [4]byte
		Version uint16
		Dims    uint32
		Count   uint32
	}{magic, formatVersion, uint32(x.dims), uint32(len(x.ids))}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	for i, id := range x.ids {
		if err := binary.Write(&buf, binary.LittleEndian, uint32(id)); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, x.vectors[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// normalise returns a unit-length copy. A zero vector stays zero and
// scores 0 against everything.
func normalise(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
