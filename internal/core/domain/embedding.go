package domain

// ChunkVector is the embedding of one chunk.
type ChunkVector struct {
	// ChunkIndex is the sequence index of the embedded chunk.
	ChunkIndex int

	// Vector is the embedding, Dimensions long.
	Vector []float32
}

// EmbeddingSet is the embedding matrix of a document under one model.
// Chunks excluded after exhausting retries have no entry.
type EmbeddingSet struct {
	// Model is the embedding model identifier.
	Model string

	// Dimensions is the fixed vector length.
	Dimensions int

	// Vectors are ordered by ascending ChunkIndex.
	Vectors []ChunkVector
}

// Covers returns true if every chunk index in [0, n) has a vector.
func (s EmbeddingSet) Covers(n int) bool {
	if len(s.Vectors) != n {
		return false
	}
	for i, v := range s.Vectors {
		if v.ChunkIndex != i {
			return false
		}
	}
	return true
}

// Lookup returns the vectors keyed by chunk index.
func (s EmbeddingSet) Lookup() map[int][]float32 {
	m := make(map[int][]float32, len(s.Vectors))
	for _, v := range s.Vectors {
		m[v.ChunkIndex] = v.Vector
	}
	return m
}

// VectorHit is a single nearest-neighbour result.
type VectorHit struct {
	// ChunkIndex identifies the matched chunk.
	ChunkIndex int

	// Similarity is the cosine similarity in [-1, 1]. Higher is more similar.
	Similarity float64
}
