package domain

// RetrievalOutcome classifies a retrieval or answer.
type RetrievalOutcome string

// Available outcomes.
const (
	// OutcomeMatched means at least one chunk was returned.
	OutcomeMatched RetrievalOutcome = "matched"

	// OutcomeNoMatch means the document has chunks but none passed the score filter.
	OutcomeNoMatch RetrievalOutcome = "no_match"

	// OutcomeNoContent means the document produced zero chunks.
	OutcomeNoContent RetrievalOutcome = "no_content"
)

// String returns the string representation.
func (o RetrievalOutcome) String() string {
	return string(o)
}

// ScoredChunk pairs a chunk with its similarity to the question.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// RetrievalResult is the ranked top-k chunks for one question.
// Chunks are sorted by descending score, ties by ascending chunk index.
type RetrievalResult struct {
	Question string           `json:"question"`
	Chunks   []ScoredChunk    `json:"chunks"`
	Outcome  RetrievalOutcome `json:"outcome"`
}
