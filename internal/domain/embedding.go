package domain

import "context"

// EmbeddingProvider is the external vectorization contract.
// Implementations return unit-normalized vectors.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimensions() int
}

// EmbeddingRecord is the stored embedding state of a catalog entity,
// used to decide whether it must be re-embedded.
type EmbeddingRecord struct {
	Vector      []float32
	ModelName   string
	ContentHash string
}

// Embeddable is a catalog entity that can produce its embedding source text.
type Embeddable interface {
	EmbeddingText() string
	StoredEmbedding() EmbeddingRecord
}
