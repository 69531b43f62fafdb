package search

import (
	"context"

	"github.com/classpeak/searchcore/internal/domain"
	"github.com/classpeak/searchcore/internal/repository/retriever"
	"github.com/classpeak/searchcore/internal/repository/searchcache"
	"github.com/classpeak/searchcore/internal/usecase/location"
	"github.com/classpeak/searchcore/internal/usecase/ranking"
)

// Parser is the out-of-process intent extractor turning free text into a
// structured query.
type Parser interface {
	Parse(ctx context.Context, query string) (*domain.ParsedQuery, error)
}

// Cache is the consumer interface over the search cache service.
type Cache interface {
	GetResponse(ctx context.Context, in searchcache.KeyInputs) (*domain.SearchResponse, bool)
	SetResponse(ctx context.Context, in searchcache.KeyInputs, resp *domain.SearchResponse)
	GetParsedQuery(ctx context.Context, rawQuery string) (*domain.ParsedQuery, bool)
	SetParsedQuery(ctx context.Context, rawQuery string, pq *domain.ParsedQuery)
	GetLocation(ctx context.Context, text, region string) (*domain.CachedLocation, bool)
	SetLocation(ctx context.Context, text, region string, loc *domain.CachedLocation)
}

// Resolver resolves free-text locations.
type Resolver interface {
	Resolve(ctx context.Context, req location.Request) domain.ResolvedLocation
}

// Embedder produces query embeddings, degrading to nil.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Retriever fetches raw filtered candidates.
type Retriever interface {
	Search(ctx context.Context, q *retriever.Query) ([]domain.FilteredCandidate, error)
}

// Ranker orders candidates.
type Ranker interface {
	Rank(in ranking.Input) []domain.RankedResult
}
