package location

import (
	"context"

	"github.com/classpeak/searchcore/internal/domain"
)

// RegionStore is the consumer interface over the region table.
type RegionStore interface {
	ExactRegion(ctx context.Context, name, regionCode string) (*domain.Region, error)
	BoroughRegion(ctx context.Context, borough, regionCode string) (*domain.Region, error)
	SubstringRegions(ctx context.Context, fragment, regionCode string) ([]domain.Region, error)
	AllRegions(ctx context.Context, regionCode string) ([]domain.Region, error)
}

// AliasStore is the consumer interface over the persisted alias table.
// ActiveAlias serves the alias tier; LLMAlias is the LLM tier's result cache.
// Both return (nil, nil) when no row exists.
type AliasStore interface {
	ActiveAlias(ctx context.Context, normalized, regionCode string) (*domain.AliasEntry, error)
	LLMAlias(ctx context.Context, normalized, regionCode string) (*domain.AliasEntry, error)
	SaveLLMAlias(ctx context.Context, normalized, regionCode string,
		regionID string, candidateIDs []string, confidence float64) error
}

// UnresolvedLedger records terminal resolution failures for later curation.
type UnresolvedLedger interface {
	RecordUnresolved(ctx context.Context, text, regionCode, lastQuery string) error
}

// Embedder is the consumer interface for the embedding tier.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// LLM is the last-resort resolution collaborator. It returns matched
// neighborhood names; a malformed upstream response surfaces as
// domain.ErrMalformedUpstream.
type LLM interface {
	ResolveLocation(ctx context.Context, normalized, originalQuery string) ([]string, error)
}
