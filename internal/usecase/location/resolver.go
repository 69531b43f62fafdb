package location

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xrash/smetrics"
	"go.uber.org/zap"

	"github.com/classpeak/searchcore/internal/domain"
)

// Options tune the optional high-cost tiers.
type Options struct {
	EnableEmbedding     bool
	EnableLLM           bool
	SimilarityThreshold float64
	EmbeddingTopK       int
	EmbeddingGap        float64
}

// DefaultOptions returns production resolver settings. The embedding and LLM
// tiers stay off unless explicitly enabled.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.85,
		EmbeddingTopK:       5,
		EmbeddingGap:        0.1,
	}
}

// Request is one resolution attempt.
type Request struct {
	Text          string
	RegionCode    string
	OriginalQuery string
	// RecordUnresolved asks for a terminal NotFound to be written to the
	// curation ledger (fire-and-forget).
	RecordUnresolved bool
}

// Resolver resolves free-text locations through an ordered cascade of
// strategies. Strategies run strictly in tier order and the first
// non-NotFound outcome wins, so an assigned tier is never downgraded.
type Resolver struct {
	regions   RegionStore
	aliases   AliasStore
	ledger    UnresolvedLedger
	embedder  Embedder
	llm       LLM
	opts      Options
	tierTotal *prometheus.CounterVec
	logger    *zap.Logger
}

// New creates a resolver. embedder and llm may be nil when their tiers are
// disabled; ledger may be nil to drop unresolved tracking.
func New(
	regions RegionStore,
	aliases AliasStore,
	ledger UnresolvedLedger,
	embedder Embedder,
	llm LLM,
	opts Options,
	tierTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Resolver {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.85
	}
	if opts.EmbeddingTopK <= 0 {
		opts.EmbeddingTopK = 5
	}
	if opts.EmbeddingGap <= 0 {
		opts.EmbeddingGap = 0.1
	}
	return &Resolver{
		regions:   regions,
		aliases:   aliases,
		ledger:    ledger,
		embedder:  embedder,
		llm:       llm,
		opts:      opts,
		tierTotal: tierTotal,
		logger:    logger,
	}
}

type strategyFn func(ctx context.Context, normalized string, req Request) (domain.ResolvedLocation, error)

// Resolve runs the cascade. It never returns an error: every failure inside
// a strategy is logged and treated as that tier's NotFound.
func (r *Resolver) Resolve(ctx context.Context, req Request) domain.ResolvedLocation {
	normalized := Normalize(req.Text)
	if len(normalized) < 2 {
		return domain.NotFoundLocation()
	}

	strategies := []struct {
		tier domain.Tier
		fn   strategyFn
	}{
		{domain.TierExact, r.exact},
		{domain.TierAlias, r.alias},
		{domain.TierFuzzySubstring, r.substring},
		{domain.TierFuzzySimilarity, r.similarity},
	}
	if r.opts.EnableEmbedding && r.embedder != nil {
		strategies = append(strategies, struct {
			tier domain.Tier
			fn   strategyFn
		}{domain.TierEmbedding, r.embedding})
	}
	if r.opts.EnableLLM && r.llm != nil {
		strategies = append(strategies, struct {
			tier domain.Tier
			fn   strategyFn
		}{domain.TierLLM, r.llmResolve})
	}

	for _, s := range strategies {
		loc, err := s.fn(ctx, normalized, req)
		if err != nil {
			r.logger.Warn("Resolver tier failed",
				zap.String("tier", s.tier.String()),
				zap.String("text", normalized),
				zap.Error(err))
			continue
		}
		if loc.Kind == domain.LocationNotFound {
			continue
		}
		loc.Tier = s.tier
		r.incTier(s.tier)
		return loc
	}

	if req.RecordUnresolved && r.ledger != nil {
		r.recordUnresolved(normalized, req)
	}
	return domain.NotFoundLocation()
}

// exact matches borough names first, then exact region names.
func (r *Resolver) exact(ctx context.Context, normalized string, req Request) (domain.ResolvedLocation, error) {
	if region, err := r.regions.BoroughRegion(ctx, normalized, req.RegionCode); err == nil && region != nil {
		return domain.ResolvedLocation{
			Kind:       domain.LocationBorough,
			Borough:    region.Borough,
			Confidence: 1.0,
		}, nil
	}

	region, err := r.regions.ExactRegion(ctx, normalized, req.RegionCode)
	if err != nil || region == nil {
		return domain.NotFoundLocation(), nil
	}
	return resolvedRegion(region, 1.0), nil
}

// alias consults the persisted alias table, falling back to the bundled seed
// map. Persisted rows win over seeds for the same text. A single-candidate
// ambiguous row is not a resolution; it falls through to lower tiers.
func (r *Resolver) alias(ctx context.Context, normalized string, req Request) (domain.ResolvedLocation, error) {
	entry, err := r.aliases.ActiveAlias(ctx, normalized, req.RegionCode)
	if err != nil {
		return domain.NotFoundLocation(), err
	}
	if entry != nil {
		if loc, ok := aliasOutcome(entry); ok {
			return loc, nil
		}
		// Single-candidate ambiguous row: fall through to the seed map.
	}

	seed, ok := loadSeedAliases()[normalized]
	if !ok {
		return domain.NotFoundLocation(), nil
	}
	switch {
	case seed.Borough != "":
		return domain.ResolvedLocation{
			Kind:       domain.LocationBorough,
			Borough:    seed.Borough,
			Confidence: 0.9,
		}, nil
	case seed.Region != "":
		region, err := r.regions.ExactRegion(ctx, seed.Region, req.RegionCode)
		if err != nil || region == nil {
			return domain.NotFoundLocation(), nil
		}
		return resolvedRegion(region, 0.9), nil
	case len(seed.Candidates) > 1:
		loc := domain.ResolvedLocation{
			Kind:                  domain.LocationAmbiguous,
			Confidence:            0.5,
			RequiresClarification: true,
		}
		for _, name := range seed.Candidates {
			region, err := r.regions.ExactRegion(ctx, name, req.RegionCode)
			if err != nil || region == nil {
				continue
			}
			loc.Candidates = append(loc.Candidates, domain.LocationCandidate{
				RegionID:   region.ID,
				RegionName: region.Name,
			})
		}
		if len(loc.Candidates) < 2 {
			return domain.NotFoundLocation(), nil
		}
		return loc, nil
	default:
		return domain.NotFoundLocation(), nil
	}
}

// substring matches region names containing the normalized text. Fragments
// of two characters or fewer are rejected as too ambiguous.
func (r *Resolver) substring(ctx context.Context, normalized string, req Request) (domain.ResolvedLocation, error) {
	if len(normalized) <= 2 {
		return domain.NotFoundLocation(), nil
	}
	matches, err := r.regions.SubstringRegions(ctx, normalized, req.RegionCode)
	if err != nil {
		return domain.NotFoundLocation(), err
	}
	switch len(matches) {
	case 0:
		return domain.NotFoundLocation(), nil
	case 1:
		return resolvedRegion(&matches[0], 0.8), nil
	default:
		loc := domain.ResolvedLocation{
			Kind:                  domain.LocationAmbiguous,
			Confidence:            0.5,
			RequiresClarification: true,
		}
		for i := range matches {
			loc.Candidates = append(loc.Candidates, domain.LocationCandidate{
				RegionID:   matches[i].ID,
				RegionName: matches[i].Name,
			})
		}
		return loc, nil
	}
}

// similarity runs Jaro-Winkler over all region names and takes the best
// match above the threshold.
func (r *Resolver) similarity(ctx context.Context, normalized string, req Request) (domain.ResolvedLocation, error) {
	all, err := r.regions.AllRegions(ctx, req.RegionCode)
	if err != nil {
		return domain.NotFoundLocation(), err
	}

	var best *domain.Region
	bestScore := 0.0
	for i := range all {
		score := smetrics.JaroWinkler(normalized, Normalize(all[i].Name), 0.7, 4)
		if score > bestScore {
			best = &all[i]
			bestScore = score
		}
	}
	if best == nil || bestScore < r.opts.SimilarityThreshold {
		return domain.NotFoundLocation(), nil
	}
	return resolvedRegion(best, bestScore), nil
}

// embedding ranks regions by vector similarity to the normalized text and
// applies a best-or-ambiguous gap decision over the top-k.
func (r *Resolver) embedding(ctx context.Context, normalized string, req Request) (domain.ResolvedLocation, error) {
	vec, err := r.embedder.EmbedQuery(ctx, normalized)
	if err != nil || vec == nil {
		return domain.NotFoundLocation(), err
	}

	all, err := r.regions.AllRegions(ctx, req.RegionCode)
	if err != nil {
		return domain.NotFoundLocation(), err
	}

	type scored struct {
		region domain.Region
		score  float64
	}
	var ranked []scored
	for i := range all {
		// Rows missing an id or name are unusable for a decision.
		if all[i].ID == "" || all[i].Name == "" || all[i].NameVector == nil {
			continue
		}
		ranked = append(ranked, scored{all[i], dot(vec, all[i].NameVector)})
	}
	if len(ranked) == 0 {
		return domain.NotFoundLocation(), nil
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > r.opts.EmbeddingTopK {
		ranked = ranked[:r.opts.EmbeddingTopK]
	}

	if len(ranked) == 1 || ranked[0].score-ranked[1].score >= r.opts.EmbeddingGap {
		return resolvedRegion(&ranked[0].region, ranked[0].score), nil
	}

	loc := domain.ResolvedLocation{
		Kind:                  domain.LocationAmbiguous,
		Confidence:            ranked[0].score,
		RequiresClarification: true,
	}
	for _, s := range ranked {
		loc.Candidates = append(loc.Candidates, domain.LocationCandidate{
			RegionID:   s.region.ID,
			RegionName: s.region.Name,
		})
	}
	return loc, nil
}

// llmResolve is the last resort. Its result cache is checked before any
// network call; fresh resolutions are persisted as pending-review aliases.
func (r *Resolver) llmResolve(ctx context.Context, normalized string, req Request) (domain.ResolvedLocation, error) {
	cached, err := r.aliases.LLMAlias(ctx, normalized, req.RegionCode)
	if err != nil {
		r.logger.Warn("LLM alias cache read failed", zap.Error(err))
	} else if cached != nil {
		if loc, ok := aliasOutcome(cached); ok {
			return loc, nil
		}
	}

	names, err := r.llm.ResolveLocation(ctx, normalized, req.OriginalQuery)
	if err != nil {
		// Malformed or failed upstream response is this tier's NotFound.
		return domain.NotFoundLocation(), err
	}

	var matched []*domain.Region
	for _, name := range names {
		region, err := r.regions.ExactRegion(ctx, name, req.RegionCode)
		if err != nil || region == nil {
			continue
		}
		matched = append(matched, region)
	}

	switch len(matched) {
	case 0:
		return domain.NotFoundLocation(), nil
	case 1:
		if err := r.aliases.SaveLLMAlias(ctx, normalized, req.RegionCode, matched[0].ID, nil, 0.7); err != nil {
			r.logger.Warn("Failed to persist LLM alias", zap.Error(err))
		}
		return resolvedRegion(matched[0], 0.7), nil
	default:
		ids := make([]string, 0, len(matched))
		loc := domain.ResolvedLocation{
			Kind:                  domain.LocationAmbiguous,
			Confidence:            0.5,
			RequiresClarification: true,
		}
		for _, region := range matched {
			ids = append(ids, region.ID)
			loc.Candidates = append(loc.Candidates, domain.LocationCandidate{
				RegionID:   region.ID,
				RegionName: region.Name,
			})
		}
		if err := r.aliases.SaveLLMAlias(ctx, normalized, req.RegionCode, "", ids, 0.5); err != nil {
			r.logger.Warn("Failed to persist LLM alias", zap.Error(err))
		}
		return loc, nil
	}
}

// aliasOutcome converts a persisted alias entry into an outcome. A row with
// a single candidate and no region id reports (_, false): it must fall
// through rather than resolve.
func aliasOutcome(entry *domain.AliasEntry) (domain.ResolvedLocation, bool) {
	if entry.RegionID != "" {
		confidence := entry.Confidence
		if confidence == 0 {
			confidence = 0.9
		}
		return domain.ResolvedLocation{
			Kind:       domain.LocationRegion,
			RegionID:   entry.RegionID,
			RegionName: entry.RegionName,
			Borough:    entry.Borough,
			Confidence: confidence,
		}, true
	}
	if len(entry.Candidates) > 1 {
		return domain.ResolvedLocation{
			Kind:                  domain.LocationAmbiguous,
			Candidates:            entry.Candidates,
			Confidence:            entry.Confidence,
			RequiresClarification: true,
		}, true
	}
	return domain.NotFoundLocation(), false
}

func resolvedRegion(region *domain.Region, confidence float64) domain.ResolvedLocation {
	return domain.ResolvedLocation{
		Kind:       domain.LocationRegion,
		RegionID:   region.ID,
		RegionName: region.Name,
		Borough:    region.Borough,
		Lat:        region.Lat,
		Lng:        region.Lng,
		Confidence: confidence,
	}
}

// recordUnresolved writes to the curation ledger without blocking or
// failing the caller.
func (r *Resolver) recordUnresolved(normalized string, req Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.ledger.RecordUnresolved(ctx, normalized, req.RegionCode, req.OriginalQuery); err != nil {
			r.logger.Warn("Failed to record unresolved location",
				zap.String("text", normalized), zap.Error(err))
		}
	}()
}

func (r *Resolver) incTier(t domain.Tier) {
	if r.tierTotal != nil {
		r.tierTotal.WithLabelValues(t.String()).Inc()
	}
}

// dot assumes unit-normalized vectors, so the dot product is the cosine
// similarity.
func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
