package search

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/classpeak/searchcore/internal/domain"
	"github.com/classpeak/searchcore/internal/repository/retriever"
	"github.com/classpeak/searchcore/internal/repository/searchcache"
	"github.com/classpeak/searchcore/internal/usecase/location"
	"github.com/classpeak/searchcore/internal/usecase/ranking"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	// retrievalFactor over-fetches so ranking has headroom to reorder.
	retrievalFactor = 3
)

// Request is one search invocation.
type Request struct {
	Query   string
	Lat     *float64
	Lng     *float64
	Filters map[string]string
	Limit   int
	Region  string
}

// Service is the search orchestrator: it composes the cache, parser,
// resolver, embedder, retriever, and ranker into one call. No failure in
// any collaborator fails the request; each maps to a degraded path recorded
// in the response meta.
type Service struct {
	cache         Cache
	parser        Parser
	resolver      Resolver
	embedder      Embedder
	retriever     Retriever
	ranker        Ranker
	stageDuration *prometheus.HistogramVec
	degradedTotal *prometheus.CounterVec
	logger        *zap.Logger
}

// New creates the orchestrator. stageDuration ("stage") and degradedTotal
// ("reason") are passed explicitly.
func New(
	cache Cache,
	parser Parser,
	resolver Resolver,
	embedder Embedder,
	retr Retriever,
	ranker Ranker,
	stageDuration *prometheus.HistogramVec,
	degradedTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Service {
	return &Service{
		cache:         cache,
		parser:        parser,
		resolver:      resolver,
		embedder:      embedder,
		retriever:     retr,
		ranker:        ranker,
		stageDuration: stageDuration,
		degradedTotal: degradedTotal,
		logger:        logger,
	}
}

// Search runs the full pipeline for one request.
func (s *Service) Search(ctx context.Context, req Request) (*domain.SearchResponse, error) {
	m := domain.NewSearchMetrics()

	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}

	keyInputs := searchcache.KeyInputs{
		Query:   req.Query,
		Lat:     req.Lat,
		Lng:     req.Lng,
		Filters: req.Filters,
		Limit:   req.Limit,
		Region:  req.Region,
	}

	if cached, ok := s.cache.GetResponse(ctx, keyInputs); ok {
		m.CacheHit = true
		cached.Meta.CacheHit = true
		cached.Meta.LatencyMS = m.Latency().Milliseconds()
		return cached, nil
	}

	parsed := s.parseQuery(ctx, req.Query, m)
	loc := s.resolveLocation(ctx, req, parsed, m)
	embedding := s.embedQuery(ctx, parsed, req.Query, m)

	candidates, err := s.retrieve(ctx, req, parsed, loc, embedding, m)
	if err != nil {
		// Retriever unavailability is the one failure the caller sees.
		return nil, err
	}

	results := s.rank(req, parsed, candidates, m)

	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	resp := &domain.SearchResponse{
		Query:   req.Query,
		Parsed:  parsed,
		Results: results,
		Meta: domain.ResponseMeta{
			TotalResults:       len(results),
			Limit:              req.Limit,
			LatencyMS:          m.Latency().Milliseconds(),
			CacheHit:           false,
			Degraded:           m.Degraded,
			DegradationReasons: m.DegradationReasons,
			ParsingMode:        parsed.Mode,
		},
	}

	// Best effort: the cache service swallows store failures itself.
	s.cache.SetResponse(ctx, keyInputs, resp)

	s.observeStages(m)
	return resp, nil
}

// parseQuery is cache-aside over the parsed-query cache, substituting the
// conservative fallback parser on failure.
func (s *Service) parseQuery(ctx context.Context, query string, m *domain.SearchMetrics) *domain.ParsedQuery {
	defer s.timeStage(m, "parse")()

	if pq, ok := s.cache.GetParsedQuery(ctx, query); ok {
		return pq
	}

	pq, err := s.parser.Parse(ctx, query)
	if err != nil || pq == nil {
		s.logger.Warn("Query parse failed, using fallback parser",
			zap.String("query", query), zap.Error(err))
		s.markDegraded(m, domain.DegradedParsingError)
		return fallbackParse(query)
	}
	if pq.Mode == "" {
		pq.Mode = domain.ParsingModeLLM
	}

	s.cache.SetParsedQuery(ctx, query, pq)
	return pq
}

func (s *Service) resolveLocation(
	ctx context.Context, req Request, parsed *domain.ParsedQuery, m *domain.SearchMetrics,
) domain.ResolvedLocation {
	defer s.timeStage(m, "resolve_location")()

	if parsed.LocationText == "" {
		return domain.NotFoundLocation()
	}

	if cached, ok := s.cache.GetLocation(ctx, parsed.LocationText, req.Region); ok {
		return cached.ToResolved()
	}

	loc := s.resolver.Resolve(ctx, location.Request{
		Text:             parsed.LocationText,
		RegionCode:       req.Region,
		OriginalQuery:    req.Query,
		RecordUnresolved: true,
	})
	switch loc.Kind {
	case domain.LocationNotFound:
		s.markDegraded(m, domain.DegradedLocationUnresolved)
	case domain.LocationRegion, domain.LocationBorough:
		s.cache.SetLocation(ctx, parsed.LocationText, req.Region, &domain.CachedLocation{
			Lat:          loc.Lat,
			Lng:          loc.Lng,
			RegionID:     loc.RegionID,
			Borough:      loc.Borough,
			Neighborhood: loc.RegionName,
		})
	}
	return loc
}

// embedQuery degrades to nil on provider failure or an open breaker; the
// retriever then falls back to filter-only retrieval.
func (s *Service) embedQuery(
	ctx context.Context, parsed *domain.ParsedQuery, rawQuery string, m *domain.SearchMetrics,
) []float32 {
	defer s.timeStage(m, "embed")()

	text := parsed.Service
	if text == "" {
		text = rawQuery
	}

	vec, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil || vec == nil {
		if err != nil {
			s.logger.Warn("Query embedding unavailable", zap.Error(err))
		}
		s.markDegraded(m, domain.DegradedEmbeddingUnavailable)
		return nil
	}
	return vec
}

func (s *Service) retrieve(
	ctx context.Context, req Request, parsed *domain.ParsedQuery,
	loc domain.ResolvedLocation, embedding []float32, m *domain.SearchMetrics,
) ([]domain.FilteredCandidate, error) {
	defer s.timeStage(m, "retrieve")()

	q := &retriever.Query{
		Embedding: embedding,
		Audience:  parsed.Audience,
		PriceMin:  parsed.PriceMin,
		PriceMax:  parsed.PriceMax,
		UserLat:   req.Lat,
		UserLng:   req.Lng,
		Limit:     req.Limit * retrievalFactor,
	}
	switch loc.Kind {
	case domain.LocationRegion:
		q.RegionID = loc.RegionID
	case domain.LocationBorough:
		q.Borough = loc.Borough
	}

	candidates, err := s.retriever.Search(ctx, q)
	if err != nil {
		s.logger.Error("Candidate retrieval failed", zap.Error(err))
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}
	return candidates, nil
}

func (s *Service) rank(
	req Request, parsed *domain.ParsedQuery,
	candidates []domain.FilteredCandidate, m *domain.SearchMetrics,
) []domain.RankedResult {
	defer s.timeStage(m, "rank")()

	return s.ranker.Rank(ranking.Input{
		Candidates:      candidates,
		Query:           parsed,
		HasUserLocation: req.Lat != nil && req.Lng != nil,
		Now:             time.Now(),
	})
}

func (s *Service) timeStage(m *domain.SearchMetrics, name string) func() {
	start := time.Now()
	return func() {
		m.RecordStage(name, time.Since(start))
	}
}

func (s *Service) markDegraded(m *domain.SearchMetrics, reason string) {
	m.MarkDegraded(reason)
	if s.degradedTotal != nil {
		s.degradedTotal.WithLabelValues(reason).Inc()
	}
}

func (s *Service) observeStages(m *domain.SearchMetrics) {
	if s.stageDuration == nil {
		return
	}
	for name, d := range m.Stages {
		s.stageDuration.WithLabelValues(name).Observe(d.Seconds())
	}
}
