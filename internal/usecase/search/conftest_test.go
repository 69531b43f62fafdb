package search

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/classpeak/searchcore/internal/domain"
	"github.com/classpeak/searchcore/internal/repository/retriever"
	"github.com/classpeak/searchcore/internal/repository/searchcache"
	"github.com/classpeak/searchcore/internal/usecase/location"
	"github.com/classpeak/searchcore/internal/usecase/ranking"
)

// mockCache is an in-memory stand-in for the cache service.
type mockCache struct {
	responses    map[string]*domain.SearchResponse
	parsed       map[string]*domain.ParsedQuery
	locations    map[string]*domain.CachedLocation
	setResponses int
	setParsed    int
	setLocations int
}

func newMockCache() *mockCache {
	return &mockCache{
		responses: make(map[string]*domain.SearchResponse),
		parsed:    make(map[string]*domain.ParsedQuery),
		locations: make(map[string]*domain.CachedLocation),
	}
}

func (m *mockCache) GetResponse(_ context.Context, in searchcache.KeyInputs) (*domain.SearchResponse, bool) {
	r, ok := m.responses[in.Query]
	return r, ok
}

func (m *mockCache) SetResponse(_ context.Context, in searchcache.KeyInputs, resp *domain.SearchResponse) {
	m.setResponses++
	m.responses[in.Query] = resp
}

func (m *mockCache) GetParsedQuery(_ context.Context, rawQuery string) (*domain.ParsedQuery, bool) {
	pq, ok := m.parsed[rawQuery]
	return pq, ok
}

func (m *mockCache) SetParsedQuery(_ context.Context, rawQuery string, pq *domain.ParsedQuery) {
	m.setParsed++
	m.parsed[rawQuery] = pq
}

func (m *mockCache) GetLocation(_ context.Context, text, region string) (*domain.CachedLocation, bool) {
	loc, ok := m.locations[text+"|"+region]
	return loc, ok
}

func (m *mockCache) SetLocation(_ context.Context, text, region string, loc *domain.CachedLocation) {
	m.setLocations++
	m.locations[text+"|"+region] = loc
}

type mockParser struct {
	pq     *domain.ParsedQuery
	err    error
	called int
}

func (m *mockParser) Parse(_ context.Context, _ string) (*domain.ParsedQuery, error) {
	m.called++
	return m.pq, m.err
}

type mockResolver struct {
	loc     domain.ResolvedLocation
	lastReq location.Request
	called  int
}

func (m *mockResolver) Resolve(_ context.Context, req location.Request) domain.ResolvedLocation {
	m.called++
	m.lastReq = req
	return m.loc
}

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return m.vec, m.err
}

type mockRetriever struct {
	candidates []domain.FilteredCandidate
	err        error
	lastQuery  *retriever.Query
}

func (m *mockRetriever) Search(_ context.Context, q *retriever.Query) ([]domain.FilteredCandidate, error) {
	m.lastQuery = q
	return m.candidates, m.err
}

type mockRanker struct {
	lastInput ranking.Input
}

// Rank returns the candidates in order with descending fake scores.
func (m *mockRanker) Rank(in ranking.Input) []domain.RankedResult {
	m.lastInput = in
	out := make([]domain.RankedResult, len(in.Candidates))
	for i, c := range in.Candidates {
		out[i] = domain.RankedResult{
			FilteredCandidate: c,
			FinalScore:        1.0 - float64(i)*0.01,
			Rank:              i + 1,
		}
	}
	return out
}

type fixture struct {
	cache     *mockCache
	parser    *mockParser
	resolver  *mockResolver
	embedder  *mockEmbedder
	retriever *mockRetriever
	ranker    *mockRanker
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cache:     newMockCache(),
		parser:    &mockParser{pq: &domain.ParsedQuery{Service: "yoga", Mode: domain.ParsingModeLLM}},
		resolver:  &mockResolver{loc: domain.NotFoundLocation()},
		embedder:  &mockEmbedder{vec: []float32{0.1, 0.2}},
		retriever: &mockRetriever{},
		ranker:    &mockRanker{},
	}
	f.svc = New(f.cache, f.parser, f.resolver, f.embedder, f.retriever, f.ranker,
		nil, nil, zap.NewNop())
	return f
}

func candidates(n int) []domain.FilteredCandidate {
	out := make([]domain.FilteredCandidate, n)
	for i := range out {
		out[i] = domain.FilteredCandidate{ServiceID: string(rune('a' + i))}
	}
	return out
}
