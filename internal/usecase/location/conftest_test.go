package location

import (
	"context"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/classpeak/searchcore/internal/domain"
)

// mockRegions serves a fixed region list.
type mockRegions struct {
	regions []domain.Region
	err     error
}

func nycRegions() []domain.Region {
	return []domain.Region{
		{ID: "r-wb", Name: "Williamsburg", Borough: "Brooklyn", Lat: 40.7081, Lng: -73.9571},
		{ID: "r-gp", Name: "Greenpoint", Borough: "Brooklyn", Lat: 40.7245, Lng: -73.9420},
		{ID: "r-bh", Name: "Brooklyn Heights", Borough: "Brooklyn"},
		{ID: "r-as", Name: "Astoria", Borough: "Queens"},
		{ID: "r-lic", Name: "Long Island City", Borough: "Queens"},
		{ID: "r-jh", Name: "Jackson Heights", Borough: "Queens"},
		{ID: "r-me", Name: "Midtown East", Borough: "Manhattan"},
		{ID: "r-mw", Name: "Midtown West", Borough: "Manhattan"},
		{ID: "r-wh", Name: "Washington Heights", Borough: "Manhattan"},
	}
}

func (m *mockRegions) ExactRegion(_ context.Context, name, _ string) (*domain.Region, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.regions {
		if strings.EqualFold(m.regions[i].Name, name) {
			return &m.regions[i], nil
		}
	}
	return nil, nil
}

func (m *mockRegions) BoroughRegion(_ context.Context, borough, _ string) (*domain.Region, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.regions {
		if strings.EqualFold(m.regions[i].Borough, borough) {
			return &m.regions[i], nil
		}
	}
	return nil, nil
}

func (m *mockRegions) SubstringRegions(_ context.Context, fragment, _ string) ([]domain.Region, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Region
	for i := range m.regions {
		if strings.Contains(strings.ToLower(m.regions[i].Name), strings.ToLower(fragment)) {
			out = append(out, m.regions[i])
		}
	}
	return out, nil
}

func (m *mockRegions) AllRegions(_ context.Context, _ string) ([]domain.Region, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.regions, nil
}

// mockAliases is an in-memory alias table keyed by normalized text.
type mockAliases struct {
	active map[string]*domain.AliasEntry
	llm    map[string]*domain.AliasEntry
	saved  []string
	err    error
}

func newMockAliases() *mockAliases {
	return &mockAliases{
		active: make(map[string]*domain.AliasEntry),
		llm:    make(map[string]*domain.AliasEntry),
	}
}

func (m *mockAliases) ActiveAlias(_ context.Context, normalized, _ string) (*domain.AliasEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.active[normalized], nil
}

func (m *mockAliases) LLMAlias(_ context.Context, normalized, _ string) (*domain.AliasEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.llm[normalized], nil
}

func (m *mockAliases) SaveLLMAlias(
	_ context.Context, normalized, _ string, regionID string, candidateIDs []string, _ float64,
) error {
	m.saved = append(m.saved, normalized)
	entry := &domain.AliasEntry{RegionID: regionID}
	for _, id := range candidateIDs {
		entry.Candidates = append(entry.Candidates, domain.LocationCandidate{RegionID: id})
	}
	m.llm[normalized] = entry
	return nil
}

// mockLedger records unresolved texts.
type mockLedger struct {
	mu    sync.Mutex
	texts []string
	done  chan struct{}
}

func newMockLedger() *mockLedger {
	return &mockLedger{done: make(chan struct{}, 8)}
}

func (m *mockLedger) RecordUnresolved(_ context.Context, text, _, _ string) error {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func (m *mockLedger) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// mockTierEmbedder returns a fixed query vector.
type mockTierEmbedder struct {
	vec []float32
	err error
}

func (m *mockTierEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return m.vec, m.err
}

// mockLLM returns fixed neighborhood names.
type mockLLM struct {
	names  []string
	err    error
	called int
}

func (m *mockLLM) ResolveLocation(_ context.Context, _, _ string) ([]string, error) {
	m.called++
	return m.names, m.err
}

func newTestResolver(t *testing.T, regions *mockRegions, aliases *mockAliases, opts Options) *Resolver {
	t.Helper()
	return New(regions, aliases, nil, nil, nil, opts, nil, zap.NewNop())
}
