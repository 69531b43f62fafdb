package embedding

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/classpeak/searchcore/internal/db"
	"github.com/classpeak/searchcore/internal/domain"
)

// mockProvider counts Embed calls and can stall to widen race windows.
type mockProvider struct {
	vec   []float32
	err   error
	delay time.Duration
	model string
	calls atomic.Int64
}

func (m *mockProvider) Embed(ctx context.Context, _ string) ([]float32, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

func (m *mockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockProvider) ModelName() string {
	if m.model != "" {
		return m.model
	}
	return "test-model"
}

func (m *mockProvider) Dimensions() int { return len(m.vec) }

var _ domain.EmbeddingProvider = (*mockProvider)(nil)

// mockKV is an in-memory store with real SetNX/CASDelete semantics.
type mockKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	nxErr  error
}

func newMockKV() *mockKV {
	return &mockKV{data: make(map[string][]byte)}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockKV) SetNX(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nxErr != nil {
		return false, m.nxErr
	}
	if _, exists := m.data[key]; exists {
		return false, nil
	}
	m.data[key] = value
	return true, nil
}

func (m *mockKV) CASDelete(_ context.Context, key string, expected []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	if !ok || string(cur) != string(expected) {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

// stubEmbeddable is a minimal Embeddable for staleness checks.
type stubEmbeddable struct {
	text string
	rec  domain.EmbeddingRecord
}

func (s stubEmbeddable) EmbeddingText() string                   { return s.text }
func (s stubEmbeddable) StoredEmbedding() domain.EmbeddingRecord { return s.rec }
