package searchcache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/classpeak/searchcore/internal/db"
)

// memStore is an in-memory KV store with atomic Incr, good enough to observe
// versioning and fail-open behavior.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	incrErr error
	sets    int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
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

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.sets++
	return nil
}

func (m *memStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.incrErr != nil {
		return 0, m.incrErr
	}
	v := int64(0)
	if cur, ok := m.data[key]; ok {
		v, _ = strconv.ParseInt(string(cur), 10, 64)
	}
	v++
	m.data[key] = []byte(strconv.FormatInt(v, 10))
	return v, nil
}
