package db

import (
	"context"
	"time"
)

// Store is the main store facade combining all sub-interfaces.
// Consumers depend on the narrow sub-interfaces (ISP).
type Store interface {
	Pinger
	KVStore
	CandidateSearcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides the key-value operations the caches and the
// cross-process coalescing lock are built on.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Incr atomically increments a counter key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// SetNX sets the key only if absent, with a TTL. Returns true when this
	// caller won the set.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// CASDelete deletes the key only if its current value equals expected.
	// Returns true when the key was deleted.
	CASDelete(ctx context.Context, key string, expected []byte) (bool, error)
	// TTL returns the remaining lifetime of a key. Missing keys map to
	// ErrKeyNotFound; keys without expiry return a negative duration.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// CandidateSearcher runs candidate retrieval over the service index.
type CandidateSearcher interface {
	SearchCandidates(ctx context.Context, q *CandidateQuery) (*SearchResult, error)
}
