package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/classpeak/searchcore/internal/db"
	"github.com/classpeak/searchcore/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// store is the consumer interface for the embedding cache and the
// cross-process coalescing lock (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	CASDelete(ctx context.Context, key string, expected []byte) (bool, error)
}

// Options tune the coalescing and cache behavior.
type Options struct {
	CacheTTL     time.Duration
	LockTTL      time.Duration
	PollTimeout  time.Duration
	PollInterval time.Duration
}

// DefaultOptions returns production coalescing settings.
func DefaultOptions() Options {
	return Options{
		CacheTTL:     24 * time.Hour,
		LockTTL:      5 * time.Second,
		PollTimeout:  3 * time.Second,
		PollInterval: 100 * time.Millisecond,
	}
}

// Service wraps the embedding provider with a cache-aside layer, a sticky
// circuit breaker, and two layers of call coalescing: singleflight inside
// the process and a tokened store lock across processes. Net effect: at most
// one provider call per distinct normalized text, anywhere.
type Service struct {
	provider   domain.EmbeddingProvider
	store      store
	breaker    *Breaker
	group      singleflight.Group
	opts       Options
	cacheTotal *prometheus.CounterVec
	coalesced  *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates the embedding service. cacheTotal carries labels
// ("cache", "result"); coalesced carries label ("scope").
func New(
	provider domain.EmbeddingProvider,
	s store,
	breaker *Breaker,
	opts Options,
	cacheTotal *prometheus.CounterVec,
	coalesced *prometheus.CounterVec,
	logger *zap.Logger,
) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return &Service{
		provider:   provider,
		store:      s,
		breaker:    breaker,
		opts:       opts,
		cacheTotal: cacheTotal,
		coalesced:  coalesced,
		logger:     logger,
	}
}

// Breaker exposes the shared breaker for explicit reset by operators.
func (s *Service) Breaker() *Breaker { return s.breaker }

// EmbedQuery returns the embedding for a query text, or (nil, err) on any
// degraded path. A cache hit bypasses both the breaker and the coalescing
// layers. Errors here never fail a search; callers degrade to filter-only
// retrieval.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	normalized := normalize(text)
	if normalized == "" {
		return nil, nil
	}

	key := s.cacheKey(normalized)
	if vec, ok := s.getFromCache(ctx, key); ok {
		s.incCache("hit")
		return vec, nil
	}
	s.incCache("miss")

	if s.breaker.Open() {
		return nil, domain.ErrCircuitOpen
	}

	// Singleflight keys on the normalized text: concurrent local callers
	// share one outcome. The shared call must not die with the first
	// caller's context, so it runs detached from local cancellation.
	v, err, shared := s.group.Do(normalized, func() (any, error) {
		return s.coalescedEmbed(context.WithoutCancel(ctx), normalized, key)
	})
	if shared {
		s.incCoalesced("process")
	}
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// coalescedEmbed is the per-text shared path: winner of the store lock calls
// the provider; losers poll the cache for the winner's result.
func (s *Service) coalescedEmbed(ctx context.Context, normalized, key string) ([]float32, error) {
	lockKey := key + ":lock"
	token := []byte(uuid.NewString())

	won, err := s.store.SetNX(ctx, lockKey, token, s.opts.LockTTL)
	if err != nil {
		// Store trouble: cross-process coalescing is best-effort, call anyway.
		s.logger.Warn("Coalescing lock unavailable", zap.Error(err))
		won = true
		token = nil
	}

	if !won {
		s.incCoalesced("store")
		return s.waitForResult(ctx, key)
	}

	defer s.releaseLock(ctx, lockKey, token)

	ctx, cancel := context.WithTimeout(ctx, s.opts.LockTTL)
	defer cancel()

	vec, err := s.provider.Embed(ctx, normalized)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, fmt.Errorf("embed query: %w", err)
	}
	s.breaker.RecordSuccess()

	s.putToCache(ctx, key, vec)
	return vec, nil
}

// waitForResult polls the cache until the lock winner stores the vector, the
// local context is canceled, or the bounded wait expires. Cancellation here
// abandons only this waiter; the winner's call keeps running.
func (s *Service) waitForResult(ctx context.Context, key string) ([]float32, error) {
	deadline := time.NewTimer(s.opts.PollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("abandon coalesced wait: %w", ctx.Err())
		case <-deadline.C:
			return nil, domain.ErrCoalesceTimeout
		case <-ticker.C:
			if vec, ok := s.getFromCache(ctx, key); ok {
				return vec, nil
			}
		}
	}
}

// releaseLock removes the coalescing lock only when the token proves this
// process still owns it. A lost or expired lock is a logged no-op.
func (s *Service) releaseLock(ctx context.Context, lockKey string, token []byte) {
	if token == nil {
		return
	}
	owned, err := s.store.CASDelete(ctx, lockKey, token)
	if err != nil {
		s.logger.Warn("Failed to release coalescing lock", zap.Error(err))
		return
	}
	if !owned {
		s.logger.Warn("Coalescing lock no longer owned",
			zap.String("key", lockKey), zap.Error(domain.ErrLockNotOwned))
	}
}

// NeedsReembedding reports whether an entity's stored vector is stale: no
// vector, produced by another model, or out of date with its source text.
func (s *Service) NeedsReembedding(e domain.Embeddable) bool {
	rec := e.StoredEmbedding()
	if len(rec.Vector) == 0 {
		return true
	}
	if rec.ModelName != s.provider.ModelName() {
		return true
	}
	return ContentHash(e.EmbeddingText()) != rec.ContentHash
}

// ContentHash fingerprints embedding source text for staleness checks.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (s *Service) cacheKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return cacheKeyPrefix + s.provider.ModelName() + ":" + hex.EncodeToString(sum[:])
}

func (s *Service) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			s.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		s.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (s *Service) putToCache(ctx context.Context, key string, vec []float32) {
	if err := s.store.SetWithTTL(ctx, key, vectorToCacheBytes(vec), s.opts.CacheTTL); err != nil {
		s.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) incCache(result string) {
	if s.cacheTotal != nil {
		s.cacheTotal.WithLabelValues("embedding", result).Inc()
	}
}

func (s *Service) incCoalesced(scope string) {
	if s.coalesced != nil {
		s.coalesced.WithLabelValues(scope).Inc()
	}
}

var embWhitespaceRe = regexp.MustCompile(`\s+`)

func normalize(s string) string {
	return embWhitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
