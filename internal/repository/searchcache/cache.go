package searchcache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/classpeak/searchcore/internal/db"
	"github.com/classpeak/searchcore/internal/domain"
)

// store is the consumer interface for the cache store (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// TTLs holds the lifetime of each cache.
type TTLs struct {
	Response    time.Duration
	ParsedQuery time.Duration
	Location    time.Duration
}

// DefaultTTLs returns the production cache lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Response:    5 * time.Minute,
		ParsedQuery: time.Hour,
		Location:    7 * 24 * time.Hour,
	}
}

// Service is the versioned multi-layer search cache. Every store failure is
// swallowed: a broken cache degrades to a miss or a no-op, never an error.
type Service struct {
	store      store
	ttls       TTLs
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates the cache service. cacheTotal is a counter vec with labels
// ("cache", "result"), passed explicitly.
func New(s store, ttls TTLs, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Service {
	return &Service{store: s, ttls: ttls, cacheTotal: cacheTotal, logger: logger}
}

// WarmLocation is one curated entry for bulk location-cache seeding.
type WarmLocation struct {
	Text     string
	Region   string
	Location domain.CachedLocation
}

// GetResponse returns a cached response for the current cache version.
func (s *Service) GetResponse(ctx context.Context, in KeyInputs) (*domain.SearchResponse, bool) {
	key := responseKey(s.version(ctx), in)
	var resp domain.SearchResponse
	if !s.getJSON(ctx, "response", key, &resp) {
		return nil, false
	}
	return &resp, true
}

// SetResponse caches a response under the current version. Responses whose
// query carries a relative-date marker are never cached.
func (s *Service) SetResponse(ctx context.Context, in KeyInputs, resp *domain.SearchResponse) {
	if HasRelativeDate(in.Query) {
		return
	}
	s.setJSON(ctx, "response", responseKey(s.version(ctx), in), resp, s.ttls.Response)
}

// InvalidateResponses bumps the response-cache version counter. Entries under
// older versions become unreachable and expire passively via TTL; nothing is
// scanned or deleted, so the cost is O(1) regardless of cache size.
func (s *Service) InvalidateResponses(ctx context.Context) (int64, error) {
	v, err := s.store.Incr(ctx, versionKey)
	if err != nil {
		s.logger.Warn("Failed to bump response cache version", zap.Error(err))
		return 0, err
	}
	return v, nil
}

// GetParsedQuery returns a cached parsed query for the raw query text.
func (s *Service) GetParsedQuery(ctx context.Context, rawQuery string) (*domain.ParsedQuery, bool) {
	var pq domain.ParsedQuery
	if !s.getJSON(ctx, "parsed_query", parsedQueryKey(rawQuery), &pq) {
		return nil, false
	}
	return &pq, true
}

// SetParsedQuery caches a parsed query unless the text carries a
// relative-date marker.
func (s *Service) SetParsedQuery(ctx context.Context, rawQuery string, pq *domain.ParsedQuery) {
	if HasRelativeDate(rawQuery) {
		return
	}
	s.setJSON(ctx, "parsed_query", parsedQueryKey(rawQuery), pq, s.ttls.ParsedQuery)
}

// GetLocation returns a cached resolved location. The location cache is
// never versioned: geography does not change when the catalog does.
func (s *Service) GetLocation(ctx context.Context, text, region string) (*domain.CachedLocation, bool) {
	var loc domain.CachedLocation
	if !s.getJSON(ctx, "location", locationKey(text, region), &loc) {
		return nil, false
	}
	return &loc, true
}

// SetLocation caches a resolved location for 7 days.
func (s *Service) SetLocation(ctx context.Context, text, region string, loc *domain.CachedLocation) {
	s.setJSON(ctx, "location", locationKey(text, region), loc, s.ttls.Location)
}

// Warm bulk-seeds the location cache from a curated list. Returns the number
// of entries written; individual failures are skipped.
func (s *Service) Warm(ctx context.Context, entries []WarmLocation) int {
	written := 0
	for _, e := range entries {
		data, err := json.Marshal(e.Location)
		if err != nil {
			continue
		}
		if err := s.store.SetWithTTL(ctx, locationKey(e.Text, e.Region), data, s.ttls.Location); err != nil {
			s.logger.Warn("Failed to warm location cache entry",
				zap.String("text", e.Text), zap.Error(err))
			continue
		}
		written++
	}
	return written
}

// version reads the current response-cache version. Any failure reads as
// version 0; a missing counter means no invalidation has happened yet.
func (s *Service) version(ctx context.Context) int64 {
	data, err := s.store.Get(ctx, versionKey)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			s.logger.Warn("Failed to read response cache version", zap.Error(err))
		}
		return 0
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// getJSON is the central fail-open read path: store errors and decode
// failures are logged and reported as misses.
func (s *Service) getJSON(ctx context.Context, cache, key string, out any) bool {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			s.logger.Warn("Cache read failed", zap.String("cache", cache), zap.Error(err))
		}
		s.incCache(cache, "miss")
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("Cache entry decode failed", zap.String("cache", cache), zap.Error(err))
		s.incCache(cache, "miss")
		return false
	}
	s.incCache(cache, "hit")
	return true
}

// setJSON is the central fail-open write path: failures are logged and dropped.
func (s *Service) setJSON(ctx context.Context, cache, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("Cache entry encode failed", zap.String("cache", cache), zap.Error(err))
		return
	}
	if err := s.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		s.logger.Warn("Cache write failed", zap.String("cache", cache), zap.Error(err))
	}
}

func (s *Service) incCache(cache, result string) {
	if s.cacheTotal != nil {
		s.cacheTotal.WithLabelValues(cache, result).Inc()
	}
}
