package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/classpeak/searchcore/internal/config"
	dbRedis "github.com/classpeak/searchcore/internal/db/redis"
	"github.com/classpeak/searchcore/internal/domain"
	logpkg "github.com/classpeak/searchcore/internal/logger"
	"github.com/classpeak/searchcore/internal/metrics"
	"github.com/classpeak/searchcore/internal/repository/regions"
	"github.com/classpeak/searchcore/internal/repository/retriever"
	"github.com/classpeak/searchcore/internal/repository/searchcache"
	chiTransport "github.com/classpeak/searchcore/internal/transport/chi"
	openaiTransport "github.com/classpeak/searchcore/internal/transport/openai"
	embeddinguc "github.com/classpeak/searchcore/internal/usecase/embedding"
	healthuc "github.com/classpeak/searchcore/internal/usecase/health"
	locationuc "github.com/classpeak/searchcore/internal/usecase/location"
	rankinguc "github.com/classpeak/searchcore/internal/usecase/ranking"
	searchuc "github.com/classpeak/searchcore/internal/usecase/search"
	"github.com/classpeak/searchcore/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchcore API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create cache store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Cache store not ready", zap.Error(err))
	}
	logger.Info("Connected to cache store")

	regionRepo, err := regions.Open(cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to open region store", zap.Error(err))
	}
	logger.Info("Connected to region store")

	// Register search metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	embedProvider := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	logger.Info("Embedding provider created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	breaker := embeddinguc.NewBreaker(cfg.Embedding.BreakerThreshold, metrics.BreakerOpen)
	embedOpts := embeddinguc.DefaultOptions()
	embedOpts.LockTTL = time.Duration(cfg.Embedding.LockTTLMs) * time.Millisecond
	embedOpts.PollTimeout = time.Duration(cfg.Embedding.PollTimeoutMs) * time.Millisecond
	embedSvc := embeddinguc.New(
		embedProvider, store, breaker, embedOpts,
		metrics.CacheTotal, metrics.EmbeddingCoalescedTotal, logger,
	)

	cacheSvc := searchcache.New(store, searchcache.TTLs{
		Response:    time.Duration(cfg.Cache.ResponseTTLSec) * time.Second,
		ParsedQuery: time.Duration(cfg.Cache.ParsedQueryTTLSec) * time.Second,
		Location:    time.Duration(cfg.Cache.LocationTTLSec) * time.Second,
	}, metrics.CacheTotal, logger)

	warmLocationCache(ctx, cfg.Cache.WarmRegionCodes, regionRepo, cacheSvc, logger)

	var locationLLM locationuc.LLM
	if cfg.Resolver.EnableLLMTier {
		locationLLM = openaiTransport.NewLocationLLM(&openaiTransport.LLMConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Logger:  logger,
		})
	}

	resolver := locationuc.New(
		regionRepo, regionRepo, regionRepo, embedSvc, locationLLM,
		locationuc.Options{
			EnableEmbedding:     cfg.Resolver.EnableEmbeddingTier,
			EnableLLM:           cfg.Resolver.EnableLLMTier,
			SimilarityThreshold: cfg.Resolver.SimilarityThreshold,
			EmbeddingTopK:       cfg.Resolver.EmbeddingTopK,
			EmbeddingGap:        cfg.Resolver.EmbeddingGap,
		},
		metrics.ResolverTierTotal, logger,
	)

	ranker := rankinguc.New(rankinguc.Weights{
		Relevance:    cfg.Ranking.RelevanceWeight,
		Quality:      cfg.Ranking.QualityWeight,
		Distance:     cfg.Ranking.DistanceWeight,
		Price:        cfg.Ranking.PriceWeight,
		Freshness:    cfg.Ranking.FreshnessWeight,
		Completeness: cfg.Ranking.CompletenessWeight,
	}, 0)

	parser := openaiTransport.NewParser(&openaiTransport.LLMConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Logger:  logger,
	})

	retrieverRepo := retriever.New(store)

	searchSvc := searchuc.New(
		cacheSvc, parser, resolver, embedSvc, retrieverRepo, ranker,
		metrics.SearchStageDuration, metrics.SearchDegradedTotal, logger,
	)

	healthSvc := healthuc.New(store, regionRepo, embedProvider)

	server := chiTransport.NewServer(searchSvc, cacheSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// warmLocationCache pre-seeds the location cache with every region name of
// the configured markets. Failures only cost cold first lookups.
func warmLocationCache(
	ctx context.Context,
	regionCodes []string,
	repo *regions.Repo,
	cache *searchcache.Service,
	logger *zap.Logger,
) {
	for _, code := range regionCodes {
		rows, err := repo.AllRegions(ctx, code)
		if err != nil {
			logger.Warn("Location cache warm skipped",
				zap.String("region_code", code), zap.Error(err))
			continue
		}
		entries := make([]searchcache.WarmLocation, 0, len(rows))
		for _, region := range rows {
			entries = append(entries, searchcache.WarmLocation{
				Text:   region.Name,
				Region: code,
				Location: domain.CachedLocation{
					Lat:          region.Lat,
					Lng:          region.Lng,
					RegionID:     region.ID,
					Borough:      region.Borough,
					Neighborhood: region.Name,
				},
			})
		}
		written := cache.Warm(ctx, entries)
		logger.Info("Location cache warmed",
			zap.String("region_code", code),
			zap.Int("regions", len(entries)),
			zap.Int("written", written),
		)
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
