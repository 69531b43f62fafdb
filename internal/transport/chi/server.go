package chi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	healthuc "github.com/classpeak/searchcore/internal/usecase/health"
	searchuc "github.com/classpeak/searchcore/internal/usecase/search"
)

const (
	codeBadRequest    = "bad_request"
	codeUnauthorized  = "unauthorized"
	codeUnavailable   = "search_unavailable"
	codeInternalError = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CacheAdmin is the administrative slice of the search cache service.
type CacheAdmin interface {
	InvalidateResponses(ctx context.Context) (int64, error)
}

// Server is the HTTP API surface.
type Server struct {
	search *searchuc.Service
	cache  CacheAdmin
	health *healthuc.Service
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(search *searchuc.Service, cache CacheAdmin, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{
		search: search,
		cache:  cache,
		health: health,
		logger: logger,
	}
}

// Routes mounts all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/v1/search", s.handleSearch)
	r.Post("/v1/cache/invalidate", s.handleInvalidate)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type searchRequest struct {
	Query   string            `json:"query"`
	Lat     *float64          `json:"lat,omitempty"`
	Lng     *float64          `json:"lng,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
	Limit   int               `json:"limit,omitempty"`
	Region  string            `json:"region,omitempty"`
}

// handleSearch handles POST /v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "query is required")
		return
	}

	resp, err := s.search.Search(r.Context(), searchuc.Request{
		Query:   req.Query,
		Lat:     req.Lat,
		Lng:     req.Lng,
		Filters: req.Filters,
		Limit:   req.Limit,
		Region:  req.Region,
	})
	if err != nil {
		// Only retrieval backend failure reaches here; everything else degrades.
		s.logger.Error("Search failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "search backend unavailable")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleInvalidate handles POST /v1/cache/invalidate. Bumps the response
// cache version; entries under older versions become unreachable.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	version, err := s.cache.InvalidateResponses(r.Context())
	if err != nil {
		s.logger.Error("Cache invalidation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"version": version})
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}
