package domain

import "time"

// Degradation reasons recorded in SearchMetrics and surfaced in response meta.
const (
	DegradedParsingError         = "parsing_error"
	DegradedEmbeddingUnavailable = "embedding_unavailable"
	DegradedLocationUnresolved   = "location_unresolved"
)

// SearchMetrics accumulates per-request timings and degradation state.
// It is created at request start, mutated by pipeline stages, and discarded
// once the response is built. Not safe for concurrent use; each request owns
// its own instance.
type SearchMetrics struct {
	StartedAt          time.Time
	Stages             map[string]time.Duration
	CacheHit           bool
	Degraded           bool
	DegradationReasons []string
}

// NewSearchMetrics starts a fresh accumulator for one request.
func NewSearchMetrics() *SearchMetrics {
	return &SearchMetrics{
		StartedAt: time.Now(),
		Stages:    make(map[string]time.Duration),
	}
}

// RecordStage stores the elapsed time of one pipeline stage.
func (m *SearchMetrics) RecordStage(name string, d time.Duration) {
	m.Stages[name] = d
}

// MarkDegraded flags the request degraded, deduplicating reasons.
func (m *SearchMetrics) MarkDegraded(reason string) {
	m.Degraded = true
	for _, r := range m.DegradationReasons {
		if r == reason {
			return
		}
	}
	m.DegradationReasons = append(m.DegradationReasons, reason)
}

// Latency returns the wall time since the request started.
func (m *SearchMetrics) Latency() time.Duration {
	return time.Since(m.StartedAt)
}

// ResponseMeta describes how a response was produced.
type ResponseMeta struct {
	TotalResults       int         `json:"total_results"`
	Limit              int         `json:"limit"`
	LatencyMS          int64       `json:"latency_ms"`
	CacheHit           bool        `json:"cache_hit"`
	Degraded           bool        `json:"degraded"`
	DegradationReasons []string    `json:"degradation_reasons,omitempty"`
	ParsingMode        ParsingMode `json:"parsing_mode"`
}

// SearchResponse is the contract consumed by the API layer.
type SearchResponse struct {
	Query   string         `json:"query"`
	Parsed  *ParsedQuery   `json:"parsed,omitempty"`
	Results []RankedResult `json:"results"`
	Meta    ResponseMeta   `json:"meta"`
}
