package domain

import "time"

// ParsingMode records which parser produced a ParsedQuery.
type ParsingMode string

const (
	// ParsingModeLLM means the structured query came from the intent extractor.
	ParsingModeLLM ParsingMode = "llm"
	// ParsingModeFallback means the conservative keyword fallback was used.
	ParsingModeFallback ParsingMode = "fallback"
)

// ParsedQuery is the structured form of a free-text search query.
// It is produced by the out-of-process intent extractor (or the fallback
// parser) and treated as immutable from that point on.
type ParsedQuery struct {
	Service      string      `json:"service"`
	PriceMin     *float64    `json:"price_min,omitempty"`
	PriceMax     *float64    `json:"price_max,omitempty"`
	Date         *time.Time  `json:"date,omitempty"`
	DateRangeEnd *time.Time  `json:"date_range_end,omitempty"`
	LocationText string      `json:"location_text,omitempty"`
	Audience     string      `json:"audience,omitempty"`    // "kids", "adults", ...
	SkillLevel   string      `json:"skill_level,omitempty"` // "beginner", "intermediate", "advanced"
	Urgency      string      `json:"urgency,omitempty"`     // "high" changes the sort order
	Mode         ParsingMode `json:"mode"`
	Confidence   float64     `json:"confidence"`
}

// Budget returns the effective price ceiling, or false when the query has none.
func (q *ParsedQuery) Budget() (float64, bool) {
	if q.PriceMax == nil {
		return 0, false
	}
	return *q.PriceMax, true
}
