package domain

import "time"

// SoftFilter marks a relaxed constraint a candidate narrowly missed.
// It survives filtering as metadata and must pass through ranking unchanged.
type SoftFilter struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Profile holds the completeness-relevant parts of an instructor profile.
type Profile struct {
	HasPhoto          bool    `json:"has_photo"`
	HasBio            bool    `json:"has_bio"`
	BackgroundChecked bool    `json:"background_checked"`
	IdentityVerified  bool    `json:"identity_verified"`
	ResponseRate      float64 `json:"response_rate"` // 0..1
}

// FilteredCandidate is one retriever row that survived hard filtering.
type FilteredCandidate struct {
	ServiceID      string       `json:"service_id"`
	InstructorID   string       `json:"instructor_id"`
	HybridScore    float64      `json:"hybrid_score"` // retrieval relevance, already 0..1
	Price          float64      `json:"price"`
	AvailableDates []time.Time  `json:"available_dates,omitempty"`
	RatingAvg      float64      `json:"rating_avg"`
	RatingCount    int          `json:"rating_count"`
	DistanceKm     *float64     `json:"distance_km,omitempty"`
	LastActiveAt   *time.Time   `json:"last_active_at,omitempty"`
	Audience       string       `json:"audience,omitempty"`    // "kids", "adults", "both"
	SkillLevel     string       `json:"skill_level,omitempty"` // "beginner", ..., "all"
	Profile        Profile      `json:"profile"`
	SoftFilters    []SoftFilter `json:"soft_filters,omitempty"`
}

// EarliestAvailable returns the soonest available date, or false when none.
func (c *FilteredCandidate) EarliestAvailable() (time.Time, bool) {
	if len(c.AvailableDates) == 0 {
		return time.Time{}, false
	}
	earliest := c.AvailableDates[0]
	for _, d := range c.AvailableDates[1:] {
		if d.Before(earliest) {
			earliest = d
		}
	}
	return earliest, true
}

// ComponentScores holds the six ranking signals, each in [0,1].
type ComponentScores struct {
	Relevance    float64 `json:"relevance"`
	Quality      float64 `json:"quality"`
	Distance     float64 `json:"distance"`
	Price        float64 `json:"price"`
	Freshness    float64 `json:"freshness"`
	Completeness float64 `json:"completeness"`
}

// RankedResult is a candidate with its full scoring breakdown.
type RankedResult struct {
	FilteredCandidate
	Scores        ComponentScores `json:"scores"`
	AudienceBoost float64         `json:"audience_boost"`
	SkillBoost    float64         `json:"skill_boost"`
	FinalScore    float64         `json:"final_score"`
	Rank          int             `json:"rank"`
}
