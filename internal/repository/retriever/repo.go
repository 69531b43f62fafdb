package retriever

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/classpeak/searchcore/internal/db"
	"github.com/classpeak/searchcore/internal/domain"
)

const indexName = domain.KeyPrefix + "services:idx"

// softPriceStretch widens the hard price ceiling so near-misses survive
// filtering as soft-filtered candidates instead of disappearing.
const softPriceStretch = 1.2

// store is the consumer interface for candidate retrieval (ISP).
type store interface {
	SearchCandidates(ctx context.Context, q *db.CandidateQuery) (*db.SearchResult, error)
}

// Repo implements the retriever collaborator over the service FT index.
type Repo struct {
	store store
}

// New creates a retriever repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Query carries the retrieval constraints for one search.
type Query struct {
	Embedding []float32 // nil degrades to filter-only retrieval
	RegionID  string
	Borough   string
	Audience  string
	PriceMin  *float64
	PriceMax  *float64
	UserLat   *float64
	UserLng   *float64
	Limit     int
}

var returnFields = []string{
	"instructor_id", "price", "rating_avg", "rating_count",
	"available_dates", "last_active_at", "audience", "skill_level",
	"has_photo", "has_bio", "background_checked", "identity_verified",
	"response_rate", "lat", "lng", "__vector_score",
}

// Search retrieves candidate rows matching the query constraints.
func (r *Repo) Search(ctx context.Context, q *Query) ([]domain.FilteredCandidate, error) {
	cq := &db.CandidateQuery{
		IndexName:    indexName,
		Vector:       q.Embedding,
		RegionID:     q.RegionID,
		Borough:      q.Borough,
		Audience:     q.Audience,
		PriceMin:     q.PriceMin,
		Limit:        q.Limit,
		ReturnFields: returnFields,
	}
	if q.PriceMax != nil {
		stretched := *q.PriceMax * softPriceStretch
		cq.PriceMax = &stretched
	}

	sr, err := r.store.SearchCandidates(ctx, cq)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	out := make([]domain.FilteredCandidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		c := parseCandidate(entry)
		if q.UserLat != nil && q.UserLng != nil {
			if lat, lng, ok := entryCoords(entry); ok {
				d := haversineKm(*q.UserLat, *q.UserLng, lat, lng)
				c.DistanceKm = &d
			}
		}
		if q.PriceMax != nil && c.Price > *q.PriceMax {
			c.SoftFilters = append(c.SoftFilters, domain.SoftFilter{
				Field:  "price",
				Reason: "over_budget",
			})
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCandidate(entry db.SearchEntry) domain.FilteredCandidate {
	f := entry.Fields
	c := domain.FilteredCandidate{
		ServiceID:    strings.TrimPrefix(entry.Key, domain.KeyPrefix+"services:"),
		InstructorID: f["instructor_id"],
		HybridScore:  entry.Score,
		Price:        parseFloat(f["price"]),
		RatingAvg:    parseFloat(f["rating_avg"]),
		RatingCount:  int(parseFloat(f["rating_count"])),
		Audience:     f["audience"],
		SkillLevel:   f["skill_level"],
		Profile: domain.Profile{
			HasPhoto:          f["has_photo"] == "1",
			HasBio:            f["has_bio"] == "1",
			BackgroundChecked: f["background_checked"] == "1",
			IdentityVerified:  f["identity_verified"] == "1",
			ResponseRate:      parseFloat(f["response_rate"]),
		},
	}

	if raw := f["available_dates"]; raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if ts, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				c.AvailableDates = append(c.AvailableDates, time.Unix(ts, 0).UTC())
			}
		}
	}
	if raw := f["last_active_at"]; raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			t := time.Unix(ts, 0).UTC()
			c.LastActiveAt = &t
		}
	}
	return c
}

func entryCoords(entry db.SearchEntry) (lat, lng float64, ok bool) {
	latStr, lngStr := entry.Fields["lat"], entry.Fields["lng"]
	if latStr == "" || lngStr == "" {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lng, err2 := strconv.ParseFloat(lngStr, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
