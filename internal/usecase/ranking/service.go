package ranking

import (
	"sort"
	"time"

	"github.com/classpeak/searchcore/internal/domain"
)

// phantomReviews is the Bayesian prior weight: every instructor is scored as
// if they had this many extra reviews at the global average rating.
const phantomReviews = 5

const maxRating = 5.0

// Neutral component values used when a signal has no data to work with.
const (
	neutralDistance  = 0.7
	neutralPrice     = 0.7
	neutralFreshness = 0.5
)

// Boost values applied after the weighted sum.
const (
	audienceBoostValue = 0.05
	skillBoostFull     = 0.05
	skillBoostAdjacent = 0.02
)

// Weights holds the six signal weights.
type Weights struct {
	Relevance    float64
	Quality      float64
	Distance     float64
	Price        float64
	Freshness    float64
	Completeness float64
}

// DefaultWeights returns the production signal weights.
func DefaultWeights() Weights {
	return Weights{
		Relevance:    0.30,
		Quality:      0.25,
		Distance:     0.15,
		Price:        0.10,
		Freshness:    0.10,
		Completeness: 0.10,
	}
}

// Service turns filtered candidates into ordered, explainable results.
// It is a pure function of its inputs; no I/O happens here.
type Service struct {
	weights   Weights
	globalAvg float64
}

// New creates a ranking service. globalAvg is the marketplace-wide average
// rating the quality prior shrinks toward.
func New(weights Weights, globalAvg float64) *Service {
	if globalAvg <= 0 || globalAvg > maxRating {
		globalAvg = 4.2
	}
	return &Service{weights: weights, globalAvg: globalAvg}
}

// Input is one ranking invocation.
type Input struct {
	Candidates []domain.FilteredCandidate
	Query      *domain.ParsedQuery
	// HasUserLocation distinguishes "no location given" (neutral distance)
	// from "location given but candidate has no coordinates".
	HasUserLocation bool
	Now             time.Time
}

// Rank scores, boosts, and orders the candidates. Soft-filter metadata on
// each candidate passes through unchanged.
func (s *Service) Rank(in Input) []domain.RankedResult {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	results := make([]domain.RankedResult, 0, len(in.Candidates))
	for _, c := range in.Candidates {
		scores := domain.ComponentScores{
			Relevance:    clamp01(c.HybridScore),
			Quality:      s.qualityScore(c.RatingAvg, c.RatingCount),
			Distance:     distanceScore(c.DistanceKm, in.HasUserLocation),
			Price:        priceScore(c.Price, in.Query),
			Freshness:    freshnessScore(c.LastActiveAt, in.Now),
			Completeness: completenessScore(c.Profile),
		}

		weighted := scores.Relevance*s.weights.Relevance +
			scores.Quality*s.weights.Quality +
			scores.Distance*s.weights.Distance +
			scores.Price*s.weights.Price +
			scores.Freshness*s.weights.Freshness +
			scores.Completeness*s.weights.Completeness

		audience := audienceBoost(c.Audience, in.Query)
		skill := skillBoost(c.SkillLevel, in.Query)

		results = append(results, domain.RankedResult{
			FilteredCandidate: c,
			Scores:            scores,
			AudienceBoost:     audience,
			SkillBoost:        skill,
			FinalScore:        weighted + audience + skill,
		})
	}

	sortResults(results, in.Query)

	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// qualityScore is the Bayesian-shrunk average rating, normalized to [0,1].
// Zero reviews yields exactly the global average; confidence in the real
// rating rises with review count.
func (s *Service) qualityScore(avg float64, count int) float64 {
	if count < 0 {
		count = 0
	}
	shrunk := (avg*float64(count) + s.globalAvg*phantomReviews) / float64(count+phantomReviews)
	return clamp01(shrunk / maxRating)
}

// distanceScore: 1.0 within a kilometer, linear to 0.5 at 10km, then a
// slower decay with a 0.2 floor. Neutral when the user gave no location.
func distanceScore(km *float64, hasUserLocation bool) float64 {
	if !hasUserLocation || km == nil {
		return neutralDistance
	}
	d := *km
	switch {
	case d <= 1:
		return 1.0
	case d <= 10:
		return 1.0 - 0.5*(d-1)/9
	default:
		return max(0.2, 0.5-0.01*(d-10))
	}
}

// priceScore: 1.0 comfortably under budget, sliding to 0.7 exactly at
// budget, 0.5 over it. Neutral with no budget.
func priceScore(price float64, q *domain.ParsedQuery) float64 {
	if q == nil {
		return neutralPrice
	}
	budget, ok := q.Budget()
	if !ok || budget <= 0 {
		return neutralPrice
	}
	switch {
	case price < 0.7*budget:
		return 1.0
	case price <= budget:
		// Linear 1.0 → 0.7 between 70% of budget and the budget itself.
		return 1.0 - 0.3*(price-0.7*budget)/(0.3*budget)
	default:
		return 0.5
	}
}

// freshnessScore decays with instructor inactivity; 0.3 is the floor past
// 90 days. Neutral with no activity data.
func freshnessScore(lastActive *time.Time, now time.Time) float64 {
	if lastActive == nil {
		return neutralFreshness
	}
	days := now.Sub(*lastActive).Hours() / 24
	switch {
	case days <= 1:
		return 1.0
	case days <= 7:
		return 0.9
	case days <= 30:
		return 0.7
	case days <= 90:
		return 0.7 - 0.4*(days-30)/60
	default:
		return 0.3
	}
}

// completenessScore: one fifth for each of photo, bio, background check,
// identity verification, and a response rate of at least 80%.
func completenessScore(p domain.Profile) float64 {
	score := 0.0
	if p.HasPhoto {
		score += 0.2
	}
	if p.HasBio {
		score += 0.2
	}
	if p.BackgroundChecked {
		score += 0.2
	}
	if p.IdentityVerified {
		score += 0.2
	}
	if p.ResponseRate >= 0.8 {
		score += 0.2
	}
	return score
}

func audienceBoost(candAudience string, q *domain.ParsedQuery) float64 {
	if q == nil || q.Audience == "" || candAudience == "" {
		return 0
	}
	if candAudience == q.Audience || candAudience == "both" {
		return audienceBoostValue
	}
	return 0
}

func skillBoost(candLevel string, q *domain.ParsedQuery) float64 {
	if q == nil || q.SkillLevel == "" || candLevel == "" {
		return 0
	}
	if candLevel == q.SkillLevel || candLevel == "all" {
		return skillBoostFull
	}
	// An intermediate learner is still well served by a beginner- or
	// advanced-focused instructor.
	if q.SkillLevel == "intermediate" && (candLevel == "beginner" || candLevel == "advanced") {
		return skillBoostAdjacent
	}
	return 0
}

// sortResults orders by composite score, except under high urgency where the
// soonest opening wins and score only breaks ties.
func sortResults(results []domain.RankedResult, q *domain.ParsedQuery) {
	urgent := q != nil && q.Urgency == "high"
	sort.SliceStable(results, func(i, j int) bool {
		if urgent {
			di, iOK := results[i].EarliestAvailable()
			dj, jOK := results[j].EarliestAvailable()
			switch {
			case iOK && !jOK:
				return true
			case !iOK && jOK:
				return false
			case iOK && jOK && !di.Equal(dj):
				return di.Before(dj)
			}
		}
		return results[i].FinalScore > results[j].FinalScore
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
