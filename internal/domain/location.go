package domain

// Tier identifies which resolver strategy produced a ResolvedLocation.
// Ordering matters: a lower value is a higher-priority (cheaper, more
// trusted) tier, and a tier is never downgraded once assigned.
type Tier int

const (
	// TierExact is a direct borough or region-name match.
	TierExact Tier = iota
	// TierAlias is a persisted or seeded alias-table match.
	TierAlias
	// TierFuzzySubstring is a region-name substring containment match.
	TierFuzzySubstring
	// TierFuzzySimilarity is an approximate string-similarity match.
	TierFuzzySimilarity
	// TierEmbedding is a vector nearest-neighbor match over region names.
	TierEmbedding
	// TierLLM is a last-resort language-model resolution.
	TierLLM
)

var tierNames = map[Tier]string{
	TierExact:           "exact",
	TierAlias:           "alias",
	TierFuzzySubstring:  "fuzzy_substring",
	TierFuzzySimilarity: "fuzzy_similarity",
	TierEmbedding:       "embedding",
	TierLLM:             "llm",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// LocationKind tags the variant of a ResolvedLocation.
type LocationKind string

const (
	// LocationRegion means the text resolved to a single region.
	LocationRegion LocationKind = "region"
	// LocationBorough means the text resolved to a borough.
	LocationBorough LocationKind = "borough"
	// LocationAmbiguous means several candidate regions matched.
	LocationAmbiguous LocationKind = "ambiguous"
	// LocationNotFound means no tier matched.
	LocationNotFound LocationKind = "not_found"
)

// LocationCandidate is one possible region for an ambiguous resolution.
type LocationCandidate struct {
	RegionID   string `json:"region_id"`
	RegionName string `json:"region_name"`
}

// ResolvedLocation is the tagged outcome of the resolver cascade.
type ResolvedLocation struct {
	Kind                  LocationKind        `json:"kind"`
	RegionID              string              `json:"region_id,omitempty"`
	RegionName            string              `json:"region_name,omitempty"`
	Borough               string              `json:"borough,omitempty"`
	Lat                   float64             `json:"lat,omitempty"`
	Lng                   float64             `json:"lng,omitempty"`
	Tier                  Tier                `json:"tier"`
	Confidence            float64             `json:"confidence"`
	Candidates            []LocationCandidate `json:"candidates,omitempty"`
	RequiresClarification bool                `json:"requires_clarification,omitempty"`
}

// NotFoundLocation is the terminal "no tier matched" outcome.
func NotFoundLocation() ResolvedLocation {
	return ResolvedLocation{Kind: LocationNotFound}
}

// IsResolved reports whether the location carries a usable region or borough.
func (l ResolvedLocation) IsResolved() bool {
	return l.Kind == LocationRegion || l.Kind == LocationBorough
}

// CachedLocation is the geocoded form kept in the long-lived location cache.
// Only resolved locations are cached; ambiguous and not-found outcomes are
// re-resolved every time.
type CachedLocation struct {
	Lng          float64 `json:"lng"`
	Lat          float64 `json:"lat"`
	RegionID     string  `json:"region_id,omitempty"`
	Borough      string  `json:"borough,omitempty"`
	Neighborhood string  `json:"neighborhood,omitempty"`
}

// ToResolved rebuilds a resolved location from the cached form.
func (c CachedLocation) ToResolved() ResolvedLocation {
	if c.RegionID != "" {
		return ResolvedLocation{
			Kind:       LocationRegion,
			RegionID:   c.RegionID,
			RegionName: c.Neighborhood,
			Borough:    c.Borough,
			Lat:        c.Lat,
			Lng:        c.Lng,
			Confidence: 1.0,
		}
	}
	return ResolvedLocation{
		Kind:       LocationBorough,
		Borough:    c.Borough,
		Confidence: 1.0,
	}
}
