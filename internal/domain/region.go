package domain

// Region is the resolver-facing view of one geographic unit.
type Region struct {
	ID         string
	Name       string
	Borough    string
	Lat        float64
	Lng        float64
	NameVector []float32 // nil until the region name has been embedded
}

// AliasEntry is the resolver-facing view of a persisted alias row.
// Exactly one of RegionID or Candidates is populated; a row with a single
// candidate and no region id is ambiguous by contract and must not be
// treated as resolved.
type AliasEntry struct {
	RegionID   string
	RegionName string
	Borough    string
	Candidates []LocationCandidate
	Confidence float64
}
