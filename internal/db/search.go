package db

// CandidateQuery is the input for candidate retrieval over the service index.
// A nil Vector degrades to filter-only retrieval.
type CandidateQuery struct {
	IndexName    string
	Vector       []float32
	RegionID     string
	Borough      string
	PriceMin     *float64
	PriceMax     *float64
	Audience     string
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a retrieval operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
