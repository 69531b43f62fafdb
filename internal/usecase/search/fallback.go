package search

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/classpeak/searchcore/internal/domain"
)

var (
	priceCapRe = regexp.MustCompile(`(?i)\b(?:under|below|less than|max)\s*\$?(\d+)`)
	locationRe = regexp.MustCompile(`(?i)\b(?:in|near|around)\s+([a-z' ]+?)(?:\s+(?:under|below|for|with)\b|$)`)
)

// fallbackParse is the conservative substitute when the intent extractor
// fails: it keeps the whole text as the service term and pulls out only the
// unambiguous pieces (a price ceiling, an "in/near X" location).
func fallbackParse(query string) *domain.ParsedQuery {
	pq := &domain.ParsedQuery{
		Service:    strings.TrimSpace(query),
		Mode:       domain.ParsingModeFallback,
		Confidence: 0.3,
	}

	if m := priceCapRe.FindStringSubmatch(query); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			pq.PriceMax = &v
		}
		pq.Service = strings.TrimSpace(priceCapRe.ReplaceAllString(pq.Service, ""))
	}
	if m := locationRe.FindStringSubmatch(query); m != nil {
		pq.LocationText = strings.TrimSpace(m[1])
		pq.Service = strings.TrimSpace(locationRe.ReplaceAllString(pq.Service, ""))
	}
	if pq.Service == "" {
		pq.Service = strings.TrimSpace(query)
	}
	return pq
}
