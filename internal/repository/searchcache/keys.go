package searchcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/classpeak/searchcore/internal/domain"
)

const (
	responsePrefix    = domain.KeyPrefix + "resp:"
	parsedQueryPrefix = domain.KeyPrefix + "pq:"
	locationPrefix    = domain.KeyPrefix + "loc:"
	versionKey        = domain.KeyPrefix + "resp:ver"
)

// KeyInputs are the request parameters a response cache key is derived from.
type KeyInputs struct {
	Query   string
	Lat     *float64
	Lng     *float64
	Filters map[string]string
	Limit   int
	Region  string
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// normalizeText lowercases and collapses whitespace so case/spacing variants
// of the same query share one cache entry.
func normalizeText(s string) string {
	return whitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// hashInputs builds the compact key suffix: the first 16 hex characters of a
// sha256 over the canonical input string.
func hashInputs(in KeyInputs) string {
	var sb strings.Builder
	sb.WriteString(normalizeText(in.Query))
	sb.WriteByte('|')
	if in.Lat != nil && in.Lng != nil {
		// Round to two decimals: ~1km grid, close positions share an entry.
		fmt.Fprintf(&sb, "%.2f,%.2f", *in.Lat, *in.Lng)
	}
	sb.WriteByte('|')
	sb.WriteString(sortedFilterJSON(in.Filters))
	fmt.Fprintf(&sb, "|%d|%s", in.Limit, in.Region)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])[:16]
}

func sortedFilterJSON(filters map[string]string) string {
	if len(filters) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([][2]string, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, [2]string{k, filters[k]})
	}
	data, err := json.Marshal(ordered)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func responseKey(version int64, in KeyInputs) string {
	return fmt.Sprintf("%sv%d:%s", responsePrefix, version, hashInputs(in))
}

func parsedQueryKey(rawQuery string) string {
	sum := sha256.Sum256([]byte(normalizeText(rawQuery)))
	return parsedQueryPrefix + hex.EncodeToString(sum[:])[:16]
}

func locationKey(text, region string) string {
	sum := sha256.Sum256([]byte(normalizeText(text) + "|" + region))
	return locationPrefix + hex.EncodeToString(sum[:])[:16]
}

// relativeDateRe matches date words that resolve differently depending on
// when the query is parsed. Responses and parsed queries containing them are
// never cached: the resolved date would go stale inside the TTL window.
var relativeDateRe = regexp.MustCompile(
	`(?i)\b(today|tonight|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday|` +
		`this\s+week(end)?|next\s+week(end)?)\b`,
)

// HasRelativeDate reports whether the text contains a relative-date marker.
func HasRelativeDate(text string) bool {
	return relativeDateRe.MatchString(text)
}
