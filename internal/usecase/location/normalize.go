package location

import (
	"regexp"
	"strings"
)

// fillerWords are directional or filler tokens that carry no location signal.
var fillerWords = map[string]struct{}{
	"near": {}, "in": {}, "around": {}, "at": {}, "by": {},
	"the": {}, "area": {}, "neighborhood": {}, "close": {}, "to": {},
}

var locWhitespaceRe = regexp.MustCompile(`\s+`)

// Normalize strips filler words, lowercases, and collapses whitespace.
// Anything shorter than two characters after normalization is too weak a
// signal to resolve.
func Normalize(text string) string {
	lowered := locWhitespaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), " ")
	if lowered == "" {
		return ""
	}

	words := strings.Split(lowered, " ")
	kept := words[:0]
	for _, w := range words {
		if _, filler := fillerWords[w]; !filler {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
