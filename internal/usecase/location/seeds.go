package location

import (
	_ "embed"
	"encoding/json"
	"sync"
)

//go:embed seed_aliases.json
var seedAliasData []byte

// seedAlias is one bundled alias entry: a borough, a region name, or an
// ambiguous candidate list.
type seedAlias struct {
	Borough    string   `json:"borough,omitempty"`
	Region     string   `json:"region,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

var (
	seedOnce    sync.Once
	seedAliases map[string]seedAlias
)

// loadSeedAliases parses the bundled alias map once. Keys are re-normalized
// on load so entries like "the bronx" stay reachable after Normalize strips
// filler words from the lookup text. A parse failure fails open to an empty
// map: the persisted alias table still serves the tier.
func loadSeedAliases() map[string]seedAlias {
	seedOnce.Do(func() {
		var parsed map[string]seedAlias
		if err := json.Unmarshal(seedAliasData, &parsed); err != nil {
			parsed = map[string]seedAlias{}
		}
		seedAliases = make(map[string]seedAlias, len(parsed))
		for k, v := range parsed {
			seedAliases[Normalize(k)] = v
		}
	})
	return seedAliases
}
