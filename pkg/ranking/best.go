package ranking

import (
	"streamhub/pkg/config"
	"streamhub/pkg/stremio"
)

// BestStream picks the stream autoplay should start. Each provider's group is
// filtered, the survivors are flattened in group order and ranked, and the
// head of that list is returned. ok is false when nothing survives.
func BestStream(groups [][]stremio.Candidate, excluded []string, mode config.SortMode, lookup PriorityLookup) (stremio.Candidate, bool) {
	var flat []stremio.Candidate
	for _, g := range groups {
		flat = append(flat, Filter(g, excluded)...)
	}
	if len(flat) == 0 {
		return stremio.Candidate{}, false
	}
	return Rank(flat, mode, lookup)[0], true
}
