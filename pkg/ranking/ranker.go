package ranking

import (
	"sort"

	"streamhub/pkg/config"
	"streamhub/pkg/stremio"
)

// PriorityLookup resolves a provider id to its priority. *addon.Snapshot
// satisfies it; unknown ids must return 0.
type PriorityLookup interface {
	PriorityOf(id string) int
}

// Key is the derived sort key of one stream. It is recomputed on every
// ranking pass and never stored.
type Key struct {
	Cached   bool `json:"cached"`
	Quality  int  `json:"quality"`
	Priority int  `json:"priority"`
}

// KeyOf projects a stream onto its ranking key
func KeyOf(s stremio.Candidate, lookup PriorityLookup) Key {
	k := Key{
		Cached:  s.Cached,
		Quality: ExtractQuality(s.DisplayText()),
	}
	if lookup != nil {
		k.Priority = lookup.PriorityOf(s.AddonID)
	}
	return k
}

// Compare returns a negative number when a ranks before b, positive when
// after, and 0 when the keys tie. Cached streams always come first; the mode
// only orders streams of equal cache status.
func Compare(a, b Key, mode config.SortMode) int {
	if a.Cached != b.Cached {
		if a.Cached {
			return -1
		}
		return 1
	}
	first, second := qualityDiff(a, b), priorityDiff(a, b)
	if mode == config.SortProviderThenQuality {
		first, second = second, first
	}
	if first != 0 {
		return first
	}
	return second
}

func qualityDiff(a, b Key) int  { return b.Quality - a.Quality }
func priorityDiff(a, b Key) int { return b.Priority - a.Priority }

// Ranked is a stream together with the key it was ranked by
type Ranked struct {
	Stream stremio.Candidate `json:"stream"`
	Key    Key               `json:"key"`
}

// RankKeyed sorts streams and returns them with their keys. The sort is
// stable, so equal keys keep their input order.
func RankKeyed(streams []stremio.Candidate, mode config.SortMode, lookup PriorityLookup) []Ranked {
	out := make([]Ranked, len(streams))
	for i, s := range streams {
		out[i] = Ranked{Stream: s, Key: KeyOf(s, lookup)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(out[i].Key, out[j].Key, mode) < 0
	})
	return out
}

// Rank returns a new, deterministically ordered slice; the input is not modified.
func Rank(streams []stremio.Candidate, mode config.SortMode, lookup PriorityLookup) []stremio.Candidate {
	ranked := RankKeyed(streams, mode, lookup)
	out := make([]stremio.Candidate, len(ranked))
	for i, r := range ranked {
		out[i] = r.Stream
	}
	return out
}
