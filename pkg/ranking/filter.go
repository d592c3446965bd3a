package ranking

import (
	"regexp"
	"strings"

	"streamhub/pkg/stremio"
)

// Filter drops every stream whose display text contains one of the excluded
// tokens, compared case-insensitively as literal text. Blank tokens are
// ignored and an empty exclusion list returns the input unchanged.
func Filter(streams []stremio.Candidate, excluded []string) []stremio.Candidate {
	re := exclusionPattern(excluded)
	if re == nil {
		return streams
	}
	out := make([]stremio.Candidate, 0, len(streams))
	for _, s := range streams {
		if re.MatchString(s.DisplayText()) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func exclusionPattern(excluded []string) *regexp.Regexp {
	var parts []string
	for _, tok := range excluded {
		if tok = strings.TrimSpace(tok); tok != "" {
			parts = append(parts, regexp.QuoteMeta(tok))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(parts, "|") + `)`)
}
