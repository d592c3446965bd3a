package ranking

import (
	"regexp"
	"strconv"
)

var (
	fourK       = regexp.MustCompile(`(?i)\b4k\b`)
	progressive = regexp.MustCompile(`(?i)(\d+)p`)
	bareQuality = regexp.MustCompile(`\b(240|360|480|720|1080|1440|2160|4320|8000)\b`)
)

// ExtractQuality reads a vertical resolution out of free-form stream text.
// "4K" wins, then the first "<digits>p", then a bare well-known resolution
// number. Unknown is 0.
func ExtractQuality(text string) int {
	if fourK.MatchString(text) {
		return 2160
	}
	if m := progressive.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if m := bareQuality.FindString(text); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	return 0
}
