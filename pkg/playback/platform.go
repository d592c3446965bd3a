package playback

import "strings"

// Platform describes the device playback is routed for
type Platform interface {
	OS() string
	IsTablet() bool
}

// StaticPlatform is a fixed Platform, usually built from config
type StaticPlatform struct {
	Name   string
	Tablet bool
}

func (p StaticPlatform) OS() string     { return strings.ToLower(p.Name) }
func (p StaticPlatform) IsTablet() bool { return p.Tablet }

// platformNames lists the names a platform is matched under, most specific
// first: "ios-tablet" then "ios" for an iPad.
func platformNames(p Platform) []string {
	name := p.OS()
	if p.IsTablet() {
		return []string{name + "-tablet", name}
	}
	return []string{name}
}

// FormatSupport answers whether a provider has declared that, on the given
// platform, its streams need a container the default engine may not handle.
type FormatSupport interface {
	SupportsFormat(platform, addonID, format string) bool
}

// StaticFormats maps addon ids to the container formats they declare. A bare
// entry ("mkv") applies everywhere; "<platform>:mkv" applies to one platform.
type StaticFormats map[string][]string

func (s StaticFormats) SupportsFormat(platform, addonID, format string) bool {
	for _, f := range s[addonID] {
		if scope, rest, ok := strings.Cut(f, ":"); ok {
			if !strings.EqualFold(scope, platform) {
				continue
			}
			f = rest
		}
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// DefaultUnreliableMatroska lists the platforms whose default engine cannot
// be trusted with Matroska. Tablets match their OS entry too.
var DefaultUnreliableMatroska = []string{"ios"}
