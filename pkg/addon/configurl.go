package addon

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"streamhub/pkg/stremio"
)

const (
	configurePath = "configure"
	storeHost     = "strem.fun"
)

var (
	officialIDPattern = regexp.MustCompile(`(?i)^com\.stremio\.([a-z0-9-]+)\.addon$`)
	embeddedURL       = regexp.MustCompile(`https?://[^\s"'<>]+`)
	customScheme      = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.\-]*)://([^/?#\s]+)(.*)$`)
)

// knownConfigURLs maps ids whose configuration page does not follow the
// generic store-host pattern.
var knownConfigURLs = map[string]string{
	"com.stremio.torrentio.addon": "https://torrentio.strem.fun/configure",
}

// ResolveConfigURL picks the configuration page for an installed provider.
// The first rule that yields a URL wins:
//
//  1. behaviorHints.configurationURL
//  2. transport URL with its last path segment replaced by "configure"
//  3. the manifest's own url field, treated the same way
//  4. a known store address for com.stremio.<name>.addon ids
//  5. an id that is itself an http(s) URL
//  6. the first http(s) URL embedded anywhere in the id
//  7. a custom-scheme id whose host has a public suffix, rewritten to https
//
// ok is false when nothing matched.
func ResolveConfigURL(m *stremio.Manifest, transportURL string) (string, bool) {
	if m == nil {
		return "", false
	}

	if m.BehaviorHints != nil {
		if u := strings.TrimSpace(m.BehaviorHints.ConfigurationURL); u != "" {
			return u, true
		}
	}
	if u, ok := configureURLFrom(transportURL); ok {
		return u, true
	}
	if u, ok := configureURLFrom(m.URL); ok {
		return u, true
	}

	id := strings.TrimSpace(m.ID)
	if id == "" {
		return "", false
	}
	if u, ok := knownConfigURLs[strings.ToLower(id)]; ok {
		return u, true
	}
	if match := officialIDPattern.FindStringSubmatch(id); match != nil {
		return "https://" + strings.ToLower(match[1]) + "." + storeHost + "/" + configurePath, true
	}
	lower := strings.ToLower(id)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if u, ok := configureURLFrom(id); ok {
			return u, true
		}
	}
	if found := embeddedURL.FindString(id); found != "" {
		if u, ok := configureURLFrom(found); ok {
			return u, true
		}
	}
	if u, ok := fromCustomScheme(id); ok {
		return u, true
	}
	return "", false
}

// configureURLFrom drops the query, fragment and last path segment of raw
// and appends "configure". Only http(s) URLs with a host qualify; stremio://
// links are read as https.
func configureURLFrom(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(raw), "stremio://") {
		raw = "https://" + raw[len("stremio://"):]
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	base := raw
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	authorityEnd := strings.Index(base, "://") + len("://")
	if !strings.Contains(base[authorityEnd:], "/") {
		return base + "/" + configurePath, true
	}
	last := strings.LastIndex(base, "/")
	return base[:last+1] + configurePath, true
}

func fromCustomScheme(id string) (string, bool) {
	match := customScheme.FindStringSubmatch(id)
	if match == nil {
		return "", false
	}
	scheme := strings.ToLower(match[1])
	if scheme == "http" || scheme == "https" {
		return "", false
	}
	authority := match[2]
	host := authority
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if !hasPublicSuffix(host) {
		return "", false
	}
	return configureURLFrom("https://" + authority + match[3])
}

// hasPublicSuffix reports whether host ends in an ICANN-managed suffix and has
// a registrable label in front of it.
func hasPublicSuffix(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || !strings.Contains(host, ".") || net.ParseIP(host) != nil {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(host)
	if !icann || suffix == host {
		return false
	}
	_, err := publicsuffix.EffectiveTLDPlusOne(host)
	return err == nil
}
