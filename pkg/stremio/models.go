package stremio

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// StreamResponse is the body of GET /stream/{type}/{id}.json
type StreamResponse struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream option as a provider sends it
type Stream struct {
	URL         string            `json:"url,omitempty"`
	ExternalURL string            `json:"externalUrl,omitempty"`
	InfoHash    string            `json:"infoHash,omitempty"`
	Name        string            `json:"name,omitempty"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Size        FlexInt           `json:"size,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`

	BehaviorHints *BehaviorHints `json:"behaviorHints,omitempty"`
}

// BehaviorHints provides hints about stream behavior
type BehaviorHints struct {
	NotWebReady  bool          `json:"notWebReady,omitempty"`
	BingeGroup   string        `json:"bingeGroup,omitempty"`
	VideoSize    FlexInt       `json:"videoSize,omitempty"`
	Filename     string        `json:"filename,omitempty"`
	Cached       bool          `json:"cached,omitempty"`
	ProxyHeaders *ProxyHeaders `json:"proxyHeaders,omitempty"`
}

// ProxyHeaders carries the request headers a player must send
type ProxyHeaders struct {
	Request  map[string]string `json:"request,omitempty"`
	Response map[string]string `json:"response,omitempty"`
}

// FlexInt decodes a JSON number or a numeric string; anything else is 0.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*f = FlexInt(int64(v))
		return nil
	}
	*f = 0
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(f))
}

// Candidate is a normalized stream ready for filtering, ranking and routing.
// AddonID is a back-reference into the registry, not ownership.
type Candidate struct {
	URL         string            `json:"url"`
	Name        string            `json:"name,omitempty"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	SizeBytes   int64             `json:"sizeBytes,omitempty"`
	Cached      bool              `json:"cached"`
	Headers     map[string]string `json:"headers,omitempty"`
	AddonID     string            `json:"addonId"`
	AddonName   string            `json:"addonName,omitempty"`
}

// DisplayText is the title, falling back to the name and then the description
func (c Candidate) DisplayText() string {
	if c.Title != "" {
		return c.Title
	}
	if c.Name != "" {
		return c.Name
	}
	return c.Description
}

// ToCandidate normalizes a provider stream. An infoHash-only entry becomes a
// magnet link so routing can reject it visibly; ok is false only when the
// stream carries no locator at all.
func (s Stream) ToCandidate(addonID, addonName string) (Candidate, bool) {
	url := s.URL
	if url == "" {
		url = s.ExternalURL
	}
	if url == "" && strings.TrimSpace(s.InfoHash) != "" {
		url = "magnet:?xt=urn:btih:" + strings.ToLower(strings.TrimSpace(s.InfoHash))
	}
	if url == "" {
		return Candidate{}, false
	}

	c := Candidate{
		URL:         url,
		Name:        s.Name,
		Title:       s.Title,
		Description: s.Description,
		SizeBytes:   int64(s.Size),
		AddonID:     addonID,
		AddonName:   addonName,
	}

	headers := map[string]string{}
	if hints := s.BehaviorHints; hints != nil {
		c.Cached = hints.Cached
		if c.SizeBytes <= 0 {
			c.SizeBytes = int64(hints.VideoSize)
		}
		if hints.ProxyHeaders != nil {
			for k, v := range hints.ProxyHeaders.Request {
				headers[k] = v
			}
		}
	}
	for k, v := range s.Headers {
		headers[k] = v
	}
	if len(headers) > 0 {
		c.Headers = headers
	}
	if c.SizeBytes < 0 {
		c.SizeBytes = 0
	}
	return c, true
}
