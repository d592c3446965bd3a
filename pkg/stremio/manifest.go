package stremio

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Manifest is the capability document a provider serves at /manifest.json
type Manifest struct {
	ID          string         `json:"id"`
	Version     string         `json:"version"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Resources   []ResourceItem `json:"resources"`
	Types       []string       `json:"types,omitempty"`
	Catalogs    []Catalog      `json:"catalogs"`
	IDPrefixes  []string       `json:"idPrefixes,omitempty"`
	Background  string         `json:"background,omitempty"`
	Logo        string         `json:"logo,omitempty"`

	BehaviorHints *ManifestHints `json:"behaviorHints,omitempty"`

	// URL is the installation-time address some clients store alongside the manifest.
	URL string `json:"url,omitempty"`
}

// Catalog represents a content catalog
type Catalog struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ManifestHints are the manifest-level behaviorHints
type ManifestHints struct {
	Adult                 bool   `json:"adult,omitempty"`
	P2P                   bool   `json:"p2p,omitempty"`
	Configurable          bool   `json:"configurable,omitempty"`
	ConfigurationRequired bool   `json:"configurationRequired,omitempty"`
	ConfigurationURL      string `json:"configurationURL,omitempty"`
}

// ResourceItem is one entry of "resources". Providers send either a bare
// string ("stream") or an object ({"name":"stream","types":["movie"]}).
type ResourceItem struct {
	Name       string   `json:"name"`
	Types      []string `json:"types,omitempty"`
	IDPrefixes []string `json:"idPrefixes,omitempty"`
}

func (r *ResourceItem) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*r = ResourceItem{Name: name}
		return nil
	}
	type plain ResourceItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("resource entry: %w", err)
	}
	*r = ResourceItem(p)
	return nil
}

func (r ResourceItem) MarshalJSON() ([]byte, error) {
	if len(r.Types) == 0 && len(r.IDPrefixes) == 0 {
		return json.Marshal(r.Name)
	}
	type plain ResourceItem
	return json.Marshal(plain(r))
}

// Supports reports whether the manifest declares resource for contentType.
// A resource entry without a types list accepts every content type.
func (m *Manifest) Supports(resource, contentType string) bool {
	if m == nil {
		return false
	}
	for _, r := range m.Resources {
		if r.Name != resource {
			continue
		}
		if len(r.Types) == 0 {
			return true
		}
		for _, t := range r.Types {
			if t == contentType {
				return true
			}
		}
	}
	return false
}

// Configurable reports the behaviorHints.configurable flag
func (m *Manifest) Configurable() bool {
	return m != nil && m.BehaviorHints != nil && m.BehaviorHints.Configurable
}

// Clone returns a deep copy so registry snapshots never share slices with callers.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	if m.Resources != nil {
		c.Resources = make([]ResourceItem, len(m.Resources))
		for i, r := range m.Resources {
			r.Types = append([]string(nil), r.Types...)
			r.IDPrefixes = append([]string(nil), r.IDPrefixes...)
			c.Resources[i] = r
		}
	}
	c.Types = append([]string(nil), m.Types...)
	c.Catalogs = append([]Catalog(nil), m.Catalogs...)
	c.IDPrefixes = append([]string(nil), m.IDPrefixes...)
	if m.BehaviorHints != nil {
		hints := *m.BehaviorHints
		c.BehaviorHints = &hints
	}
	return &c
}
