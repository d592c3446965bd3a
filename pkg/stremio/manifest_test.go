package stremio

import (
	"encoding/json"
	"testing"
)

const mixedManifest = `{
	"id": "org.example.streams",
	"version": "1.2.0",
	"name": "Example",
	"resources": ["catalog", {"name": "stream", "types": ["movie"], "idPrefixes": ["tt"]}, {"name": "meta"}],
	"types": ["movie", "series"],
	"catalogs": [{"type": "movie", "id": "top", "name": "Top"}],
	"behaviorHints": {"configurable": true, "configurationURL": "https://example.org/configure"}
}`

func TestManifestDecodeMixedResources(t *testing.T) {
	var m Manifest
	if err := json.Unmarshal([]byte(mixedManifest), &m); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(m.Resources) != 3 {
		t.Fatalf("expected 3 resources, got %d", len(m.Resources))
	}
	if m.Resources[0].Name != "catalog" || len(m.Resources[0].Types) != 0 {
		t.Errorf("unexpected string resource: %+v", m.Resources[0])
	}
	if m.Resources[1].Name != "stream" || len(m.Resources[1].Types) != 1 {
		t.Errorf("unexpected object resource: %+v", m.Resources[1])
	}
	if !m.Configurable() {
		t.Error("expected configurable hint")
	}
	if m.BehaviorHints.ConfigurationURL != "https://example.org/configure" {
		t.Errorf("unexpected configuration URL %q", m.BehaviorHints.ConfigurationURL)
	}
}

func TestManifestSupports(t *testing.T) {
	var m Manifest
	if err := json.Unmarshal([]byte(mixedManifest), &m); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	tests := []struct {
		resource, contentType string
		want                  bool
	}{
		{"stream", "movie", true},
		{"stream", "series", false},
		{"catalog", "series", true},
		{"meta", "anything", true},
		{"subtitles", "movie", false},
	}
	for _, tt := range tests {
		if got := m.Supports(tt.resource, tt.contentType); got != tt.want {
			t.Errorf("Supports(%q, %q) = %v, want %v", tt.resource, tt.contentType, got, tt.want)
		}
	}
}

func TestResourceItemMarshalKeepsShortForm(t *testing.T) {
	out, err := json.Marshal([]ResourceItem{{Name: "stream"}, {Name: "meta", Types: []string{"series"}}})
	if err != nil {
		t.Fatal(err)
	}
	want := `["stream",{"name":"meta","types":["series"]}]`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestManifestCloneIsDeep(t *testing.T) {
	m := &Manifest{
		ID:            "a",
		Resources:     []ResourceItem{{Name: "stream", Types: []string{"movie"}}},
		BehaviorHints: &ManifestHints{Configurable: true},
	}
	c := m.Clone()
	c.Resources[0].Types[0] = "series"
	c.BehaviorHints.Configurable = false
	if m.Resources[0].Types[0] != "movie" || !m.BehaviorHints.Configurable {
		t.Error("clone shares state with the original")
	}
}
