package stremio

import (
	"encoding/json"
	"testing"
)

func TestStreamToCandidate(t *testing.T) {
	body := `{"streams": [
		{"url": "https://cdn.example/a.mkv", "name": "Example\n1080p", "title": "Movie.1080p.WEB", "size": "1073741824",
		 "behaviorHints": {"cached": true, "proxyHeaders": {"request": {"Referer": "https://example"}}}},
		{"url": "https://cdn.example/b.mp4", "description": "Movie 720p", "behaviorHints": {"videoSize": 2048},
		 "headers": {"User-Agent": "ua"}},
		{"infoHash": "ABCDEF", "title": "Movie 2160p"},
		{"name": "nothing to play"}
	]}`
	var resp StreamResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	first, ok := resp.Streams[0].ToCandidate("org.example", "Example")
	if !ok {
		t.Fatal("expected first stream to convert")
	}
	if !first.Cached || first.SizeBytes != 1073741824 || first.Headers["Referer"] != "https://example" {
		t.Errorf("unexpected first candidate: %+v", first)
	}
	if first.DisplayText() != "Movie.1080p.WEB" {
		t.Errorf("unexpected display text %q", first.DisplayText())
	}

	second, ok := resp.Streams[1].ToCandidate("org.example", "Example")
	if !ok {
		t.Fatal("expected second stream to convert")
	}
	if second.Title != "" || second.Description != "Movie 720p" || second.SizeBytes != 2048 || second.Headers["User-Agent"] != "ua" {
		t.Errorf("unexpected second candidate: %+v", second)
	}
	if second.DisplayText() != "Movie 720p" {
		t.Errorf("description fallback display text %q", second.DisplayText())
	}

	third, ok := resp.Streams[2].ToCandidate("org.example", "Example")
	if !ok || third.URL != "magnet:?xt=urn:btih:abcdef" {
		t.Errorf("infoHash-only stream = %+v ok=%v, want magnet link", third, ok)
	}

	if _, ok := resp.Streams[3].ToCandidate("org.example", "Example"); ok {
		t.Error("stream without any locator must not convert")
	}
}

func TestDisplayTextFallback(t *testing.T) {
	tests := []struct {
		c    Candidate
		want string
	}{
		{Candidate{Title: "T", Name: "N", Description: "D"}, "T"},
		{Candidate{Name: "N", Description: "D"}, "N"},
		{Candidate{Description: "D"}, "D"},
		{Candidate{}, ""},
	}
	for _, tt := range tests {
		if got := tt.c.DisplayText(); got != tt.want {
			t.Errorf("DisplayText(%+v) = %q, want %q", tt.c, got, tt.want)
		}
	}
}
