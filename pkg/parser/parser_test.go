package parser

import (
	"strings"
	"testing"
)

func TestAnnotate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantRes bool
		wantMKV bool
	}{
		{
			name:    "single line release",
			text:    "The.Movie.2020.2160p.UHD.BluRay.x265-GROUP.mkv",
			wantRes: true,
			wantMKV: true,
		},
		{
			name:    "multi line provider title",
			text:    "The Movie 2020\nThe.Movie.2020.1080p.WEB-DL.x264.mp4\n👤 12 💾 2.1 GB",
			wantRes: true,
		},
		{
			name: "nothing recognisable",
			text: "Direct link",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Annotate(tt.text)
			if (a.Resolution != "") != tt.wantRes {
				t.Errorf("Resolution = %q, want set = %v", a.Resolution, tt.wantRes)
			}
			if strings.EqualFold(a.Container, "mkv") != tt.wantMKV {
				t.Errorf("Container = %q, want mkv = %v", a.Container, tt.wantMKV)
			}
		})
	}
}
