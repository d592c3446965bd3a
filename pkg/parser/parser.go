package parser

import (
	"strconv"
	"strings"

	"github.com/MunifTanjim/go-ptt"
)

// Annotation is the structured metadata go-ptt can read out of a stream's
// free-text title. It is display-only; ranking never consults it.
type Annotation struct {
	Title      string   `json:"title,omitempty"`
	Year       int      `json:"year,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
	Quality    string   `json:"quality,omitempty"`
	Codec      string   `json:"codec,omitempty"`
	Audio      []string `json:"audio,omitempty"`
	Channels   []string `json:"channels,omitempty"`
	HDR        []string `json:"hdr,omitempty"`
	BitDepth   string   `json:"bitDepth,omitempty"`
	Container  string   `json:"container,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	Group      string   `json:"group,omitempty"`
	Size       string   `json:"size,omitempty"`
	Season     int      `json:"season,omitempty"`
	Episode    int      `json:"episode,omitempty"`
	ThreeD     string   `json:"threeD,omitempty"`
	Dubbed     bool     `json:"dubbed,omitempty"`
}

// Annotate parses a stream title. Provider titles are often several lines
// (release name, then size/seeders/emoji lines), so each line is parsed and
// the first line that yields a value wins per field.
func Annotate(text string) *Annotation {
	a := &Annotation{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		a.merge(parseLine(line))
	}
	return a
}

func parseLine(line string) *Annotation {
	info := ptt.Parse(line)

	a := &Annotation{
		Title:      info.Title,
		Resolution: info.Resolution,
		Quality:    info.Quality,
		Codec:      info.Codec,
		Audio:      info.Audio,
		Channels:   info.Channels,
		HDR:        info.HDR,
		BitDepth:   info.BitDepth,
		Container:  info.Container,
		Languages:  info.Languages,
		Group:      info.Group,
		Size:       info.Size,
		ThreeD:     info.ThreeD,
		Dubbed:     info.Dubbed,
	}

	if info.Year != "" {
		if year, err := strconv.Atoi(info.Year); err == nil {
			a.Year = year
		}
	}
	if len(info.Seasons) > 0 {
		a.Season = info.Seasons[0]
	}
	if len(info.Episodes) > 0 {
		a.Episode = info.Episodes[0]
	}
	return a
}

func (a *Annotation) merge(o *Annotation) {
	if a.Title == "" {
		a.Title = o.Title
	}
	if a.Year == 0 {
		a.Year = o.Year
	}
	if a.Resolution == "" {
		a.Resolution = o.Resolution
	}
	if a.Quality == "" {
		a.Quality = o.Quality
	}
	if a.Codec == "" {
		a.Codec = o.Codec
	}
	if len(a.Audio) == 0 {
		a.Audio = o.Audio
	}
	if len(a.Channels) == 0 {
		a.Channels = o.Channels
	}
	if len(a.HDR) == 0 {
		a.HDR = o.HDR
	}
	if a.BitDepth == "" {
		a.BitDepth = o.BitDepth
	}
	if a.Container == "" {
		a.Container = o.Container
	}
	if len(a.Languages) == 0 {
		a.Languages = o.Languages
	}
	if a.Group == "" {
		a.Group = o.Group
	}
	if a.Size == "" {
		a.Size = o.Size
	}
	if a.Season == 0 {
		a.Season = o.Season
	}
	if a.Episode == 0 {
		a.Episode = o.Episode
	}
	if a.ThreeD == "" {
		a.ThreeD = o.ThreeD
	}
	a.Dubbed = a.Dubbed || o.Dubbed
}
