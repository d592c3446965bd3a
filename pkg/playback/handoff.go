package playback

import (
	"net/url"
	"strings"
)

// Handoff is the ordered list of invocation templates for one external app.
// Templates use {url} for the raw stream URL and {enc} for its
// query-escaped form.
type Handoff struct {
	Player    string
	Templates []string
}

// HandoffTable maps a preferredPlayer value to its handoff
type HandoffTable map[string]Handoff

// DefaultHandoffs lists the external players this router knows how to reach.
// Order inside each entry is the fallback order.
var DefaultHandoffs = HandoffTable{
	"vlc": {Player: "vlc", Templates: []string{
		"vlc-x-callback://x-callback-url/stream?url={enc}",
		"vlc://{url}",
		"org.videolan.vlc://{url}",
	}},
	"infuse": {Player: "infuse", Templates: []string{
		"infuse://x-callback-url/play?url={enc}",
		"infuse://play?url={enc}",
	}},
	"outplayer": {Player: "outplayer", Templates: []string{
		"outplayer://play?url={enc}",
		"outplayer://{url}",
	}},
	"vidhub": {Player: "vidhub", Templates: []string{
		"open-vidhub://x-callback-url/open?url={enc}",
		"vidhub://play?url={enc}",
	}},
	"iina": {Player: "iina", Templates: []string{
		"iina://weblink?url={enc}",
		"iina://open?url={enc}",
	}},
	"mpv": {Player: "mpv", Templates: []string{
		"mpv://{url}",
		"mpv://play?url={enc}",
	}},
	"mxplayer": {Player: "mxplayer", Templates: []string{
		"intent:{url}#Intent;package=com.mxtech.videoplayer.pro;type=video/*;end",
		"intent:{url}#Intent;package=com.mxtech.videoplayer.ad;type=video/*;end",
		"intent:{url}#Intent;action=android.intent.action.VIEW;type=video/*;end",
	}},
}

// Lookup finds the handoff for a player name, ignoring case and blanks
func (t HandoffTable) Lookup(player string) (Handoff, bool) {
	key := strings.ToLower(strings.TrimSpace(player))
	key = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(key)
	h, ok := t[key]
	return h, ok
}

// Invocations expands every template for streamURL, in order
func (h Handoff) Invocations(streamURL string) []string {
	enc := url.QueryEscape(streamURL)
	out := make([]string, 0, len(h.Templates))
	for _, tpl := range h.Templates {
		out = append(out, strings.NewReplacer("{url}", streamURL, "{enc}", enc).Replace(tpl))
	}
	return out
}
