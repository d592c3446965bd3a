package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"streamhub/pkg/addon"
	"streamhub/pkg/aggregate"
	"streamhub/pkg/config"
	"streamhub/pkg/playback"
	"streamhub/pkg/progress"
	"streamhub/pkg/stremio"
)

// addonServer serves a manifest and a fixed stream list
func addonServer(t *testing.T, id, streamsJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":%q,"name":"Addon %s","version":"1.0.0","resources":[{"name":"stream","types":["movie","series"]}],"types":["movie","series"],"catalogs":[]}`, id, id)
	})
	mux.HandleFunc("/stream/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(streamsJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newEngine(t *testing.T, settings config.Settings, servers ...*httptest.Server) *Engine {
	t.Helper()
	return newEngineWithRouter(t, settings, playback.NewRouter(playback.Options{}), servers...)
}

func newEngineWithRouter(t *testing.T, settings config.Settings, router *playback.Router, servers ...*httptest.Server) *Engine {
	t.Helper()
	reg, err := addon.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	client := addon.NewClient(5 * time.Second)
	e := New(Options{
		Registry:   reg,
		Manifests:  client,
		Aggregator: aggregate.New(reg, aggregate.NewHTTPFetcher(), 0),
		Router:     router,
		Progress:   progress.NewMemoryStore(),
		Settings:   settings,
	})
	for _, srv := range servers {
		if _, err := e.InstallAddon(context.Background(), srv.URL, false); err != nil {
			t.Fatalf("InstallAddon(%s): %v", srv.URL, err)
		}
	}
	return e
}

type collector struct {
	ranked   chan RankedView
	complete chan RankedView
	autoplay chan Selection
}

func newCollector() *collector {
	return &collector{
		ranked:   make(chan RankedView, 16),
		complete: make(chan RankedView, 1),
		autoplay: make(chan Selection, 1),
	}
}

func (c *collector) observer() Observer {
	return ObserverFuncs{
		Ranked:   func(v RankedView) { c.ranked <- v },
		Complete: func(v RankedView) { c.complete <- v },
		Autoplay: func(s Selection) { c.autoplay <- s },
	}
}

func (c *collector) waitComplete(t *testing.T) RankedView {
	t.Helper()
	select {
	case v := <-c.complete:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("query did not complete")
	}
	return RankedView{}
}

func streamTitles(v RankedView) []string {
	var out []string
	for _, s := range v.Streams {
		out = append(out, s.Stream.Title)
	}
	return out
}

func TestQueryStreamsRanksAcrossProviders(t *testing.T) {
	first := addonServer(t, "first", `{"streams":[
		{"url":"https://cdn/1","title":"Movie 720p"},
		{"url":"https://cdn/2","title":"Movie 2160p CAM"}
	]}`)
	second := addonServer(t, "second", `{"streams":[
		{"url":"https://cdn/3","title":"Movie 1080p","behaviorHints":{"cached":true}},
		{"url":"https://cdn/4","title":"Movie 2160p"}
	]}`)

	settings := config.Settings{StreamSortMode: config.SortQualityThenProvider, ExcludedQualities: []string{"cam"}}
	e := newEngine(t, settings, first, second)

	c := newCollector()
	e.QueryStreams(context.Background(), aggregate.Request{ContentID: "tt1", Type: "movie"}, c.observer())
	v := c.waitComplete(t)

	if got := fmt.Sprint(streamTitles(v)); got != "[Movie 1080p Movie 2160p Movie 720p]" {
		t.Errorf("ranked = %s", got)
	}
	if v.Outcome != aggregate.OutcomeStreams {
		t.Errorf("outcome = %s", v.Outcome)
	}
	top := v.Streams[0]
	if !top.Key.Cached || top.Key.Quality != 1080 || top.Key.Priority != 49 {
		t.Errorf("top key = %+v", top.Key)
	}
	if top.Annotation == nil {
		t.Error("ranked entry missing annotation")
	}

	e.UpdateSettings(config.Settings{StreamSortMode: config.SortProviderThenQuality})
	c = newCollector()
	e.QueryStreams(context.Background(), aggregate.Request{ContentID: "tt1", Type: "movie"}, c.observer())
	v = c.waitComplete(t)
	if got := fmt.Sprint(streamTitles(v)); got != "[Movie 1080p Movie 2160p CAM Movie 720p Movie 2160p]" {
		t.Errorf("provider-then-quality = %s", got)
	}
}

func TestQueryStreamsAllFiltered(t *testing.T) {
	srv := addonServer(t, "only", `{"streams":[{"url":"https://cdn/1","title":"Movie CAM"}]}`)
	e := newEngine(t, config.Settings{ExcludedQualities: []string{"CAM"}}, srv)

	c := newCollector()
	e.QueryStreams(context.Background(), aggregate.Request{ContentID: "tt1", Type: "movie"}, c.observer())
	if v := c.waitComplete(t); v.Outcome != aggregate.OutcomeNoStreams || len(v.Streams) != 0 {
		t.Errorf("outcome = %s streams = %d", v.Outcome, len(v.Streams))
	}
}

func TestQueryStreamsNoProviders(t *testing.T) {
	e := newEngine(t, config.Settings{})
	c := newCollector()
	e.QueryStreams(context.Background(), aggregate.Request{ContentID: "tt1", Type: "movie"}, c.observer())
	if v := c.waitComplete(t); v.Outcome != aggregate.OutcomeNoProviders {
		t.Errorf("outcome = %s", v.Outcome)
	}
}

func TestAutoplay(t *testing.T) {
	srv := addonServer(t, "a", `{"streams":[
		{"url":"https://cdn/low","title":"Movie 480p"},
		{"url":"https://cdn/high","title":"Movie 1080p"}
	]}`)
	e := newEngine(t, config.Settings{AutoplayBestStream: true}, srv)
	req := aggregate.Request{ContentID: "tt1", Type: "movie"}
	if err := e.SaveProgress(req, progress.Position{CurrentTime: 30, Duration: 100}); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}

	c := newCollector()
	e.QueryStreams(context.Background(), req, c.observer())
	c.waitComplete(t)

	select {
	case sel := <-c.autoplay:
		if sel.Route.Stream.URL != "https://cdn/high" || sel.Route.Kind != playback.KindInternalDefault {
			t.Errorf("autoplay route = %+v", sel.Route)
		}
		if sel.Resume == nil || sel.Resume.CurrentTime != 30 {
			t.Errorf("resume = %+v", sel.Resume)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("autoplay not triggered")
	}
}

func TestAutoplayOff(t *testing.T) {
	srv := addonServer(t, "a", `{"streams":[{"url":"https://cdn/x","title":"Movie 1080p"}]}`)
	e := newEngine(t, config.Settings{}, srv)

	c := newCollector()
	e.QueryStreams(context.Background(), aggregate.Request{ContentID: "tt1", Type: "movie"}, c.observer())
	c.waitComplete(t)
	select {
	case sel := <-c.autoplay:
		t.Errorf("unexpected autoplay: %+v", sel)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAutoplayRequiresOptIn(t *testing.T) {
	srv := addonServer(t, "a", `{"streams":[{"url":"https://cdn/x","title":"Movie 1080p"}]}`)
	var opens atomic.Int32
	router := playback.NewRouter(playback.Options{
		Launcher: playback.LauncherFunc(func(context.Context, string) error {
			opens.Add(1)
			return nil
		}),
	})
	settings := config.Settings{AutoplayBestStream: true, PreferredPlayer: "vlc"}
	e := newEngineWithRouter(t, settings, router, srv)
	req := aggregate.Request{ContentID: "tt1", Type: "movie"}

	q := e.QueryStreams(context.Background(), req, nil)
	if _, err := q.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	complete := make(chan RankedView, 1)
	e.QueryStreams(context.Background(), req, ObserverFuncs{Complete: func(v RankedView) { complete <- v }})
	select {
	case <-complete:
	case <-time.After(5 * time.Second):
		t.Fatal("query did not complete")
	}

	if n := opens.Load(); n != 0 {
		t.Errorf("launcher opened %d times for observers without autoplay", n)
	}

	c := newCollector()
	e.QueryStreams(context.Background(), req, c.observer())
	c.waitComplete(t)
	select {
	case sel := <-c.autoplay:
		if sel.Route.Kind != playback.KindExternal {
			t.Errorf("autoplay kind = %s", sel.Route.Kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("autoplay not triggered for an opted-in observer")
	}
	if n := opens.Load(); n != 1 {
		t.Errorf("opens = %d, want 1", n)
	}
}

func TestSelectStreamRejectsMagnet(t *testing.T) {
	e := newEngine(t, config.Settings{})
	route := e.SelectStream(context.Background(), stremio.Candidate{URL: "magnet:?xt=urn:btih:abc"})
	if route.Kind != playback.KindRejected {
		t.Errorf("kind = %s", route.Kind)
	}
	sel := e.Play(context.Background(), aggregate.Request{ContentID: "tt1", Type: "movie"}, stremio.Candidate{URL: "magnet:?xt=urn:btih:abc"})
	if sel.Resume != nil {
		t.Error("rejected route should not carry a resume position")
	}
}

func TestConfigureURL(t *testing.T) {
	srv := addonServer(t, "cfg", `{"streams":[]}`)
	e := newEngine(t, config.Settings{}, srv)

	u, ok := e.ConfigureURL("cfg")
	if !ok || u != srv.URL+"/configure" {
		t.Errorf("ConfigureURL = %q %v", u, ok)
	}
	if _, ok := e.ConfigureURL("missing"); ok {
		t.Error("unknown addon should have no configure URL")
	}
}

func TestRefreshAddons(t *testing.T) {
	srv := addonServer(t, "r", `{"streams":[]}`)
	e := newEngine(t, config.Settings{}, srv)
	if failed := e.RefreshAddons(context.Background()); len(failed) != 0 {
		t.Errorf("refresh failures: %v", failed)
	}
}
