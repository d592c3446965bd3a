package aggregate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"streamhub/pkg/addon"
	"streamhub/pkg/stremio"
)

func newRegistry(t *testing.T, ids ...string) *addon.Registry {
	t.Helper()
	r, err := addon.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	for _, id := range ids {
		m := &stremio.Manifest{
			ID:        id,
			Name:      "Addon " + id,
			Resources: []stremio.ResourceItem{{Name: addon.ResourceStream, Types: []string{"movie", "series"}}},
		}
		if err := r.Install(m, "https://"+id+".example.com/manifest.json", false); err != nil {
			t.Fatalf("Install: %v", err)
		}
	}
	return r
}

type reply struct {
	streams []stremio.Candidate
	err     error
	gate    chan struct{}
}

// stubFetcher answers per provider id, optionally waiting on a gate first
type stubFetcher struct {
	mu      sync.Mutex
	replies map[string]*reply
	calls   []string
}

func (f *stubFetcher) FetchStreams(ctx context.Context, p addon.Entry, req Request) ([]stremio.Candidate, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p.ID())
	r := f.replies[p.ID()]
	f.mu.Unlock()
	if r == nil {
		return nil, nil
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.streams, r.err
}

func stream(addonID, title string) stremio.Candidate {
	return stremio.Candidate{URL: "https://cdn.example.com/" + title, Title: title, AddonID: addonID}
}

// recorder collects observer callbacks
type recorder struct {
	mu       sync.Mutex
	updates  []ProviderState
	still    [][]string
	complete []View
}

func (r *recorder) OnProviderUpdate(s ProviderState, _ View) {
	r.mu.Lock()
	r.updates = append(r.updates, s)
	r.mu.Unlock()
}

func (r *recorder) OnStillFetching(p []string) {
	r.mu.Lock()
	r.still = append(r.still, p)
	r.mu.Unlock()
}

func (r *recorder) OnComplete(v View) {
	r.mu.Lock()
	r.complete = append(r.complete, v)
	r.mu.Unlock()
}

func wait(t *testing.T, q *Query) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := q.Wait(ctx)
	if err != nil {
		t.Fatalf("query did not finish: %v", err)
	}
	return v
}

func TestQueryIsolatesFailures(t *testing.T) {
	reg := newRegistry(t, "X", "Y", "Z")
	f := &stubFetcher{replies: map[string]*reply{
		"X": {err: fmt.Errorf("%w: boom", addon.ErrUnreachable)},
		"Y": {streams: []stremio.Candidate{stream("Y", "y1 1080p")}},
		"Z": {streams: []stremio.Candidate{stream("Z", "z1 720p"), stream("Z", "z2 480p")}},
	}}
	rec := &recorder{}

	q := New(reg, f, 0).Query(context.Background(), Request{ContentID: "tt1", Type: "movie"}, rec)
	v := wait(t, q)

	if v.Outcome != OutcomeStreams {
		t.Errorf("outcome = %s", v.Outcome)
	}
	var got []string
	for _, s := range v.Streams {
		got = append(got, s.Title)
	}
	if fmt.Sprint(got) != "[y1 1080p z1 720p z2 480p]" {
		t.Errorf("merged streams = %v", got)
	}
	if v.Providers[0].Status != StatusFailed || !errors.Is(v.Providers[0].Err, addon.ErrUnreachable) {
		t.Errorf("X state = %+v", v.Providers[0])
	}
	if len(rec.updates) != 3 || len(rec.complete) != 1 {
		t.Errorf("updates=%d complete=%d", len(rec.updates), len(rec.complete))
	}
}

func TestQueryEmptyStates(t *testing.T) {
	t.Run("no capable providers", func(t *testing.T) {
		reg := newRegistry(t)
		rec := &recorder{}
		q := New(reg, &stubFetcher{}, 0).Query(context.Background(), Request{ContentID: "tt1", Type: "movie"}, rec)
		v := wait(t, q)
		if v.Outcome != OutcomeNoProviders {
			t.Errorf("outcome = %s", v.Outcome)
		}
		if len(rec.complete) != 1 {
			t.Errorf("complete called %d times", len(rec.complete))
		}
	})

	t.Run("type not declared", func(t *testing.T) {
		reg := newRegistry(t, "A")
		v := wait(t, New(reg, &stubFetcher{}, 0).Query(context.Background(), Request{ContentID: "x", Type: "tv"}, nil))
		if v.Outcome != OutcomeNoProviders {
			t.Errorf("outcome = %s", v.Outcome)
		}
	})

	t.Run("all failed or empty", func(t *testing.T) {
		reg := newRegistry(t, "A", "B")
		f := &stubFetcher{replies: map[string]*reply{
			"A": {err: errors.New("down")},
			"B": {streams: []stremio.Candidate{}},
		}}
		v := wait(t, New(reg, f, 0).Query(context.Background(), Request{ContentID: "tt1", Type: "movie"}, nil))
		if v.Outcome != OutcomeNoStreams {
			t.Errorf("outcome = %s", v.Outcome)
		}
		if v.Providers[1].Status != StatusFulfilled {
			t.Errorf("empty provider should be fulfilled, got %s", v.Providers[1].Status)
		}
	})

	t.Run("no-streams only after every provider finished", func(t *testing.T) {
		reg := newRegistry(t, "A", "B")
		gate := make(chan struct{})
		f := &stubFetcher{replies: map[string]*reply{
			"A": {streams: []stremio.Candidate{}},
			"B": {streams: []stremio.Candidate{}, gate: gate},
		}}
		seen := make(chan View, 2)
		obs := ObserverFuncs{ProviderUpdate: func(_ ProviderState, v View) { seen <- v }}
		q := New(reg, f, 0).Query(context.Background(), Request{ContentID: "tt1", Type: "movie"}, obs)

		first := <-seen
		if first.Outcome != OutcomeFetching || first.Pending != 1 {
			t.Errorf("first update outcome=%s pending=%d", first.Outcome, first.Pending)
		}
		close(gate)
		if v := wait(t, q); v.Outcome != OutcomeNoStreams {
			t.Errorf("final outcome = %s", v.Outcome)
		}
	})
}

func TestQueryIncrementalUpdates(t *testing.T) {
	reg := newRegistry(t, "fast", "slow")
	gate := make(chan struct{})
	f := &stubFetcher{replies: map[string]*reply{
		"fast": {streams: []stremio.Candidate{stream("fast", "f 1080p")}},
		"slow": {streams: []stremio.Candidate{stream("slow", "s 2160p")}, gate: gate},
	}}
	updates := make(chan View, 2)
	obs := ObserverFuncs{ProviderUpdate: func(_ ProviderState, v View) { updates <- v }}
	q := New(reg, f, 0).Query(context.Background(), Request{ContentID: "tt1", Type: "movie"}, obs)

	select {
	case v := <-updates:
		if len(v.Streams) != 1 || v.Streams[0].Title != "f 1080p" {
			t.Errorf("first update streams = %+v", v.Streams)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fast provider result was held back by the slow one")
	}
	close(gate)
	if v := wait(t, q); len(v.Streams) != 2 {
		t.Errorf("final streams = %d", len(v.Streams))
	}
}

func TestQueryCancelDropsLateResults(t *testing.T) {
	reg := newRegistry(t, "A")
	gate := make(chan struct{})
	f := &stubFetcher{replies: map[string]*reply{
		"A": {streams: []stremio.Candidate{stream("A", "late")}, gate: gate},
	}}
	rec := &recorder{}
	q := New(reg, f, 0).Query(context.Background(), Request{ContentID: "tt1", Type: "movie"}, rec)

	q.Cancel()
	q.Cancel()
	close(gate)
	wait(t, q)
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.updates) != 0 || len(rec.complete) != 0 {
		t.Errorf("callbacks after cancel: updates=%d complete=%d", len(rec.updates), len(rec.complete))
	}
	if !q.Cancelled() {
		t.Error("Cancelled() = false")
	}
}

func TestQueryContextCancel(t *testing.T) {
	reg := newRegistry(t, "A")
	f := &stubFetcher{replies: map[string]*reply{"A": {gate: make(chan struct{})}}}
	ctx, cancel := context.WithCancel(context.Background())
	q := New(reg, f, 0).Query(ctx, Request{ContentID: "tt1", Type: "movie"}, nil)
	cancel()
	wait(t, q)
	if !q.Cancelled() {
		t.Error("query not cancelled with its context")
	}
}

func TestQueryStillFetching(t *testing.T) {
	reg := newRegistry(t, "A", "B")
	gate := make(chan struct{})
	f := &stubFetcher{replies: map[string]*reply{
		"A": {streams: []stremio.Candidate{stream("A", "a")}},
		"B": {gate: gate},
	}}
	still := make(chan []string, 1)
	obs := ObserverFuncs{StillFetching: func(p []string) { still <- p }}
	q := New(reg, f, 20*time.Millisecond).Query(context.Background(), Request{ContentID: "tt1", Type: "movie"}, obs)

	select {
	case p := <-still:
		if fmt.Sprint(p) != "[B]" {
			t.Errorf("pending = %v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("still-fetching signal not sent")
	}
	close(gate)
	wait(t, q)
}

func TestSlowProviderIsNotAborted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"streams":[{"url":"https://cdn.example.com/late.mp4","title":"late 1080p"}]}`))
	}))
	defer srv.Close()

	reg, err := addon.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	m := &stremio.Manifest{
		ID:        "slow",
		Name:      "Slow",
		Resources: []stremio.ResourceItem{{Name: addon.ResourceStream}},
	}
	if err := reg.Install(m, srv.URL+"/manifest.json", false); err != nil {
		t.Fatalf("Install: %v", err)
	}

	still := make(chan []string, 1)
	obs := ObserverFuncs{StillFetching: func(p []string) { still <- p }}
	q := New(reg, NewHTTPFetcher(), 100*time.Millisecond).Query(context.Background(), Request{ContentID: "tt1", Type: "movie"}, obs)

	select {
	case p := <-still:
		if fmt.Sprint(p) != "[slow]" {
			t.Errorf("pending = %v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("still-fetching signal not sent")
	}

	v := wait(t, q)
	if len(v.Providers) != 1 || v.Providers[0].Status != StatusFulfilled {
		t.Fatalf("providers = %+v", v.Providers)
	}
	if v.Outcome != OutcomeStreams || len(v.Streams) != 1 {
		t.Errorf("outcome = %s streams = %d", v.Outcome, len(v.Streams))
	}
}

func TestViewDeterministic(t *testing.T) {
	reg := newRegistry(t, "A", "B")
	f := &stubFetcher{replies: map[string]*reply{
		"A": {streams: []stremio.Candidate{stream("A", "a")}},
		"B": {streams: []stremio.Candidate{stream("B", "b")}},
	}}
	for i := 0; i < 10; i++ {
		v := wait(t, New(reg, f, 0).Query(context.Background(), Request{ContentID: "tt1", Type: "movie"}, nil))
		if v.Streams[0].Title != "a" || v.Streams[1].Title != "b" {
			t.Fatalf("run %d: order = %v", i, v.Streams)
		}
		if len(v.Groups()) != 2 {
			t.Fatalf("groups = %d", len(v.Groups()))
		}
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cfg/stream/series/tt1:1:2.json":
			w.Write([]byte(`{"streams":[
				{"url":"https://cdn.example.com/a.mkv","name":"Prov\n1080p","title":"Show S01E02","behaviorHints":{"cached":true,"videoSize":"1024","proxyHeaders":{"request":{"User-Agent":"x"}}}},
				{"infoHash":"abcdef","title":"torrent only"},
				{"externalUrl":"https://example.com/watch","title":"external"}
			]}`))
		case "/cfg/stream/movie/missing.json":
			http.NotFound(w, r)
		case "/cfg/stream/movie/broken.json":
			w.Write([]byte(`{"streams":`))
		default:
			http.Error(w, "nope", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher()
	entry := addon.Entry{
		Manifest:     &stremio.Manifest{ID: "prov", Name: "Prov"},
		TransportURL: srv.URL + "/cfg/manifest.json",
	}
	ctx := context.Background()

	streams, err := f.FetchStreams(ctx, entry, Request{ContentID: "tt1", Type: "series", EpisodeID: "tt1:1:2"})
	if err != nil {
		t.Fatalf("FetchStreams: %v", err)
	}
	if len(streams) != 3 {
		t.Fatalf("streams = %d, want 3", len(streams))
	}
	if streams[1].URL != "magnet:?xt=urn:btih:abcdef" {
		t.Errorf("infoHash-only stream url = %q, want magnet link", streams[1].URL)
	}
	s := streams[0]
	if !s.Cached || s.SizeBytes != 1024 || s.Headers["User-Agent"] != "x" || s.AddonID != "prov" {
		t.Errorf("candidate = %+v", s)
	}

	if got, err := f.FetchStreams(ctx, entry, Request{ContentID: "missing", Type: "movie"}); err != nil || len(got) != 0 {
		t.Errorf("404: streams=%v err=%v", got, err)
	}
	if _, err := f.FetchStreams(ctx, entry, Request{ContentID: "broken", Type: "movie"}); !errors.Is(err, addon.ErrInvalidSchema) {
		t.Errorf("broken: err = %v", err)
	}
	if _, err := f.FetchStreams(ctx, entry, Request{ContentID: "other", Type: "movie"}); !errors.Is(err, addon.ErrUnreachable) {
		t.Errorf("500: err = %v", err)
	}
}

func TestStreamURL(t *testing.T) {
	got := StreamURL("https://a.example.com/x/manifest.json", Request{ContentID: "tt9", Type: "movie"})
	if got != "https://a.example.com/x/stream/movie/tt9.json" {
		t.Errorf("StreamURL = %q", got)
	}
}
