package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"streamhub/pkg/addon"
	"streamhub/pkg/aggregate"
	"streamhub/pkg/config"
	"streamhub/pkg/logger"
	"streamhub/pkg/parser"
	"streamhub/pkg/playback"
	"streamhub/pkg/progress"
	"streamhub/pkg/ranking"
	"streamhub/pkg/stremio"
)

// RankedStream is one entry of the ranked view
type RankedStream struct {
	Stream     stremio.Candidate  `json:"stream"`
	Key        ranking.Key        `json:"key"`
	Annotation *parser.Annotation `json:"annotation,omitempty"`
}

// RankedView is a filtered and ranked projection of an aggregate view
type RankedView struct {
	Request   aggregate.Request         `json:"request"`
	Outcome   aggregate.Outcome         `json:"outcome"`
	Pending   int                       `json:"pending"`
	Providers []aggregate.ProviderState `json:"providers"`
	Streams   []RankedStream            `json:"streams"`
}

// Selection is a routed stream plus where to resume it
type Selection struct {
	Route  playback.Route     `json:"route"`
	Resume *progress.Position `json:"resume,omitempty"`
}

// Observer receives ranked progress for one query. Calls are sequential.
type Observer interface {
	OnRanked(view RankedView)
	OnStillFetching(pending []string)
	OnComplete(view RankedView)
}

// AutoplayObserver is an Observer that also wants the best stream played when
// the query completes with autoplay enabled. Observers that do not implement
// it never cause a launch.
type AutoplayObserver interface {
	Observer
	OnAutoplay(sel Selection)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped.
// It opts into autoplay only when Autoplay is set.
type ObserverFuncs struct {
	Ranked        func(RankedView)
	StillFetching func([]string)
	Complete      func(RankedView)
	Autoplay      func(Selection)
}

func (o ObserverFuncs) OnRanked(v RankedView) {
	if o.Ranked != nil {
		o.Ranked(v)
	}
}

func (o ObserverFuncs) OnStillFetching(p []string) {
	if o.StillFetching != nil {
		o.StillFetching(p)
	}
}

func (o ObserverFuncs) OnComplete(v RankedView) {
	if o.Complete != nil {
		o.Complete(v)
	}
}

func (o ObserverFuncs) OnAutoplay(s Selection) {
	if o.Autoplay != nil {
		o.Autoplay(s)
	}
}

// Options wires an Engine
type Options struct {
	Registry   *addon.Registry
	Manifests  addon.ManifestFetcher
	Aggregator *aggregate.Aggregator
	Router     *playback.Router
	Progress   progress.Store
	Settings   config.Settings
}

// Engine is the entry point the UI layer talks to
type Engine struct {
	registry   *addon.Registry
	manifests  addon.ManifestFetcher
	aggregator *aggregate.Aggregator
	router     *playback.Router
	progress   progress.Store
	settings   atomic.Pointer[config.Settings]
}

// New creates an engine
func New(opts Options) *Engine {
	e := &Engine{
		registry:   opts.Registry,
		manifests:  opts.Manifests,
		aggregator: opts.Aggregator,
		router:     opts.Router,
		progress:   opts.Progress,
	}
	if e.router == nil {
		e.router = playback.NewRouter(playback.Options{})
	}
	s := opts.Settings.Clone()
	s.StreamSortMode = config.ParseSortMode(string(s.StreamSortMode))
	e.settings.Store(&s)
	return e
}

// Registry returns the provider registry
func (e *Engine) Registry() *addon.Registry {
	return e.registry
}

// Settings returns a copy of the current settings snapshot
func (e *Engine) Settings() config.Settings {
	return e.settings.Load().Clone()
}

// UpdateSettings publishes a new settings snapshot. Running queries pick it
// up on their next ranking pass.
func (e *Engine) UpdateSettings(s config.Settings) {
	s = s.Clone()
	s.StreamSortMode = config.ParseSortMode(string(s.StreamSortMode))
	if s.PreferredPlayer == "" {
		s.PreferredPlayer = config.PlayerInternal
	}
	e.settings.Store(&s)
	logger.Info("Settings updated", "sort", s.StreamSortMode, "player", s.PreferredPlayer, "excluded", len(s.ExcludedQualities))
}

// InstallAddon fetches the manifest at rawURL and installs it
func (e *Engine) InstallAddon(ctx context.Context, rawURL string, replace bool) (*stremio.Manifest, error) {
	m, transportURL, err := e.manifests.FetchManifest(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := e.registry.Install(m, transportURL, replace); err != nil {
		return nil, err
	}
	return m, nil
}

// RefreshAddons re-fetches every installed manifest
func (e *Engine) RefreshAddons(ctx context.Context) map[string]error {
	return e.registry.Refresh(ctx, e.manifests, 4)
}

// ConfigureURL resolves the configuration page of an installed provider
func (e *Engine) ConfigureURL(id string) (string, bool) {
	entry, ok := e.registry.Snapshot().Lookup(id)
	if !ok {
		return "", false
	}
	return addon.ResolveConfigURL(entry.Manifest, entry.TransportURL)
}

// Rank filters and ranks an aggregate view against the current registry
// snapshot and settings.
func (e *Engine) Rank(v aggregate.View) RankedView {
	return e.rank(v, e.Settings(), e.registry.Snapshot(), nil)
}

func (e *Engine) rank(v aggregate.View, s config.Settings, snap *addon.Snapshot, annotations *annotationCache) RankedView {
	filtered := ranking.Filter(v.Streams, s.ExcludedQualities)
	ranked := ranking.RankKeyed(filtered, s.StreamSortMode, snap)

	out := RankedView{
		Request:   v.Request,
		Outcome:   v.Outcome,
		Pending:   v.Pending,
		Providers: v.Providers,
		Streams:   make([]RankedStream, len(ranked)),
	}
	for i, r := range ranked {
		out.Streams[i] = RankedStream{
			Stream:     r.Stream,
			Key:        r.Key,
			Annotation: annotations.get(r.Stream.DisplayText()),
		}
	}
	// Streams that exist but were all filtered out read as "no streams" once
	// every provider has finished.
	if len(out.Streams) == 0 && v.Outcome == aggregate.OutcomeStreams {
		if v.Pending > 0 {
			out.Outcome = aggregate.OutcomeFetching
		} else {
			out.Outcome = aggregate.OutcomeNoStreams
		}
	}
	return out
}

// autoplayTarget returns the observer to hand an autoplay selection to, or nil
func autoplayTarget(obs Observer) AutoplayObserver {
	switch o := obs.(type) {
	case ObserverFuncs:
		if o.Autoplay == nil {
			return nil
		}
		return o
	case AutoplayObserver:
		return o
	}
	return nil
}

// QueryStreams starts a stream query. Every provider update produces a fresh
// ranked view. When the query completes, autoplay is on and obs opts in via
// AutoplayObserver, the best stream is routed and reported through OnAutoplay.
func (e *Engine) QueryStreams(ctx context.Context, req aggregate.Request, obs Observer) *aggregate.Query {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	autoplay := autoplayTarget(obs)
	annotations := newAnnotationCache()

	var q *aggregate.Query
	ready := make(chan struct{})

	inner := aggregate.ObserverFuncs{
		ProviderUpdate: func(_ aggregate.ProviderState, v aggregate.View) {
			obs.OnRanked(e.rank(v, e.Settings(), e.registry.Snapshot(), annotations))
		},
		StillFetching: obs.OnStillFetching,
		Complete: func(v aggregate.View) {
			s := e.Settings()
			snap := e.registry.Snapshot()
			obs.OnComplete(e.rank(v, s, snap, annotations))

			if autoplay == nil || !s.AutoplayBestStream {
				return
			}
			best, ok := ranking.BestStream(v.Groups(), s.ExcludedQualities, s.StreamSortMode, snap)
			if !ok {
				logger.Debug("Autoplay found no stream", "content", v.Request.ContentID)
				return
			}
			<-ready
			if q.Cancelled() {
				return
			}
			logger.Info("Autoplaying best stream", "content", v.Request.ContentID, "addon", best.AddonID)
			autoplay.OnAutoplay(e.Play(ctx, v.Request, best))
		},
	}

	q = e.aggregator.Query(ctx, req, inner)
	close(ready)
	return q
}

// SelectStream routes a stream chosen by the user
func (e *Engine) SelectStream(ctx context.Context, c stremio.Candidate) playback.Route {
	return e.router.Route(ctx, c, e.Settings())
}

// Play routes c and attaches the stored resume position for req
func (e *Engine) Play(ctx context.Context, req aggregate.Request, c stremio.Candidate) Selection {
	sel := Selection{Route: e.SelectStream(ctx, c)}
	if e.progress != nil && sel.Route.Kind != playback.KindRejected {
		if p, ok := e.progress.Get(req.ContentID, req.Type, req.EpisodeID); ok {
			sel.Resume = &p
		}
	}
	return sel
}

// SaveProgress records the playback position for an item
func (e *Engine) SaveProgress(req aggregate.Request, p progress.Position) error {
	if e.progress == nil {
		return fmt.Errorf("no progress store configured")
	}
	return e.progress.Set(req.ContentID, req.Type, req.EpisodeID, p)
}

// annotationCache memoises go-ptt parses for the lifetime of one query
type annotationCache struct {
	mu    sync.Mutex
	items map[string]*parser.Annotation
}

func newAnnotationCache() *annotationCache {
	return &annotationCache{items: map[string]*parser.Annotation{}}
}

func (c *annotationCache) get(text string) *parser.Annotation {
	if c == nil {
		return parser.Annotate(text)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.items[text]; ok {
		return a
	}
	a := parser.Annotate(text)
	c.items[text] = a
	return a
}
