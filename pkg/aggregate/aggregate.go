package aggregate

import (
	"context"
	"strings"
	"sync"
	"time"

	"streamhub/pkg/addon"
	"streamhub/pkg/logger"
	"streamhub/pkg/metrics"
	"streamhub/pkg/stremio"
)

// Request identifies the content a stream query is for
type Request struct {
	ContentID string `json:"contentId"`
	Type      string `json:"type"`
	EpisodeID string `json:"episodeId,omitempty"`
}

// StreamID is the id sent to providers: the episode id when one is given,
// the content id otherwise.
func (r Request) StreamID() string {
	if r.EpisodeID != "" {
		return r.EpisodeID
	}
	return r.ContentID
}

// Status of one provider within a query
type Status string

const (
	StatusPending   Status = "pending"
	StatusFulfilled Status = "fulfilled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the provider has finished
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusFailed
}

// Outcome is the user-facing summary of a view
type Outcome string

const (
	// OutcomeFetching: nothing to show yet and providers are still pending.
	OutcomeFetching Outcome = "fetching"
	// OutcomeStreams: at least one stream is available.
	OutcomeStreams Outcome = "streams"
	// OutcomeNoStreams: every provider finished and none returned a stream.
	OutcomeNoStreams Outcome = "no-streams"
	// OutcomeNoProviders: no installed provider can serve this content type.
	OutcomeNoProviders Outcome = "no-providers"
)

// ProviderState is the status of one provider within a query
type ProviderState struct {
	AddonID   string              `json:"addonId"`
	AddonName string              `json:"addonName"`
	Status    Status              `json:"status"`
	Streams   []stremio.Candidate `json:"streams,omitempty"`
	Err       error               `json:"-"`
	Reason    string              `json:"reason,omitempty"`
	Elapsed   time.Duration       `json:"elapsed"`
}

func (p ProviderState) clone() ProviderState {
	p.Streams = append([]stremio.Candidate(nil), p.Streams...)
	return p
}

// View is the merged state of a query at one instant. Streams is the union of
// every fulfilled provider's streams in registry order, so the same set of
// resolved providers always yields the same view.
type View struct {
	Request   Request             `json:"request"`
	Providers []ProviderState     `json:"providers"`
	Streams   []stremio.Candidate `json:"streams"`
	Pending   int                 `json:"pending"`
	Outcome   Outcome             `json:"outcome"`
}

// Groups returns the fulfilled streams split per provider, in registry order
func (v View) Groups() [][]stremio.Candidate {
	var out [][]stremio.Candidate
	for _, p := range v.Providers {
		if p.Status == StatusFulfilled {
			out = append(out, p.Streams)
		}
	}
	return out
}

// PendingIDs lists the providers that have not finished
func (v View) PendingIDs() []string {
	var out []string
	for _, p := range v.Providers {
		if p.Status == StatusPending {
			out = append(out, p.AddonID)
		}
	}
	return out
}

// Observer receives query progress. Callbacks for one query are delivered
// sequentially from a single goroutine and stop once the query is cancelled.
type Observer interface {
	OnProviderUpdate(state ProviderState, view View)
	OnStillFetching(pending []string)
	OnComplete(view View)
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped.
type ObserverFuncs struct {
	ProviderUpdate func(ProviderState, View)
	StillFetching  func([]string)
	Complete       func(View)
}

func (o ObserverFuncs) OnProviderUpdate(state ProviderState, view View) {
	if o.ProviderUpdate != nil {
		o.ProviderUpdate(state, view)
	}
}

func (o ObserverFuncs) OnStillFetching(pending []string) {
	if o.StillFetching != nil {
		o.StillFetching(pending)
	}
}

func (o ObserverFuncs) OnComplete(view View) {
	if o.Complete != nil {
		o.Complete(view)
	}
}

// SnapshotSource is satisfied by *addon.Registry
type SnapshotSource interface {
	Snapshot() *addon.Snapshot
}

// Aggregator fans stream queries out to every capable provider
type Aggregator struct {
	registry           SnapshotSource
	fetcher            StreamFetcher
	stillFetchingAfter time.Duration
}

// New creates an aggregator. stillFetchingAfter <= 0 disables the
// still-fetching signal.
func New(registry SnapshotSource, fetcher StreamFetcher, stillFetchingAfter time.Duration) *Aggregator {
	return &Aggregator{
		registry:           registry,
		fetcher:            fetcher,
		stillFetchingAfter: stillFetchingAfter,
	}
}

type result struct {
	index   int
	streams []stremio.Candidate
	err     error
	elapsed time.Duration
}

// Query is a running stream query
type Query struct {
	req Request

	mu     sync.Mutex
	states []ProviderState

	done       chan struct{}
	cancelCh   chan struct{}
	cancelOnce sync.Once
	stopFetch  context.CancelFunc
}

// Query starts fetching streams for req from every provider that declares the
// stream resource for req.Type. It returns immediately; progress goes to obs
// (which may be nil). Cancelling ctx or calling Cancel abandons the query:
// in-flight requests are aborted and late results are dropped.
func (a *Aggregator) Query(ctx context.Context, req Request, obs Observer) *Query {
	if obs == nil {
		obs = ObserverFuncs{}
	}
	req.Type = strings.TrimSpace(req.Type)

	providers := a.registry.Snapshot().CapableProviders(addon.ResourceStream, req.Type)

	fetchCtx, stopFetch := context.WithCancel(context.WithoutCancel(ctx))
	q := &Query{
		req:       req,
		states:    make([]ProviderState, len(providers)),
		done:      make(chan struct{}),
		cancelCh:  make(chan struct{}),
		stopFetch: stopFetch,
	}
	for i, p := range providers {
		q.states[i] = ProviderState{AddonID: p.ID(), AddonName: p.Name(), Status: StatusPending}
	}

	logger.Debug("Starting stream query", "content", req.ContentID, "type", req.Type, "episode", req.EpisodeID, "providers", len(providers))

	// Buffered to the provider count so abandoned fetches never block.
	results := make(chan result, len(providers))
	for i, p := range providers {
		go func(i int, p addon.Entry) {
			start := time.Now()
			streams, err := a.fetcher.FetchStreams(fetchCtx, p, req)
			results <- result{index: i, streams: streams, err: err, elapsed: time.Since(start)}
		}(i, p)
	}

	go func() {
		select {
		case <-ctx.Done():
			q.Cancel()
		case <-q.done:
		}
	}()

	go a.dispatch(q, results, len(providers), obs)
	return q
}

func (a *Aggregator) dispatch(q *Query, results <-chan result, remaining int, obs Observer) {
	defer close(q.done)
	defer q.stopFetch()

	if remaining > 0 {
		metrics.QueriesInFlight.Inc()
		defer metrics.QueriesInFlight.Dec()
	}

	var stillFetching <-chan time.Time
	if a.stillFetchingAfter > 0 && remaining > 0 {
		timer := time.NewTimer(a.stillFetchingAfter)
		defer timer.Stop()
		stillFetching = timer.C
	}

	for remaining > 0 {
		select {
		case <-q.cancelCh:
			logger.Debug("Stream query abandoned", "content", q.req.ContentID, "pending", remaining)
			return
		case <-stillFetching:
			stillFetching = nil
			if pending := q.View().PendingIDs(); len(pending) > 0 {
				obs.OnStillFetching(pending)
			}
		case r := <-results:
			remaining--
			state := q.apply(r)
			select {
			case <-q.cancelCh:
				return
			default:
			}
			obs.OnProviderUpdate(state, q.View())
		}
	}

	select {
	case <-q.cancelCh:
		return
	default:
	}
	view := q.View()
	logger.Debug("Stream query complete", "content", q.req.ContentID, "streams", len(view.Streams), "outcome", view.Outcome)
	obs.OnComplete(view)
}

func (q *Query) apply(r result) ProviderState {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := &q.states[r.index]
	st.Elapsed = r.elapsed
	metrics.ProviderRequestDuration.WithLabelValues(st.AddonID).Observe(r.elapsed.Seconds())
	if r.err != nil {
		st.Status = StatusFailed
		st.Err = r.err
		st.Reason = r.err.Error()
		metrics.ProviderRequestsTotal.WithLabelValues(st.AddonID, "error").Inc()
		logger.Warn("Addon stream request failed", "addon", st.AddonID, "err", r.err, "elapsed", r.elapsed)
	} else {
		st.Status = StatusFulfilled
		st.Streams = r.streams
		if st.Streams == nil {
			st.Streams = []stremio.Candidate{}
		}
		metrics.ProviderRequestsTotal.WithLabelValues(st.AddonID, "ok").Inc()
		metrics.ProviderStreams.WithLabelValues(st.AddonID).Observe(float64(len(st.Streams)))
		logger.Debug("Addon streams received", "addon", st.AddonID, "count", len(st.Streams), "elapsed", r.elapsed)
	}
	return st.clone()
}

// View returns the merged state right now
func (q *Query) View() View {
	q.mu.Lock()
	defer q.mu.Unlock()

	v := View{
		Request:   q.req,
		Providers: make([]ProviderState, len(q.states)),
		Streams:   []stremio.Candidate{},
	}
	for i, st := range q.states {
		v.Providers[i] = st.clone()
		switch st.Status {
		case StatusPending:
			v.Pending++
		case StatusFulfilled:
			v.Streams = append(v.Streams, st.Streams...)
		}
	}

	switch {
	case len(q.states) == 0:
		v.Outcome = OutcomeNoProviders
	case len(v.Streams) > 0:
		v.Outcome = OutcomeStreams
	case v.Pending > 0:
		v.Outcome = OutcomeFetching
	default:
		v.Outcome = OutcomeNoStreams
	}
	return v
}

// Done is closed once every provider has finished or the query was cancelled
func (q *Query) Done() <-chan struct{} {
	return q.done
}

// Cancel abandons the query. It is safe to call more than once.
func (q *Query) Cancel() {
	q.cancelOnce.Do(func() {
		close(q.cancelCh)
		q.stopFetch()
	})
}

// Cancelled reports whether Cancel was called
func (q *Query) Cancelled() bool {
	select {
	case <-q.cancelCh:
		return true
	default:
		return false
	}
}

// Wait blocks until the query is done or ctx ends and returns the view at that point
func (q *Query) Wait(ctx context.Context) (View, error) {
	select {
	case <-q.done:
		return q.View(), nil
	case <-ctx.Done():
		return q.View(), ctx.Err()
	}
}
