package playback

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"streamhub/pkg/config"
	"streamhub/pkg/logger"
	"streamhub/pkg/metrics"
	"streamhub/pkg/stremio"
)

const (
	formatMatroska        = "mkv"
	matroskaMediaType     = "video/x-matroska"
	defaultHandoffTimeout = 3 * time.Second
)

// ContainerProber is satisfied by *probe.Prober
type ContainerProber interface {
	IsMatroska(ctx context.Context, url string, headers map[string]string, budget time.Duration) bool
}

// Options configures a Router. Nil collaborators disable their branch.
type Options struct {
	Platform           Platform
	Formats            FormatSupport
	Prober             ContainerProber
	ProbeBudget        time.Duration
	Launcher           Launcher
	Handoffs           HandoffTable
	HandoffTimeout     time.Duration
	UnreliableMatroska []string
}

// Router decides which engine or app receives a stream
type Router struct {
	platform           Platform
	formats            FormatSupport
	prober             ContainerProber
	probeBudget        time.Duration
	launcher           Launcher
	handoffs           HandoffTable
	handoffTimeout     time.Duration
	unreliableMatroska map[string]bool
}

// NewRouter creates a router from opts, filling defaults
func NewRouter(opts Options) *Router {
	r := &Router{
		platform:           opts.Platform,
		formats:            opts.Formats,
		prober:             opts.Prober,
		probeBudget:        opts.ProbeBudget,
		launcher:           opts.Launcher,
		handoffs:           opts.Handoffs,
		handoffTimeout:     opts.HandoffTimeout,
		unreliableMatroska: map[string]bool{},
	}
	if r.platform == nil {
		r.platform = StaticPlatform{Name: "linux"}
	}
	if r.handoffs == nil {
		r.handoffs = DefaultHandoffs
	}
	if r.handoffTimeout <= 0 {
		r.handoffTimeout = defaultHandoffTimeout
	}
	unreliable := opts.UnreliableMatroska
	if unreliable == nil {
		unreliable = DefaultUnreliableMatroska
	}
	for _, name := range unreliable {
		r.unreliableMatroska[strings.ToLower(name)] = true
	}
	return r
}

// Route walks the decision chain and always returns exactly one terminal
// route. Only a magnet link is rejected; every other failure falls through to
// the default internal engine.
func (r *Router) Route(ctx context.Context, c stremio.Candidate, s config.Settings) Route {
	route := r.decide(ctx, c, s)
	if route.Err != nil {
		route.Error = route.Err.Error()
	}
	metrics.RoutesTotal.WithLabelValues(string(route.Kind)).Inc()
	logger.Debug("Routed stream", "addon", c.AddonID, "kind", route.Kind, "reason", route.Reason, "player", route.Player, "attempts", len(route.Attempts))
	return route
}

func (r *Router) decide(ctx context.Context, c stremio.Candidate, s config.Settings) Route {
	if isMagnet(c.URL) {
		return Route{
			Kind:   KindRejected,
			Reason: ReasonMagnet,
			Stream: c,
			Err:    fmt.Errorf("%w: magnet links are not playable", ErrUnsupportedScheme),
		}
	}

	platforms := platformNames(r.platform)
	if r.formats != nil {
		for _, p := range platforms {
			if r.formats.SupportsFormat(p, c.AddonID, formatMatroska) {
				return Route{Kind: KindInternalAlt, Reason: ReasonProviderFormat, Stream: c}
			}
		}
	}

	if r.prober != nil && r.unreliable(platforms) {
		if r.prober.IsMatroska(ctx, c.URL, c.Headers, r.probeBudget) {
			return Route{Kind: KindInternalAlt, Reason: ReasonProbeMatroska, Stream: withContainerHeader(c)}
		}
	}

	if !s.Internal() {
		return r.handoff(ctx, c, s.PreferredPlayer)
	}
	if s.UseExternalPlayer {
		return r.direct(ctx, c, nil)
	}
	return Route{Kind: KindInternalDefault, Reason: ReasonDefault, Stream: c}
}

func (r *Router) unreliable(platforms []string) bool {
	for _, p := range platforms {
		if r.unreliableMatroska[p] {
			return true
		}
	}
	return false
}

// handoff tries every invocation of the preferred player, then the raw URL,
// then gives up to the default engine.
func (r *Router) handoff(ctx context.Context, c stremio.Candidate, player string) Route {
	var attempts []Attempt
	if h, ok := r.handoffs.Lookup(player); ok {
		for _, inv := range h.Invocations(c.URL) {
			err := r.open(ctx, h.Player, inv)
			attempts = append(attempts, attempt(h.Player, inv, err))
			if err == nil {
				return Route{
					Kind:          KindExternal,
					Reason:        ReasonPreferredPlayer,
					Stream:        c,
					Player:        h.Player,
					InvocationURL: inv,
					Attempts:      attempts,
				}
			}
		}
	} else {
		logger.Debug("No handoff known for player", "player", player)
	}
	return r.direct(ctx, c, attempts)
}

func (r *Router) direct(ctx context.Context, c stremio.Candidate, attempts []Attempt) Route {
	err := r.open(ctx, "", c.URL)
	attempts = append(attempts, attempt("", c.URL, err))
	if err == nil {
		return Route{
			Kind:          KindExternalDirect,
			Reason:        ReasonDirectOpen,
			Stream:        c,
			InvocationURL: c.URL,
			Attempts:      attempts,
		}
	}
	return Route{
		Kind:     KindInternalDefault,
		Reason:   ReasonHandoffExhausted,
		Stream:   c,
		Attempts: attempts,
		Err:      err,
	}
}

func (r *Router) open(ctx context.Context, player, target string) error {
	label := player
	if label == "" {
		label = "direct"
	}
	if r.launcher == nil {
		metrics.HandoffAttemptsTotal.WithLabelValues(label, "unavailable").Inc()
		return fmt.Errorf("%w: no launcher configured", ErrHandoffFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, r.handoffTimeout)
	defer cancel()
	if err := r.launcher.Open(ctx, target); err != nil {
		metrics.HandoffAttemptsTotal.WithLabelValues(label, "failed").Inc()
		logger.Debug("Handoff attempt failed", "player", label, "err", err)
		return fmt.Errorf("%w: %v", ErrHandoffFailed, err)
	}
	metrics.HandoffAttemptsTotal.WithLabelValues(label, "ok").Inc()
	return nil
}

func attempt(player, target string, err error) Attempt {
	a := Attempt{Player: player, URL: target}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

func isMagnet(raw string) bool {
	raw = strings.TrimSpace(raw)
	if u, err := url.Parse(raw); err == nil && strings.EqualFold(u.Scheme, "magnet") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(raw), "magnet:")
}

// withContainerHeader returns a copy of c whose headers tell the engine the
// body is Matroska.
func withContainerHeader(c stremio.Candidate) stremio.Candidate {
	headers := make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		headers[k] = v
	}
	headers["Content-Type"] = matroskaMediaType
	c.Headers = headers
	return c
}
