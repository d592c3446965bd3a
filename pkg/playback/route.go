package playback

import (
	"errors"

	"streamhub/pkg/stremio"
)

var (
	// ErrUnsupportedScheme is attached to routes rejected for a peer-to-peer link
	ErrUnsupportedScheme = errors.New("unsupported stream scheme")
	// ErrHandoffFailed wraps a failed attempt to open an external player
	ErrHandoffFailed = errors.New("external player handoff failed")
)

// Kind is the terminal state a routing decision ends in
type Kind string

const (
	KindRejected        Kind = "rejected"
	KindInternalAlt     Kind = "internal-alt-engine"
	KindExternal        Kind = "external"
	KindExternalDirect  Kind = "external-direct"
	KindInternalDefault Kind = "internal-default"
)

// Reason explains which branch produced a route
type Reason string

const (
	ReasonMagnet           Reason = "magnet-link"
	ReasonProviderFormat   Reason = "provider-declared-format"
	ReasonProbeMatroska    Reason = "probe-matroska"
	ReasonPreferredPlayer  Reason = "preferred-player"
	ReasonDirectOpen       Reason = "direct-open"
	ReasonHandoffExhausted Reason = "handoff-exhausted"
	ReasonDefault          Reason = "default"
)

// Attempt records one external invocation tried on the way to a route
type Attempt struct {
	Player string `json:"player,omitempty"`
	URL    string `json:"url"`
	Error  string `json:"error,omitempty"`
}

// Route is the single terminal outcome of routing one stream
type Route struct {
	Kind   Kind              `json:"kind"`
	Reason Reason            `json:"reason"`
	Stream stremio.Candidate `json:"stream"`
	// Player and InvocationURL are set for external routes
	Player        string    `json:"player,omitempty"`
	InvocationURL string    `json:"invocationUrl,omitempty"`
	Attempts      []Attempt `json:"attempts,omitempty"`
	Err           error     `json:"-"`
	Error         string    `json:"error,omitempty"`
}
