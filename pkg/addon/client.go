package addon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"streamhub/pkg/logger"
	"streamhub/pkg/stremio"
)

const (
	manifestFile     = "manifest.json"
	maxManifestBytes = 2 << 20
)

// Client fetches and validates provider manifests. It never retries; the
// caller decides whether to try again.
type Client struct {
	http  *http.Client
	group singleflight.Group
}

// NewClient creates a manifest client. A zero timeout leaves requests bounded
// only by the caller's context.
func NewClient(timeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// NewClientWithHTTP wraps an existing http.Client (used by tests and the API server)
func NewClientWithHTTP(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc}
}

type fetchResult struct {
	manifest     *stremio.Manifest
	transportURL string
}

// FetchManifest GETs the manifest behind rawURL and returns it together with
// the normalized transport URL it was fetched from. Concurrent calls for the
// same URL share one request.
func (c *Client) FetchManifest(ctx context.Context, rawURL string) (*stremio.Manifest, string, error) {
	transportURL, err := NormalizeManifestURL(rawURL)
	if err != nil {
		return nil, "", err
	}

	// The shared request outlives any single caller; each caller still
	// stops waiting when its own context ends.
	ch := c.group.DoChan(transportURL, func() (interface{}, error) {
		m, err := c.fetch(context.WithoutCancel(ctx), transportURL)
		if err != nil {
			return nil, err
		}
		return &fetchResult{manifest: m, transportURL: transportURL}, nil
	})

	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("%w: %w", ErrUnreachable, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, "", r.Err
		}
		res := r.Val.(*fetchResult)
		if r.Shared {
			return res.manifest.Clone(), res.transportURL, nil
		}
		return res.manifest, res.transportURL, nil
	}
}

func (c *Client) fetch(ctx context.Context, transportURL string) (*stremio.Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnreachable, transportURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnreachable, err)
	}

	m, err := ParseManifest(body)
	if err != nil {
		return nil, err
	}
	logger.Debug("Fetched addon manifest", "id", m.ID, "url", transportURL, "duration", time.Since(start))
	return m, nil
}

// ParseManifest decodes and minimally validates a manifest document
func ParseManifest(body []byte) (*stremio.Manifest, error) {
	var m stremio.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the required manifest fields
func Validate(m *stremio.Manifest) error {
	if m == nil {
		return fmt.Errorf("%w: empty manifest", ErrInvalidSchema)
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSchema)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidSchema)
	}
	return nil
}

// NormalizeManifestURL turns an install link into the URL the manifest is
// served from: stremio:// becomes https://, and manifest.json is appended
// when the path does not already end with it.
func NormalizeManifestURL(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if strings.HasPrefix(strings.ToLower(raw), "stremio://") {
		raw = "https://" + raw[len("stremio://"):]
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrUnreachable, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrUnreachable, rawURL)
	}
	if strings.HasSuffix(u.Path, "/"+manifestFile) || u.Path == manifestFile {
		return raw, nil
	}

	// Work on the raw string so provider config segments keep their original escaping.
	base, suffix := raw, ""
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base, suffix = base[:i], base[i:]
	}
	return strings.TrimRight(base, "/") + "/" + manifestFile + suffix, nil
}

// BaseURL returns the transport URL without its manifest.json segment, the
// prefix every resource path (/stream/..., /catalog/...) hangs off.
func BaseURL(transportURL string) string {
	base := transportURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, manifestFile)
	return strings.TrimRight(base, "/")
}
