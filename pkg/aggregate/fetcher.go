package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"streamhub/pkg/addon"
	"streamhub/pkg/stremio"
)

const maxStreamBodyBytes = 8 << 20

// StreamFetcher loads the streams one provider offers for a request
type StreamFetcher interface {
	FetchStreams(ctx context.Context, provider addon.Entry, req Request) ([]stremio.Candidate, error)
}

// HTTPFetcher speaks the addon stream protocol over HTTP
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher without a request deadline. A slow
// provider stays pending, and is reported as still fetching, until it answers
// or the query's context ends.
func NewHTTPFetcher() *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	return &HTTPFetcher{
		client: &http.Client{Transport: transport},
	}
}

// NewHTTPFetcherWithClient wraps an existing client
func NewHTTPFetcherWithClient(hc *http.Client) *HTTPFetcher {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPFetcher{client: hc}
}

// StreamURL builds {base}/stream/{type}/{id}.json for a provider
func StreamURL(transportURL string, req Request) string {
	return fmt.Sprintf("%s/stream/%s/%s.json",
		addon.BaseURL(transportURL),
		url.PathEscape(req.Type),
		url.PathEscape(req.StreamID()))
}

func (f *HTTPFetcher) FetchStreams(ctx context.Context, provider addon.Entry, req Request) ([]stremio.Candidate, error) {
	endpoint := StreamURL(provider.TransportURL, req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", addon.ErrUnreachable, err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", addon.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Providers answer 404 for content they do not know.
		return []stremio.Candidate{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", addon.ErrUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStreamBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", addon.ErrUnreachable, err)
	}
	var sr stremio.StreamResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("%w: decoding streams: %v", addon.ErrInvalidSchema, err)
	}

	out := make([]stremio.Candidate, 0, len(sr.Streams))
	for _, s := range sr.Streams {
		if c, ok := s.ToCandidate(provider.ID(), provider.Name()); ok {
			out = append(out, c)
		}
	}
	return out, nil
}
