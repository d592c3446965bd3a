package probe

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"streamhub/pkg/logger"
	"streamhub/pkg/metrics"
)

// DefaultBudget is how long a probe may take when the caller gives no budget
const DefaultBudget = 600 * time.Millisecond

var matroskaTypes = map[string]bool{
	"video/x-matroska":       true,
	"video/matroska":         true,
	"audio/x-matroska":       true,
	"audio/matroska":         true,
	"video/mkv":              true,
	"application/x-matroska": true,
}

// IsMatroskaType reports whether a Content-Type value names a Matroska container
func IsMatroskaType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return matroskaTypes[mediaType]
}

// Prober sniffs the container of a remote stream with a HEAD request.
// Answers are advisory: false means "not detected", never "not Matroska".
type Prober struct {
	client *http.Client
	cache  *expirable.LRU[string, bool]
}

// New creates a prober. cacheSize <= 0 disables caching.
func New(cacheSize int, ttl time.Duration) *Prober {
	p := &Prober{
		client: &http.Client{
			// Redirects are followed; the overall bound comes from the per-call budget.
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
	}
	if cacheSize > 0 {
		p.cache = expirable.NewLRU[string, bool](cacheSize, nil, ttl)
	}
	return p
}

// NewWithClient is New with a caller-supplied HTTP client
func NewWithClient(hc *http.Client, cacheSize int, ttl time.Duration) *Prober {
	p := New(cacheSize, ttl)
	if hc != nil {
		p.client = hc
	}
	return p
}

// IsMatroska returns true only if a HEAD response arrived within budget and
// declared a Matroska media type. Errors, timeouts and non-HTTP(S) URLs all
// yield false.
func (p *Prober) IsMatroska(ctx context.Context, rawURL string, headers map[string]string, budget time.Duration) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		metrics.ProbeResultsTotal.WithLabelValues("inconclusive").Inc()
		return false
	}

	if p.cache != nil {
		if v, ok := p.cache.Get(rawURL); ok {
			metrics.ProbeCacheHitsTotal.Inc()
			return v
		}
	}

	if budget <= 0 {
		budget = DefaultBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		metrics.ProbeResultsTotal.WithLabelValues("inconclusive").Inc()
		return false
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		logger.Debug("Container probe inconclusive", "url", u.Host, "err", err, "elapsed", time.Since(start))
		metrics.ProbeResultsTotal.WithLabelValues("inconclusive").Inc()
		return false
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Debug("Container probe got non-2xx", "url", u.Host, "status", resp.StatusCode)
		metrics.ProbeResultsTotal.WithLabelValues("inconclusive").Inc()
		return false
	}

	isMKV := IsMatroskaType(resp.Header.Get("Content-Type"))
	if p.cache != nil {
		p.cache.Add(rawURL, isMKV)
	}
	if isMKV {
		metrics.ProbeResultsTotal.WithLabelValues("matroska").Inc()
	} else {
		metrics.ProbeResultsTotal.WithLabelValues("other").Inc()
	}
	logger.Debug("Container probe", "url", u.Host, "content_type", resp.Header.Get("Content-Type"), "matroska", isMKV, "elapsed", time.Since(start))
	return isMKV
}
