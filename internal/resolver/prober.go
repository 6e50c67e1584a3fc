// Package resolver probes the public URLs of stored objects and picks the
// one to serve.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/folio-cms/media/internal/storage"
)

const DefaultTimeout = 5 * time.Second

// URLCheck is the probe result for one candidate URL.
type URLCheck struct {
	Kind       storage.URLKind `json:"kind"`
	URL        string          `json:"url"`
	Accessible bool            `json:"accessible"`
	Status     int             `json:"status,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type Prober struct {
	urls    *storage.URLManager
	client  *http.Client
	timeout time.Duration
	cache   Cache
	logger  zerolog.Logger
}

type Option func(*Prober)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) { p.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithCache(c Cache) Option {
	return func(p *Prober) { p.cache = c }
}

func NewProber(urls *storage.URLManager, logger zerolog.Logger, opts ...Option) *Prober {
	p := &Prober{
		urls:    urls,
		client:  &http.Client{},
		timeout: DefaultTimeout,
		cache:   noopCache{},
		logger:  logger.With().Str("component", "resolver").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// probe issues one HEAD request bounded by the prober timeout.
func (p *Prober) probe(ctx context.Context, c storage.Candidate) URLCheck {
	check := URLCheck{Kind: c.Kind, URL: c.URL}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.URL, nil)
	if err != nil {
		check.Error = err.Error()
		return check
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			check.Error = fmt.Sprintf("timeout after %s", p.timeout)
		} else {
			check.Error = err.Error()
		}
		return check
	}
	resp.Body.Close()

	check.Status = resp.StatusCode
	check.Accessible = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !check.Accessible {
		check.Error = resp.Status
	}
	return check
}

// CheckURLAccessibility probes every configured URL for key concurrently and
// reports each result in priority order. It never fails as a whole.
func (p *Prober) CheckURLAccessibility(ctx context.Context, key string) []URLCheck {
	candidates := p.urls.AllPossibleURLs(key).Ordered()
	results := make([]URLCheck, len(candidates))

	var g errgroup.Group
	for i, c := range candidates {
		g.Go(func() error {
			results[i] = p.probe(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		p.logger.Debug().
			Str("kind", string(r.Kind)).
			Str("url", r.URL).
			Bool("accessible", r.Accessible).
			Int("status", r.Status).
			Str("error", r.Error).
			Msg("probed url")
	}
	return results
}

// BestAvailableURL tries the candidates one at a time in priority order and
// returns the first reachable one.
func (p *Prober) BestAvailableURL(ctx context.Context, key string) (string, bool) {
	for _, c := range p.urls.AllPossibleURLs(key).Ordered() {
		if p.probe(ctx, c).Accessible {
			return c.URL, true
		}
	}
	return "", false
}

// ResolveWithFallback turns a stored URL, relative path or bare key into the
// best reachable absolute URL. When nothing answers it falls back to the
// canonical URL. URLs that are not ours come back unchanged.
func (p *Prober) ResolveWithFallback(ctx context.Context, urlOrKey string) string {
	urlOrKey = strings.TrimSpace(urlOrKey)
	key, ok := p.urls.ExtractObjectKey(urlOrKey)
	if !ok {
		return urlOrKey
	}

	if cached, found := p.cache.Get(ctx, key); found {
		return cached
	}

	if best, found := p.BestAvailableURL(ctx, key); found {
		if err := p.cache.Set(ctx, key, best); err != nil {
			p.logger.Warn().Err(err).Str("key", key).Msg("failed to cache resolved url")
		}
		return best
	}

	p.logger.Warn().Str("key", key).Msg("no candidate url reachable, using canonical url")
	if canonical, ok := p.urls.PublicURL(key, true); ok {
		return canonical
	}
	return urlOrKey
}
