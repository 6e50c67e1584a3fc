package storage

import (
	"net/url"
	"strings"

	"github.com/folio-cms/media/internal/config"
)

// URLKind names one of the bases an object can be served from.
type URLKind string

const (
	URLCustomDomain URLKind = "custom_domain"
	URLDirect       URLKind = "direct"
	URLDevDomain    URLKind = "dev_domain"
)

// CandidateURLs holds every absolute URL that serves the same key. Empty
// fields mean the base is not configured.
type CandidateURLs struct {
	CustomDomain string `json:"customDomain,omitempty"`
	Direct       string `json:"direct,omitempty"`
	DevDomain    string `json:"devDomain,omitempty"`
}

// Candidate is one entry of a CandidateURLs in priority order.
type Candidate struct {
	Kind URLKind
	URL  string
}

// Ordered returns the configured candidates, custom domain first.
func (c CandidateURLs) Ordered() []Candidate {
	out := make([]Candidate, 0, 3)
	if c.CustomDomain != "" {
		out = append(out, Candidate{Kind: URLCustomDomain, URL: c.CustomDomain})
	}
	if c.Direct != "" {
		out = append(out, Candidate{Kind: URLDirect, URL: c.Direct})
	}
	if c.DevDomain != "" {
		out = append(out, Candidate{Kind: URLDevDomain, URL: c.DevDomain})
	}
	return out
}

// URLManager translates between object keys and public URLs. It does no I/O.
type URLManager struct {
	customDomain string
	direct       string
	devDomain    string
}

func NewURLManager(cfg config.R2Config) *URLManager {
	m := &URLManager{
		customDomain: normalizeBase(cfg.CustomDomain),
		devDomain:    normalizeBase(cfg.DevDomain),
	}
	if endpoint := normalizeBase(cfg.ResolvedEndpoint()); endpoint != "" && cfg.BucketName != "" {
		m.direct = endpoint + "/" + strings.Trim(cfg.BucketName, "/")
	}
	return m
}

func normalizeBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return strings.TrimRight(base, "/")
}

func join(base, key string) (string, bool) {
	if base == "" {
		return "", false
	}
	return base + "/" + strings.TrimLeft(key, "/"), true
}

func (m *URLManager) CustomDomainURL(key string) (string, bool) {
	return join(m.customDomain, key)
}

func (m *URLManager) DirectURL(key string) (string, bool) {
	return join(m.direct, key)
}

func (m *URLManager) DevDomainURL(key string) (string, bool) {
	return join(m.devDomain, key)
}

// PublicURL returns the canonical URL for key. The custom domain wins; without
// one, fallbackToBase selects the direct endpoint URL before the dev domain.
func (m *URLManager) PublicURL(key string, fallbackToBase bool) (string, bool) {
	if u, ok := m.CustomDomainURL(key); ok {
		return u, true
	}
	if fallbackToBase {
		if u, ok := m.DirectURL(key); ok {
			return u, true
		}
	}
	return m.DevDomainURL(key)
}

func (m *URLManager) AllPossibleURLs(key string) CandidateURLs {
	var c CandidateURLs
	c.CustomDomain, _ = m.CustomDomainURL(key)
	c.Direct, _ = m.DirectURL(key)
	c.DevDomain, _ = m.DevDomainURL(key)
	return c
}

// Bases returns the configured bases keyed by kind.
func (m *URLManager) Bases() map[URLKind]string {
	out := make(map[URLKind]string, 3)
	if m.customDomain != "" {
		out[URLCustomDomain] = m.customDomain
	}
	if m.direct != "" {
		out[URLDirect] = m.direct
	}
	if m.devDomain != "" {
		out[URLDevDomain] = m.devDomain
	}
	return out
}

// ExtractObjectKey recovers the object key from a URL produced by any of the
// three bases, from a relative path, or from a bare key. Absolute URLs on any
// other host report false.
func (m *URLManager) ExtractObjectKey(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	if u.Scheme == "" && u.Host == "" {
		key := strings.TrimLeft(u.Path, "/")
		return key, key != ""
	}

	for _, base := range []string{m.customDomain, m.direct, m.devDomain} {
		if key, ok := keyUnderBase(base, u); ok {
			return key, true
		}
	}
	return "", false
}

func keyUnderBase(base string, u *url.URL) (string, bool) {
	if base == "" {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil || !strings.EqualFold(b.Host, u.Host) {
		return "", false
	}

	prefix := strings.TrimRight(b.Path, "/") + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(u.Path, prefix)
	return key, key != ""
}
