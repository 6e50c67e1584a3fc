package util

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	ConnectTimeout = 10 * time.Second
	OverallTimeout = 30 * time.Second
)

// HTTPFetcher downloads remote images for import, refusing private addresses
type HTTPFetcher struct {
	client       *http.Client
	maxSize      int64
	allowPrivate bool
	httpsOnly    bool
}

type FetcherOption func(*HTTPFetcher)

// WithAllowPrivate disables the private address and HTTPS checks. Only tests and
// local development should use it.
func WithAllowPrivate() FetcherOption {
	return func(f *HTTPFetcher) {
		f.allowPrivate = true
		f.httpsOnly = false
	}
}

// WithMaxSize overrides the download size limit.
func WithMaxSize(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		f.maxSize = n
	}
}

func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		maxSize:   MaxImageSize,
		httpsOnly: true,
	}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{
		Timeout: ConnectTimeout,
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if f.allowPrivate {
				return dialer.DialContext(ctx, network, addr)
			}

			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}

			ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
			if err != nil {
				return nil, err
			}

			for _, ip := range ips {
				if isPrivateIP(ip) {
					return nil, fmt.Errorf("connection to private IP address is not allowed: %s", ip)
				}
			}

			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	f.client = &http.Client{
		Transport: transport,
		Timeout:   OverallTimeout,
	}

	return f
}

// FetchURL downloads urlStr and returns its body and content type.
func (f *HTTPFetcher) FetchURL(ctx context.Context, urlStr string) ([]byte, string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}

	switch {
	case parsedURL.Scheme == "https":
	case parsedURL.Scheme == "http" && !f.httpsOnly:
	default:
		return nil, "", fmt.Errorf("only HTTPS URLs are allowed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "portfolio-media/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > f.maxSize {
		return nil, "", fmt.Errorf("file too large: %d bytes (max %d)", resp.ContentLength, f.maxSize)
	}

	// Read one byte past the limit so oversize bodies without a
	// Content-Length are still caught.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, "", fmt.Errorf("file too large: more than %d bytes", f.maxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || NormalizeMIME(contentType) == "application/octet-stream" {
		contentType = DetectContentType(body)
	}

	return body, NormalizeMIME(contentType), nil
}

// isPrivateIP checks if an IP address is in a private/internal range
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
