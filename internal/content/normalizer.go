// Package content rewrites image references inside stored rich text so they
// point at the canonical public URL.
package content

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/folio-cms/media/internal/media"
	"github.com/folio-cms/media/internal/storage"
)

var (
	imgRegex    = regexp.MustCompile(`(?is)<img\b[^>]*?\bsrc\s*=\s*["']([^"']+)["'][^>]*>`)
	srcRegex    = regexp.MustCompile(`(?is)\bsrc\s*=\s*["'][^"']+["']`)
	scriptRegex = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	eventRegex  = regexp.MustCompile(`(?i)\s+on\w+\s*=\s*("[^"]*"|'[^']*')`)
	jsLinkRegex = regexp.MustCompile(`(?i)href\s*=\s*["']\s*javascript:[^"']*["']`)
)

// DataURIImporter stores an inline image and returns where it now lives.
type DataURIImporter interface {
	ImportFromDataURI(ctx context.Context, dataURI string, t storage.ImageType) (*media.Result, error)
}

type Normalizer struct {
	urls     *storage.URLManager
	importer DataURIImporter
	logger   zerolog.Logger
}

// NewNormalizer builds a Normalizer. importer may be nil, in which case
// inline data: images are left in place.
func NewNormalizer(urls *storage.URLManager, importer DataURIImporter, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		urls:     urls,
		importer: importer,
		logger:   logger.With().Str("component", "content").Logger(),
	}
}

type NormalizeRequest struct {
	HTML string `json:"html"`
	// Rehost uploads inline data: images to storage.
	Rehost bool   `json:"rehost,omitempty"`
	Type   string `json:"type,omitempty"`
}

type NormalizeResponse struct {
	HTML     string   `json:"html"`
	Keys     []string `json:"keys"`
	Messages []string `json:"messages,omitempty"`
	Stats    Stats    `json:"stats"`
}

type Stats struct {
	ImagesFound     int `json:"images_found"`
	ImagesRewritten int `json:"images_rewritten"`
	ImagesRehosted  int `json:"images_rehosted"`
	ImagesExternal  int `json:"images_external"`
	ScriptsRemoved  int `json:"scripts_removed"`
}

// Normalize rewrites every <img src> that points at a storage base to the
// canonical URL, optionally rehosts inline images, and strips scripts and
// inline event handlers.
func (n *Normalizer) Normalize(ctx context.Context, req *NormalizeRequest) (*NormalizeResponse, error) {
	imageType, err := storage.ParseImageType(req.Type)
	if err != nil {
		return nil, err
	}

	resp := &NormalizeResponse{Keys: []string{}}
	seen := make(map[string]bool)

	html := imgRegex.ReplaceAllStringFunc(req.HTML, func(tag string) string {
		src := imgRegex.FindStringSubmatch(tag)[1]
		resp.Stats.ImagesFound++

		var newSrc, key string
		switch {
		case strings.HasPrefix(src, "data:"):
			if !req.Rehost || n.importer == nil {
				return tag
			}
			res, err := n.importer.ImportFromDataURI(ctx, src, imageType)
			if err != nil || !res.Success {
				msg := "unknown error"
				if err != nil {
					msg = err.Error()
				} else if res.Error != "" {
					msg = res.Error
				}
				resp.Messages = append(resp.Messages, fmt.Sprintf("Failed to rehost inline image: %s", msg))
				return tag
			}
			newSrc, key = res.URL, res.Key
			resp.Stats.ImagesRehosted++
		default:
			var ok bool
			key, ok = n.storageKey(src)
			if !ok {
				resp.Stats.ImagesExternal++
				return tag
			}
			newSrc, _ = n.urls.PublicURL(key, true)
		}

		if !seen[key] {
			seen[key] = true
			resp.Keys = append(resp.Keys, key)
		}
		if newSrc == "" || newSrc == src {
			return tag
		}

		resp.Stats.ImagesRewritten++
		return srcRegex.ReplaceAllLiteralString(tag, `src="`+newSrc+`"`)
	})

	html, resp.Stats.ScriptsRemoved = sanitize(html)
	resp.HTML = html

	n.logger.Debug().
		Int("images", resp.Stats.ImagesFound).
		Int("rewritten", resp.Stats.ImagesRewritten).
		Int("rehosted", resp.Stats.ImagesRehosted).
		Msg("normalized content")

	return resp, nil
}

// ReferencedKeys lists the object keys used by images in html, in order of
// first appearance.
func (n *Normalizer) ReferencedKeys(html string) []string {
	keys := []string{}
	seen := make(map[string]bool)
	for _, m := range imgRegex.FindAllStringSubmatch(html, -1) {
		if key, ok := n.storageKey(m[1]); ok && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

// storageKey only accepts absolute URLs; relative paths in markup belong to
// the site, not the bucket.
func (n *Normalizer) storageKey(src string) (string, bool) {
	if !strings.Contains(src, "://") {
		return "", false
	}
	return n.urls.ExtractObjectKey(src)
}

func sanitize(html string) (string, int) {
	scripts := len(scriptRegex.FindAllStringIndex(html, -1))
	html = scriptRegex.ReplaceAllString(html, "")
	html = eventRegex.ReplaceAllString(html, "")
	html = jsLinkRegex.ReplaceAllString(html, `href="#"`)
	return html, scripts
}
