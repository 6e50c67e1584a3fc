// Package media implements the admin-facing image actions on top of the
// storage layer: upload, replace, delete, import and copy.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/folio-cms/media/internal/imageproc"
	"github.com/folio-cms/media/internal/resolver"
	"github.com/folio-cms/media/internal/storage"
	"github.com/folio-cms/media/internal/util"
)

var (
	// ErrNotStorageURL is returned for URLs that do not point into the bucket.
	ErrNotStorageURL  = errors.New("url does not point at a stored object")
	ErrInvalidDataURI = errors.New("invalid data URI")
)

type Service struct {
	store     *storage.Service
	processor imageproc.Processor
	fetcher   *util.HTTPFetcher
	resolved  resolver.Cache
	logger    zerolog.Logger
}

type Option func(*Service)

// WithResolveCache makes deletes drop the key from the cache that remembers
// resolved URLs, so a removed image is not served from it afterwards.
func WithResolveCache(c resolver.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.resolved = c
		}
	}
}

// NewService wires the media actions. processor may be nil, in which case
// images are stored as received.
func NewService(store *storage.Service, processor imageproc.Processor, fetcher *util.HTTPFetcher, logger zerolog.Logger, opts ...Option) *Service {
	if fetcher == nil {
		fetcher = util.NewHTTPFetcher()
	}
	s := &Service{
		store:     store,
		processor: processor,
		fetcher:   fetcher,
		logger:    logger.With().Str("component", "media").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type UploadRequest struct {
	Data        []byte
	ContentType string
	FileName    string
	Type        storage.ImageType
}

// Result is an upload outcome enriched with what processing learned about
// the image.
type Result struct {
	*storage.UploadResult
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	Hash         string `json:"hash,omitempty"`
	OriginalSize int    `json:"originalSize,omitempty"`
}

type ReplaceResult struct {
	*Result
	ReplacedKey string `json:"replacedKey,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

// UploadImage validates, optionally processes, and stores an image. Like
// storage uploads, failures come back in the result.
func (s *Service) UploadImage(ctx context.Context, req UploadRequest) *Result {
	if err := storage.ValidateImage(req.Data, req.ContentType); err != nil {
		return &Result{UploadResult: &storage.UploadResult{Error: err.Error()}}
	}

	data := req.Data
	contentType := util.NormalizeMIME(req.ContentType)
	res := &Result{OriginalSize: len(req.Data)}

	if s.processor != nil {
		processed, err := s.processor.Process(data, contentType)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", req.FileName).Msg("image processing failed, storing original")
		} else {
			data = processed.Data
			contentType = processed.ContentType
			res.Width = processed.Width
			res.Height = processed.Height
		}
	}

	res.UploadResult = s.store.Upload(ctx, storage.UploadInput{
		Data:        data,
		ContentType: contentType,
		FileName:    req.FileName,
		Type:        req.Type,
	})
	if res.Success {
		res.Hash = "sha256:" + util.HashBytes(data)
	}
	return res
}

// ReplaceImage uploads the new image and then removes the one at oldURL.
// Removal is best effort: a failure leaves the new upload in place and is
// reported as a warning.
func (s *Service) ReplaceImage(ctx context.Context, req UploadRequest, oldURL string) *ReplaceResult {
	out := &ReplaceResult{Result: s.UploadImage(ctx, req)}
	if !out.Success || strings.TrimSpace(oldURL) == "" {
		return out
	}

	oldKey, ok := s.store.URLs().ExtractObjectKey(oldURL)
	if !ok {
		out.Warning = "previous image is not in storage and was left untouched"
		return out
	}
	if oldKey == out.Key {
		return out
	}

	if err := s.store.Delete(ctx, oldKey); err != nil {
		s.logger.Warn().Err(err).Str("old_key", oldKey).Str("new_key", out.Key).Msg("failed to remove replaced image")
		out.Warning = fmt.Sprintf("new image uploaded but the previous one could not be removed: %v", err)
		return out
	}
	s.forget(ctx, oldKey)
	out.ReplacedKey = oldKey
	return out
}

// DeleteImage removes the object behind a stored URL, relative path or key.
func (s *Service) DeleteImage(ctx context.Context, urlOrKey string) (string, error) {
	key, ok := s.store.URLs().ExtractObjectKey(urlOrKey)
	if !ok {
		return "", ErrNotStorageURL
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return key, err
	}
	s.forget(ctx, key)
	return key, nil
}

// forget drops a removed key from the resolve cache. A failure only means the
// entry lives until its ttl.
func (s *Service) forget(ctx context.Context, key string) {
	if s.resolved == nil {
		return
	}
	if err := s.resolved.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to evict resolved URL")
	}
}

// ImportFromURL downloads a remote image and stores it. Fetch failures are
// returned as errors; upload failures are reported in the result.
func (s *Service) ImportFromURL(ctx context.Context, imageURL string, t storage.ImageType) (*Result, error) {
	s.logger.Info().Str("url", imageURL).Msg("importing image from URL")

	data, contentType, err := s.fetcher.FetchURL(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}

	var fileName string
	if u, err := url.Parse(imageURL); err == nil {
		fileName = path.Base(u.Path)
	}

	return s.UploadImage(ctx, UploadRequest{
		Data:        data,
		ContentType: contentType,
		FileName:    fileName,
		Type:        t,
	}), nil
}

// ImportFromDataURI decodes a data: URI pasted into the editor and stores it.
func (s *Service) ImportFromDataURI(ctx context.Context, dataURI string, t storage.ImageType) (*Result, error) {
	s.logger.Info().Str("data_uri", dataURI[:min(64, len(dataURI))]).Msg("importing image from data URI")

	data, contentType, err := parseDataURI(dataURI)
	if err != nil {
		return nil, err
	}

	return s.UploadImage(ctx, UploadRequest{
		Data:        data,
		ContentType: contentType,
		Type:        t,
	}), nil
}

// CopyImage duplicates srcKey. With an empty dstKey a fresh key of the same
// image type is generated, named after the copied bytes' content type.
func (s *Service) CopyImage(ctx context.Context, srcKey, dstKey string) (*storage.UploadResult, error) {
	srcKey = strings.TrimSpace(srcKey)
	if srcKey == "" {
		return nil, errors.New("source key is required")
	}
	res, err := s.store.Copy(ctx, srcKey, strings.TrimSpace(dstKey))
	if err == nil && res.Success {
		s.forget(ctx, res.Key)
	}
	return res, err
}

// parseDataURI parses data:[<mediatype>][;base64],<data>.
func parseDataURI(dataURI string) ([]byte, string, error) {
	content, ok := strings.CutPrefix(dataURI, "data:")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}

	header, encoded, ok := strings.Cut(content, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing comma separator", ErrInvalidDataURI)
	}

	parts := strings.Split(header, ";")
	contentType := "text/plain"
	if parts[0] != "" {
		contentType = parts[0]
	}

	isBase64 := false
	for _, part := range parts[1:] {
		if part == "base64" {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("%w: failed to decode base64 data: %v", ErrInvalidDataURI, err)
		}
		return data, contentType, nil
	}

	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to decode URL data: %v", ErrInvalidDataURI, err)
	}
	return []byte(decoded), contentType, nil
}
