package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/folio-cms/media/internal/util"
)

const cacheControl = "public, max-age=31536000, immutable"

// UploadInput describes one image upload. Key is optional; when empty a key
// is generated from Type and FileName.
type UploadInput struct {
	Data        []byte
	ContentType string
	FileName    string
	Type        ImageType
	Key         string
}

// UploadResult is the outcome of Upload. Failures are reported through
// Success and Error rather than a Go error.
type UploadResult struct {
	Success     bool          `json:"success"`
	URL         string        `json:"url,omitempty"`
	Alternates  CandidateURLs `json:"alternates"`
	Key         string        `json:"key,omitempty"`
	Error       string        `json:"error,omitempty"`
	Retries     int           `json:"retries"`
	Size        int64         `json:"size,omitempty"`
	ContentType string        `json:"contentType,omitempty"`
	ETag        string        `json:"etag,omitempty"`
}

// ObjectInfo is a listing entry or head result.
type ObjectInfo struct {
	Key          string    `json:"key"`
	URL          string    `json:"url,omitempty"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// Service performs every network call against the bucket.
type Service struct {
	api    ObjectAPI
	bucket string
	urls   *URLManager
	retry  RetryPolicy
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(client *Client, urls *URLManager, logger zerolog.Logger) *Service {
	s := &Service{
		api:    client.API,
		bucket: client.Bucket,
		urls:   urls,
		logger: logger.With().Str("component", "storage").Str("bucket", client.Bucket).Logger(),
		now:    time.Now,
	}
	s.retry = RetryPolicy{
		OnRetry: func(attempt int, err error) {
			s.logger.Warn().Err(err).Int("attempt", attempt).Msg("storage operation failed, retrying")
		},
	}
	return s
}

// SetRetryPolicy replaces the retry policy. Used by tests to skip sleeping.
func (s *Service) SetRetryPolicy(p RetryPolicy) {
	s.retry = p
}

func (s *Service) URLs() *URLManager {
	return s.urls
}

// ValidateImage checks data and content type without touching the network.
func ValidateImage(data []byte, contentType string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: file buffer is empty or invalid", ErrInvalidImage)
	}
	if !util.IsImageMIME(contentType) {
		return fmt.Errorf("%w: content type %q is not allowed (jpeg, png, webp, gif only)", ErrInvalidImage, contentType)
	}
	if len(data) > util.MaxImageSize {
		return fmt.Errorf("%w: file size %d bytes exceeds the 10MB limit", ErrInvalidImage, len(data))
	}
	return nil
}

// Upload validates and stores an image, returning every URL it can be
// served from.
func (s *Service) Upload(ctx context.Context, in UploadInput) *UploadResult {
	if err := ValidateImage(in.Data, in.ContentType); err != nil {
		return &UploadResult{Error: err.Error()}
	}

	key := in.Key
	if key == "" {
		t := in.Type
		if t == "" {
			t = ImageGeneral
		}
		if !imageTypes[t] {
			return &UploadResult{Error: fmt.Sprintf("%v: unknown image type %q", ErrInvalidImage, t)}
		}
		key = GenerateKey(t, in.FileName, in.ContentType, s.now())
	}
	contentType := util.NormalizeMIME(in.ContentType)

	log := s.logger.With().Str("key", key).Int("size", len(in.Data)).Logger()

	out, attempts, err := WithRetry(ctx, s.retry, func(ctx context.Context) (*s3.PutObjectOutput, error) {
		return s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(in.Data),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(int64(len(in.Data))),
			CacheControl:  aws.String(cacheControl),
		})
	})
	if err != nil {
		log.Error().Err(err).Int("attempts", attempts).Str("kind", ClassifyError(err).String()).Msg("upload failed")
		return &UploadResult{
			Key:     key,
			Error:   UserMessage(err),
			Retries: attempts - 1,
		}
	}

	url, _ := s.urls.PublicURL(key, true)
	log.Info().Str("url", url).Int("attempts", attempts).Msg("uploaded object")

	return &UploadResult{
		Success:     true,
		URL:         url,
		Alternates:  s.urls.AllPossibleURLs(key),
		Key:         key,
		Retries:     attempts - 1,
		Size:        int64(len(in.Data)),
		ContentType: contentType,
		ETag:        aws.ToString(out.ETag),
	}
}

// ObjectExists checks if an object exists. A not-found response is false, not an error.
func (s *Service) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, _, err := WithRetry(ctx, s.retry, func(ctx context.Context) (*s3.HeadObjectOutput, error) {
		return s.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object %s: %w", key, err)
	}
	return true, nil
}

// Metadata returns size, type and modification time of an object.
func (s *Service) Metadata(ctx context.Context, key string) (*ObjectInfo, error) {
	out, _, err := WithRetry(ctx, s.retry, func(ctx context.Context) (*s3.HeadObjectOutput, error) {
		return s.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata for %s: %w", key, err)
	}
	url, _ := s.urls.PublicURL(key, true)
	return &ObjectInfo{
		Key:          key,
		URL:          url,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         aws.ToString(out.ETag),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Delete removes an object. Deleting a missing key succeeds.
func (s *Service) Delete(ctx context.Context, key string) error {
	_, attempts, err := WithRetry(ctx, s.retry, func(ctx context.Context) (*s3.DeleteObjectOutput, error) {
		return s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		if IsNotFound(err) {
			s.logger.Debug().Str("key", key).Msg("delete of missing object ignored")
			return nil
		}
		return fmt.Errorf("failed to delete %s from R2 after %d attempt(s): %s: %w", key, attempts, UserMessage(err), err)
	}
	s.logger.Info().Str("key", key).Msg("deleted object")
	return nil
}

// Download returns the bytes and content type of an object.
func (s *Service) Download(ctx context.Context, key string) ([]byte, string, error) {
	type payload struct {
		data        []byte
		contentType string
	}
	p, _, err := WithRetry(ctx, s.retry, func(ctx context.Context) (payload, error) {
		out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return payload{}, err
		}
		defer out.Body.Close()

		data, err := io.ReadAll(out.Body)
		if err != nil {
			return payload{}, err
		}
		return payload{data: data, contentType: aws.ToString(out.ContentType)}, nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", key, err)
	}
	return p.data, p.contentType, nil
}

// Copy duplicates srcKey into dstKey by downloading and re-uploading it. An
// empty dstKey gets a fresh key of the source's image type. Download failures
// are returned as errors; everything else is reported in the result.
func (s *Service) Copy(ctx context.Context, srcKey, dstKey string) (*UploadResult, error) {
	data, contentType, err := s.Download(ctx, srcKey)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return &UploadResult{Error: fmt.Sprintf("source object %s is empty", srcKey)}, nil
	}
	if contentType == "" || util.NormalizeMIME(contentType) == "application/octet-stream" {
		contentType = util.DetectContentType(data)
	}

	in := UploadInput{
		Data:        data,
		ContentType: contentType,
		Key:         dstKey,
	}
	if dstKey == "" {
		in.Type = KeyImageType(srcKey)
		in.FileName = srcKey
	}
	return s.Upload(ctx, in), nil
}

// List returns up to maxKeys objects whose key starts with prefix.
func (s *Service) List(ctx context.Context, prefix string, maxKeys int32) ([]ObjectInfo, error) {
	out, _, err := WithRetry(ctx, s.retry, func(ctx context.Context) (*s3.ListObjectsV2Output, error) {
		return s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(s.bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int32(maxKeys),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	objects := make([]ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		url, _ := s.urls.PublicURL(key, true)
		objects = append(objects, ObjectInfo{
			Key:          key,
			URL:          url,
			Size:         aws.ToInt64(obj.Size),
			ETag:         aws.ToString(obj.ETag),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return objects, nil
}
