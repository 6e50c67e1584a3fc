package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/folio-cms/media/internal/util"
)

// LocalObjectAPI stores objects as files under baseDir, mimicking the
// S3 responses the service relies on (NotFound, idempotent delete).
type LocalObjectAPI struct {
	baseDir string
}

var _ ObjectAPI = (*LocalObjectAPI)(nil)

func NewLocalObjectAPI(baseDir string) (*LocalObjectAPI, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &LocalObjectAPI{baseDir: abs}, nil
}

func (l *LocalObjectAPI) path(key *string) (string, error) {
	k := aws.ToString(key)
	if k == "" {
		return "", errors.New("object key is required")
	}
	p := filepath.Join(l.baseDir, filepath.FromSlash(k))
	if !strings.HasPrefix(p, l.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes storage directory", k)
	}
	return p, nil
}

func (l *LocalObjectAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.path(params.Key)
	if err != nil {
		return nil, err
	}

	var data []byte
	if params.Body != nil {
		if data, err = io.ReadAll(params.Body); err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &s3.PutObjectOutput{ETag: aws.String(util.ETag(data))}, nil
}

func (l *LocalObjectAPI) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.path(params.Key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &types.NotFound{Message: aws.String("object not found")}
	}
	if err != nil {
		return nil, err
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentTypeFor(p, nil)),
		LastModified:  aws.Time(info.ModTime()),
	}, nil
}

func (l *LocalObjectAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.path(params.Key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &types.NoSuchKey{Message: aws.String("object not found")}
	}
	if err != nil {
		return nil, err
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentTypeFor(p, data)),
		ETag:          aws.String(util.ETag(data)),
	}, nil
}

func (l *LocalObjectAPI) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.path(params.Key)
	if err != nil {
		return nil, err
	}
	// S3 reports success for missing keys.
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (l *LocalObjectAPI) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := aws.ToString(params.Prefix)

	var objects []types.Object
	err := filepath.WalkDir(l.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(l.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(info.Size()),
			LastModified: aws.Time(info.ModTime()),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool {
		return aws.ToString(objects[i].Key) < aws.ToString(objects[j].Key)
	})

	truncated := false
	if limit := aws.ToInt32(params.MaxKeys); limit > 0 && len(objects) > int(limit) {
		objects = objects[:limit]
		truncated = true
	}

	return &s3.ListObjectsV2Output{
		Contents:    objects,
		KeyCount:    aws.Int32(int32(len(objects))),
		IsTruncated: aws.Bool(truncated),
	}, nil
}

func contentTypeFor(path string, data []byte) string {
	if ct := util.GetMIMEFromExtension(filepath.Ext(path)); ct != "" {
		return util.NormalizeMIME(ct)
	}
	if data != nil {
		return util.DetectContentType(data)
	}
	return "application/octet-stream"
}
