package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog"

	"github.com/folio-cms/media/internal/config"
)

// fakeAPI records calls and returns whatever the test configured.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	putErrs []error // consumed in order, nil entries succeed
	headErr error
	getErr  error
	getBody []byte
	getType string
	delErr  error
	listOut *s3.ListObjectsV2Output

	lastPut *s3.PutObjectInput
	putBody []byte
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: map[string]int{}}
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAPI) record(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.calls[op]
}

func (f *fakeAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	n := f.record("put")
	if n <= len(f.putErrs) && f.putErrs[n-1] != nil {
		return nil, f.putErrs[n-1]
	}
	body, _ := io.ReadAll(params.Body)
	f.mu.Lock()
	f.lastPut = params
	f.putBody = body
	f.mu.Unlock()
	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func (f *fakeAPI) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.record("head")
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(42),
		ContentType:   aws.String("image/png"),
		LastModified:  aws.Time(time.Unix(1700000000, 0)),
	}, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.record("get")
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(f.getBody)),
		ContentType: aws.String(f.getType),
	}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.record("delete")
	if f.delErr != nil {
		return nil, f.delErr
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.record("list")
	if f.listOut == nil {
		return &s3.ListObjectsV2Output{}, nil
	}
	return f.listOut, nil
}

func testR2Config() config.R2Config {
	return config.R2Config{
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "portfolio",
		Endpoint:        "https://abc123.r2.cloudflarestorage.com",
		CustomDomain:    "https://images.example.com",
		DevDomain:       "https://pub-0123456789.r2.dev",
	}
}

func newTestService(api ObjectAPI) *Service {
	svc := NewService(&Client{API: api, Bucket: "portfolio"}, NewURLManager(testR2Config()), zerolog.Nop())
	svc.SetRetryPolicy(RetryPolicy{
		Sleep: func(context.Context, time.Duration) error { return nil },
	})
	return svc
}

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func statusError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New(http.StatusText(status)),
		},
	}
}
