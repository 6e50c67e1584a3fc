package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/folio-cms/media/internal/config"
)

// Client is the process-wide storage handle. It is built once at startup and
// never mutated afterwards.
type Client struct {
	API        ObjectAPI
	Bucket     string
	Production bool
	Platform   bool
}

// NewR2Client validates cfg and builds an S3 client pointed at the R2 endpoint.
func NewR2Client(ctx context.Context, cfg config.R2Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	region := cfg.Region
	if region == "" {
		region = "auto" // R2 ignores the region but the signer needs one
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := cfg.ResolvedEndpoint()
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		// R2 rejects the default CRC32 trailing checksums on some operations.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return &Client{
		API:        client,
		Bucket:     cfg.BucketName,
		Production: cfg.Production,
		Platform:   cfg.Platform,
	}, nil
}

// NewLocalClient returns a handle backed by the filesystem, for development
// without R2 credentials. Only the bucket name and environment flags of cfg
// are used.
func NewLocalClient(baseDir string, cfg config.R2Config) (*Client, error) {
	api, err := NewLocalObjectAPI(baseDir)
	if err != nil {
		return nil, err
	}
	bucket := cfg.BucketName
	if bucket == "" {
		bucket = "local"
	}
	return &Client{
		API:        api,
		Bucket:     bucket,
		Production: cfg.Production,
		Platform:   cfg.Platform,
	}, nil
}
