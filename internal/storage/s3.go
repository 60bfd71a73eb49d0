package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	metaerrors "github.com/arkilian/catalogmeta/internal/errors"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config holds configuration for S3 storage.
type S3Config struct {
	// Region is the AWS region for the bucket.
	Region string
	// Endpoint overrides the service endpoint (MinIO, LocalStack).
	Endpoint string
	// UsePathStyle enables path-style addressing, required by MinIO.
	UsePathStyle bool
	// MaxRetries bounds retries of transient failures.
	MaxRetries int
	// BaseBackoff is the wait before the first retry; it doubles per attempt.
	BaseBackoff time.Duration
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:      "us-east-1",
		MaxRetries:  3,
		BaseBackoff: 100 * time.Millisecond,
	}
}

// S3Storage implements ObjectStorage on an S3 bucket. ConditionalPut relies on
// S3 conditional writes (If-Match / If-None-Match).
type S3Storage struct {
	client *s3.Client
	bucket string
	retry  retryPolicy
}

// NewS3Storage loads the default AWS credential chain and creates a client
// for bucket.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, metaerrors.NewStorageError(metaerrors.CodeUnexpected, "failed to load AWS config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageWithClient(client, bucket, cfg), nil
}

// NewS3StorageWithClient wraps a pre-configured client.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	policy := retryPolicy{attempts: cfg.MaxRetries, base: cfg.BaseBackoff}
	if policy.attempts <= 0 {
		policy.attempts = 3
	}
	if policy.base <= 0 {
		policy.base = 100 * time.Millisecond
	}
	return &S3Storage{client: client, bucket: bucket, retry: policy}
}

// writeCondition is the precondition attached to a PutObject request.
type writeCondition struct {
	ifMatch     string
	ifNoneMatch bool
}

func (c writeCondition) apply(in *s3.PutObjectInput) {
	if c.ifNoneMatch {
		in.IfNoneMatch = aws.String("*")
	}
	if c.ifMatch != "" {
		in.IfMatch = aws.String(c.ifMatch)
	}
}

// Put writes data to objectPath unconditionally.
func (s *S3Storage) Put(ctx context.Context, objectPath string, data []byte) (string, error) {
	return s.put(ctx, objectPath, data, writeCondition{})
}

// ConditionalPut writes data only if the stored ETag is etag, or, for an empty
// etag, only if nothing is stored yet.
func (s *S3Storage) ConditionalPut(ctx context.Context, objectPath string, data []byte, etag string) (string, error) {
	if etag == "" {
		return s.put(ctx, objectPath, data, writeCondition{ifNoneMatch: true})
	}
	return s.put(ctx, objectPath, data, writeCondition{ifMatch: etag})
}

func (s *S3Storage) put(ctx context.Context, objectPath string, data []byte, cond writeCondition) (string, error) {
	var etag string
	err := s.retry.do(ctx, func() error {
		in := &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(objectPath),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		}
		cond.apply(in)

		out, err := s.client.PutObject(ctx, in)
		if err != nil {
			if preconditionFailed(err) {
				return ErrPreconditionFailed
			}
			return err
		}
		etag = unquote(out.ETag)
		return nil
	})
	switch {
	case err == nil:
		return etag, nil
	case errors.Is(err, ErrPreconditionFailed), ctx.Err() != nil:
		return "", err
	}
	return "", uploadFailed(objectPath, err)
}

// Get reads the document at objectPath.
func (s *S3Storage) Get(ctx context.Context, objectPath string) ([]byte, string, error) {
	var (
		data []byte
		etag string
	)
	err := s.retry.do(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if err != nil {
			var noSuchKey *types.NoSuchKey
			if errors.As(err, &noSuchKey) {
				return ErrObjectNotFound
			}
			return err
		}
		defer out.Body.Close()

		if data, err = io.ReadAll(out.Body); err != nil {
			return err
		}
		etag = unquote(out.ETag)
		return nil
	})
	switch {
	case err == nil:
		return data, etag, nil
	case errors.Is(err, ErrObjectNotFound), ctx.Err() != nil:
		return nil, "", err
	}
	return nil, "", downloadFailed(objectPath, err)
}

// List pages through every key under prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, downloadFailed(prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// retryPolicy retries transient failures with exponential backoff.
type retryPolicy struct {
	attempts int
	base     time.Duration
}

func (p retryPolicy) do(ctx context.Context, op func() error) error {
	var err error
	wait := p.base
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = op()
		if err == nil || !retryable(err) || attempt == p.attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// retryable reports whether err may succeed on another attempt. Lost races
// and missing documents never do.
func retryable(err error) bool {
	return !errors.Is(err, ErrPreconditionFailed) && !errors.Is(err, ErrObjectNotFound)
}

func preconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return strings.Contains(err.Error(), "StatusCode: 412")
}

func unquote(etag *string) string {
	return strings.Trim(aws.ToString(etag), `"`)
}
