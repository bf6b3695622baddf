package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sethvargo/go-retry"

	"github.com/mbelovs/contractvault/internal/common"
)

// S3Config holds connection settings for an S3-compatible backend
// (MinIO in development deployments).
type S3Config struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3 stores blobs as objects in a single bucket. Content type and the
// custom metadata map ride along as native object attributes, so no
// sidecar record is needed.
type S3 struct {
	client *s3.Client
	bucket string
	url    string
}

// NewS3 builds a client for the configured endpoint. Path-style
// addressing is used so that MinIO-style endpoints work out of the box.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.User,
			cfg.Password,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		url:    strings.TrimRight(cfg.BaseEndpoint, "/"),
	}, nil
}

func (s *S3) Backend() string { return "s3" }

// withRetry runs op with fibonacci backoff. op must wrap transient
// failures with retry.RetryableError; not-found and validation errors
// pass through untouched.
func withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(100*time.Millisecond))
	return retry.Do(ctx, backoff, op)
}

func (s *S3) Upload(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) (string, error) {
	if contentType == "" {
		contentType = DefaultContentType
	}

	err := withRetry(ctx, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(path),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
			Metadata:    metadata,
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return "", common.WrapError(common.ErrBackend, "s3 put object", err)
	}
	return s.URLFor(path), nil
}

func (s *S3) Download(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := withRetry(ctx, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(path),
		})
		if err != nil {
			var noKey *types.NoSuchKey
			if errors.As(err, &noKey) {
				return common.NewError(common.ErrNotFound, fmt.Sprintf("blob %s not found", path))
			}
			return retry.RetryableError(err)
		}
		defer out.Body.Close()

		data, err = io.ReadAll(out.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, common.WrapError(common.ErrBackend, "s3 get object", err)
	}
	return data, nil
}

func (s *S3) Delete(ctx context.Context, path string) error {
	// S3 deletes are silently idempotent; probe first so that deleting
	// a missing path reports not-found like the local backend does.
	exists, err := s.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		return common.NewError(common.ErrNotFound, fmt.Sprintf("blob %s not found", path))
	}

	err = withRetry(ctx, func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(path),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return common.WrapError(common.ErrBackend, "s3 delete object", err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.head(ctx, path)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *S3) Stat(ctx context.Context, path string) (*Stat, error) {
	out, err := s.head(ctx, path)
	if err != nil {
		return nil, err
	}

	st := &Stat{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		Metadata:    out.Metadata,
	}
	if out.LastModified != nil {
		st.LastModified = *out.LastModified
	}
	if st.ContentType == "" {
		st.ContentType = DefaultContentType
	}
	if st.Metadata == nil {
		st.Metadata = map[string]string{}
	}
	return st, nil
}

func (s *S3) head(ctx context.Context, path string) (*s3.HeadObjectOutput, error) {
	var out *s3.HeadObjectOutput
	err := withRetry(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(path),
		})
		if err != nil {
			var notFound *types.NotFound
			if errors.As(err, &notFound) {
				return common.NewError(common.ErrNotFound, fmt.Sprintf("blob %s not found", path))
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, common.WrapError(common.ErrBackend, "s3 head object", err)
	}
	return out, nil
}

func (s *S3) URLFor(path string) string {
	return fmt.Sprintf("%s/%s/%s", s.url, s.bucket, path)
}
