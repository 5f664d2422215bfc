package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sethvargo/go-retry"
)

// RemoteStorage is the contract the orchestrators consume. The production
// implementation targets any S3-compatible store; tests substitute a mock.
type RemoteStorage interface {
	// TestConnection verifies the store is reachable with the configured
	// credentials.
	TestConnection(ctx context.Context) error
	// Quota reports used bytes under the backup prefix and the configured
	// capacity (0 means unlimited).
	Quota(ctx context.Context) (Quota, error)
	// Upload stores the artifact under key and returns its remote location.
	Upload(ctx context.Context, key string, data []byte) (UploadResult, error)
	// Download fetches the artifact stored under key.
	Download(ctx context.Context, key string) ([]byte, error)
	// Delete removes the artifact stored under key.
	Delete(ctx context.Context, key string) error
	// Location names the backing store, e.g. "s3".
	Location() string
}

// Quota describes remote storage usage.
type Quota struct {
	UsedBytes  int64 `json:"used_bytes"`
	TotalBytes int64 `json:"total_bytes"`
	Objects    int64 `json:"objects"`
}

// UploadResult captures where an uploaded artifact landed.
type UploadResult struct {
	Key       string
	Link      string
	SizeBytes int64
}

// s3Client is the subset of the AWS SDK the storage layer uses, split out
// for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, input *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Prefix     string
	QuotaBytes int64
}

// Configured reports whether the config is complete enough to build a client.
func (c S3Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// S3Storage implements RemoteStorage against an S3-compatible bucket.
type S3Storage struct {
	client s3Client
	cfg    S3Config
}

// NewS3Storage builds an S3Storage from config.
func NewS3Storage(cfg S3Config) *S3Storage {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &S3Storage{client: s3.New(opts), cfg: cfg}
}

// newS3StorageWithClient is used by tests to inject a mock client.
func newS3StorageWithClient(client s3Client, cfg S3Config) *S3Storage {
	return &S3Storage{client: client, cfg: cfg}
}

func (s *S3Storage) Location() string { return "s3" }

func (s *S3Storage) key(name string) string {
	if s.cfg.Prefix == "" {
		return name
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + name
}

func (s *S3Storage) TestConnection(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	if err != nil {
		return &InfrastructureError{Op: "storage connection test", Err: err}
	}
	return nil
}

func (s *S3Storage) Quota(ctx context.Context) (Quota, error) {
	q := Quota{TotalBytes: s.cfg.QuotaBytes}
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
	}
	if s.cfg.Prefix != "" {
		input.Prefix = aws.String(s.cfg.Prefix)
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return Quota{}, &InfrastructureError{Op: "storage quota", Err: err}
		}
		for _, obj := range out.Contents {
			if obj.Size != nil {
				q.UsedBytes += *obj.Size
			}
			q.Objects++
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	return q, nil
}

// Upload puts the artifact with exponential backoff on transient failures.
func (s *S3Storage) Upload(ctx context.Context, name string, data []byte) (UploadResult, error) {
	key := s.key(name)

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.cfg.Bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return UploadResult{}, &InfrastructureError{Op: "upload to remote storage", Err: err}
	}

	return UploadResult{
		Key:       key,
		Link:      s.link(key),
		SizeBytes: int64(len(data)),
	}, nil
}

func (s *S3Storage) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &InfrastructureError{Op: "download from remote storage", Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &InfrastructureError{Op: "read remote artifact", Err: err}
	}
	return data, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return &InfrastructureError{Op: "delete remote artifact", Err: err}
	}
	return nil
}

func (s *S3Storage) link(key string) string {
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}
