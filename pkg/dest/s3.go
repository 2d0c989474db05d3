// Package dest provides the AWS S3 side of a transfer: bucket checks,
// paginated listing, digest probes, rate-limited uploads and directory
// marker creation.
package dest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/time/rate"

	"swift2s3/pkg/config"
	"swift2s3/pkg/models"
	"swift2s3/pkg/ratelimit"
)

// metadataTimeout bounds the small control-plane calls (head, marker create)
// so a hung request cannot occupy a pool slot indefinitely. Uploads are
// bounded by the run context instead: their duration legitimately depends on
// object size and the bandwidth cap.
const metadataTimeout = 30 * time.Second

// S3Store writes objects to an S3 bucket. One instance is shared by all
// workers; the client swap on credential refresh is guarded so in-flight
// workers keep a consistent view.
type S3Store struct {
	mu      sync.RWMutex
	client  *s3.Client
	limiter *rate.Limiter
}

// NewS3Store builds a store from explicit credentials. bytesPerSec caps the
// aggregate upload bandwidth across all workers.
func NewS3Store(ctx context.Context, creds config.AWSCredentials, bytesPerSec int) (*S3Store, error) {
	cfg, err := config.AWSConfig(ctx, creds)
	if err != nil {
		return nil, err
	}

	return &S3Store{
		client:  s3.NewFromConfig(cfg),
		limiter: ratelimit.NewLimiter(bytesPerSec),
	}, nil
}

// Rebuild replaces the underlying client with one built from fresh
// credentials. The bandwidth limiter carries over: a refresh must not reset
// the aggregate cap.
func (s *S3Store) Rebuild(ctx context.Context, creds config.AWSCredentials) error {
	cfg, err := config.AWSConfig(ctx, creds)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.client = s3.NewFromConfig(cfg)
	s.mu.Unlock()

	return nil
}

func (s *S3Store) getClient() *s3.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// EnsureBucket verifies the destination bucket exists. A missing bucket is a
// fatal setup error; the run must not start against it.
func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	_, err := s.getClient().HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		if isNotFoundAPIError(err) {
			return &NotFoundError{Kind: "bucket", Name: bucket}
		}
		return fmt.Errorf("failed to access bucket %s: %w", bucket, err)
	}

	return nil
}

// List enumerates every object in the bucket, draining all continuation
// tokens. An empty bucket yields an empty slice.
func (s *S3Store) List(ctx context.Context, bucket string) ([]models.RemoteObject, error) {
	var result []models.RemoteObject

	paginator := s3.NewListObjectsV2Paginator(s.getClient(), &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", bucket, err)
		}

		for _, obj := range page.Contents {
			result = append(result, models.RemoteObject{
				Key:  aws.ToString(obj.Key),
				ETag: strings.Trim(aws.ToString(obj.ETag), "\""),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}

	return result, nil
}

// HeadDigest returns the unquoted ETag of an existing object. A missing key
// comes back as a NotFoundError so callers can tell "needs upload" apart
// from transient probe failures.
func (s *S3Store) HeadDigest(ctx context.Context, bucket, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	head, err := s.getClient().HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundAPIError(err) {
			return "", &NotFoundError{Kind: "key", Name: key}
		}
		if isExpiredToken(err) {
			return "", fmt.Errorf("head %s: %w", key, ErrCredentialsExpired)
		}
		return "", fmt.Errorf("failed to access object %s: %w", key, err)
	}

	return strings.Trim(aws.ToString(head.ETag), "\""), nil
}

// Upload puts a staged file at the given key, reading it through the shared
// bandwidth limiter. An expired session token surfaces as
// ErrCredentialsExpired.
func (s *S3Store) Upload(ctx context.Context, bucket, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open staged file %s: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat staged file %s: %w", localPath, err)
	}

	body := ratelimit.NewReader(ctx, file, s.limiter)

	_, err = s.getClient().PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		if isExpiredToken(err) {
			return fmt.Errorf("upload %s: %w", key, ErrCredentialsExpired)
		}
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return nil
}

// PutMarker creates a zero-byte object representing an empty directory.
func (s *S3Store) PutMarker(ctx context.Context, bucket, key string) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	_, err := s.getClient().PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isExpiredToken(err) {
			return fmt.Errorf("create marker %s: %w", key, ErrCredentialsExpired)
		}
		return fmt.Errorf("failed to create directory marker %s: %w", key, err)
	}

	return nil
}

// isNotFoundAPIError matches the 404 shapes S3 returns for head calls.
func isNotFoundAPIError(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}

	var noSuchBucket *types.NoSuchBucket
	return errors.As(err, &noSuchBucket)
}
