package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/scrubline/backend/internal/config"
	"github.com/scrubline/backend/internal/models"
)

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Uploader streams bodies into the bucket.
type Uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Storage implements Backend on an S3-compatible object store fronted by an
// image-transforming CDN. Only master videos are stored; preview frames are
// rendered by the CDN on request.
type S3Storage struct {
	client   S3API
	uploader Uploader
	bucket   string
	prefix   string
	baseURL  string
}

// NewS3Storage configures a client and uploader targeting the provided object store.
func NewS3Storage(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return NewS3StorageWithClient(client, uploader, cfg), nil
}

// NewS3StorageWithClient wires pre-built clients, mainly for tests.
func NewS3StorageWithClient(client S3API, uploader Uploader, cfg config.ObjectStoreConfig) *S3Storage {
	return &S3Storage{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}
}

// Variant implements Backend.
func (s *S3Storage) Variant() models.StorageVariant { return models.StorageRemote }

// ObjectKey returns the bucket key used for key, including the configured prefix.
func (s *S3Storage) ObjectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Store uploads the provided content to the configured bucket and returns a public location.
func (s *S3Storage) Store(ctx context.Context, key string, r io.Reader) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.ObjectKey(key)),
		Body:        r,
		ContentType: aws.String(contentTypeFor(key)),
		ACL:         s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("%w: s3 upload %s: %v", ErrStorageFailure, key, err)
	}

	return s.ResolveURL(key), nil
}

// Delete removes the object at key plus anything stored below key/.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(key)),
	}); err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: s3 delete %s: %v", ErrStorageFailure, key, err)
	}

	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.ObjectKey(key) + "/"),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("%w: s3 list %s: %v", ErrStorageFailure, key, err)
		}
		for _, obj := range out.Contents {
			if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			}); err != nil && !isNotFound(err) {
				return fmt.Errorf("%w: s3 delete %s: %v", ErrStorageFailure, aws.ToString(obj.Key), err)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			return nil
		}
		token = out.NextContinuationToken
	}
}

// ResolveURL implements Backend.
func (s *S3Storage) ResolveURL(key string) string {
	objectKey := s.ObjectKey(key)
	if s.baseURL == "" {
		return objectKey
	}
	return s.baseURL + "/" + objectKey
}

// Stat implements Backend.
func (s *S3Storage) Stat(ctx context.Context, key string) (Object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return Object{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("%w: s3 head %s: %v", ErrStorageFailure, key, err)
	}
	ct := aws.ToString(out.ContentType)
	if ct == "" {
		ct = contentTypeFor(key)
	}
	return Object{Key: key, Size: aws.ToInt64(out.ContentLength), ContentType: ct}, nil
}

// OpenRange implements Backend with a ranged GetObject; the body streams from
// the object store as it is read.
func (s *S3Storage) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ObjectKey(key)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: s3 get %s: %v", ErrStorageFailure, key, err)
	}
	return out.Body, nil
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

var _ Backend = (*S3Storage)(nil)
