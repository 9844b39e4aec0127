package publish

import (
	"context"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"olsync/internal/config"
	"olsync/internal/services"
)

// S3Store implements ObjectStore against an S3-compatible endpoint using the
// minio-go SDK.
type S3Store struct {
	client *minio.Client
	region string
}

// NewS3Store builds a store from the dataset configuration section. The
// endpoint may be a bare host:port or a full URL; an https scheme forces TLS.
func NewS3Store(cfg config.Dataset) (*S3Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "connect", "dataset endpoint required", nil)
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "connect", "dataset credentials required", nil)
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if parsed, err := url.Parse(cfg.Endpoint); err == nil && parsed.Host != "" {
		endpoint = parsed.Host
		if parsed.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "connect", "build client for "+endpoint, err)
	}
	return &S3Store{client: client, region: cfg.Region}, nil
}

func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return classifyStoreError("ensure bucket", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return classifyStoreError("create bucket", err)
	}
	return nil
}

func (s *S3Store) UploadFile(ctx context.Context, bucket, key, path string) error {
	_, err := s.client.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{
		ContentType: contentTypeForKey(key),
	})
	if err != nil {
		return classifyStoreError("upload "+key, err)
	}
	return nil
}

func (s *S3Store) ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, classifyStoreError("list "+prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *S3Store) RemoveObject(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classifyStoreError("remove "+key, err)
	}
	return nil
}

func contentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".parquet"):
		return "application/octet-stream"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// classifyStoreError maps minio-go failures onto the service error taxonomy.
// Auth and missing-bucket problems are configuration mistakes; everything
// else is assumed transient and retried.
func classifyStoreError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if resp := minio.ToErrorResponse(err); resp.Code != "" {
		switch resp.Code {
		case "NoSuchBucket":
			return services.Wrap(services.ErrConfiguration, "publish", operation, "bucket does not exist", err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return services.Wrap(services.ErrConfiguration, "publish", operation, "credentials rejected", err)
		case "NoSuchKey":
			return services.Wrap(services.ErrNotFound, "publish", operation, "", err)
		}
	}
	return services.Wrap(services.ErrTransient, "publish", operation, "", err)
}
