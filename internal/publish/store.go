package publish

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"olsync/internal/services"
)

// ObjectStore abstracts the dataset-store operations the publisher needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	UploadFile(ctx context.Context, bucket, key, path string) error
	ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error)
	RemoveObject(ctx context.Context, bucket, key string) error
}

// LocalStore persists objects on disk with bucket/key layout. It mirrors S3
// semantics closely enough for tests and offline runs.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local object store rooted at dir.
func NewLocalStore(root string) *LocalStore {
	if root == "" {
		root = filepath.Join(os.TempDir(), "olsync-store")
	}
	_ = os.MkdirAll(root, 0o755)
	return &LocalStore{root: root}
}

func (s *LocalStore) EnsureBucket(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bucket == "" {
		return services.Wrap(services.ErrConfiguration, "publish", "ensure bucket", "bucket name required", nil)
	}
	return os.MkdirAll(s.bucketPath(bucket), 0o755)
}

func (s *LocalStore) UploadFile(ctx context.Context, bucket, key, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bucket == "" || key == "" {
		return services.Wrap(services.ErrConfiguration, "publish", "upload", "bucket and key required", nil)
	}
	if err := s.EnsureBucket(ctx, bucket); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrFatal, "publish", "upload", "open "+path, err)
	}
	defer src.Close()

	fullPath := filepath.Join(s.bucketPath(bucket), filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return services.Wrap(services.ErrFatal, "publish", "upload", "create prefix dirs", err)
	}
	dst, err := os.Create(fullPath)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "upload", "create "+key, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(fullPath)
		return services.Wrap(services.ErrTransient, "publish", "upload", "write "+key, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(fullPath)
		return services.Wrap(services.ErrTransient, "publish", "upload", "close "+key, err)
	}
	return nil
}

func (s *LocalStore) ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "list prefix", "bucket name required", nil)
	}
	bucketRoot := s.bucketPath(bucket)

	var keys []string
	err := filepath.WalkDir(bucketRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(bucketRoot, path)
		if relErr != nil {
			return relErr
		}
		key := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "publish", "list prefix", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalStore) RemoveObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bucket == "" || key == "" {
		return services.Wrap(services.ErrConfiguration, "publish", "remove", "bucket and key required", nil)
	}
	fullPath := filepath.Join(s.bucketPath(bucket), filepath.FromSlash(key))
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return services.Wrap(services.ErrTransient, "publish", "remove", key, err)
	}
	return nil
}

func (s *LocalStore) bucketPath(bucket string) string {
	return filepath.Join(s.root, bucket)
}

// ObjectKey joins path elements with forward slashes, dropping empties.
func ObjectKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part != "" {
			cleaned = append(cleaned, part)
		}
	}
	return strings.Join(cleaned, "/")
}
