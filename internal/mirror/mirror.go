// Package mirror copies synced archive files to S3-compatible storage.
// When no bucket is configured, the NoopMirror is used and all uploads are
// skipped, keeping the archive local-only.
package mirror

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/mykrok/internal/config"
)

// Mirror uploads archive files keyed by their path relative to the archive root.
type Mirror interface {
	// Upload copies the file at localPath to the object named by relPath.
	Upload(ctx context.Context, relPath, localPath string) error

	// Enabled reports whether uploads reach remote storage.
	Enabled() bool
}

// s3Client defines the minimal minio.Client operations used by S3Mirror.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath, contentType string) error
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath, contentType string) error {
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// S3Mirror uploads files to an S3-compatible bucket under an optional prefix.
type S3Mirror struct {
	client s3Client
	bucket string
	prefix string
}

// Upload copies one file to the bucket.
func (m *S3Mirror) Upload(ctx context.Context, relPath, localPath string) error {
	key := objectKey(m.prefix, relPath)
	if err := m.client.FPutObject(ctx, m.bucket, key, localPath, contentType(localPath)); err != nil {
		return fmt.Errorf("mirror %s: %w", key, err)
	}
	return nil
}

// Enabled reports true.
func (m *S3Mirror) Enabled() bool { return true }

// NoopMirror is used when mirroring is not configured.
type NoopMirror struct{}

// Upload is a no-op.
func (NoopMirror) Upload(ctx context.Context, relPath, localPath string) error {
	return nil
}

// Enabled reports false.
func (NoopMirror) Enabled() bool { return false }

// New creates the appropriate Mirror based on configuration.
// Returns NoopMirror when bucket is empty, S3Mirror otherwise.
func New(cfg config.MirrorConfig) (Mirror, error) {
	if cfg.Bucket == "" {
		return NoopMirror{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Mirror{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// objectKey joins the prefix and the archive-relative path with forward slashes.
func objectKey(prefix, relPath string) string {
	rel := strings.TrimPrefix(filepath.ToSlash(relPath), "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".tsv":
		return "text/tab-separated-values"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
