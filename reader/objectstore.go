package reader

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/c360studio/registrygraph/canonical"
)

// ObjectStoreConfig carries the connection settings for an S3
// compatible object store.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// ObjectSource reads documents from an S3-compatible bucket. Object
// keys stand in for file paths throughout the pipeline.
type ObjectSource struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewObjectSource connects to the object store and verifies the bucket
// exists.
func NewObjectSource(ctx context.Context, cfg ObjectStoreConfig, logger *slog.Logger) (*ObjectSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}
	ok, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !ok {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}
	return &ObjectSource{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, logger: logger}, nil
}

// Walk lists the bucket under the prefix and feeds each object to fn.
// Unreadable objects are logged and skipped.
func (s *ObjectSource) Walk(ctx context.Context, fn func(*canonical.RawDocument) error) error {
	opts := minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}
	for object := range s.client.ListObjects(ctx, s.bucket, opts) {
		if object.Err != nil {
			return fmt.Errorf("list objects: %w", object.Err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := s.fetch(ctx, object.Key)
		if err != nil {
			s.logger.Warn("skipping unreadable object", "key", object.Key, "error", err)
			continue
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *ObjectSource) fetch(ctx context.Context, key string) (*canonical.RawDocument, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	return canonical.NewRawDocument(key, data), nil
}
