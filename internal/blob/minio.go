package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio implements Store against a MinIO server.
type Minio struct {
	client *minio.Client
	bucket string
}

// NewMinio connects to cfg.Endpoint (host:port, no scheme) and creates the
// bucket when it is missing.
func NewMinio(ctx context.Context, cfg Config) (*Minio, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}
	return &Minio{client: client, bucket: cfg.Bucket}, nil
}

func (m *Minio) Driver() Driver { return DriverMinio }

func (m *Minio) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Info, error) {
	info, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return Info{}, fmt.Errorf("minio put %s: %w", key, err)
	}
	return Info{Key: key, Size: info.Size, ContentType: contentType}, nil
}

func (m *Minio) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Info{}, nil, m.mapError(key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return Info{}, nil, m.mapError(key, err)
	}
	return Info{Key: key, Size: stat.Size, ContentType: stat.ContentType}, obj, nil
}

func (m *Minio) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio delete %s: %w", key, err)
	}
	return nil
}

func (m *Minio) mapError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("minio get %s: %w", key, err)
}
