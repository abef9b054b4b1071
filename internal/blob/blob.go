// Package blob stores drawing ink payloads behind a small driver interface.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverMinio  Driver = "minio"
	DriverS3     Driver = "s3"
)

// Durable reports whether blobs written through d outlive the process.
func (d Driver) Durable() bool {
	return d != DriverMemory
}

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

// Info describes a stored blob.
type Info struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
}

// Store is the interface for blob storage backends.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Driver() Driver
}

// Config holds construction parameters for every driver.
type Config struct {
	Driver    string
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	PathStyle bool
}

// New selects a Store implementation by driver name.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(cfg.Driver))) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverMinio:
		return NewMinio(ctx, cfg)
	case DriverS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// Key scopes a blob reference to its owner so refs never cross users.
func Key(userID, ref string) (string, error) {
	if userID == "" || !validRef(ref) {
		return "", ErrInvalidKey
	}
	return userID + "/" + ref, nil
}

func validRef(ref string) bool {
	if ref == "" || len(ref) > 128 {
		return false
	}
	for _, r := range ref {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
