// internal/storage/archive/interface.go
package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/newthinker/dzibridge/internal/config"
)

// Storage is a target that finished bundles are copied to.
type Storage interface {
	// Put stores the contents of r under key
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get retrieves the object stored under key
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all keys under the prefix
	List(ctx context.Context, prefix string) ([]string, error)
}

// BundlePrefix groups published bundles.
const BundlePrefix = "bundles"

// BundleKey is the key a bundle file is published under.
func BundleKey(fileName string) string {
	return BundlePrefix + "/" + fileName
}

// New builds the storage selected by cfg.
func New(cfg config.PublishConfig) (Storage, error) {
	switch cfg.Type {
	case "localfs", "":
		return NewLocalFS(cfg.Path)
	case "s3":
		return NewS3(S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
