// Package storage clears and writes objects under a job's output root, on the local file
// system or on S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/malbeclabs/songlake/lake/pkg/duck"
)

// Store addresses objects relative to a storage root.
type Store interface {
	// Root returns the storage URI the store was opened on.
	Root() string
	// Prepare removes everything under prefix so a table can be rewritten from scratch.
	Prepare(ctx context.Context, prefix string) error
	// Put writes a single object.
	Put(ctx context.Context, key string, body []byte, contentType string) error
	// Get reads a single object.
	Get(ctx context.Context, key string) ([]byte, error)
}

// New opens a store for a file:// or s3:// root. s3Config is required for s3:// roots.
func New(ctx context.Context, log *slog.Logger, root string, s3Config *duck.S3Config) (Store, error) {
	if err := duck.ValidateStorageURI(root); err != nil {
		return nil, err
	}

	if !duck.IsS3(root) {
		return newLocalStore(root)
	}

	if s3Config == nil {
		return nil, fmt.Errorf("S3 configuration is required when using s3:// storage URI")
	}
	cfg := s3Config.WithDefaults()
	client, err := NewS3Client(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	store, err := newS3Store(log, client, root)
	if err != nil {
		return nil, err
	}
	if isLocalEndpoint(cfg.Endpoint) {
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure MinIO bucket exists: %w", err)
		}
	}
	return store, nil
}

func isLocalEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.HasPrefix(endpoint, "localhost") || strings.HasPrefix(endpoint, "127.0.0.1") || strings.Contains(endpoint, "host.docker.internal")
}

func cleanKey(key string) (string, error) {
	key = strings.Trim(key, "/")
	if key == "" {
		return "", fmt.Errorf("key cannot be empty")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("key %q escapes the storage root", key)
		}
	}
	return key, nil
}
