// Package storage provides temporary scratch files and artifact publishing.
// It defines the Storage interface (port) and implementations for local disk
// and S3.
package storage

import (
	"context"
	"io"
)

// Storage defines temporary file handling for external tools and publishing
// of finished artifacts.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish stores an artifact under key and returns where it can be
	// fetched from (a filesystem path or a URL).
	Publish(ctx context.Context, key string, data io.Reader, contentType string) (location string, err error)
}
