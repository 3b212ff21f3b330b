// Package storage is the image store collaborator boundary. The core
// only needs a URL back; the real deployment sits behind an
// S3-compatible bucket, which this interface keeps out of the core.
package storage

import (
	"context"
)

type ObjectStore interface {
	// SaveImage persists raw image bytes and returns a servable URL.
	SaveImage(ctx context.Context, data []byte, contentType string) (string, error)
}
