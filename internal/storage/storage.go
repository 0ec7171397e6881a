package storage

import (
	"context"
	"io"
)

// Uploader archives provider-hosted recordings into our own bucket; provider
// recording URLs expire.
type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}
