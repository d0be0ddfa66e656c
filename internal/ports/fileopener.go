package ports

import (
	"context"
	"fmt"
	"io"
)

// Meta describes where an opened file came from. Bucket and Key are set
// for S3 sources, Path for local files.
type Meta struct {
	Source      string
	ContentType string
	Size        int64
	Bucket      string
	Key         string
	Path        string
}

type FileOpener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, Meta, error)
}

// ReadFile opens location and reads it fully.
func ReadFile(ctx context.Context, op FileOpener, location string) ([]byte, Meta, error) {
	rc, meta, err := op.Open(ctx, location)
	if err != nil {
		return nil, meta, err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, meta, fmt.Errorf("read %s: %w", location, err)
	}
	return b, meta, nil
}
