package opener

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"

	"movefines/internal/ports"
)

// CompoundOpener picks a source by the shape of the location:
// http(s) URL, s3://bucket/key, a local file, or a key in the default bucket.
type CompoundOpener struct {
	HTTP  *HTTPOpener
	S3    *S3Opener
	Local *LocalOpener

	DefaultBucket string
}

func NewCompoundOpener(httpOp *HTTPOpener, s3Op *S3Opener, local *LocalOpener, defaultBucket string) *CompoundOpener {
	return &CompoundOpener{
		HTTP:          httpOp,
		S3:            s3Op,
		Local:         local,
		DefaultBucket: defaultBucket,
	}
}

func (c *CompoundOpener) Open(ctx context.Context, location string) (io.ReadCloser, ports.Meta, error) {
	loc := strings.TrimSpace(location)

	switch {
	case strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://"):
		if c.HTTP == nil {
			return nil, ports.Meta{}, errors.New("http opener not configured")
		}
		return c.HTTP.Open(ctx, loc)

	case strings.HasPrefix(loc, "s3://"):
		if c.S3 == nil {
			return nil, ports.Meta{}, errors.New("s3 opener not configured")
		}
		bkt, key, err := parseS3URL(loc)
		if err != nil {
			return nil, ports.Meta{}, err
		}
		return c.S3.Open(ctx, bkt, key)

	case strings.HasPrefix(loc, "file://"):
		if c.Local == nil {
			return nil, ports.Meta{}, errors.New("local opener not configured")
		}
		return c.Local.Open(ctx, strings.TrimPrefix(loc, "file://"))

	default:
		if c.Local != nil && c.Local.Exists(loc) {
			return c.Local.Open(ctx, loc)
		}
		if c.S3 == nil || c.DefaultBucket == "" {
			return nil, ports.Meta{}, errors.New("missing bucket: pass s3://bucket/key, https url or an existing file")
		}
		return c.S3.Open(ctx, c.DefaultBucket, loc)
	}
}

func parseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", errors.New("scheme must be s3")
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	key = path.Clean(key)
	if bucket == "" || key == "" || key == "." || key == "/" {
		return "", "", errors.New("empty bucket or key")
	}
	return bucket, key, nil
}
