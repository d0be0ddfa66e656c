// Package archive stores incoming spreadsheets and outgoing reports in S3.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
)

type PutClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Store struct {
	client PutClient
	bucket string
	prefix string
}

// New returns a store writing under prefix in bucket.
func New(client PutClient, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Put uploads body and returns its s3:// location.
func (s *Store) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	object := path.Join(s.prefix, strings.TrimLeft(key, "/"))
	info, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		log.Printf("[ARCHIVE][ERR] put %s: %v", object, err)
		return "", fmt.Errorf("archive put %s: %w", object, err)
	}
	log.Printf("[ARCHIVE] put bucket=%s key=%s size=%d etag=%s", s.bucket, object, info.Size, info.ETag)
	return fmt.Sprintf("s3://%s/%s", s.bucket, object), nil
}
