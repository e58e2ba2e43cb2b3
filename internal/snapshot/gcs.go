package snapshot

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

const defaultContentType = "text/html; charset=utf-8"

// GCS uploads snapshots to a Google Cloud Storage bucket and returns gs://
// URIs.
type GCS struct {
	client      *storage.Client
	bucket      string
	prefix      string
	contentType string
}

// NewGCS creates a GCS-backed snapshot store.
func NewGCS(client *storage.Client, bucket, prefix, contentType string) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if contentType == "" {
		contentType = defaultContentType
	}
	return &GCS{
		client:      client,
		bucket:      bucket,
		prefix:      prefix,
		contentType: contentType,
	}, nil
}

// Save uploads the body to its derived key and returns a gs:// URI.
func (s *GCS) Save(ctx context.Context, pageURL string, body []byte) (string, error) {
	key := Key(s.prefix, pageURL, body)
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = s.contentType
	if _, err := writer.Write(body); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}
