// Package gcsink provides a push-only sink that writes scraped items as JSON
// objects to a Google Cloud Storage bucket.
package gcsink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/spindleworks/spindle"
)

// Sink writes one object per pushed item.
type Sink struct {
	client *storage.Client
	bucket string
	prefix string
}

// New builds a Sink for the given bucket. The prefix, if any, becomes the
// object name's leading path segment.
func New(client *storage.Client, bucket, prefix string) (*Sink, error) {
	if client == nil {
		return nil, spindle.Errorf(spindle.KindDataset, "gcs sink requires a client")
	}
	if bucket == "" {
		return nil, spindle.Errorf(spindle.KindDataset, "gcs sink requires a bucket")
	}
	return &Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Push uploads the JSON-encoded item under a fresh object name.
func (s *Sink) Push(ctx context.Context, item any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return spindle.Errorf(spindle.KindDataset, "encode item: %w", err)
	}
	name := s.objectName()
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return spindle.Errorf(spindle.KindDataset, "write gs://%s/%s: %w", s.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return spindle.Errorf(spindle.KindDataset, "close gs://%s/%s: %w", s.bucket, name, err)
	}
	return nil
}

func (s *Sink) objectName() string {
	name := fmt.Sprintf("%s.json", uuid.NewString())
	if s.prefix == "" {
		return name
	}
	return fmt.Sprintf("%s/%s", s.prefix, name)
}
