// Package pubsink provides a push-only sink that publishes scraped items to
// a Google Cloud Pub/Sub topic.
package pubsink

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/pubsub"

	"github.com/spindleworks/spindle"
)

// Sink publishes one message per pushed item.
type Sink struct {
	topic *pubsub.Topic
}

// New builds a Sink for the given topic.
func New(topic *pubsub.Topic) (*Sink, error) {
	if topic == nil {
		return nil, spindle.Errorf(spindle.KindDataset, "pubsub sink requires a topic")
	}
	return &Sink{topic: topic}, nil
}

// Push publishes the JSON-encoded item and waits for the server ack.
func (s *Sink) Push(ctx context.Context, item any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return spindle.Errorf(spindle.KindDataset, "encode item: %w", err)
	}
	result := s.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return spindle.Errorf(spindle.KindDataset, "publish item: %w", err)
	}
	return nil
}
