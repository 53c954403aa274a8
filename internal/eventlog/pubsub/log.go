// Package pubsublog publishes download events to a Google Cloud Pub/Sub topic.
package pubsublog

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/standards-harvester/internal/eventlog"
)

// Log publishes one message per entry.
type Log struct {
	topic *pubsub.Topic
}

// New wraps topic.
func New(topic *pubsub.Topic) (*Log, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &Log{topic: topic}, nil
}

// Record publishes entry as JSON and waits for the server acknowledgement.
// The domain and year are duplicated into attributes for subscription
// filters; trace context travels the same way.
func (l *Log) Record(ctx context.Context, entry eventlog.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"domain": entry.Domain,
			"year":   entry.Year,
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	if _, err := l.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes outstanding messages.
func (l *Log) Close() {
	l.topic.Stop()
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
