package main

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/marketplace-backend/pkg/outbox/registry"
	"github.com/angelmondragon/marketplace-backend/pkg/pubsub"
)

// topicSender publishes through the shared Pub/Sub client.
type topicSender struct {
	client *pubsub.Client
}

func (s topicSender) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s topicSender) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := s.client.Publisher(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %s", topic))
	}
	if _, err := pub.Publish(ctx, msg).Get(ctx); err != nil {
		// An ordered publisher pauses its key after a failure.
		if msg.OrderingKey != "" {
			pub.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}
