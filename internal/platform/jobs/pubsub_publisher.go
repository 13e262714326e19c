// Package jobs contains background messaging adapters for the API server.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/shoplane/api/internal/services"
)

// PubSubOrderPublisher publishes order lifecycle events to a Pub/Sub topic.
// Messages carry the order id as ordering key so consumers observe status
// transitions for one order in sequence.
type PubSubOrderPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubOrderPublisher constructs a Pub/Sub backed order event publisher.
func NewPubSubOrderPublisher(topic *pubsub.Topic) (*PubSubOrderPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubOrderPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent enqueues an order event message on the configured topic
// and returns the server-assigned message id.
func (p *PubSubOrderPublisher) PublishOrderEvent(ctx context.Context, message services.OrderEventMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub order publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal order event: %w", err)
	}

	orderingKey := strings.TrimSpace(message.OrderID)
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  eventAttributes(message),
		OrderingKey: orderingKey,
	})

	id, err := result.Get(ctx)
	if err != nil {
		// A failed ordered publish pauses the key until explicitly resumed.
		if orderingKey != "" {
			p.topic.ResumePublish(orderingKey)
		}
		return "", fmt.Errorf("publish order event: %w", err)
	}
	return id, nil
}

// eventAttributes exposes routing metadata for subscription filters. Owner
// identifiers stay in the payload only.
func eventAttributes(message services.OrderEventMessage) map[string]string {
	attrs := make(map[string]string, 5)
	for key, value := range map[string]string{
		"event":       message.Event,
		"orderId":     message.OrderID,
		"orderNumber": message.OrderNumber,
		"shopId":      message.ShopID,
		"status":      string(message.Status),
	} {
		if v := strings.TrimSpace(value); v != "" {
			attrs[key] = v
		}
	}
	return attrs
}
