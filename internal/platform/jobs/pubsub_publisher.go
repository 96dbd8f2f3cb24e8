package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/coursekart/payments-api/internal/services"
)

// PubSubReconciledPublisher publishes order reconciliation events to a Pub/Sub topic.
type PubSubReconciledPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubReconciledPublisher constructs a Pub/Sub backed reconciliation event publisher.
func NewPubSubReconciledPublisher(topic *pubsub.Topic) (*PubSubReconciledPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub reconciled publisher: topic is required")
	}
	return &PubSubReconciledPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishReconciled enqueues a reconciliation event on the configured topic.
func (p *PubSubReconciledPublisher) PublishReconciled(ctx context.Context, message services.ReconciledMessage) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub reconciled publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return fmt.Errorf("marshal reconciled event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "orderId", message.OrderID)
	setAttr(attrs, "processorOrderId", message.ProcessorOrderID)
	setAttr(attrs, "event", "payments.order.reconciled")

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish reconciled event: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.ReconciledPublisher = (*PubSubReconciledPublisher)(nil)
