package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// Notification is the order lifecycle event fanned out to downstream
// consumers (mail, analytics, ops dashboards).
type Notification struct {
	Event      string    `json:"event"`
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId,omitempty"`
	Status     string    `json:"status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Event names published by the order core.
const (
	EventOrderPlaced     = "order.placed"
	EventOrderPaid       = "order.paid"
	EventOrderShipped    = "order.shipped"
	EventOrderDelivered  = "order.delivered"
	EventOrderCancelled  = "order.cancelled"
	EventReturnRequested = "order.return_requested"
	EventReturnDecided   = "order.return_decided"
	EventRefundProcessed = "order.refund_processed"
)

// NotificationPublisher fans order events out to interested consumers.
// Publishing is best effort: callers log failures and continue.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n Notification) (string, error)
}

// PubSubPublisher publishes notifications to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed notification publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub notification publisher: topic is required")
	}
	return &PubSubPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishNotification enqueues a notification message on the configured topic.
func (p *PubSubPublisher) PublishNotification(ctx context.Context, n Notification) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub notification publisher: not initialised")
	}

	data, err := p.marshal(n)
	if err != nil {
		return "", fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "event", n.Event)
	setAttr(attrs, "orderId", n.OrderID)
	setAttr(attrs, "userId", n.UserID)
	setAttr(attrs, "status", n.Status)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish notification: %w", err)
	}
	return id, nil
}

// NoopPublisher drops every notification. Used when no topic is configured.
type NoopPublisher struct{}

// PublishNotification implements NotificationPublisher.
func (NoopPublisher) PublishNotification(context.Context, Notification) (string, error) {
	return "", nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
