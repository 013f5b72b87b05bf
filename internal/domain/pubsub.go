package domain

import "context"

// EventPublisher publishes serialised events to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// EventSubscriber opens subscriptions on a topic. Subscribe returns only once the
// subscription is live, so nothing published afterwards is missed.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is a live registration on a topic. Messages arrive on the channel
// in publish order; the channel is closed after Close. Close is idempotent.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
