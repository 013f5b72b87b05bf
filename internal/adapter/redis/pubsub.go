package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pscheid92/agentpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Publisher publishes payloads to Redis channels.
type Publisher struct {
	rdb *goredis.Client
}

var _ domain.EventPublisher = (*Publisher)(nil)

func NewPublisher(rdb *goredis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	receivers, err := p.rdb.Publish(ctx, topic, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	slog.DebugContext(ctx, "Published event", "topic", topic, "receivers", receivers)
	return nil
}

// Subscriber opens one Redis subscription per call.
type Subscriber struct {
	rdb *goredis.Client
}

var _ domain.EventSubscriber = (*Subscriber)(nil)

func NewSubscriber(rdb *goredis.Client) *Subscriber {
	return &Subscriber{rdb: rdb}
}

// Subscribe returns once Redis has confirmed the subscription, so every message
// published after Subscribe returns is delivered.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (domain.Subscription, error) {
	ps := s.rdb.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &subscription{
		ps:       ps,
		messages: make(chan []byte),
		done:     make(chan struct{}),
		pumped:   make(chan struct{}),
	}
	go sub.pump(ps.Channel())
	return sub, nil
}

type subscription struct {
	ps       *goredis.PubSub
	messages chan []byte
	done     chan struct{}
	pumped   chan struct{}
	once     sync.Once
	err      error
}

func (s *subscription) Messages() <-chan []byte {
	return s.messages
}

// Close unsubscribes and waits for the pump to exit. Messages is closed once
// Close returns. Calling Close more than once is safe.
func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
		<-s.pumped
	})
	return s.err
}

func (s *subscription) pump(in <-chan *goredis.Message) {
	defer close(s.pumped)
	defer close(s.messages)

	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.messages <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		}
	}
}
