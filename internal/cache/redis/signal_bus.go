package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkoval/tradepilot/internal/domain"
)

// streamMaxLen is the approximate maximum length for the durable event
// stream, enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// eventStream is the Redis stream holding a durable copy of every event, so
// consumers that were offline can replay what they missed.
const eventStream = "events"

// SignalBus implements domain.SignalBus using Redis Pub/Sub for live fan-out
// plus a Redis Stream as a durable, ordered event log.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

func topicChannel(topic string) string {
	return "events." + topic
}

// Publish marshals the payload to JSON, sends it on the topic's Pub/Sub
// channel, and appends it to the durable event stream.
func (sb *SignalBus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", topic, err)
	}

	if err := sb.rdb.Publish(ctx, topicChannel(topic), data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", topic, err)
	}

	args := &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"topic":   topic,
			"payload": data,
		},
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", topic, err)
	}
	return nil
}

// Subscribe creates a Pub/Sub subscription over one or more topics and
// returns a read-only channel of deliveries. The subscription is closed when
// the context is cancelled; the returned channel is closed at that point too.
func (sb *SignalBus) Subscribe(ctx context.Context, topics ...string) (<-chan domain.BusMessage, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("redis: subscribe: no topics given")
	}

	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = topicChannel(t)
	}

	pubsub := sb.rdb.Subscribe(ctx, channels...)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %v: %w", topics, err)
	}

	out := make(chan domain.BusMessage, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				bm := domain.BusMessage{
					Topic:      trimChannel(msg.Channel),
					Payload:    []byte(msg.Payload),
					ReceivedAt: time.Now(),
				}
				select {
				case out <- bm:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func trimChannel(channel string) string {
	const prefix = "events."
	if len(channel) > len(prefix) && channel[:len(prefix)] == prefix {
		return channel[len(prefix):]
	}
	return channel
}

// Close is a no-op; the underlying client is owned by the Client wrapper.
func (sb *SignalBus) Close() error {
	return nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
