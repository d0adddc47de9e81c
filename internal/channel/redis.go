package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stackl-io/stackl-core/internal/stackerrors"
)

// RedisChannel implements Channel over Redis pub/sub, matching the
// canonical message channel backend of the source system.
type RedisChannel struct {
	client *redis.Client
}

// NewRedisChannel constructs a RedisChannel from a Redis connection
// address (host:port) and database index.
func NewRedisChannel(addr string, db int) *RedisChannel {
	return &RedisChannel{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
	}
}

// NewRedisChannelFromClient wraps an already-constructed *redis.Client,
// useful for tests against miniredis or a shared client.
func NewRedisChannelFromClient(client *redis.Client) *RedisChannel {
	return &RedisChannel{client: client}
}

func (r *RedisChannel) Publish(ctx context.Context, topic string, envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := r.client.Publish(ctx, topic, data).Err(); err != nil {
		return stackerrors.Transient(fmt.Errorf("publishing to topic %q: %w", topic, err))
	}
	return nil
}

func (r *RedisChannel) Subscribe(ctx context.Context, topic string) (<-chan Envelope, error) {
	sub := r.client.Subscribe(ctx, topic)
	redisCh := sub.Channel()

	out := make(chan Envelope, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *RedisChannel) Close() error {
	return r.client.Close()
}
