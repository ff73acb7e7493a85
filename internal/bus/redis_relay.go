package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ms-tableside/internal/logger"

	"github.com/go-redis/redis/v8"
)

// RedisRelay publishes through a redis channel so every instance's local Broker
// sees events raised on any instance.
type RedisRelay struct {
	Client  *redis.Client
	Channel string
	Local   Publisher
	Logger  *logger.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

func NewRedisRelay(client *redis.Client, channel string, local Publisher, log *logger.Logger) *RedisRelay {
	return &RedisRelay{
		Client:  client,
		Channel: channel,
		Local:   local,
		Logger:  log,
		ready:   make(chan struct{}),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal bus message: %w", err)
	}
	if err := r.Client.Publish(ctx, r.Channel, body).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", msg.Topic, err)
	}
	return nil
}

// Ready is closed once the subscription is confirmed by redis.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Run forwards channel traffic to the local publisher until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.Client.Subscribe(ctx, r.Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.Channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.Logger.Info("BUS", fmt.Sprintf("Redis relay subscribed to %s", r.Channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.Logger.Warn("BUS", fmt.Sprintf("Dropping malformed relay payload: %v", err))
				continue
			}
			if err := r.Local.Publish(ctx, msg); err != nil {
				r.Logger.Error("BUS", fmt.Sprintf("Local delivery of %s failed: %v", msg.Event, err))
			}
		}
	}
}
