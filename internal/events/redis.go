package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/model"
)

// RedisPublisher fans events out through redis PUB/SUB so that listeners
// connected to any instance see events of jobs run by another one
type RedisPublisher struct {
	client *redis.Client
	prefix string
	buffer int
	logger *slog.Logger
}

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return client, nil
}

// NewRedisPublisher creates a publisher on top of an existing client
func NewRedisPublisher(client *redis.Client, prefix string, buffer int, logger *slog.Logger) *RedisPublisher {
	if prefix == "" {
		prefix = "domain-search:events"
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	return &RedisPublisher{client: client, prefix: prefix, buffer: buffer, logger: logger}
}

func (p *RedisPublisher) channel(jobID string) string {
	return p.prefix + ":" + jobID
}

// Publish sends the event to the job channel
func (p *RedisPublisher) Publish(ctx context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel(event.JobID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe opens a redis subscription for the job channel
func (p *RedisPublisher) Subscribe(ctx context.Context, jobID string) (*Subscription, error) {
	pubsub := p.client.Subscribe(ctx, p.channel(jobID))

	// wait for the subscription to be confirmed so no event published after
	// Subscribe returns can be missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to job events: %w", err)
	}

	sub := newSubscription(jobID, p.buffer, nil)
	go p.forward(pubsub, sub)
	sub.watch(ctx)

	return sub, nil
}

func (p *RedisPublisher) forward(pubsub *redis.PubSub, sub *Subscription) {
	defer sub.finish()
	defer close(sub.events)
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-sub.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var event model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				p.logger.Warn("skipping malformed event",
					slog.String("job_id", sub.JobID),
					slog.String("error", err.Error()))
				continue
			}

			select {
			case sub.events <- event:
			default:
				p.logger.Warn("dropping event for slow subscriber",
					slog.String("job_id", sub.JobID),
					slog.Int64("seq", event.Seq))
			}

			if event.Terminal() {
				return
			}
		}
	}
}

// Close closes the redis client, which ends all subscriptions
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
