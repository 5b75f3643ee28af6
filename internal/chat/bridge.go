package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultBridgeChannel = "campus:chat"

// Event is the wire form of a broadcast crossing instance boundaries.
type Event struct {
	CourseID uint     `json:"course_id"`
	Envelope Envelope `json:"envelope"`
}

// Bridge connects the local registry to the registries of other instances.
// With a bridge in place every broadcast is published once and each
// instance's forwarder replays it into its local rooms, publisher included.
type Bridge interface {
	Publish(ctx context.Context, event Event) error
	Start(ctx context.Context, deliver func(Event)) error
	Close() error
}

// RedisBridgeConfig configures the redis pub/sub bridge.
type RedisBridgeConfig struct {
	Address string
	Channel string
	Logger  *zap.Logger
}

// RedisBridge fans broadcasts out across instances over one redis channel.
type RedisBridge struct {
	client  *goredis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBridge connects to redis and verifies the connection.
func NewRedisBridge(cfg RedisBridgeConfig) (*RedisBridge, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("chat: redis address required")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = defaultBridgeChannel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Address,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("chat: redis ping: %w", err)
	}

	return &RedisBridge{
		client:  client,
		channel: channel,
		logger:  logger,
	}, nil
}

// Publish marshals the event onto the bridge channel.
func (b *RedisBridge) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

// Start subscribes to the bridge channel and replays every event through
// deliver until ctx is cancelled.
func (b *RedisBridge) Start(ctx context.Context, deliver func(Event)) error {
	if deliver == nil {
		return fmt.Errorf("chat: deliver callback required")
	}

	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("chat: redis subscribe: %w", err)
	}

	go func() {
		stream := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case raw, ok := <-stream:
				if !ok || raw == nil {
					_ = sub.Close()
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(raw.Payload), &event); err != nil {
					b.logger.Warn("bad chat bridge payload", zap.Error(err))
					continue
				}
				deliver(event)
			}
		}
	}()

	return nil
}

// Close releases the redis connection.
func (b *RedisBridge) Close() error {
	return b.client.Close()
}
