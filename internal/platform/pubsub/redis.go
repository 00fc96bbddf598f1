// Package pubsub fans slot events out across server instances through a
// Redis channel so that every instance's WebSocket hub sees every booking.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medcenter/portal/internal/platform/websocket"
)

// DefaultChannel is the Redis channel carrying slot events.
const DefaultChannel = "portal:events"

// Connect parses a redis:// URL and pings the server, retrying a few times
// while the server starts up.
func Connect(ctx context.Context, url string, attempts int, delay time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if attempts < 1 {
		attempts = 1
	}
	for i := 1; ; i++ {
		err = client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		if i >= attempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("ping redis after %d attempts: %w", attempts, err)
}

// Broadcaster delivers an event to local subscribers.
type Broadcaster interface {
	Broadcast(topic string, event websocket.Event)
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Bridge implements websocket.EventPublisher over Redis. Published events
// reach the local hub only through Run, so every instance delivers the same
// stream.
type Bridge struct {
	client  *redis.Client
	pub     publisher
	channel string
	local   Broadcaster
	logger  zerolog.Logger
}

func NewBridge(client *redis.Client, local Broadcaster, logger zerolog.Logger) *Bridge {
	return &Bridge{
		client:  client,
		pub:     client,
		channel: DefaultChannel,
		local:   local,
		logger:  logger.With().Str("component", "pubsub").Logger(),
	}
}

// Publish sends event to the shared channel.
func (b *Bridge) Publish(ctx context.Context, event websocket.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.pub.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Topic, err)
	}
	return nil
}

// Run relays channel messages to the local hub until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info().Str("channel", b.channel).Msg("relaying slot events")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliver(msg.Payload)
		}
	}
}

func (b *Bridge) deliver(payload string) {
	var event websocket.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		b.logger.Warn().Err(err).Msg("discarding malformed event")
		return
	}
	if event.Topic == "" {
		return
	}
	b.local.Broadcast(event.Topic, event)
}

// Ping reports whether Redis is reachable; used by the health endpoint.
func (b *Bridge) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
