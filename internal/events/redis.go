package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/metrics"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "cafe:events"

// RedisPublisher publishes events as JSON on a Redis channel so other
// processes (for example a second director sharing the key pool) can
// react to global pauses.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher publishes on channel, or DefaultChannel if empty.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	start := time.Now()
	defer func() {
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// RemoteEvent is an event received from another process. Payload is
// left raw because its concrete type depends on Type.
type RemoteEvent struct {
	Type      Type            `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"ts"`
}

// Subscribe delivers events from the channel to handle until ctx ends.
// Messages that do not decode are skipped.
func (p *RedisPublisher) Subscribe(ctx context.Context, handle func(RemoteEvent)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", p.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev RemoteEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			handle(ev)
		}
	}
}
