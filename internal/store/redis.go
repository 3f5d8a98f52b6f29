package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/ids"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/metrics"
	"github.com/vchat-meme-blip/polymarket-cafe/internal/models"
)

const (
	messageTTL    = 24 * time.Hour
	tradeLogLimit = 1000
)

// RedisStore handles Redis operations for the activity log.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the key pool and event
// publisher, which share the connection.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// roomMessagesKey returns the key for a room's message sorted set.
func roomMessagesKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

// tradeLogKey is the capped list of recent trades.
const tradeLogKey = "trades:log"

// AppendMessage stores a message in the room's transcript.
func (s *RedisStore) AppendMessage(ctx context.Context, msg models.ChatMessage) error {
	defer func(start time.Time) {
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
	}(time.Now())

	// Generate ULID if not set
	if msg.ID == "" {
		msg.ID = ids.NewMessageID(time.Now())
	}

	// Set timestamp if not set
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := roomMessagesKey(msg.RoomID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Timestamp),
		Member: string(data),
	})
	pipe.Expire(ctx, key, messageTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// AppendTrade pushes a trade onto the capped trade log.
func (s *RedisStore) AppendTrade(ctx context.Context, trade models.TradeRecord) error {
	defer func(start time.Time) {
		metrics.RedisLatency.Observe(time.Since(start).Seconds())
	}(time.Now())

	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, tradeLogKey, string(data))
	pipe.LTrim(ctx, tradeLogKey, 0, tradeLogLimit-1)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRoomMessages retrieves up to limit messages from a room, newest
// first, strictly older than before (unix ms) when before > 0.
func (s *RedisStore) GetRoomMessages(ctx context.Context, roomID string, limit int, before int64) ([]models.ChatMessage, error) {
	key := roomMessagesKey(roomID)

	var maxScore string
	if before > 0 {
		maxScore = fmt.Sprintf("(%d", before) // exclusive
	} else {
		maxScore = "+inf"
	}

	results, err := s.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.ChatMessage, 0, len(results))
	for _, data := range results {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}
