package conversations

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	historyKeyPrefix = "chat_history:"
	defaultTTL       = 24 * time.Hour
)

// RedisStore keeps each session's history in a redis list of JSON encoded
// messages. The key TTL is refreshed on every append.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is nil", ErrInvalidConfig)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, role Role, content string) error {
	if err := validate(sessionID, role); err != nil {
		return err
	}

	value, err := json.Marshal(Message{Role: role, Content: content})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	key := s.key(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, value)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	values, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	messages := make([]Message, 0, len(values))
	for _, value := range values {
		var message Message
		if err := json.Unmarshal([]byte(value), &message); err != nil {
			logger.Warn("skipping malformed history entry", "session_id", sessionID, "error", err)
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (s *RedisStore) key(sessionID string) string {
	return historyKeyPrefix + sessionID
}
