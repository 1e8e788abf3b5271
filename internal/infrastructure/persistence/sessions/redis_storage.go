package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/redis/go-redis/v9"
)

// RedisStorage persists session records as JSON strings with a sliding TTL:
// every Save and every Load pushes the expiry out by ttl.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.ChanneledLogger
}

func NewRedisStorage(ctx context.Context, opts *redis.Options, ttl time.Duration, logger *logging.ChanneledLogger) (*RedisStorage, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		logger.Storage().Error("Redis ping failed", "error", err.Error(), "addr", opts.Addr)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Storage().Info("Redis connection established", "addr", opts.Addr, "db", opts.DB)
	return &RedisStorage{client: client, ttl: ttl, logger: logger}, nil
}

func redisKey(sessionID string) string {
	return "leaddesk:session:" + sessionID + ":" + session.RecordKey
}

func (s *RedisStorage) Load(ctx context.Context, sessionID string) (*session.Record, error) {
	var cmd *redis.StringCmd
	if s.ttl > 0 {
		cmd = s.client.GetEx(ctx, redisKey(sessionID), s.ttl)
	} else {
		cmd = s.client.Get(ctx, redisKey(sessionID))
	}
	payload, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrRecordNotFound
	}
	if err != nil {
		s.logger.Storage().Error("Failed to load session record", "error", err.Error(), "sessionId", logging.MaskID(sessionID))
		return nil, fmt.Errorf("failed to load session record: %w", err)
	}
	record, err := decodeRecord(payload)
	if err != nil {
		s.logger.Storage().Warn("Session record corrupted", "error", err.Error(), "sessionId", logging.MaskID(sessionID))
		return nil, err
	}
	return record, nil
}

func (s *RedisStorage) Save(ctx context.Context, sessionID string, record session.Record) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisKey(sessionID), payload, s.ttl).Err(); err != nil {
		s.logger.Storage().Error("Failed to save session record", "error", err.Error(), "sessionId", logging.MaskID(sessionID))
		return fmt.Errorf("failed to save session record: %w", err)
	}
	return nil
}

func (s *RedisStorage) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
		s.logger.Storage().Error("Failed to clear session record", "error", err.Error(), "sessionId", logging.MaskID(sessionID))
		return fmt.Errorf("failed to clear session record: %w", err)
	}
	return nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
