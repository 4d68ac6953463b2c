package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/types"
)

// RedisStore persists sessions in Redis. Suitable for distributed
// deployments where multiple instances route the same sessions. Each
// session is stored as a metadata hash plus a message list; appends go
// through RPUSH, so concurrent writers extend the history without ever
// overwriting each other's turns. A non-zero TTL expires idle sessions;
// every write refreshes the expiry on both keys.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.RedisConfig, ttl time.Duration, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "relay:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "session_redis")),
	}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "relay:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "session_redis")),
	}
}

// metaKey holds the session metadata hash: active_agent, created_at,
// updated_at. histKey holds the message list, one JSON document per turn.
func (s *RedisStore) metaKey(id string) string { return s.keyPrefix + "sess:" + id }
func (s *RedisStore) histKey(id string) string { return s.keyPrefix + "hist:" + id }

func redisErr(msg string, cause error) error {
	return types.NewError(types.ErrStoreUnavailable, msg).
		WithCause(cause).WithRetryable(true)
}

func (s *RedisStore) exists(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, s.metaKey(id)).Result()
	if err != nil {
		return redisErr("redis exists failed", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *RedisStore) refreshTTL(ctx context.Context, pipe redis.Pipeliner, id string) {
	if s.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, s.metaKey(id), s.ttl)
	pipe.Expire(ctx, s.histKey(id), s.ttl)
}

func (s *RedisStore) Create(ctx context.Context, activeAgent string) (*Session, error) {
	sess := New(activeAgent)
	ts := sess.CreatedAt.Format(time.RFC3339Nano)

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.metaKey(sess.ID),
		"active_agent", sess.ActiveAgent,
		"created_at", ts,
		"updated_at", ts,
	)
	s.refreshTTL(ctx, pipe, sess.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, redisErr("redis create failed", err)
	}

	s.logger.Debug("session created",
		zap.String("session_id", sess.ID),
		zap.String("active_agent", activeAgent),
	)
	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	pipe := s.client.Pipeline()
	metaCmd := pipe.HGetAll(ctx, s.metaKey(id))
	histCmd := pipe.LRange(ctx, s.histKey(id), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, redisErr("redis read failed", err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, notFound(id)
	}

	sess := &Session{
		ID:          id,
		ActiveAgent: meta["active_agent"],
		Messages:    []types.Message{},
	}
	if ts, err := time.Parse(time.RFC3339Nano, meta["created_at"]); err == nil {
		sess.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, meta["updated_at"]); err == nil {
		sess.UpdatedAt = ts
	}
	for _, raw := range histCmd.Val() {
		var msg types.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message in session %s: %w", id, err)
		}
		sess.Messages = append(sess.Messages, msg)
	}
	return sess, nil
}

func (s *RedisStore) AppendMessage(ctx context.Context, id string, msg types.Message) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for session %s: %w", id, err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.histKey(id), data)
	pipe.HSet(ctx, s.metaKey(id), "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	s.refreshTTL(ctx, pipe, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return redisErr("redis append failed", err)
	}
	return nil
}

func (s *RedisStore) SetActiveAgent(ctx context.Context, id, agent string) error {
	if err := s.exists(ctx, id); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.metaKey(id),
		"active_agent", agent,
		"updated_at", time.Now().UTC().Format(time.RFC3339Nano),
	)
	s.refreshTTL(ctx, pipe, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return redisErr("redis set active agent failed", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.metaKey(id), s.histKey(id)).Result()
	if err != nil {
		return redisErr("redis del failed", err)
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	prefix := s.keyPrefix + "sess:"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, redisErr("redis scan failed", err)
		}
		for _, k := range keys {
			ids = append(ids, k[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
