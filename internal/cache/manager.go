package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/internal/metrics"
)

// =============================================================================
// 💾 评分缓存管理器
// =============================================================================

// Manager Redis 评分缓存管理器，为 LLM/嵌入评分器缓存打分结果
type Manager struct {
	redis     *redis.Client
	ttl       time.Duration
	collector *metrics.Collector
	logger    *zap.Logger
	mu        sync.RWMutex
	closed    bool
}

// NewManager 创建评分缓存管理器并验证 Redis 连接
func NewManager(cfg config.RedisConfig, ttl time.Duration, collector *metrics.Collector, logger *zap.Logger) (*Manager, error) {
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

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := NewManagerWithClient(client, ttl, collector, logger)

	logger.Info("score cache initialized",
		zap.String("addr", cfg.Addr),
		zap.Duration("ttl", ttl),
	)

	return m, nil
}

// NewManagerWithClient 包装已有客户端（测试用）
func NewManagerWithClient(client *redis.Client, ttl time.Duration, collector *metrics.Collector, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		redis:     client,
		ttl:       ttl,
		collector: collector,
		logger:    logger.With(zap.String("component", "score_cache")),
	}
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// GetScore 获取缓存的评分；未命中时返回 ok=false 且无错误
func (m *Manager) GetScore(ctx context.Context, key string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, false, fmt.Errorf("score cache is closed")
	}

	val, err := m.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		if m.collector != nil {
			m.collector.RecordCacheMiss("score")
		}
		return 0, false, nil
	}
	if err != nil {
		m.logger.Error("score cache get failed", zap.String("key", key), zap.Error(err))
		return 0, false, fmt.Errorf("score cache get failed: %w", err)
	}

	score, err := strconv.ParseFloat(val, 64)
	if err != nil {
		// 损坏的值当作未命中处理
		m.logger.Warn("corrupt score cache entry", zap.String("key", key))
		return 0, false, nil
	}

	if m.collector != nil {
		m.collector.RecordCacheHit("score")
	}
	return score, true, nil
}

// SetScore 写入评分，使用配置的 TTL
func (m *Manager) SetScore(ctx context.Context, key string, score float64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("score cache is closed")
	}

	val := strconv.FormatFloat(score, 'f', -1, 64)
	if err := m.redis.Set(ctx, key, val, m.ttl).Err(); err != nil {
		m.logger.Error("score cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("score cache set failed: %w", err)
	}
	return nil
}

// Delete 删除缓存项
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("score cache is closed")
	}
	if len(keys) == 0 {
		return nil
	}

	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("score cache delete failed: %w", err)
	}
	return nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("score cache is closed")
	}
	return m.redis.Ping(ctx).Err()
}

// Close 关闭缓存管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing score cache")

	return m.redis.Close()
}
