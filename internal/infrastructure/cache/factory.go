package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/erp/fundflow/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxInMemoryStepTTL bounds how long another instance may keep serving
// steps after an admin change, since in-memory invalidations stay local
const maxInMemoryStepTTL = 15 * time.Second

// Stores bundles the cache-backed components. Client is nil when running in-memory.
type Stores struct {
	Client      *redis.Client
	Idempotency shared.IdempotencyStore
	Steps       StepCache
}

// Close releases the stores and the Redis client
func (s *Stores) Close() error {
	if err := s.Idempotency.Close(); err != nil {
		return err
	}
	if s.Client != nil {
		return s.Client.Close()
	}
	return nil
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewStores builds Redis-backed stores when Redis is configured and reachable.
// Otherwise it falls back to in-memory stores, which do not share state
// between server instances.
func NewStores(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Stores {
	if cfg.Host == "" {
		logger.Info("redis not configured, using in-memory caches")
		return newInMemoryStores(cfg, logger)
	}

	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-memory caches", zap.Error(err))
		return newInMemoryStores(cfg, logger)
	}

	logger.Info("using redis caches", zap.String("addr", cfg.Addr()))
	return &Stores{
		Client:      client,
		Idempotency: NewRedisIdempotencyStore(client, ""),
		Steps:       NewRedisStepCache(client, cfg.StepTTL),
	}
}

func newInMemoryStores(cfg config.RedisConfig, logger *zap.Logger) *Stores {
	ttl := inMemoryStepTTL(cfg.StepTTL)
	if ttl != cfg.StepTTL {
		logger.Info("capping in-memory step cache ttl", zap.Duration("configured", cfg.StepTTL), zap.Duration("ttl", ttl))
	}
	return &Stores{
		Idempotency: NewInMemoryIdempotencyStore(),
		Steps:       NewInMemoryStepCache(ttl),
	}
}

func inMemoryStepTTL(configured time.Duration) time.Duration {
	if configured <= 0 || configured > maxInMemoryStepTTL {
		return maxInMemoryStepTTL
	}
	return configured
}
