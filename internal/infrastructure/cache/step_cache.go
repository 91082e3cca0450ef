package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StepCache stores the workflow steps of a tenant. A miss returns ok=false.
//
// Every Invalidate bumps the tenant's generation. Set only stores when the
// generation still equals the one read before loading the steps, so a
// reader that loaded rows before a write cannot repopulate the cache with
// them after the writer invalidated it.
type StepCache interface {
	Get(ctx context.Context, tenantID uuid.UUID) (steps []fundrequest.WorkflowStep, ok bool, err error)
	Generation(ctx context.Context, tenantID uuid.UUID) (uint64, error)
	Set(ctx context.Context, tenantID uuid.UUID, generation uint64, steps []fundrequest.WorkflowStep) error
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}

// RedisStepCache keeps step lists as JSON under fundflow:steps:{<tenant>}
// and the tenant's generation counter next to it
type RedisStepCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStepCache creates a Redis-backed step cache
func NewRedisStepCache(client redis.UniversalClient, ttl time.Duration) *RedisStepCache {
	return &RedisStepCache{client: client, ttl: ttl}
}

// The braces keep both keys of a tenant in one cluster slot
func stepKey(tenantID uuid.UUID) string {
	return "fundflow:steps:{" + tenantID.String() + "}"
}

func stepGenerationKey(tenantID uuid.UUID) string {
	return stepKey(tenantID) + ":gen"
}

// KEYS[1] steps, KEYS[2] generation; ARGV[1] expected generation, ARGV[2] payload, ARGV[3] ttl in ms
var setIfGenerationScript = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// Get implements StepCache
func (c *RedisStepCache) Get(ctx context.Context, tenantID uuid.UUID) ([]fundrequest.WorkflowStep, bool, error) {
	data, err := c.client.Get(ctx, stepKey(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached steps: %w", err)
	}
	var steps []fundrequest.WorkflowStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, false, fmt.Errorf("decode cached steps: %w", err)
	}
	return steps, true, nil
}

// Generation implements StepCache
func (c *RedisStepCache) Generation(ctx context.Context, tenantID uuid.UUID) (uint64, error) {
	gen, err := c.client.Get(ctx, stepGenerationKey(tenantID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get step cache generation: %w", err)
	}
	return gen, nil
}

// Set implements StepCache
func (c *RedisStepCache) Set(ctx context.Context, tenantID uuid.UUID, generation uint64, steps []fundrequest.WorkflowStep) error {
	data, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	keys := []string{stepKey(tenantID), stepGenerationKey(tenantID)}
	err = setIfGenerationScript.Run(ctx, c.client, keys,
		strconv.FormatUint(generation, 10), data, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("set cached steps: %w", err)
	}
	return nil
}

// Invalidate implements StepCache
func (c *RedisStepCache) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, stepGenerationKey(tenantID))
		pipe.Del(ctx, stepKey(tenantID))
		return nil
	})
	return err
}

// InMemoryStepCache is a process-local StepCache with per-tenant expiry.
// Invalidations are not seen by other server instances.
type InMemoryStepCache struct {
	mu          sync.RWMutex
	ttl         time.Duration
	entries     map[uuid.UUID]cachedSteps
	generations map[uuid.UUID]uint64
	now         func() time.Time
}

type cachedSteps struct {
	steps     []fundrequest.WorkflowStep
	expiresAt time.Time
}

// NewInMemoryStepCache creates an in-memory step cache
func NewInMemoryStepCache(ttl time.Duration) *InMemoryStepCache {
	return &InMemoryStepCache{
		ttl:         ttl,
		entries:     make(map[uuid.UUID]cachedSteps),
		generations: make(map[uuid.UUID]uint64),
		now:         time.Now,
	}
}

// Get implements StepCache
func (c *InMemoryStepCache) Get(_ context.Context, tenantID uuid.UUID) ([]fundrequest.WorkflowStep, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[tenantID]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return append([]fundrequest.WorkflowStep(nil), e.steps...), true, nil
}

// Generation implements StepCache
func (c *InMemoryStepCache) Generation(_ context.Context, tenantID uuid.UUID) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[tenantID], nil
}

// Set implements StepCache
func (c *InMemoryStepCache) Set(_ context.Context, tenantID uuid.UUID, generation uint64, steps []fundrequest.WorkflowStep) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[tenantID] != generation {
		return nil
	}
	c.entries[tenantID] = cachedSteps{
		steps:     append([]fundrequest.WorkflowStep(nil), steps...),
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

// Invalidate implements StepCache
func (c *InMemoryStepCache) Invalidate(_ context.Context, tenantID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[tenantID]++
	delete(c.entries, tenantID)
	return nil
}

// CachedWorkflowStepRepository serves FindByTenant from a StepCache and
// invalidates the tenant's entry on every write. Cache failures fall back
// to the wrapped repository.
type CachedWorkflowStepRepository struct {
	fundrequest.WorkflowStepRepository
	cache  StepCache
	logger *zap.Logger
}

// NewCachedWorkflowStepRepository wraps repo with cache
func NewCachedWorkflowStepRepository(repo fundrequest.WorkflowStepRepository, cache StepCache, logger *zap.Logger) *CachedWorkflowStepRepository {
	return &CachedWorkflowStepRepository{
		WorkflowStepRepository: repo,
		cache:                  cache,
		logger:                 logger,
	}
}

// FindByTenant implements fundrequest.WorkflowStepRepository
func (r *CachedWorkflowStepRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]fundrequest.WorkflowStep, error) {
	steps, ok, err := r.cache.Get(ctx, tenantID)
	if err != nil {
		r.logger.Warn("step cache read failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
	if ok {
		return steps, nil
	}

	// Read before loading so a concurrent invalidation discards this load
	generation, genErr := r.cache.Generation(ctx, tenantID)
	if genErr != nil {
		r.logger.Warn("step cache generation read failed", zap.String("tenant_id", tenantID.String()), zap.Error(genErr))
	}

	steps, err = r.WorkflowStepRepository.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	// Empty lists are not cached so that seeding is observed immediately
	if len(steps) > 0 && genErr == nil {
		if err := r.cache.Set(ctx, tenantID, generation, steps); err != nil {
			r.logger.Warn("step cache write failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		}
	}
	return steps, nil
}

// InsertIfAbsent implements fundrequest.WorkflowStepRepository
func (r *CachedWorkflowStepRepository) InsertIfAbsent(ctx context.Context, steps []fundrequest.WorkflowStep) (int, error) {
	n, err := r.WorkflowStepRepository.InsertIfAbsent(ctx, steps)
	if err == nil && n > 0 {
		r.invalidate(ctx, steps[0].TenantID)
	}
	return n, err
}

// Update implements fundrequest.WorkflowStepRepository
func (r *CachedWorkflowStepRepository) Update(ctx context.Context, step *fundrequest.WorkflowStep) error {
	if err := r.WorkflowStepRepository.Update(ctx, step); err != nil {
		return err
	}
	r.invalidate(ctx, step.TenantID)
	return nil
}

func (r *CachedWorkflowStepRepository) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if err := r.cache.Invalidate(ctx, tenantID); err != nil {
		r.logger.Warn("step cache invalidation failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
}

// Ensure CachedWorkflowStepRepository implements WorkflowStepRepository
var _ fundrequest.WorkflowStepRepository = (*CachedWorkflowStepRepository)(nil)
