package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/telemetry/internal/config"
	"github.com/smallbiznis/telemetry/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyUniqueName      = "telemetry:unique_name:%s"
	keyUniqueNameMatch = "telemetry:unique_name:*"
	purgeScanCount     = 500
	defaultNameTTL     = time.Hour
	defaultMemoryNames = 100_000

	TierMemory = "memory"
	TierRedis  = "redis"
)

// NameCache maps registry keys to their committed ids. Get and Set never
// report errors: a failed lookup is a miss.
type NameCache interface {
	Get(ctx context.Context, key string) (snowflake.ID, bool)
	Set(ctx context.Context, key string, id snowflake.ID)
	// Purge drops every cached name. It must succeed before the ids it
	// held can be reused, since a stale entry points at a deleted row.
	Purge(ctx context.Context) error
}

var Module = fx.Module("cache",
	fx.Provide(NewNameCache),
)

type NameCacheParams struct {
	fx.In

	Lc      fx.Lifecycle
	Cfg     config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// NewNameCache returns an in-process cache, backed by Redis when configured.
func NewNameCache(p NameCacheParams) NameCache {
	ttl := p.Cfg.NameCacheTTL
	if ttl <= 0 {
		ttl = defaultNameTTL
	}
	memory := NewMemoryNameCache(defaultMemoryNames, ttl)
	if !p.Cfg.Redis.Enabled() {
		return NewTieredNameCache(p.Metrics, memory)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     p.Cfg.Redis.Addr,
		Password: strings.TrimSpace(p.Cfg.Redis.Password),
		DB:       p.Cfg.Redis.DB,
	})
	if p.Lc != nil {
		p.Lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	log := p.Log.Named("cache.names")
	log.Info("shared name cache enabled", zap.String("addr", p.Cfg.Redis.Addr))

	return NewTieredNameCache(p.Metrics, memory, NewRedisNameCache(client, ttl, log))
}

type memoryNameCache struct {
	items Cache[string, snowflake.ID]
	ttl   time.Duration
}

func NewMemoryNameCache(maxSize int, ttl time.Duration) NameCache {
	return &memoryNameCache{
		items: NewTTLCache[string, snowflake.ID](maxSize),
		ttl:   ttl,
	}
}

func (c *memoryNameCache) Get(_ context.Context, key string) (snowflake.ID, bool) {
	return c.items.Get(key)
}

func (c *memoryNameCache) Set(_ context.Context, key string, id snowflake.ID) {
	c.items.Set(key, id, c.ttl)
}

func (c *memoryNameCache) Purge(context.Context) error {
	c.items.Purge()
	return nil
}

type redisNameCache struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisNameCache shares resolved names between processes.
func NewRedisNameCache(client redis.Cmdable, ttl time.Duration, log *zap.Logger) NameCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &redisNameCache{client: client, ttl: ttl, log: log}
}

func (c *redisNameCache) Get(ctx context.Context, key string) (snowflake.ID, bool) {
	raw, err := c.client.Get(ctx, redisKey(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("name cache read failed", zap.Error(err))
		}
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return snowflake.ID(id), true
}

func (c *redisNameCache) Set(ctx context.Context, key string, id snowflake.ID) {
	if err := c.client.Set(ctx, redisKey(key), id.Int64(), c.ttl).Err(); err != nil {
		c.log.Warn("name cache write failed", zap.Error(err))
	}
}

// Purge deletes the name keyspace one SCAN page at a time.
func (c *redisNameCache) Purge(ctx context.Context) error {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyUniqueNameMatch, purgeScanCount).Result()
		if err != nil {
			return fmt.Errorf("scan name cache: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete name cache keys: %w", err)
			}
			deleted += len(keys)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	c.log.Info("name cache purged", zap.Int("keys", deleted))
	return nil
}

func redisKey(key string) string {
	return fmt.Sprintf(keyUniqueName, key)
}

type tier struct {
	name  string
	cache NameCache
}

type tieredNameCache struct {
	tiers   []tier
	metrics *metrics.Metrics
}

// NewTieredNameCache consults caches in order and back-fills faster tiers
// on a hit in a slower one. The first cache is the memory tier, the second
// the redis tier.
func NewTieredNameCache(m *metrics.Metrics, caches ...NameCache) NameCache {
	names := []string{TierMemory, TierRedis}
	tiers := make([]tier, 0, len(caches))
	for i, c := range caches {
		name := TierRedis
		if i < len(names) {
			name = names[i]
		}
		tiers = append(tiers, tier{name: name, cache: c})
	}
	return &tieredNameCache{tiers: tiers, metrics: m}
}

func (c *tieredNameCache) Get(ctx context.Context, key string) (snowflake.ID, bool) {
	for i, t := range c.tiers {
		id, ok := t.cache.Get(ctx, key)
		c.metrics.RecordNameCacheLookup(ctx, t.name, ok)
		if !ok {
			continue
		}
		for j := 0; j < i; j++ {
			c.tiers[j].cache.Set(ctx, key, id)
		}
		return id, true
	}
	return 0, false
}

func (c *tieredNameCache) Set(ctx context.Context, key string, id snowflake.ID) {
	for _, t := range c.tiers {
		t.cache.Set(ctx, key, id)
	}
}

// Purge empties every tier. All tiers are attempted even when one fails.
func (c *tieredNameCache) Purge(ctx context.Context) error {
	var errs []error
	for _, t := range c.tiers {
		if err := t.cache.Purge(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s tier: %w", t.name, err))
		}
	}
	return errors.Join(errs...)
}
