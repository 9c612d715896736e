package cache

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int](0).(*ttlCache[string, int])
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	v, ok = c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestTTLCacheBounded(t *testing.T) {
	c := NewTTLCache[int, int](3)
	for i := 0; i < 10; i++ {
		c.Set(i, i, 0)
	}
	assert.LessOrEqual(t, c.Len(), 3)

	v, ok := c.Get(9)
	require.True(t, ok)
	assert.Equal(t, 9, v)
}

func TestTieredNameCacheBackfills(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryNameCache(10, time.Minute)
	l2 := NewMemoryNameCache(10, time.Minute)
	c := NewTieredNameCache(nil, l1, l2)

	l2.Set(ctx, "cpu_util", snowflake.ID(42))

	id, ok := c.Get(ctx, "cpu_util")
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)

	id, ok = l1.Get(ctx, "cpu_util")
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestTieredNameCacheSetWritesAllTiers(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryNameCache(10, time.Minute)
	l2 := NewMemoryNameCache(10, time.Minute)
	NewTieredNameCache(nil, l1, l2).Set(ctx, "Foo", snowflake.ID(7))

	_, ok := l1.Get(ctx, "Foo")
	assert.True(t, ok)
	_, ok = l2.Get(ctx, "Foo")
	assert.True(t, ok)
}

type fakeRedis struct {
	redis.Cmdable
	values map[string]string
	ttls   map[string]time.Duration
	fail   error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.fail != nil {
		return redis.NewStringResult("", f.fail)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	if f.fail != nil {
		return redis.NewStatusResult("", f.fail)
	}
	f.values[key] = toString(value)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Scan(_ context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	if f.fail != nil {
		return redis.NewScanCmdResult(nil, 0, f.fail)
	}
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range f.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return redis.NewScanCmdResult(keys, 0, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.fail != nil {
		return redis.NewIntResult(0, f.fail)
	}
	for _, k := range keys {
		delete(f.values, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case int64:
		return snowflake.ID(x).String()
	case string:
		return x
	default:
		return ""
	}
}

func TestRedisNameCache(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	c := NewRedisNameCache(client, time.Hour, nil)

	_, ok := c.Get(ctx, "Foo")
	assert.False(t, ok)

	c.Set(ctx, "Foo", snowflake.ID(1234))
	assert.Equal(t, "1234", client.values["telemetry:unique_name:Foo"])
	assert.Equal(t, time.Hour, client.ttls["telemetry:unique_name:Foo"])

	id, ok := c.Get(ctx, "Foo")
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(1234), id)
}

func TestRedisNameCacheFailureIsMiss(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.fail = assert.AnError
	c := NewRedisNameCache(client, time.Hour, nil)

	c.Set(ctx, "Foo", snowflake.ID(1))
	_, ok := c.Get(ctx, "Foo")
	assert.False(t, ok)
}

func TestRedisNameCacheIgnoresGarbage(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.values["telemetry:unique_name:Foo"] = "not-a-number"

	_, ok := NewRedisNameCache(client, time.Hour, nil).Get(ctx, "Foo")
	assert.False(t, ok)
}

func TestRedisNameCachePurge(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.values["other:key"] = "1"
	c := NewRedisNameCache(client, time.Hour, nil)
	c.Set(ctx, "Foo", snowflake.ID(1))
	c.Set(ctx, "Bar", snowflake.ID(2))
	c.Set(ctx, "Baz", snowflake.ID(3))

	require.NoError(t, c.Purge(ctx))

	assert.Equal(t, map[string]string{"other:key": "1"}, client.values)
	_, ok := c.Get(ctx, "Foo")
	assert.False(t, ok)
}

func TestRedisNameCachePurgeFailure(t *testing.T) {
	client := newFakeRedis()
	client.fail = assert.AnError

	err := NewRedisNameCache(client, time.Hour, nil).Purge(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestTieredNameCachePurge(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryNameCache(10, time.Minute)
	client := newFakeRedis()
	c := NewTieredNameCache(nil, memory, NewRedisNameCache(client, time.Hour, nil))
	c.Set(ctx, "Foo", snowflake.ID(9))

	require.NoError(t, c.Purge(ctx))

	_, ok := memory.Get(ctx, "Foo")
	assert.False(t, ok)
	assert.Empty(t, client.values)
	_, ok = c.Get(ctx, "Foo")
	assert.False(t, ok)
}

func TestTieredNameCachePurgeReportsFailedTier(t *testing.T) {
	ctx := context.Background()
	memory := NewMemoryNameCache(10, time.Minute)
	client := newFakeRedis()
	c := NewTieredNameCache(nil, memory, NewRedisNameCache(client, time.Hour, nil))
	c.Set(ctx, "Foo", snowflake.ID(9))
	client.fail = assert.AnError

	err := c.Purge(ctx)
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), TierRedis)

	_, ok := memory.Get(ctx, "Foo")
	assert.False(t, ok)
}

func TestTTLCachePurge(t *testing.T) {
	c := NewTTLCache[string, int](0)
	c.Set("a", 1, 0)
	c.Set("b", 2, time.Minute)

	c.Purge()

	assert.Zero(t, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 3, 0)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}
