package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu       sync.Mutex
	data     map[string]string
	incrErr  error
	getCalls int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrErr != nil {
		return redis.NewIntResult(0, f.incrErr)
	}
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Close() error { return nil }

type row struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

func backends(t *testing.T) map[string]Cache {
	t.Helper()
	return map[string]Cache{
		"memory": NewMemory(time.Minute),
		"redis":  NewRedis(newFakeRedis(), time.Minute),
	}
}

func TestReadThroughCachesUntilInvalidated(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			loads := 0
			load := func(context.Context) ([]row, error) {
				loads++
				return []row{{ID: int64(loads), Label: "sale"}}, nil
			}

			first, err := ReadThrough(ctx, c, EntitySales, "all", nil, load)
			require.NoError(t, err)
			second, err := ReadThrough(ctx, c, EntitySales, "all", nil, load)
			require.NoError(t, err)
			assert.Equal(t, 1, loads)
			assert.Equal(t, first, second)

			require.NoError(t, c.Invalidate(ctx, EntityCustomers))
			_, err = ReadThrough(ctx, c, EntitySales, "all", nil, load)
			require.NoError(t, err)
			assert.Equal(t, 1, loads, "invalidating another entity must not evict sales")

			require.NoError(t, c.Invalidate(ctx, EntitySales))
			third, err := ReadThrough(ctx, c, EntitySales, "all", nil, load)
			require.NoError(t, err)
			assert.Equal(t, 2, loads)
			assert.Equal(t, int64(2), third[0].ID)
		})
	}
}

func TestFillAfterInvalidateIsDropped(t *testing.T) {
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var dest row
			slot, hit, err := c.Lookup(ctx, EntitySales, "7", &dest)
			require.NoError(t, err)
			require.False(t, hit)

			require.NoError(t, c.Invalidate(ctx, EntitySales))
			require.NoError(t, c.Fill(ctx, slot, row{ID: 7, Label: "stale"}))

			_, hit, err = c.Lookup(ctx, EntitySales, "7", &dest)
			require.NoError(t, err)
			assert.False(t, hit)
		})
	}
}

func TestReadThroughReportsOutcomes(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	var outcomes []Outcome
	report := func(_ context.Context, _ Entity, outcome Outcome, _ error) {
		outcomes = append(outcomes, outcome)
	}
	load := func(context.Context) (int, error) { return 42, nil }

	_, _ = ReadThrough(ctx, c, EntityProducts, "k", report, load)
	_, _ = ReadThrough(ctx, c, EntityProducts, "k", report, load)
	assert.Equal(t, []Outcome{OutcomeMiss, OutcomeHit}, outcomes)
}

func TestReadThroughPropagatesLoadError(t *testing.T) {
	boom := errors.New("db down")
	_, err := ReadThrough(context.Background(), Noop{}, EntitySales, "all", nil, func(context.Context) ([]row, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestMemoryEntriesExpire(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Second)
	now := time.Now()
	c.now = func() time.Time { return now }

	slot, _, _ := c.Lookup(ctx, EntityProducts, "p1", new(row))
	require.NoError(t, c.Fill(ctx, slot, row{ID: 1}))

	now = now.Add(2 * time.Second)
	_, hit, err := c.Lookup(ctx, EntityProducts, "p1", new(row))
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisInvalidateCombinesErrors(t *testing.T) {
	fake := newFakeRedis()
	fake.incrErr = errors.New("connection refused")
	c := NewRedis(fake, time.Minute)

	err := c.Invalidate(context.Background(), EntitySales, EntityCustomers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidate sales")
	assert.Contains(t, err.Error(), "invalidate customers")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "by_customer:cus-1", Key("by_customer", "cus-1"))
	assert.Equal(t, "sale:12", Key("sale", int64(12)))
}
