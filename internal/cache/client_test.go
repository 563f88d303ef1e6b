package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testShop struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

func newTestRedis(t *testing.T) *rd.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis integration test")
	}
	rdb := rd.NewClient(&rd.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis at %s unreachable: %v", addr, err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newTestClient(t *testing.T, opts Options) (*Client, *rd.Client) {
	t.Helper()
	rdb := newTestRedis(t)
	log := logrus.New()
	log.SetOutput(io.Discard)
	c := NewClient(rdb, log, opts)
	t.Cleanup(c.Close)
	return c, rdb
}

// testPrefix 每个用例独立的键前缀，避免共享 Redis 串数据。
func testPrefix(t *testing.T) string {
	return fmt.Sprintf("cache_test:%s:%d:", t.Name(), time.Now().UnixNano())
}

func TestGetMissLoadsOnceThenHits(t *testing.T) {
	c, rdb := newTestClient(t, Options{})
	ctx := context.Background()
	prefix := testPrefix(t)
	t.Cleanup(func() { rdb.Del(ctx, prefix+"1") })

	var calls atomic.Int32
	loader := func(ctx context.Context, id string) (*testShop, error) {
		calls.Add(1)
		return &testShop{ID: 1, Name: "coffee"}, nil
	}

	got, err := Get(ctx, c, prefix, "1", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "coffee", got.Name)
	assert.Equal(t, int32(1), calls.Load())

	// 第二次命中缓存，不回源
	got, err = Get(ctx, c, prefix, "1", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "coffee", got.Name)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetNullMarkerCapsPenetration(t *testing.T) {
	c, rdb := newTestClient(t, Options{NullTTL: time.Minute})
	ctx := context.Background()
	prefix := testPrefix(t)
	t.Cleanup(func() { rdb.Del(ctx, prefix+"404") })

	var calls atomic.Int32
	loader := func(ctx context.Context, id string) (*testShop, error) {
		calls.Add(1)
		return nil, nil
	}

	// 第一次：恰好一次回源，确认不存在并写占位
	_, err := Get(ctx, c, prefix, "404", time.Minute, loader)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())

	// 占位窗口内的第二次：零次回源
	_, err = Get(ctx, c, prefix, "404", time.Minute, loader)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLogicalExpiryRoundTrip(t *testing.T) {
	c, rdb := newTestClient(t, Options{})
	ctx := context.Background()
	prefix := testPrefix(t)
	key := prefix + "1"
	t.Cleanup(func() { rdb.Del(ctx, key) })

	want := &testShop{ID: 1, Name: "noodles"}
	require.NoError(t, c.SetWithLogicalExpiry(ctx, key, want, time.Minute))

	loader := func(ctx context.Context, id string) (*testShop, error) {
		t.Fatal("fresh entry must not trigger loader")
		return nil, nil
	}
	got, err := GetWithLogicalExpiry(ctx, c, prefix, prefix+"lock:", "1", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLogicalExpiryMissIsNotFound(t *testing.T) {
	c, _ := newTestClient(t, Options{})
	ctx := context.Background()
	prefix := testPrefix(t)

	var calls atomic.Int32
	loader := func(ctx context.Context, id string) (*testShop, error) {
		calls.Add(1)
		return &testShop{}, nil
	}

	// 该策略假定预热：物理未命中绝不同步回源
	_, err := GetWithLogicalExpiry(ctx, c, prefix, prefix+"lock:", "9", time.Minute, loader)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(0), calls.Load())
}

func TestLogicalExpiryStaleServedThenRebuilt(t *testing.T) {
	c, rdb := newTestClient(t, Options{})
	ctx := context.Background()
	prefix := testPrefix(t)
	key := prefix + "1"
	lockPrefix := prefix + "lock:"
	t.Cleanup(func() { rdb.Del(ctx, key, "lock:"+lockPrefix+"1") })

	stale := &testShop{ID: 1, Name: "old name"}
	require.NoError(t, c.SetWithLogicalExpiry(ctx, key, stale, -time.Second)) // 立即过期

	loader := func(ctx context.Context, id string) (*testShop, error) {
		return &testShop{ID: 1, Name: "new name"}, nil
	}

	// 过期读立即拿到旧值，不等待重建
	got, err := GetWithLogicalExpiry(ctx, c, prefix, lockPrefix, "1", time.Minute, loader)
	require.NoError(t, err)
	assert.Equal(t, "old name", got.Name)

	// 后台重建完成后，后续读切到新值
	require.Eventually(t, func() bool {
		got, err := GetWithLogicalExpiry(ctx, c, prefix, lockPrefix, "1", time.Minute, loader)
		return err == nil && got.Name == "new name"
	}, 5*time.Second, 50*time.Millisecond)
}
