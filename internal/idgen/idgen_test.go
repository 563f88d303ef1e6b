package idgen

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rediskey "github.com/wwsz-2002/comment-app/pkg/redis"
)

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

// testNamespace 每次运行独立的命名空间，计数器从零开始。
func testNamespace(t *testing.T, rdb *rd.Client) string {
	ns := fmt.Sprintf("idgen_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		date := time.Now().UTC().Format("20060102")
		rdb.Del(context.Background(), rediskey.IDCounterKey(ns, date))
	})
	return ns
}

func TestNextIDStrictlyIncreasing(t *testing.T) {
	rdb := newTestRedis(t)
	g := New(rdb)
	ns := testNamespace(t, rdb)
	ctx := context.Background()

	const n = 1000
	seen := make(map[int64]struct{}, n)
	var prev int64
	for i := 0; i < n; i++ {
		id, err := g.NextID(ctx, ns)
		require.NoError(t, err)
		require.Greater(t, id, prev, "ids must be strictly increasing")
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d at call %d", id, i)
		}
		seen[id] = struct{}{}
		prev = id
	}
	assert.Len(t, seen, n)
}

func TestNextIDLayout(t *testing.T) {
	rdb := newTestRedis(t)
	g := New(rdb)
	ns := testNamespace(t, rdb)
	ctx := context.Background()

	before := time.Now().UTC().Unix() - epochSecond
	id, err := g.NextID(ctx, ns)
	require.NoError(t, err)
	after := time.Now().UTC().Unix() - epochSecond

	ts := id >> counterBits
	counter := id & ((1 << counterBits) - 1)
	assert.GreaterOrEqual(t, ts, before)
	assert.LessOrEqual(t, ts, after)
	assert.Equal(t, int64(1), counter, "fresh namespace starts counting at 1")
	assert.Positive(t, id, "sign bit stays clear")
}

func TestNextIDIsolatedPerNamespace(t *testing.T) {
	rdb := newTestRedis(t)
	g := New(rdb)
	ctx := context.Background()

	nsA := testNamespace(t, rdb)
	nsB := testNamespace(t, rdb)

	idA, err := g.NextID(ctx, nsA)
	require.NoError(t, err)
	idB, err := g.NextID(ctx, nsB)
	require.NoError(t, err)

	// 各自命名空间独立计数，序列号都从 1 开始
	assert.Equal(t, int64(1), idA&((1<<counterBits)-1))
	assert.Equal(t, int64(1), idB&((1<<counterBits)-1))
}
