package session

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

func TestResolveRoundTrip(t *testing.T) {
	rdb := newTestRedis(t)
	r := NewResolver(rdb, time.Minute)
	ctx := context.Background()

	token := fmt.Sprintf("session_test_%d", time.Now().UnixNano())
	t.Cleanup(func() { rdb.Del(ctx, rediskey.LoginTokenKey(token)) })

	want := UserDTO{ID: 42, NickName: "tester", Icon: "x.png"}
	require.NoError(t, r.Save(ctx, token, want))

	got, err := r.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, &want, got)

	// 成功解析会刷新 TTL
	ttl, err := rdb.TTL(ctx, rediskey.LoginTokenKey(token)).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
}

func TestResolveUnknownToken(t *testing.T) {
	rdb := newTestRedis(t)
	r := NewResolver(rdb, time.Minute)

	_, err := r.Resolve(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
