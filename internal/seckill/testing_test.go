package seckill

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wwsz-2002/comment-app/internal/model"
)

// newTestRedis 连不上 Redis 就跳过，集成测试依赖 REDIS_ADDR。
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

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.SeckillVoucher{}, &model.VoucherOrder{}))
	return db
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// uniqueSuffix 隔离并发跑的测试用例共享同一个 Redis 的情况。
func uniqueSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// uniqueID 给测试券分配全局唯一主键，避免不同测试在共享 Redis 上
// 撞到同一组 stock/order 键。
func uniqueID() uint64 {
	return uint64(time.Now().UnixNano())
}

func itoa(id uint64) string {
	return fmt.Sprintf("%d", id)
}
