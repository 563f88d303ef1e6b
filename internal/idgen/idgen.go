package idgen

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"

	rediskey "github.com/wwsz-2002/comment-app/pkg/redis"
)

const (
	// epochSecond 固定起始时间戳（2024-09-03 00:00:00 UTC）。
	epochSecond int64 = 1725321600
	// counterBits 序列号位数，时间戳左移后拼接。
	counterBits = 32
)

// Generator 生成全局唯一 ID：高 31 位为相对 epoch 的秒级时间戳，
// 低 32 位为 Redis 按天自增序列号。按天滚动计数键，既防止单键数值
// 溢出，也让键随日期自然淘汰。
// 已知限制：系统时钟回拨会破坏单调性，这里不做处理。
type Generator struct {
	rdb *rd.Client
}

func New(rdb *rd.Client) *Generator {
	return &Generator{rdb: rdb}
}

// NextID 返回 namespace 下的下一个 ID。
// 唯一性依赖 Redis INCR 的原子性，同一 namespace+日期键只会有一个计数序列。
func (g *Generator) NextID(ctx context.Context, namespace string) (int64, error) {
	now := time.Now().UTC()
	timestamp := now.Unix() - epochSecond

	// 按天滚动计数键，单日序列号上限 2^32
	date := now.Format("20060102")
	count, err := g.rdb.Incr(ctx, rediskey.IDCounterKey(namespace, date)).Result()
	if err != nil {
		return 0, fmt.Errorf("idgen incr %s: %w", namespace, err)
	}
	return timestamp<<counterBits | count, nil
}
