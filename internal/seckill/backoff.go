package seckill

import (
	"context"
	"time"
)

// Backoff 有上限的指数退避。零值不可用，用 DefaultBackoff 或自行构造。
type Backoff struct {
	Base time.Duration // 首次等待
	Max  time.Duration // 等待上限
}

// DefaultBackoff 消费循环的默认退避参数。
var DefaultBackoff = Backoff{Base: 50 * time.Millisecond, Max: 2 * time.Second}

// Delay 返回第 attempt 次（从 0 计）失败后的等待时长。
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Sleep 按退避策略等待；ctx 取消时立即返回 false。
func (b Backoff) Sleep(ctx context.Context, attempt int) bool {
	t := time.NewTimer(b.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
