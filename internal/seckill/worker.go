package seckill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/wwsz-2002/comment-app/internal/lock"
	"github.com/wwsz-2002/comment-app/internal/model"
	rediskey "github.com/wwsz-2002/comment-app/pkg/redis"
)

// WorkerConfig 消费者配置。同一 Group 可以安全地跑多个 Worker 实例，
// 但 Consumer 名必须互不相同：pending 回放按消费者身份隔离，
// 两个实例抢同一份 PEL 会互相干扰。
type WorkerConfig struct {
	Stream   string
	Group    string
	Consumer string

	// BlockTimeout 无消息时 XREADGROUP 的阻塞上限，默认 2s。
	BlockTimeout time.Duration
	// LockTTL 落单互斥锁 TTL，默认 10s。
	LockTTL time.Duration
	// Backoff 瞬态失败的退避策略。
	Backoff Backoff
}

func (c *WorkerConfig) withDefaults() {
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 2 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Second
	}
	if c.Backoff == (Backoff{}) {
		c.Backoff = DefaultBackoff
	}
}

// Worker 是异步落单消费者：从订单 stream 的消费组里读准入消息，
// 在分布式锁 + DB 复查的双重保护下幂等落单，处理完 ACK。
// 投递后、ACK 前崩溃的消息留在 PEL 里，由 pending 回放兜底，
// 整体构成 at-least-once 投递 + 幂等提交。
type Worker struct {
	rdb      *rd.Client
	db       *gorm.DB
	log      *logrus.Logger
	producer *Producer // 可为 nil：不发下游事件
	cfg      WorkerConfig
}

func NewWorker(rdb *rd.Client, db *gorm.DB, log *logrus.Logger, producer *Producer, cfg WorkerConfig) *Worker {
	cfg.withDefaults()
	return &Worker{rdb: rdb, db: db, log: log, producer: producer, cfg: cfg}
}

// Run 阻塞运行消费循环直到 ctx 取消。
func (w *Worker) Run(ctx context.Context) {
	if err := w.ensureGroup(ctx); err != nil {
		w.log.WithError(err).Error("order worker ensure group failed")
		return
	}

	// 启动时无条件回放一次 pending：投递后未 ACK 就崩溃的消息
	// 不会再有异常来触发补偿，只能靠启动回放捞回来。
	w.recoverPending(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := w.readGroup(ctx, ">", w.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			w.log.WithError(err).Warn("order worker read stream failed")
			w.cfg.Backoff.Sleep(ctx, 0)
			continue
		}

		for _, xm := range msgs {
			if err := w.processOne(ctx, xm); err != nil {
				// 未 ACK，消息留在 PEL，立即走回放重试
				w.log.WithError(err).WithField("entry", xm.ID).Error("order worker process failed")
				w.recoverPending(ctx)
			}
		}
	}
}

// recoverPending 从本消费者的 pending-entries list（offset "0"）回放，
// 直到 PEL 清空才退出；瞬态失败按退避重试而不是放弃。
func (w *Worker) recoverPending(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := w.readGroup(ctx, "0", 0)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			w.log.WithError(err).Warn("order worker read pending failed")
			if !w.cfg.Backoff.Sleep(ctx, attempt) {
				return
			}
			attempt++
			continue
		}
		if len(msgs) == 0 {
			return
		}

		for _, xm := range msgs {
			if err := w.processOne(ctx, xm); err != nil {
				w.log.WithError(err).WithField("entry", xm.ID).Error("order worker replay failed")
				if !w.cfg.Backoff.Sleep(ctx, attempt) {
					return
				}
				attempt++
				break
			}
			attempt = 0
		}
	}
}

func (w *Worker) ensureGroup(ctx context.Context) error {
	err := w.rdb.XGroupCreateMkStream(ctx, w.cfg.Stream, w.cfg.Group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (w *Worker) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := w.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    w.cfg.Group,
		Consumer: w.cfg.Consumer,
		Streams:  []string{w.cfg.Stream, streamID},
		Count:    1,
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 1)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

// processOne 提交一条消息并 ACK。返回 error 时不 ACK，交给回放兜底。
func (w *Worker) processOne(ctx context.Context, xm rd.XMessage) error {
	msg, err := parseOrderMessage(xm.Values)
	if err != nil {
		// 脏消息重放多少次都不会变好，ACK 丢弃避免堵死回放
		w.log.WithError(err).WithField("entry", xm.ID).Warn("order worker drop malformed message")
		return w.rdb.XAck(ctx, w.cfg.Stream, w.cfg.Group, xm.ID).Err()
	}

	if err := w.commitOrder(ctx, msg); err != nil {
		return err
	}
	return w.rdb.XAck(ctx, w.cfg.Stream, w.cfg.Group, xm.ID).Err()
}

// commitOrder 把准入消息落成订单。锁 + DB 复查保证同一 (user, voucher)
// 重复投递（崩溃重放、多实例竞争）最多只产出一行订单；锁本身 TTL 有界、
// 非严格安全，但被保护的动作先查后写，天然幂等。
func (w *Worker) commitOrder(ctx context.Context, msg OrderMessage) error {
	lk := lock.New(w.rdb, rediskey.OrderLockName(msg.UserID, msg.VoucherID))
	ok, err := lk.TryAcquire(ctx, w.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire order lock: %w", err)
	}
	if !ok {
		// 同一对 (user, voucher) 的另一次提交在途，留到回放再试
		return fmt.Errorf("order lock busy: user=%d voucher=%d", msg.UserID, msg.VoucherID)
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lk.Release(rctx); err != nil {
			w.log.WithError(err).Warn("order lock release failed")
		}
	}()

	committed := false
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 一人一单复查：已存在订单则按重复投递丢弃
		var count int64
		if err := tx.Model(&model.VoucherOrder{}).
			Where("user_id = ? AND voucher_id = ?", msg.UserID, msg.VoucherID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			w.log.WithFields(logrus.Fields{
				"user_id":    msg.UserID,
				"voucher_id": msg.VoucherID,
			}).Info("order already committed, dropping duplicate delivery")
			return nil
		}

		// 带守卫的条件扣减：stock > 0 才生效
		res := tx.Model(&model.SeckillVoucher{}).
			Where("id = ? AND stock > 0", msg.VoucherID).
			UpdateColumn("stock", gorm.Expr("stock - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 脚本已经扣过 Redis 库存，DB 不足说明两边不一致，记下来丢弃
			w.log.WithField("voucher_id", msg.VoucherID).Error("db stock exhausted for admitted order")
			return nil
		}

		if err := tx.Create(&model.VoucherOrder{
			ID:        msg.OrderID,
			UserID:    msg.UserID,
			VoucherID: msg.VoucherID,
			Status:    model.VoucherOrderUnpaid,
		}).Error; err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit order %d: %w", msg.OrderID, err)
	}

	if committed {
		w.publishEvent(ctx, msg)
	}
	return nil
}

// publishEvent 给下游广播订单事件，尽力而为：失败只记日志，不影响 ACK。
func (w *Worker) publishEvent(ctx context.Context, msg OrderMessage) {
	if w.producer == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ev := OrderEvent{
		OrderID:     msg.OrderID,
		UserID:      msg.UserID,
		VoucherID:   msg.VoucherID,
		CommittedAt: time.Now(),
	}
	if err := w.producer.Publish(pubCtx, ev); err != nil {
		w.log.WithError(err).WithField("order_id", msg.OrderID).Warn("order event publish failed")
	}
}
