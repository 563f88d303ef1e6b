package seckill

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/wwsz-2002/comment-app/internal/cache"
	"github.com/wwsz-2002/comment-app/internal/idgen"
	"github.com/wwsz-2002/comment-app/internal/model"
	rediskey "github.com/wwsz-2002/comment-app/pkg/redis"
)

// 业务性拒绝，同步返回给调用方，不算故障。
var (
	ErrVoucherNotFound = errors.New("seckill: voucher not found")
	ErrNotStarted      = errors.New("seckill: not started yet")
	ErrEnded           = errors.New("seckill: already ended")
	ErrSoldOut         = errors.New("seckill: sold out")
	ErrDuplicateOrder  = errors.New("seckill: duplicate order")
)

// idNamespace 订单 ID 的生成器命名空间。
const idNamespace = "order"

// Service 是秒杀准入的同步快路径：校验时间窗、生成订单 ID、
// 执行一次原子准入脚本后立即返回。订单持久化是异步的，
// 返回的 orderID 不代表已落库。
type Service struct {
	rdb        *rd.Client
	db         *gorm.DB
	cache      *cache.Client
	idgen      *idgen.Generator
	log        *logrus.Logger
	stream     string
	voucherTTL time.Duration
}

func NewService(rdb *rd.Client, db *gorm.DB, cacheClient *cache.Client, gen *idgen.Generator,
	log *logrus.Logger, stream string, voucherTTL time.Duration) *Service {
	return &Service{
		rdb:        rdb,
		db:         db,
		cache:      cacheClient,
		idgen:      gen,
		log:        log,
		stream:     stream,
		voucherTTL: voucherTTL,
	}
}

// CreateVoucher 新建秒杀券：落库并把初始库存预热进 Redis。
func (s *Service) CreateVoucher(ctx context.Context, v *model.SeckillVoucher) error {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return err
	}
	// 库存 key 缺失会被准入脚本当 0 处理，预热失败必须让调用方知道
	if err := s.rdb.Set(ctx, rediskey.StockKey(v.ID), v.Stock, 0).Err(); err != nil {
		return fmt.Errorf("preload stock for voucher %d: %w", v.ID, err)
	}
	return nil
}

// GetVoucher 通过旁路缓存查券（穿透策略）。
func (s *Service) GetVoucher(ctx context.Context, voucherID uint64) (*model.SeckillVoucher, error) {
	v, err := cache.Get(ctx, s.cache, rediskey.VoucherKeyPrefix, strconv.FormatUint(voucherID, 10),
		s.voucherTTL, func(ctx context.Context, id string) (*model.SeckillVoucher, error) {
			var row model.SeckillVoucher
			err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return &row, nil
		})
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrVoucherNotFound
	}
	return v, err
}

// Seckill 秒杀下单入口。
// 关键流程：
//  1. 查券并校验活动时间窗（走缓存，不打 DB）
//  2. 生成全局订单 ID
//  3. 一次原子脚本完成「一人一单判断 + 库存判断 + 扣减 + 消息入流」
//
// 返回码 1/2 映射为 ErrSoldOut / ErrDuplicateOrder。
func (s *Service) Seckill(ctx context.Context, voucherID uint64, userID int64) (int64, error) {
	v, err := s.GetVoucher(ctx, voucherID)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	if now.Before(v.BeginTime) {
		return 0, ErrNotStarted
	}
	if now.After(v.EndTime) {
		return 0, ErrEnded
	}

	orderID, err := s.idgen.NextID(ctx, idNamespace)
	if err != nil {
		return 0, err
	}

	res, err := s.rdb.Eval(ctx, luaAdmission,
		[]string{
			rediskey.StockKey(voucherID),
			rediskey.OrderUserSetKey(voucherID),
			s.stream,
		},
		strconv.FormatUint(voucherID, 10),
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(orderID, 10),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("seckill admission script: %w", err)
	}

	switch res {
	case admitOK:
		return orderID, nil
	case admitSoldOut:
		return 0, ErrSoldOut
	case admitDuplicate:
		return 0, ErrDuplicateOrder
	default:
		return 0, fmt.Errorf("seckill admission script: unexpected result %d", res)
	}
}

// OrderStatus 查询异步落单结果。订单尚未被消费者提交时返回 pending。
func (s *Service) OrderStatus(ctx context.Context, orderID int64) (*model.VoucherOrder, bool, error) {
	var row model.VoucherOrder
	err := s.db.WithContext(ctx).First(&row, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &row, true, nil
}
