package model

import (
	"time"

	"gorm.io/gorm"
)

// VoucherOrderStatus 订单状态。
type VoucherOrderStatus int

const (
	VoucherOrderUnpaid   VoucherOrderStatus = iota + 1 // 已创建待支付
	VoucherOrderPaid                                   // 已支付
	VoucherOrderCanceled                               // 已取消
)

// VoucherOrder 秒杀订单。ID 由全局 ID 生成器在同步快路径上产生，
// 不用自增主键。(user_id, voucher_id) 唯一索引是一人一单的最终防线：
// 即使消息重复投递，重放的插入也会被索引拒绝。
type VoucherOrder struct {
	ID        int64          `gorm:"primarykey;autoIncrement:false" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UserID    int64              `gorm:"not null;uniqueIndex:idx_user_voucher" json:"user_id"`
	VoucherID uint64             `gorm:"not null;uniqueIndex:idx_user_voucher" json:"voucher_id"`
	Status    VoucherOrderStatus `gorm:"not null;default:1" json:"status"`
}

func (VoucherOrder) TableName() string { return "voucher_orders" }
