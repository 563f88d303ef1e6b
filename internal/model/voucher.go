package model

import (
	"time"

	"gorm.io/gorm"
)

// SeckillVoucher 限量秒杀券：库存 + 抢购时间窗。
// Stock 是 DB 侧权威库存；抢购实时扣减走 Redis，异步落单时
// 再以 stock > 0 守卫的条件更新同步回 DB。
type SeckillVoucher struct {
	ID        uint64         `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Title     string    `gorm:"size:128;not null" json:"title"`
	PayValue  int64     `gorm:"not null" json:"pay_value"` // 单位：分
	Stock     int64     `gorm:"not null;default:0" json:"stock"`
	BeginTime time.Time `gorm:"not null" json:"begin_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
}

func (SeckillVoucher) TableName() string { return "seckill_vouchers" }
