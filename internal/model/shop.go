package model

import (
	"time"

	"gorm.io/gorm"
)

// Shop 店铺信息，读多写少，走旁路缓存。
type Shop struct {
	ID        uint64         `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name     string `gorm:"size:128;not null" json:"name"`
	Address  string `gorm:"size:255" json:"address"`
	AvgPrice int64  `gorm:"not null;default:0" json:"avg_price"` // 单位：分
	Score    int    `gorm:"not null;default:0" json:"score"`     // 评分 ×10 存整数
}

func (Shop) TableName() string { return "shops" }
