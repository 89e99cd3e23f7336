package model

import (
	"time"

	"gorm.io/gorm"
)

// ServiceItem 服务目录条目：平台 / 分类 / 服务描述 / 千次单价。
// UnitPaise 是每 1000 个量的价格（最小货币单位），下单金额由服务端按它重算，
// 客户端提交的总价只作回显校验，不可信。
type ServiceItem struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Platform  string `gorm:"size:64;not null;index" json:"platform"`
	Category  string `gorm:"size:128;not null" json:"category"`
	Name      string `gorm:"size:512;not null" json:"name"`
	UnitPaise int64  `gorm:"not null" json:"unit_paise"`
	MinOrder  int64  `gorm:"not null;default:0" json:"min_order"` // 0 表示无最低量
}

func (ServiceItem) TableName() string { return "service_items" }
