package model

import (
	"time"

	"gorm.io/gorm"
)

// PendingOrder 表示“意向已在网关创建、但尚未确认收款”的本地记录。
// 同一设备可能同时存在多条（多次放弃的支付尝试），按 intent_id 唯一。
// 超过有效期仍未 captured 的记录由轮询器静默清理，不会产生确认订单。
type PendingOrder struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	IntentID string `gorm:"size:64;uniqueIndex;not null" json:"intent_id"`
	DeviceID string `gorm:"size:64;index;not null" json:"device_id"`

	Platform string `gorm:"size:64" json:"platform"`
	Category string `gorm:"size:128" json:"category"`
	Service  string `gorm:"size:512" json:"service"`
	Link     string `gorm:"size:512" json:"link"`
	Quantity int64  `gorm:"not null" json:"quantity"`

	Email   string `gorm:"size:255" json:"email"`
	Contact string `gorm:"size:64" json:"contact"`

	AmountPaise int64 `gorm:"not null" json:"amount_paise"` // 最小货币单位
}

func (PendingOrder) TableName() string { return "pending_orders" }
