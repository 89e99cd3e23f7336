package model

import (
	"time"

	"gorm.io/gorm"
)

// ConfirmedOrder 是用户可见的最终订单记录，只增不改。
// intent_id 上的唯一索引就是幂等合并点：
// 五个确认通道并发提交同一意向时，只有第一条 INSERT 生效，
// 其余的 UNIQUE 冲突直接当作“已确认”处理（见 ledger 包）。
type ConfirmedOrder struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	IntentID  string `gorm:"size:64;uniqueIndex;not null" json:"intent_id"`
	PaymentID string `gorm:"size:64;index;not null" json:"payment_id"`
	DeviceID  string `gorm:"size:64;index;not null" json:"device_id"`

	Platform string `gorm:"size:64" json:"platform"`
	Category string `gorm:"size:128" json:"category"`
	Service  string `gorm:"size:512" json:"service"`
	Link     string `gorm:"size:512" json:"link"`
	Quantity int64  `gorm:"not null" json:"quantity"`

	Email   string `gorm:"size:255" json:"email"`
	Contact string `gorm:"size:64" json:"contact"`

	AmountPaise int64     `gorm:"not null" json:"amount_paise"`
	Channel     string    `gorm:"size:32" json:"channel"` // 第一个成功提交的确认通道
	ConfirmedAt time.Time `gorm:"not null" json:"confirmed_at"`
}

func (ConfirmedOrder) TableName() string { return "confirmed_orders" }

// 确认通道标识，写入 Channel 字段与日志。
const (
	ChannelCallback = "callback"
	ChannelDismiss  = "dismiss"
	ChannelPoll     = "poll"
	ChannelRefresh  = "refresh"
	ChannelRecovery = "recovery"
	// ChannelWebhook 只出现在通知里：webhook 不写台账
	ChannelWebhook = "webhook"
)
