package model

import (
	"time"

	"gorm.io/gorm"
)

// FulfilmentTaskStatus 描述履约任务状态机。
type FulfilmentTaskStatus int

const (
	FulfilmentPending FulfilmentTaskStatus = iota // 待运营处理
	FulfilmentDone                                // 已完成
)

// FulfilmentTask 由 Kafka 消费者从 capture 事件生成，供运营侧消费。
// intent_id 唯一索引保证 at-least-once 投递下任务不重复。
type FulfilmentTask struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	IntentID  string `gorm:"size:64;uniqueIndex;not null" json:"intent_id"`
	PaymentID string `gorm:"size:64;not null" json:"payment_id"`
	DeviceID  string `gorm:"size:64;index" json:"device_id"`

	Platform    string `gorm:"size:64" json:"platform"`
	Service     string `gorm:"size:512" json:"service"`
	Link        string `gorm:"size:512" json:"link"`
	Quantity    int64  `json:"quantity"`
	AmountPaise int64  `json:"amount_paise"`

	Status FulfilmentTaskStatus `gorm:"not null;default:0;index" json:"status"`
}

func (FulfilmentTask) TableName() string { return "fulfilment_tasks" }
