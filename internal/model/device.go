package model

import "time"

// Device 浏览器侧持久化的设备身份，没有账号体系时用它把订单关联回设备。
type Device struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	DeviceID string    `gorm:"size:64;uniqueIndex;not null" json:"device_id"`
	LastSeen time.Time `json:"last_seen"`
}

func (Device) TableName() string { return "devices" }
