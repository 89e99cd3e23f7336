package queue

import "fmt"

// CaptureMessage 是确认成功后写入事件流的 capture 事件。
// 下游（履约、对账、分析）都从这条流出发；台账是主，事件流是派生。
type CaptureMessage struct {
	IntentID    string `json:"intent_id"`
	PaymentID   string `json:"payment_id"`
	DeviceID    string `json:"device_id"`
	Platform    string `json:"platform"`
	Service     string `json:"service"`
	Link        string `json:"link"`
	Quantity    int64  `json:"quantity"`
	AmountPaise int64  `json:"amount_paise"`
	CapturedAt  int64  `json:"captured_at"` // unix 秒
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m CaptureMessage) Validate() error {
	if m.IntentID == "" {
		return fmt.Errorf("intent_id is required")
	}
	if m.PaymentID == "" {
		return fmt.Errorf("payment_id is required")
	}
	if m.AmountPaise <= 0 {
		return fmt.Errorf("amount_paise must be > 0")
	}
	return nil
}
