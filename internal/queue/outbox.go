package queue

import (
	"context"
	"strconv"

	rd "github.com/redis/go-redis/v9"
)

// Outbox 把 capture 事件写进 Redis Stream，由 Relay 异步转 Kafka。
// 写流比直连 Kafka 快且稳：broker 抖动不会拖慢确认路径。
type Outbox struct {
	rdb    *rd.Client
	stream string
}

func NewOutbox(rdb *rd.Client, stream string) *Outbox {
	return &Outbox{rdb: rdb, stream: stream}
}

// PublishCapture 追加一条 capture 事件。
func (o *Outbox) PublishCapture(ctx context.Context, msg CaptureMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		Values: map[string]interface{}{
			"intent_id":    msg.IntentID,
			"payment_id":   msg.PaymentID,
			"device_id":    msg.DeviceID,
			"platform":     msg.Platform,
			"service":      msg.Service,
			"link":         msg.Link,
			"quantity":     strconv.FormatInt(msg.Quantity, 10),
			"amount_paise": strconv.FormatInt(msg.AmountPaise, 10),
			"captured_at":  strconv.FormatInt(msg.CapturedAt, 10),
		},
	}).Err()
}
