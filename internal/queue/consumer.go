package queue

import (
	"context"
	"encoding/json"

	"order_recon/internal/ledger"
	"order_recon/internal/model"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Consumer 消费 capture 事件并生成履约任务。
// Kafka 是 at-least-once：重复投递靠 fulfilment_tasks 的 intent_id
// 唯一索引去重，UNIQUE 冲突直接当作成功。
type Consumer struct {
	r     *kafka.Reader
	store *ledger.Store
	log   *logrus.Entry
}

func NewConsumer(brokers []string, topic, groupID string, store *ledger.Store, log *logrus.Logger) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		store: store,
		log:   log.WithField("component", "consumer"),
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		var msg CaptureMessage
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			c.log.WithError(err).Warn("unmarshal capture message failed")
			continue
		}
		if err := msg.Validate(); err != nil {
			c.log.WithError(err).Warn("dropping invalid capture message")
			continue
		}

		task := &model.FulfilmentTask{
			IntentID:    msg.IntentID,
			PaymentID:   msg.PaymentID,
			DeviceID:    msg.DeviceID,
			Platform:    msg.Platform,
			Service:     msg.Service,
			Link:        msg.Link,
			Quantity:    msg.Quantity,
			AmountPaise: msg.AmountPaise,
			Status:      model.FulfilmentPending,
		}

		inserted, err := c.store.InsertFulfilmentIfAbsent(task)
		if err != nil {
			c.log.WithError(err).WithField("intent_id", msg.IntentID).Error("create fulfilment task failed")
			continue
		}
		if !inserted {
			// 重复消息，幂等跳过
			continue
		}
		c.log.WithField("intent_id", msg.IntentID).Info("fulfilment task created")
	}
}
