package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"order_recon/internal/model"
	"order_recon/internal/notify"

	"github.com/sirupsen/logrus"
)

// webhookEvent 网关异步推送的事件体（payment 级字段，不含订单明细）。
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID          string `json:"id"`
				OrderID     string `json:"order_id"`
				AmountPaise int64  `json:"amount"`
				Status      string `json:"status"`
				Email       string `json:"email"`
				Contact     string `json:"contact"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// 网关事件名。
const (
	eventPaymentCaptured = "payment.captured"
	eventPaymentFailed   = "payment.failed"
)

// HandleWebhook 通道 5：网关的异步推送，唯一不依赖原始浏览器标签页
// 还在的确认通道。
// 先对原始字节验签（HMAC-SHA256(webhookSecret, rawBody)），密钥或头缺失、
// 不匹配都在解析 body 之前拒绝，防伪造 capture 通知。
// payment.captured：用意向注解还原明细后发运营通知——只通知，不写台账；
// 台账由该设备下次活跃时的轮询/刷新通道补上。这份跨通道的重复是有意的：
// webhook 保证客户永远不回来时运营也知道，客户端通道保证客户回来时
// 自己的订单历史有记录。
// payment.failed：只记日志，失败对本子系统不可操作。
func (e *Engine) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if e.cfg.WebhookSecret == "" || signature == "" {
		return fmt.Errorf("%w: webhook secret or signature missing", ErrSignatureInvalid)
	}
	if !verifyWebhookSignature(e.cfg.WebhookSecret, rawBody, signature) {
		e.log.Warn("webhook signature mismatch")
		return ErrSignatureInvalid
	}

	var evt webhookEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return fmt.Errorf("parse webhook body: %w", err)
	}

	pay := evt.Payload.Payment.Entity
	switch evt.Event {
	case eventPaymentCaptured:
		e.log.WithFields(logrus.Fields{
			"payment_id": pay.ID,
			"intent_id":  pay.OrderID,
			"amount":     pay.AmountPaise,
		}).Info("payment captured via webhook")

		notice := e.webhookNotice(ctx, pay.OrderID, pay.ID, pay.AmountPaise, pay.Email, pay.Contact)
		e.notifier.OperatorOrderNotice(ctx, notice)

	case eventPaymentFailed:
		e.log.WithFields(logrus.Fields{
			"payment_id": pay.ID,
			"intent_id":  pay.OrderID,
		}).Info("payment failed via webhook")

	default:
		e.log.WithField("event", evt.Event).Debug("ignoring webhook event")
	}
	return nil
}

// webhookNotice 组装 webhook 路径的运营通知：webhook 载荷只有 payment
// 级字段，订单明细要回查意向注解；查不到就带着 payment 字段裸发，
// 宁可缺明细也不丢通知。
func (e *Engine) webhookNotice(ctx context.Context, intentID, paymentID string, amountPaise int64, email, contact string) notify.OrderNotice {
	notice := notify.OrderNotice{
		IntentID:    intentID,
		PaymentID:   paymentID,
		AmountPaise: amountPaise,
		Email:       email,
		Contact:     contact,
		Channel:     model.ChannelWebhook,
		When:        time.Now(),
	}

	order, err := e.gw.GetOrder(ctx, intentID)
	if err != nil {
		e.log.WithError(err).WithField("intent_id", intentID).Warn("fetch order notes for webhook notice failed")
		return notice
	}
	d := detailsFromNotes(order.Notes, amountPaise)
	notice.Platform = d.Platform
	notice.Category = d.Category
	notice.Service = d.Service
	notice.Link = d.Link
	notice.Quantity = d.Quantity
	if d.Email != "" {
		notice.Email = d.Email
	}
	if d.Contact != "" {
		notice.Contact = d.Contact
	}
	if d.AmountPaise > 0 {
		notice.AmountPaise = d.AmountPaise
	}
	return notice
}
