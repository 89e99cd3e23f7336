// Package notify 负责把“收到钱了”翻译成人能读的通知。
// 投递是 at-least-once：每个观测到 capture 的通道都可以各自触发一次，
// 重复的运营通知是可靠性模型的接受成本，去重交给读邮件的人。
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Message 一封待发邮件。
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Provider 单个投递渠道。
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// OrderNotice 一次 capture 的通知载荷。
type OrderNotice struct {
	IntentID  string
	PaymentID string
	Platform  string
	Category  string
	Service   string
	Link      string
	Quantity  int64
	// AmountPaise 最小货币单位
	AmountPaise int64
	Email       string
	Contact     string
	Channel     string
	When        time.Time
}

// Dispatcher 按链路投递：运营链 A 失败落到 B；客户确认走独立 provider，
// 失败完全隔离。任何投递失败只记日志，绝不向调用方冒泡——
// 通知挂了不能挡住给付款人的成功响应。
type Dispatcher struct {
	operatorChain []Provider
	customerProv  Provider

	operatorEmail string
	log           *logrus.Entry
}

func NewDispatcher(operatorChain []Provider, customerProv Provider, operatorEmail string, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		operatorChain: operatorChain,
		customerProv:  customerProv,
		operatorEmail: operatorEmail,
		log:           log.WithField("component", "notify"),
	}
}

// OperatorOrderNotice 给运营发订单摘要。回调与 webhook 两条路径都会调，
// 重复可接受。
func (d *Dispatcher) OperatorOrderNotice(ctx context.Context, n OrderNotice) {
	if d.operatorEmail == "" {
		d.log.Warn("operator email not configured, dropping order notice")
		return
	}
	msg := Message{
		To:      d.operatorEmail,
		Subject: fmt.Sprintf("New Order - %s | %s", n.Platform, n.Category),
		Text:    operatorBody(n),
	}
	d.sendChain(ctx, msg, n)
}

// CustomerConfirmation 给客户发确认邮件。只有验签通过的回调路径会调，
// 且失败不影响运营通知和 HTTP 响应。
func (d *Dispatcher) CustomerConfirmation(ctx context.Context, n OrderNotice) {
	if d.customerProv == nil || n.Email == "" {
		return
	}
	msg := Message{
		To:      n.Email,
		Subject: "Your order is confirmed",
		Text:    customerBody(n),
	}
	if err := d.customerProv.Send(ctx, msg); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"intent_id": n.IntentID,
			"provider":  d.customerProv.Name(),
		}).Error("customer confirmation failed")
	}
}

// sendChain 依次尝试运营链里的 provider，第一个成功即停。
func (d *Dispatcher) sendChain(ctx context.Context, msg Message, n OrderNotice) {
	for _, p := range d.operatorChain {
		err := p.Send(ctx, msg)
		if err == nil {
			return
		}
		d.log.WithError(err).WithFields(logrus.Fields{
			"intent_id": n.IntentID,
			"provider":  p.Name(),
		}).Warn("operator notice provider failed, trying next")
	}
	d.log.WithField("intent_id", n.IntentID).Error("all operator notice providers failed")
}

func operatorBody(n OrderNotice) string {
	return fmt.Sprintf(`New Order Received!

Payment ID: %s
Order ID: %s
Channel: %s

Platform: %s
Category: %s
Service: %s
Link: %s
Quantity: %d
Total Price: %s

Customer Email: %s
Customer Contact: %s

Date: %s`,
		n.PaymentID, n.IntentID, n.Channel,
		n.Platform, n.Category, n.Service, n.Link, n.Quantity, FormatRupees(n.AmountPaise),
		n.Email, n.Contact,
		n.When.Format("02 Jan 2006 15:04:05 MST"))
}

func customerBody(n OrderNotice) string {
	return fmt.Sprintf(`Thank you for your order!

We have received your payment of %s.

Service: %s
Quantity: %d
Payment ID: %s

We will get back to you soon. Keep the Payment ID for any support query.`,
		FormatRupees(n.AmountPaise), n.Service, n.Quantity, n.PaymentID)
}

// FormatRupees 把 paise 金额格式化成 Rs.xx.yy。
func FormatRupees(paise int64) string {
	return fmt.Sprintf("Rs.%d.%02d", paise/100, paise%100)
}
