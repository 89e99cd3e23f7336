// Package confirm 是确认引擎：五个互相独立、彼此竞速的通道
// （同步回调、关闭检查、后台轮询、前台刷新、webhook）都在试图回答
// “这笔意向到底收没收到钱”，并通过同一个幂等提交点落账。
// 任何通道都不允许绕过 commit 自行写 confirmed 状态。
package confirm

import (
	"context"
	"errors"
	"strconv"
	"time"

	"order_recon/internal/gateway"
	"order_recon/internal/ledger"
	"order_recon/internal/model"
	"order_recon/internal/notify"
	"order_recon/internal/queue"

	"github.com/sirupsen/logrus"
)

// Notifier 通知投递口子，notify.Dispatcher 实现它。
type Notifier interface {
	OperatorOrderNotice(ctx context.Context, n notify.OrderNotice)
	CustomerConfirmation(ctx context.Context, n notify.OrderNotice)
}

// Outbox 确认成功后的 capture 事件出口（Redis Stream，见 queue 包）。
type Outbox interface {
	PublishCapture(ctx context.Context, msg queue.CaptureMessage) error
}

// Config 引擎参数。
type Config struct {
	// KeySecret 校验同步回调签名；WebhookSecret 校验 webhook 推送。
	KeySecret     string
	WebhookSecret string
	// PendingTTL 意向有效期，超过即静默回收
	PendingTTL time.Duration
	// MaxPollAttempts 后台轮询的次数上限
	MaxPollAttempts int
}

// Engine 确认引擎。
type Engine struct {
	gw       gateway.Client
	store    *ledger.Store
	notifier Notifier
	outbox   Outbox // 可为 nil（测试或未接 outbox 时）
	polls    PollStore
	cfg      Config
	log      *logrus.Entry
}

func NewEngine(gw gateway.Client, store *ledger.Store, notifier Notifier, outbox Outbox, polls PollStore, cfg Config, log *logrus.Logger) *Engine {
	return &Engine{
		gw:       gw,
		store:    store,
		notifier: notifier,
		outbox:   outbox,
		polls:    polls,
		cfg:      cfg,
		log:      log.WithField("component", "confirm"),
	}
}

// CheckResult 关闭检查 / 刷新检查的结论。
type CheckResult struct {
	Captured   bool                  `json:"captured"`
	Authorized bool                  `json:"authorized"`
	Order      *model.ConfirmedOrder `json:"order,omitempty"`
}

// VerifyCallback 通道 1：支付 UI 的同步回调。
// 重算 HMAC(secret, intentID|paymentID) 并精确比对；不匹配是硬拒绝
// （ErrSignatureInvalid），绝不转入重试——这是安全控制，不是可用性问题。
// 验签通过后走统一提交点，然后发运营摘要 + 客户确认
// （客户确认只有这条路径会发，且失败完全隔离）。
func (e *Engine) VerifyCallback(ctx context.Context, intentID, paymentID, signature string) (model.ConfirmedOrder, error) {
	if e.cfg.KeySecret == "" {
		return model.ConfirmedOrder{}, gateway.ErrNotConfigured
	}
	if !verifyCheckoutSignature(e.cfg.KeySecret, intentID, paymentID, signature) {
		e.log.WithFields(logrus.Fields{
			"intent_id":  intentID,
			"payment_id": paymentID,
		}).Warn("checkout signature mismatch")
		return model.ConfirmedOrder{}, ErrSignatureInvalid
	}

	order, inserted, err := e.commit(ctx, intentID, paymentID, model.ChannelCallback)
	if err != nil {
		return model.ConfirmedOrder{}, err
	}

	notice := noticeFromOrder(order)
	e.notifier.OperatorOrderNotice(ctx, notice)
	e.notifier.CustomerConfirmation(ctx, notice)

	if !inserted {
		e.log.WithField("intent_id", intentID).Info("callback hit already confirmed intent")
	}
	return order, nil
}

// CheckIntent 通道 2：支付 UI 被关闭时的即时核查。
// 直接问网关这笔意向下有没有 captured 的流水：
// - captured → 立即提交；
// - 仅 authorized → capture 稍后会到，保留 pending 并武装轮询；
// - 什么都没有 → 同样武装轮询兜底。
func (e *Engine) CheckIntent(ctx context.Context, intentID string) (CheckResult, error) {
	return e.checkAs(ctx, intentID, model.ChannelDismiss)
}

func (e *Engine) checkAs(ctx context.Context, intentID, channel string) (CheckResult, error) {
	payments, err := e.gw.ListOrderPayments(ctx, intentID)
	if err != nil {
		// 网关查询失败吞掉交给下一轮：确认通道的错误不升级为用户可见失败
		return CheckResult{}, err
	}

	var authorized bool
	for _, p := range payments {
		switch p.Status {
		case gateway.PaymentCaptured:
			order, _, err := e.commit(ctx, intentID, p.ID, channel)
			if err != nil {
				return CheckResult{}, err
			}
			return CheckResult{Captured: true, Order: &order}, nil
		case gateway.PaymentAuthorized:
			authorized = true
		}
	}

	// 没 captured：武装轮询（幂等，重复调用不叠计时）
	if _, err := e.polls.Arm(ctx, intentID); err != nil {
		e.log.WithError(err).WithField("intent_id", intentID).Warn("arm poll failed")
	}
	return CheckResult{Authorized: authorized}, nil
}

// RefreshDevice 通道 4：页面回到前台 / 会话恢复时，把该设备所有
// 仍然存活的 pending 各查一次。外部钱包里完成的支付靠这条路补上。
func (e *Engine) RefreshDevice(ctx context.Context, deviceID string) ([]model.ConfirmedOrder, error) {
	cutoff := time.Now().Add(-e.cfg.PendingTTL)
	pendings, err := e.store.ListPending(deviceID, cutoff)
	if err != nil {
		return nil, err
	}

	var confirmed []model.ConfirmedOrder
	for _, p := range pendings {
		res, err := e.checkAs(ctx, p.IntentID, model.ChannelRefresh)
		if err != nil {
			// 单个意向查失败不影响其它意向，下一次刷新或轮询再试
			e.log.WithError(err).WithField("intent_id", p.IntentID).Warn("refresh check failed")
			continue
		}
		if res.Captured && res.Order != nil {
			confirmed = append(confirmed, *res.Order)
		}
	}
	return confirmed, nil
}

// commit 是五个通道共用的幂等提交点。
// 规则：confirmed 表 intent_id 唯一索引下 insert-if-absent——
// 已存在则丢弃本次观测（无副作用返回既有记录），否则插入并删 pending。
// 这一步必须是存储层的原子操作，检查后再插的窗口期在真并发下不可依赖。
func (e *Engine) commit(ctx context.Context, intentID, paymentID, channel string) (model.ConfirmedOrder, bool, error) {
	src, err := e.orderSource(ctx, intentID)
	if err != nil {
		return model.ConfirmedOrder{}, false, err
	}

	order := &model.ConfirmedOrder{
		IntentID:    intentID,
		PaymentID:   paymentID,
		DeviceID:    src.DeviceID,
		Platform:    src.Platform,
		Category:    src.Category,
		Service:     src.Service,
		Link:        src.Link,
		Quantity:    src.Quantity,
		Email:       src.Email,
		Contact:     src.Contact,
		AmountPaise: src.AmountPaise,
		Channel:     channel,
		ConfirmedAt: time.Now(),
	}

	inserted, err := e.store.InsertConfirmedIfAbsent(order)
	if err != nil {
		return model.ConfirmedOrder{}, false, err
	}
	if !inserted {
		existing, found, err := e.store.GetConfirmed(intentID)
		if err != nil {
			return model.ConfirmedOrder{}, false, err
		}
		if found {
			return existing, false, nil
		}
		return *order, false, nil
	}

	if err := e.polls.MarkDone(ctx, intentID); err != nil {
		e.log.WithError(err).WithField("intent_id", intentID).Warn("mark poll done failed")
	}

	// capture 事件进 outbox，由 relay 异步转 Kafka；
	// 入流失败只记日志，不回滚台账——台账是主，事件流是派生
	if e.outbox != nil {
		msg := queue.CaptureMessage{
			IntentID:    order.IntentID,
			PaymentID:   order.PaymentID,
			DeviceID:    order.DeviceID,
			Platform:    order.Platform,
			Service:     order.Service,
			Link:        order.Link,
			Quantity:    order.Quantity,
			AmountPaise: order.AmountPaise,
			CapturedAt:  order.ConfirmedAt.Unix(),
		}
		if err := e.outbox.PublishCapture(ctx, msg); err != nil {
			e.log.WithError(err).WithField("intent_id", intentID).Error("publish capture event failed")
		}
	}

	e.log.WithFields(logrus.Fields{
		"intent_id":  intentID,
		"payment_id": paymentID,
		"channel":    channel,
	}).Info("order confirmed")
	return *order, true, nil
}

// orderSource 取订单明细：优先本地 pending，本地丢了就用网关注解
// 部分还原（注解是截断过的有损副本，调用方容忍缺字段）。
type sourceDetails struct {
	DeviceID    string
	Platform    string
	Category    string
	Service     string
	Link        string
	Quantity    int64
	Email       string
	Contact     string
	AmountPaise int64
}

func (e *Engine) orderSource(ctx context.Context, intentID string) (sourceDetails, error) {
	p, found, err := e.store.GetPending(intentID)
	if err != nil {
		return sourceDetails{}, err
	}
	if found {
		return sourceDetails{
			DeviceID:    p.DeviceID,
			Platform:    p.Platform,
			Category:    p.Category,
			Service:     p.Service,
			Link:        p.Link,
			Quantity:    p.Quantity,
			Email:       p.Email,
			Contact:     p.Contact,
			AmountPaise: p.AmountPaise,
		}, nil
	}

	order, err := e.gw.GetOrder(ctx, intentID)
	if err != nil {
		return sourceDetails{}, err
	}
	return detailsFromNotes(order.Notes, order.AmountPaise), nil
}

// detailsFromNotes 从网关注解还原订单明细，缺的字段留空。
func detailsFromNotes(notes map[string]string, amountPaise int64) sourceDetails {
	qty, _ := strconv.ParseInt(notes["quantity"], 10, 64)
	total := amountPaise
	if v, err := strconv.ParseInt(notes["total_price"], 10, 64); err == nil && v > 0 {
		total = v
	}
	return sourceDetails{
		DeviceID:    notes["device_id"],
		Platform:    notes["platform"],
		Category:    notes["category"],
		Service:     notes["service"],
		Link:        notes["link"],
		Quantity:    qty,
		Email:       notes["email"],
		Contact:     notes["contact"],
		AmountPaise: total,
	}
}

func noticeFromOrder(o model.ConfirmedOrder) notify.OrderNotice {
	return notify.OrderNotice{
		IntentID:    o.IntentID,
		PaymentID:   o.PaymentID,
		Platform:    o.Platform,
		Category:    o.Category,
		Service:     o.Service,
		Link:        o.Link,
		Quantity:    o.Quantity,
		AmountPaise: o.AmountPaise,
		Email:       o.Email,
		Contact:     o.Contact,
		Channel:     o.Channel,
		When:        o.ConfirmedAt,
	}
}

// IsSignatureInvalid 供 HTTP 层判别不可重试的验签失败。
func IsSignatureInvalid(err error) bool {
	return errors.Is(err, ErrSignatureInvalid)
}
