// Package intent 实现下单意向管理：
// 服务端权威计价 → 网关建意向单（附注解） → 本地记 pending。
// 用户随后被交给支付 UI，之后的事都归 confirm 包。
package intent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"order_recon/internal/catalog"
	"order_recon/internal/gateway"
	"order_recon/internal/ledger"
	"order_recon/internal/model"

	"github.com/sirupsen/logrus"
)

// ErrInvalidAmount 表示计算出的金额低于最低订单额，需用户修正后重试。
var ErrInvalidAmount = errors.New("order amount below minimum")

// Selection 用户在表单里选的服务。
type Selection struct {
	Platform string `json:"platform"`
	Category string `json:"category"`
	Service  string `json:"service"`
	Link     string `json:"link"`
	Quantity int64  `json:"quantity"`
}

// Contact 联系方式（邮箱 + IM 句柄/手机号）。
type Contact struct {
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// CreateResult 返回给前端的意向信息，ClientKey 供支付 UI 初始化。
type CreateResult struct {
	IntentID    string `json:"intent_id"`
	AmountPaise int64  `json:"amount_paise"`
	Currency    string `json:"currency"`
	ClientKey   string `json:"client_key"`
}

// Manager 下单意向管理器。
type Manager struct {
	gw    gateway.Client
	store *ledger.Store
	cat   *catalog.Catalog

	currency       string
	minOrderPaise  int64
	noteValueLimit int
	clientKey      string
	log            *logrus.Entry
}

func NewManager(gw gateway.Client, store *ledger.Store, cat *catalog.Catalog,
	currency string, minOrderPaise int64, noteValueLimit int, clientKey string,
	log *logrus.Logger) *Manager {
	return &Manager{
		gw:             gw,
		store:          store,
		cat:            cat,
		currency:       currency,
		minOrderPaise:  minOrderPaise,
		noteValueLimit: noteValueLimit,
		clientKey:      clientKey,
		log:            log.WithField("component", "intent"),
	}
}

// CreateIntent 创建支付意向。
// 金额由服务端按 目录单价 × 数量 重算并校验下限；客户端提交的总价
// （echoPaise，可为 0）只做对账日志，不参与计费。
// 成功后网关侧已有带注解的意向单，本地已有 pending 记录。
func (m *Manager) CreateIntent(ctx context.Context, sel Selection, contact Contact, deviceID string, echoPaise int64) (CreateResult, error) {
	amount, err := m.cat.Quote(sel.Platform, sel.Category, sel.Service, sel.Quantity)
	if err != nil {
		if errors.Is(err, catalog.ErrBelowMinOrder) {
			return CreateResult{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		return CreateResult{}, err
	}
	if amount < m.minOrderPaise {
		return CreateResult{}, fmt.Errorf("%w: got %s, minimum %s",
			ErrInvalidAmount, formatPaise(amount), formatPaise(m.minOrderPaise))
	}
	if echoPaise > 0 && echoPaise != amount {
		// 客户端价跟服务端价不一致只记日志：以服务端为准
		m.log.WithFields(logrus.Fields{
			"device_id":    deviceID,
			"client_paise": echoPaise,
			"server_paise": amount,
		}).Warn("client total differs from authoritative price")
	}

	// 注解是网关侧的有界 k/v：长字段截断写入，身份找回按它部分还原订单
	notes := gateway.TruncateNotes(map[string]string{
		"device_id":   deviceID,
		"platform":    sel.Platform,
		"category":    sel.Category,
		"service":     sel.Service,
		"link":        sel.Link,
		"quantity":    strconv.FormatInt(sel.Quantity, 10),
		"email":       contact.Email,
		"contact":     contact.Contact,
		"total_price": strconv.FormatInt(amount, 10),
	}, m.noteValueLimit)

	receipt := fmt.Sprintf("rcpt_%d", time.Now().UnixMilli())
	order, err := m.gw.CreateOrder(ctx, amount, m.currency, receipt, notes)
	if err != nil {
		return CreateResult{}, err
	}

	if err := m.store.TouchDevice(deviceID); err != nil {
		m.log.WithError(err).WithField("device_id", deviceID).Warn("touch device failed")
	}

	// 意向创建即记 pending，支付 UI 弹出之前台账里就有痕迹，
	// 之后任何一个确认通道命中都会把它换成 confirmed。
	pend := &model.PendingOrder{
		IntentID:    order.ID,
		DeviceID:    deviceID,
		Platform:    sel.Platform,
		Category:    sel.Category,
		Service:     sel.Service,
		Link:        sel.Link,
		Quantity:    sel.Quantity,
		Email:       contact.Email,
		Contact:     contact.Contact,
		AmountPaise: amount,
	}
	if err := m.store.PutPending(pend); err != nil {
		return CreateResult{}, fmt.Errorf("record pending order: %w", err)
	}

	m.log.WithFields(logrus.Fields{
		"intent_id": order.ID,
		"device_id": deviceID,
		"amount":    amount,
	}).Info("payment intent created")

	return CreateResult{
		IntentID:    order.ID,
		AmountPaise: amount,
		Currency:    m.currency,
		ClientKey:   m.clientKey,
	}, nil
}

func formatPaise(p int64) string {
	return fmt.Sprintf("Rs.%d.%02d", p/100, p%100)
}
