// Package gateway 封装支付网关的 REST 接口。
// 对本仓库而言网关是黑盒：创建意向单、查单、查支付流水，金额一律最小货币单位。
package gateway

import (
	"context"
	"errors"
)

// 网关侧状态常量。payment 的底层状态机是 authorized → captured | failed，
// 各确认通道看到的都是同一状态的不同观测，不是独立事件。
const (
	OrderStatusCreated  = "created"
	OrderStatusPaid     = "paid"
	PaymentAuthorized   = "authorized"
	PaymentCaptured     = "captured"
	PaymentFailed       = "failed"
)

// ErrNotConfigured 表示网关密钥缺失，集成未启用。
var ErrNotConfigured = errors.New("payment gateway not configured")

// ErrUnavailable 表示网关调用失败或返回了无法使用的响应。
var ErrUnavailable = errors.New("payment gateway unavailable")

// Order 网关侧的意向单。Notes 是创建时附着的有界 k/v 注解，
// 服务端没有订单库，靠它反查订单明细。
type Order struct {
	ID          string            `json:"id"`
	AmountPaise int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Status      string            `json:"status"`
	Notes       map[string]string `json:"notes"`
	CreatedAt   int64             `json:"created_at"` // unix 秒
}

// Payment 网关侧的一笔支付流水。
type Payment struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	AmountPaise int64  `json:"amount"`
	Status      string `json:"status"`
	Email       string `json:"email"`
	Contact     string `json:"contact"`
	Method      string `json:"method"`
	CreatedAt   int64  `json:"created_at"`
}

// Client 是核心逻辑依赖的网关操作集合，测试中用假实现替换。
type Client interface {
	// CreateOrder 创建意向单并附着注解。
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (Order, error)
	// GetOrder 按 id 取意向单（含注解）。
	GetOrder(ctx context.Context, orderID string) (Order, error)
	// ListOrderPayments 取某意向单下的全部支付流水。
	ListOrderPayments(ctx context.Context, orderID string) ([]Payment, error)
	// ListOrders 按最近优先取一页意向单。
	ListOrders(ctx context.Context, count int) ([]Order, error)
	// ListPayments 按最近优先取一页支付流水（全局）。
	ListPayments(ctx context.Context, count int) ([]Payment, error)
}

// TruncateNotes 把注解逐字段截断到网关的单值上限。
// 这是刻意的有损压缩：service/link 这类长字段会被截掉尾部，
// 身份找回拿到的是部分还原的订单，调用方必须容忍。
func TruncateNotes(notes map[string]string, limit int) map[string]string {
	out := make(map[string]string, len(notes))
	for k, v := range notes {
		if limit > 0 && len(v) > limit {
			v = v[:limit]
		}
		out[k] = v
	}
	return out
}
