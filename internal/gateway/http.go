package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClient 是 Client 的 REST 实现，Basic Auth（key_id:key_secret）。
type HTTPClient struct {
	rc    *resty.Client
	keyID string
}

// NewHTTPClient 创建网关客户端。keyID/keySecret 任一为空时返回的客户端
// 会在每次调用时报 ErrNotConfigured，而不是在这里直接失败——
// 配置缺失属于运行期可恢复问题，交给调用链按 GatewayUnavailable 处理。
func NewHTTPClient(baseURL, keyID, keySecret string) *HTTPClient {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(keyID, keySecret).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &HTTPClient{rc: rc, keyID: keyID}
}

func (c *HTTPClient) configured() bool { return c.keyID != "" }

// CreateOrder 创建意向单并附着注解。
func (c *HTTPClient) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string, notes map[string]string) (Order, error) {
	if !c.configured() {
		return Order{}, ErrNotConfigured
	}

	body := map[string]any{
		"amount":   amountPaise,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	}

	var out Order
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/orders")
	if err != nil {
		return Order{}, fmt.Errorf("%w: create order: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return Order{}, fmt.Errorf("%w: create order: status=%d body=%s", ErrUnavailable, resp.StatusCode(), resp.String())
	}
	if out.ID == "" {
		// 网关 2xx 但没给 id，按不可用处理，调用方会提示重试
		return Order{}, fmt.Errorf("%w: create order: empty order id", ErrUnavailable)
	}
	return out, nil
}

// GetOrder 按 id 取意向单。
func (c *HTTPClient) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if !c.configured() {
		return Order{}, ErrNotConfigured
	}

	var out Order
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/orders/" + orderID)
	if err != nil {
		return Order{}, fmt.Errorf("%w: get order %s: %v", ErrUnavailable, orderID, err)
	}
	if resp.IsError() {
		return Order{}, fmt.Errorf("%w: get order %s: status=%d", ErrUnavailable, orderID, resp.StatusCode())
	}
	return out, nil
}

// itemsPage 网关列表响应的通用包装。
type itemsPage[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}

// ListOrderPayments 取某意向单下的全部支付流水。
func (c *HTTPClient) ListOrderPayments(ctx context.Context, orderID string) ([]Payment, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	var out itemsPage[Payment]
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/orders/" + orderID + "/payments")
	if err != nil {
		return nil, fmt.Errorf("%w: list payments of %s: %v", ErrUnavailable, orderID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: list payments of %s: status=%d", ErrUnavailable, orderID, resp.StatusCode())
	}
	return out.Items, nil
}

// ListOrders 按最近优先取一页意向单。
func (c *HTTPClient) ListOrders(ctx context.Context, count int) ([]Order, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	var out itemsPage[Order]
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParam("count", fmt.Sprintf("%d", count)).
		SetResult(&out).
		Get("/v1/orders")
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: list orders: status=%d", ErrUnavailable, resp.StatusCode())
	}
	return out.Items, nil
}

// ListPayments 按最近优先取一页支付流水。
func (c *HTTPClient) ListPayments(ctx context.Context, count int) ([]Payment, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	var out itemsPage[Payment]
	resp, err := c.rc.R().
		SetContext(ctx).
		SetQueryParam("count", fmt.Sprintf("%d", count)).
		SetResult(&out).
		Get("/v1/payments")
	if err != nil {
		return nil, fmt.Errorf("%w: list payments: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: list payments: status=%d", ErrUnavailable, resp.StatusCode())
	}
	return out.Items, nil
}
