// Package recovery 实现按身份找回：设备本地台账全丢（清浏览器数据、
// 换设备）时，扫网关近期订单/流水重建 confirmed 记录。
// 两个策略按序尝试，第一个有命中的短路；都是有界 best-effort 扫描，
// “没找到”是合法结果——可能没付过钱，也可能付在扫描窗口之外。
// 不加宽窗口：加宽对网关限额有直接影响，这条上限是已知的伸缩天花板。
package recovery

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"order_recon/internal/gateway"
	"order_recon/internal/ledger"
	"order_recon/internal/model"

	"github.com/sirupsen/logrus"
)

// ErrNoIdentity 表示设备号和邮箱都没给。
var ErrNoIdentity = errors.New("provide device id or email")

// Recoverer 按身份找回服务。
type Recoverer struct {
	gw    gateway.Client
	store *ledger.Store

	orderScan   int
	paymentScan int
	log         *logrus.Entry
}

func New(gw gateway.Client, store *ledger.Store, orderScan, paymentScan int, log *logrus.Logger) *Recoverer {
	return &Recoverer{
		gw:          gw,
		store:       store,
		orderScan:   orderScan,
		paymentScan: paymentScan,
		log:         log.WithField("component", "recovery"),
	}
}

// Recover 找回订单并合并进设备台账（走统一的 insert-if-absent，
// 重复找回不会产生重复订单）。返回本次匹配到的全部订单。
func (r *Recoverer) Recover(ctx context.Context, deviceID, email string) ([]model.ConfirmedOrder, error) {
	if deviceID == "" && email == "" {
		return nil, ErrNoIdentity
	}

	var out []model.ConfirmedOrder

	if deviceID != "" {
		found, err := r.byDevice(ctx, deviceID)
		if err != nil {
			// 策略失败不终止整个找回，继续试邮箱
			r.log.WithError(err).WithField("device_id", deviceID).Warn("device search failed")
		}
		out = append(out, found...)
	}

	if len(out) == 0 && email != "" {
		found, err := r.byEmail(ctx, email, deviceID)
		if err != nil {
			r.log.WithError(err).Warn("email search failed")
		}
		out = append(out, found...)
	}

	return out, nil
}

// byDevice 策略 1：扫近期意向单，按注解里的 device_id 匹配。
// 网关不支持按注解检索，只能拉一页最近订单本地过滤。
func (r *Recoverer) byDevice(ctx context.Context, deviceID string) ([]model.ConfirmedOrder, error) {
	orders, err := r.gw.ListOrders(ctx, r.orderScan)
	if err != nil {
		return nil, err
	}

	var out []model.ConfirmedOrder
	for _, o := range orders {
		if o.Notes["device_id"] != deviceID || o.Status != gateway.OrderStatusPaid {
			continue
		}
		payments, err := r.gw.ListOrderPayments(ctx, o.ID)
		if err != nil {
			// 单个订单查流水失败跳过，不拖垮整个扫描
			r.log.WithError(err).WithField("intent_id", o.ID).Warn("list payments failed")
			continue
		}
		for _, p := range payments {
			if p.Status != gateway.PaymentCaptured {
				continue
			}
			merged, err := r.merge(o, p, deviceID)
			if err != nil {
				r.log.WithError(err).WithField("intent_id", o.ID).Warn("merge recovered order failed")
				break
			}
			out = append(out, merged)
			break
		}
	}
	return out, nil
}

// byEmail 策略 2：扫近期支付流水，按付款邮箱匹配（大小写不敏感），
// 再回查意向单拿注解。没有本店注解键的订单不是本应用的单，必须排除。
func (r *Recoverer) byEmail(ctx context.Context, email, fallbackDevice string) ([]model.ConfirmedOrder, error) {
	payments, err := r.gw.ListPayments(ctx, r.paymentScan)
	if err != nil {
		return nil, err
	}

	var out []model.ConfirmedOrder
	for _, p := range payments {
		if p.Status != gateway.PaymentCaptured || !strings.EqualFold(p.Email, email) {
			continue
		}
		o, err := r.gw.GetOrder(ctx, p.OrderID)
		if err != nil {
			r.log.WithError(err).WithField("intent_id", p.OrderID).Warn("fetch order failed")
			continue
		}
		// 本店下的单一定带 platform/service 注解，两者都缺说明是别家的流水
		if o.Notes["platform"] == "" && o.Notes["service"] == "" {
			continue
		}
		deviceID := o.Notes["device_id"]
		if deviceID == "" {
			deviceID = fallbackDevice
		}
		merged, err := r.merge(o, p, deviceID)
		if err != nil {
			r.log.WithError(err).WithField("intent_id", o.ID).Warn("merge recovered order failed")
			continue
		}
		out = append(out, merged)
	}
	return out, nil
}

// merge 把找回的订单通过统一提交点合并进台账。
// 已存在（别的通道先确认了）就返回既有记录。
func (r *Recoverer) merge(o gateway.Order, p gateway.Payment, deviceID string) (model.ConfirmedOrder, error) {
	qty, _ := strconv.ParseInt(o.Notes["quantity"], 10, 64)
	total := p.AmountPaise
	if v, err := strconv.ParseInt(o.Notes["total_price"], 10, 64); err == nil && v > 0 {
		total = v
	}
	email := o.Notes["email"]
	if email == "" {
		email = p.Email
	}
	contact := o.Notes["contact"]
	if contact == "" {
		contact = p.Contact
	}

	order := &model.ConfirmedOrder{
		IntentID:    o.ID,
		PaymentID:   p.ID,
		DeviceID:    deviceID,
		Platform:    o.Notes["platform"],
		Category:    o.Notes["category"],
		Service:     o.Notes["service"],
		Link:        o.Notes["link"],
		Quantity:    qty,
		Email:       email,
		Contact:     contact,
		AmountPaise: total,
		Channel:     model.ChannelRecovery,
		ConfirmedAt: time.Unix(o.CreatedAt, 0),
	}

	inserted, err := r.store.InsertConfirmedIfAbsent(order)
	if err != nil {
		return model.ConfirmedOrder{}, err
	}
	if !inserted {
		existing, found, err := r.store.GetConfirmed(o.ID)
		if err != nil {
			return model.ConfirmedOrder{}, err
		}
		if found {
			return existing, nil
		}
	}
	return *order, nil
}
