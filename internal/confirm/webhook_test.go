package confirm

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"order_recon/internal/gateway"
	"order_recon/internal/model"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func capturedEvent(intentID, paymentID string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": %q, "order_id": %q, "amount": %d,
			"status": "captured", "email": "buyer@example.com", "contact": "+911234567890"
		}}}
	}`, paymentID, intentID, amount))
}

func TestWebhookCapturedNotifiesOnly(t *testing.T) {
	fx := newEngineFixture(t)
	fx.gw.orders["order_1"] = gateway.Order{
		ID:          "order_1",
		AmountPaise: 25000,
		Status:      gateway.OrderStatusPaid,
		Notes: map[string]string{
			"platform": "Instagram",
			"service":  "Followers - Standard",
			"quantity": "1000",
			"link":     "https://instagram.com/someone",
		},
	}

	body := capturedEvent("order_1", "pay_1", 25000)
	err := fx.engine.HandleWebhook(context.Background(), body, signBody(testWebhookSecret, body))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}

	if fx.notifier.operatorCount() != 1 {
		t.Fatalf("operator notices = %d, want 1", fx.notifier.operatorCount())
	}
	n := fx.notifier.operator[0]
	if n.Channel != model.ChannelWebhook {
		t.Fatalf("notice channel = %q, want webhook", n.Channel)
	}
	if n.Platform != "Instagram" || n.Quantity != 1000 {
		t.Fatalf("notice should be enriched from order notes: %+v", n)
	}

	// webhook 只通知，不写台账
	if has, _ := fx.store.HasConfirmed("order_1"); has {
		t.Fatal("webhook must never write the ledger")
	}
	if fx.notifier.customerCount() != 0 {
		t.Fatal("webhook must not mail the customer")
	}
	if fx.outbox.count() != 0 {
		t.Fatal("webhook must not publish capture events")
	}
}

func TestWebhookCapturedWithoutOrderLookup(t *testing.T) {
	fx := newEngineFixture(t)
	fx.gw.getOrderErr = gateway.ErrUnavailable

	body := capturedEvent("order_1", "pay_1", 25000)
	err := fx.engine.HandleWebhook(context.Background(), body, signBody(testWebhookSecret, body))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}

	// 注解查不到就裸发 payment 级字段，宁缺明细不丢通知
	if fx.notifier.operatorCount() != 1 {
		t.Fatalf("operator notices = %d, want 1", fx.notifier.operatorCount())
	}
	n := fx.notifier.operator[0]
	if n.PaymentID != "pay_1" || n.AmountPaise != 25000 {
		t.Fatalf("bare notice lost payment fields: %+v", n)
	}
}

func TestWebhookFailedLogsOnly(t *testing.T) {
	fx := newEngineFixture(t)

	body := []byte(`{"event": "payment.failed", "payload": {"payment": {"entity": {"id": "pay_1", "order_id": "order_1"}}}}`)
	err := fx.engine.HandleWebhook(context.Background(), body, signBody(testWebhookSecret, body))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if fx.notifier.operatorCount() != 0 || fx.notifier.customerCount() != 0 {
		t.Fatal("payment.failed must not notify")
	}
}

func TestWebhookUnknownEventIgnored(t *testing.T) {
	fx := newEngineFixture(t)

	body := []byte(`{"event": "refund.created", "payload": {"payment": {"entity": {}}}}`)
	if err := fx.engine.HandleWebhook(context.Background(), body, signBody(testWebhookSecret, body)); err != nil {
		t.Fatalf("unknown event should be acknowledged: %v", err)
	}
	if fx.notifier.operatorCount() != 0 {
		t.Fatal("unknown event must not notify")
	}
}

func TestWebhookBadSignature(t *testing.T) {
	fx := newEngineFixture(t)

	body := capturedEvent("order_1", "pay_1", 25000)
	err := fx.engine.HandleWebhook(context.Background(), body, "deadbeef")
	if !IsSignatureInvalid(err) {
		t.Fatalf("want signature error, got %v", err)
	}

	// 验签在解析之前：乱 body + 乱签名也必须报验签错，不报解析错
	err = fx.engine.HandleWebhook(context.Background(), []byte("not json"), "deadbeef")
	if !IsSignatureInvalid(err) {
		t.Fatalf("verification must run before parsing, got %v", err)
	}

	if fx.notifier.operatorCount() != 0 {
		t.Fatal("forged webhook must not notify")
	}
}

func TestWebhookMissingSignature(t *testing.T) {
	fx := newEngineFixture(t)

	body := capturedEvent("order_1", "pay_1", 25000)
	if err := fx.engine.HandleWebhook(context.Background(), body, ""); !IsSignatureInvalid(err) {
		t.Fatalf("missing signature header must reject, got %v", err)
	}
}

// 回调与 webhook 同时观测同一笔 capture：台账一条，运营通知最多两封。
func TestCallbackAndWebhookObserveSameCapture(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")
	fx.gw.orders["order_1"] = gateway.Order{
		ID: "order_1", AmountPaise: 25000, Status: gateway.OrderStatusPaid,
		Notes: map[string]string{"platform": "Instagram", "service": "Followers - Standard"},
	}

	sig := checkoutSignature(testKeySecret, "order_1", "pay_1")
	if _, err := fx.engine.VerifyCallback(context.Background(), "order_1", "pay_1", sig); err != nil {
		t.Fatalf("callback: %v", err)
	}

	body := capturedEvent("order_1", "pay_1", 25000)
	if err := fx.engine.HandleWebhook(context.Background(), body, signBody(testWebhookSecret, body)); err != nil {
		t.Fatalf("webhook: %v", err)
	}

	orders, _ := fx.store.ListConfirmed("dev_a")
	if len(orders) != 1 {
		t.Fatalf("expected exactly 1 confirmed order, got %d", len(orders))
	}
	if got := fx.notifier.operatorCount(); got != 2 {
		t.Fatalf("operator notices = %d, want 2 (one per observing path)", got)
	}
	if fx.notifier.customerCount() != 1 {
		t.Fatalf("customer confirmations = %d, want 1 (callback path only)", fx.notifier.customerCount())
	}
}
