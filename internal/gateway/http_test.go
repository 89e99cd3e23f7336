package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPClientNotConfigured(t *testing.T) {
	c := NewHTTPClient("https://gateway.invalid", "", "")

	if _, err := c.CreateOrder(context.Background(), 2000, "INR", "rcpt_1", nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("CreateOrder: want ErrNotConfigured, got %v", err)
	}
	if _, err := c.GetOrder(context.Background(), "order_1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("GetOrder: want ErrNotConfigured, got %v", err)
	}
	if _, err := c.ListOrderPayments(context.Background(), "order_1"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListOrderPayments: want ErrNotConfigured, got %v", err)
	}
	if _, err := c.ListOrders(context.Background(), 10); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListOrders: want ErrNotConfigured, got %v", err)
	}
	if _, err := c.ListPayments(context.Background(), 10); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("ListPayments: want ErrNotConfigured, got %v", err)
	}
}

func TestCreateOrder(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key_id" || pass != "key_secret" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "order_1", "amount": 25000, "currency": "INR", "status": "created",
			"notes": {"device_id": "dev_a"}, "created_at": 1700000000}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key_id", "key_secret")
	order, err := c.CreateOrder(context.Background(), 25000, "INR", "rcpt_1",
		map[string]string{"device_id": "dev_a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.ID != "order_1" || order.AmountPaise != 25000 {
		t.Fatalf("order = %+v", order)
	}
	if order.Notes["device_id"] != "dev_a" {
		t.Fatalf("notes = %v", order.Notes)
	}
	if gotBody["amount"].(float64) != 25000 || gotBody["receipt"] != "rcpt_1" {
		t.Fatalf("request body = %v", gotBody)
	}
}

func TestCreateOrderEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key_id", "key_secret")
	_, err := c.CreateOrder(context.Background(), 25000, "INR", "rcpt_1", nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("2xx without an order id must map to ErrUnavailable, got %v", err)
	}
}

func TestCreateOrderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key_id", "key_secret")
	_, err := c.CreateOrder(context.Background(), 25000, "INR", "rcpt_1", nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestListOrderPayments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/orders/order_1/payments") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count": 2, "items": [
			{"id": "pay_1", "order_id": "order_1", "amount": 25000, "status": "captured", "email": "a@b.com"},
			{"id": "pay_2", "order_id": "order_1", "amount": 25000, "status": "failed"}
		]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key_id", "key_secret")
	payments, err := c.ListOrderPayments(context.Background(), "order_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
	if payments[0].Status != PaymentCaptured || payments[0].Email != "a@b.com" {
		t.Fatalf("payment = %+v", payments[0])
	}
}

func TestListOrdersPagesCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("count"); got != "100" {
			t.Errorf("count param = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count": 1, "items": [{"id": "order_1", "status": "paid", "amount": 25000}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "key_id", "key_secret")
	orders, err := c.ListOrders(context.Background(), 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 || orders[0].Status != OrderStatusPaid {
		t.Fatalf("orders = %+v", orders)
	}
}

func TestTruncateNotes(t *testing.T) {
	notes := map[string]string{
		"short": "ok",
		"long":  strings.Repeat("x", 400),
	}
	out := TruncateNotes(notes, 255)
	if out["short"] != "ok" {
		t.Fatalf("short value changed: %q", out["short"])
	}
	if len(out["long"]) != 255 {
		t.Fatalf("long value should be cut to 255, got %d", len(out["long"]))
	}
	// 原 map 不动
	if len(notes["long"]) != 400 {
		t.Fatal("input map must not be mutated")
	}
}
