package confirm

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"order_recon/internal/gateway"
	"order_recon/internal/ledger"
	"order_recon/internal/model"
	"order_recon/internal/notify"
	"order_recon/internal/queue"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testKeySecret     = "key_secret_test"
	testWebhookSecret = "webhook_secret_test"
)

// fakeGateway 内存网关：orders / payments 直接喂数据。
type fakeGateway struct {
	orders   map[string]gateway.Order
	payments map[string][]gateway.Payment

	paymentsErr error
	getOrderErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		orders:   map[string]gateway.Order{},
		payments: map[string][]gateway.Payment{},
	}
}

func (f *fakeGateway) CreateOrder(context.Context, int64, string, string, map[string]string) (gateway.Order, error) {
	return gateway.Order{}, errors.New("not implemented")
}

func (f *fakeGateway) GetOrder(_ context.Context, orderID string) (gateway.Order, error) {
	if f.getOrderErr != nil {
		return gateway.Order{}, f.getOrderErr
	}
	o, ok := f.orders[orderID]
	if !ok {
		return gateway.Order{}, gateway.ErrUnavailable
	}
	return o, nil
}

func (f *fakeGateway) ListOrderPayments(_ context.Context, orderID string) ([]gateway.Payment, error) {
	if f.paymentsErr != nil {
		return nil, f.paymentsErr
	}
	return f.payments[orderID], nil
}

func (f *fakeGateway) ListOrders(context.Context, int) ([]gateway.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) ListPayments(context.Context, int) ([]gateway.Payment, error) {
	return nil, errors.New("not implemented")
}

// fakeNotifier 数通知次数。
type fakeNotifier struct {
	mu       sync.Mutex
	operator []notify.OrderNotice
	customer []notify.OrderNotice
}

func (f *fakeNotifier) OperatorOrderNotice(_ context.Context, n notify.OrderNotice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operator = append(f.operator, n)
}

func (f *fakeNotifier) CustomerConfirmation(_ context.Context, n notify.OrderNotice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customer = append(f.customer, n)
}

func (f *fakeNotifier) operatorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.operator)
}

func (f *fakeNotifier) customerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.customer)
}

// memPolls 内存版 PollStore。
type memPolls struct {
	mu        sync.Mutex
	armed     map[string]bool
	attempts  map[string]int
	done      map[string]bool
	exhausted map[string]bool
}

func newMemPolls() *memPolls {
	return &memPolls{
		armed:     map[string]bool{},
		attempts:  map[string]int{},
		done:      map[string]bool{},
		exhausted: map[string]bool{},
	}
}

func (m *memPolls) Arm(_ context.Context, intentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.armed[intentID] {
		return false, nil
	}
	m.armed[intentID] = true
	return true, nil
}

func (m *memPolls) Attempt(_ context.Context, intentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[intentID]++
	return m.attempts[intentID], nil
}

func (m *memPolls) MarkDone(_ context.Context, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[intentID] = true
	return nil
}

func (m *memPolls) MarkExhausted(_ context.Context, intentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exhausted[intentID] = true
	return nil
}

func (m *memPolls) Exhausted(_ context.Context, intentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted[intentID], nil
}

// fakeOutbox 收集发布的 capture 事件。
type fakeOutbox struct {
	mu   sync.Mutex
	msgs []queue.CaptureMessage
}

func (f *fakeOutbox) PublishCapture(_ context.Context, msg queue.CaptureMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeOutbox) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type engineFixture struct {
	engine   *Engine
	store    *ledger.Store
	gw       *fakeGateway
	notifier *fakeNotifier
	polls    *memPolls
	outbox   *fakeOutbox
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// 单连接串行化写入，竞速测试不受 sqlite busy 干扰
	sqlDB.SetMaxOpenConns(1)
	if err := ledger.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	fx := &engineFixture{
		store:    ledger.New(db),
		gw:       newFakeGateway(),
		notifier: &fakeNotifier{},
		polls:    newMemPolls(),
		outbox:   &fakeOutbox{},
	}
	fx.engine = NewEngine(fx.gw, fx.store, fx.notifier, fx.outbox, fx.polls, Config{
		KeySecret:       testKeySecret,
		WebhookSecret:   testWebhookSecret,
		PendingTTL:      24 * time.Hour,
		MaxPollAttempts: 3,
	}, logrus.New())
	return fx
}

func (fx *engineFixture) addPending(t *testing.T, intentID, deviceID string) {
	t.Helper()
	err := fx.store.PutPending(&model.PendingOrder{
		IntentID:    intentID,
		DeviceID:    deviceID,
		Platform:    "Instagram",
		Category:    "Followers",
		Service:     "Followers - Standard",
		Link:        "https://instagram.com/someone",
		Quantity:    1000,
		Email:       "buyer@example.com",
		Contact:     "@buyer",
		AmountPaise: 25000,
	})
	if err != nil {
		t.Fatalf("put pending %s: %v", intentID, err)
	}
}

func (fx *engineFixture) addCaptured(intentID, paymentID string) {
	fx.payments(intentID, gateway.Payment{
		ID: paymentID, OrderID: intentID, AmountPaise: 25000, Status: gateway.PaymentCaptured,
	})
}

func (fx *engineFixture) payments(intentID string, ps ...gateway.Payment) {
	fx.gw.payments[intentID] = append(fx.gw.payments[intentID], ps...)
}

func TestVerifyCallbackConfirms(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")

	sig := checkoutSignature(testKeySecret, "order_1", "pay_1")
	order, err := fx.engine.VerifyCallback(context.Background(), "order_1", "pay_1", sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if order.Channel != model.ChannelCallback {
		t.Fatalf("channel = %q, want callback", order.Channel)
	}
	if order.DeviceID != "dev_a" || order.AmountPaise != 25000 {
		t.Fatalf("order details lost: %+v", order)
	}

	if _, found, _ := fx.store.GetPending("order_1"); found {
		t.Fatal("pending should be gone after confirmation")
	}
	if !fx.polls.done["order_1"] {
		t.Fatal("poll should be stopped after confirmation")
	}
	if fx.outbox.count() != 1 {
		t.Fatalf("expected 1 capture event, got %d", fx.outbox.count())
	}
	if fx.notifier.operatorCount() != 1 {
		t.Fatalf("operator notices = %d, want 1", fx.notifier.operatorCount())
	}
	if fx.notifier.customerCount() != 1 {
		t.Fatalf("customer confirmations = %d, want 1", fx.notifier.customerCount())
	}
}

func TestVerifyCallbackForgedSignature(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")
	// 网关侧钱确实到了——验签失败依然必须硬拒绝
	fx.addCaptured("order_1", "pay_1")

	_, err := fx.engine.VerifyCallback(context.Background(), "order_1", "pay_1", "deadbeef")
	if !IsSignatureInvalid(err) {
		t.Fatalf("want signature error, got %v", err)
	}

	has, _ := fx.store.HasConfirmed("order_1")
	if has {
		t.Fatal("forged callback must not write the ledger")
	}
	if fx.notifier.operatorCount() != 0 || fx.notifier.customerCount() != 0 {
		t.Fatal("forged callback must not notify anyone")
	}
}

func TestVerifyCallbackWithoutSecret(t *testing.T) {
	fx := newEngineFixture(t)
	eng := NewEngine(fx.gw, fx.store, fx.notifier, nil, fx.polls, Config{
		PendingTTL: 24 * time.Hour,
	}, logrus.New())

	_, err := eng.VerifyCallback(context.Background(), "order_1", "pay_1", "sig")
	if !errors.Is(err, gateway.ErrNotConfigured) {
		t.Fatalf("want ErrNotConfigured, got %v", err)
	}
}

func TestCheckIntentCaptured(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")
	fx.addCaptured("order_1", "pay_1")

	res, err := fx.engine.CheckIntent(context.Background(), "order_1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Captured || res.Order == nil {
		t.Fatalf("expected captured result, got %+v", res)
	}
	if res.Order.Channel != model.ChannelDismiss {
		t.Fatalf("channel = %q, want dismiss", res.Order.Channel)
	}

	// 关闭检查通道静默落账：不发任何通知
	if fx.notifier.operatorCount() != 0 || fx.notifier.customerCount() != 0 {
		t.Fatal("dismiss-time confirmation must not notify")
	}
	if fx.outbox.count() != 1 {
		t.Fatalf("capture event missing, got %d", fx.outbox.count())
	}
}

func TestCheckIntentAuthorizedArmsPoll(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")
	fx.payments("order_1", gateway.Payment{
		ID: "pay_1", OrderID: "order_1", AmountPaise: 25000, Status: gateway.PaymentAuthorized,
	})

	res, err := fx.engine.CheckIntent(context.Background(), "order_1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Captured {
		t.Fatal("authorized is not captured")
	}
	if !res.Authorized {
		t.Fatal("authorized flag should be set")
	}
	if !fx.polls.armed["order_1"] {
		t.Fatal("poll should be armed while capture is outstanding")
	}
	if has, _ := fx.store.HasConfirmed("order_1"); has {
		t.Fatal("authorized payment must not confirm the order")
	}
}

func TestCheckIntentGatewayError(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")
	fx.gw.paymentsErr = gateway.ErrUnavailable

	_, err := fx.engine.CheckIntent(context.Background(), "order_1")
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("want gateway error surfaced to caller, got %v", err)
	}
	if has, _ := fx.store.HasConfirmed("order_1"); has {
		t.Fatal("gateway failure must not confirm anything")
	}
}

func TestDuplicateConfirmKeepsFirstChannel(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")
	fx.addCaptured("order_1", "pay_1")

	// 关闭检查先赢
	if _, err := fx.engine.CheckIntent(context.Background(), "order_1"); err != nil {
		t.Fatalf("check: %v", err)
	}

	// 回调随后带着合法签名到达：返回既有订单，不产生第二条
	sig := checkoutSignature(testKeySecret, "order_1", "pay_1")
	order, err := fx.engine.VerifyCallback(context.Background(), "order_1", "pay_1", sig)
	if err != nil {
		t.Fatalf("verify after check: %v", err)
	}
	if order.Channel != model.ChannelDismiss {
		t.Fatalf("existing order should keep winning channel dismiss, got %q", order.Channel)
	}
	if fx.outbox.count() != 1 {
		t.Fatalf("capture event should publish once, got %d", fx.outbox.count())
	}
	// 回调路径的通知照发（at-least-once，去重交给收件人）
	if fx.notifier.customerCount() != 1 {
		t.Fatalf("customer confirmation = %d, want 1", fx.notifier.customerCount())
	}
}

func TestRefreshDevice(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_paid", "dev_a")
	fx.addPending(t, "order_waiting", "dev_a")
	fx.addPending(t, "order_other", "dev_b")
	fx.addCaptured("order_paid", "pay_1")
	fx.addCaptured("order_other", "pay_9")

	confirmed, err := fx.engine.RefreshDevice(context.Background(), "dev_a")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(confirmed) != 1 {
		t.Fatalf("expected 1 confirmation for dev_a, got %d", len(confirmed))
	}
	if confirmed[0].IntentID != "order_paid" || confirmed[0].Channel != model.ChannelRefresh {
		t.Fatalf("unexpected confirmation: %+v", confirmed[0])
	}

	// 别的设备的意向不动
	if has, _ := fx.store.HasConfirmed("order_other"); has {
		t.Fatal("refresh must stay inside the requesting device")
	}
	// 没付的那单武装了轮询
	if !fx.polls.armed["order_waiting"] {
		t.Fatal("unpaid pending should be armed for polling")
	}
}

func TestRefreshDeviceSwallowsPerIntentErrors(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")
	fx.gw.paymentsErr = gateway.ErrUnavailable

	confirmed, err := fx.engine.RefreshDevice(context.Background(), "dev_a")
	if err != nil {
		t.Fatalf("refresh should not fail on per-intent gateway errors: %v", err)
	}
	if len(confirmed) != 0 {
		t.Fatalf("nothing should confirm, got %d", len(confirmed))
	}
}

// 五路竞速一单：所有通道同时观测同一笔 capture，台账恰好一条。
func TestAllChannelsRaceSingleRow(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")
	fx.addCaptured("order_1", "pay_1")
	sig := checkoutSignature(testKeySecret, "order_1", "pay_1")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = fx.engine.VerifyCallback(context.Background(), "order_1", "pay_1", sig)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = fx.engine.CheckIntent(context.Background(), "order_1")
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = fx.engine.RefreshDevice(context.Background(), "dev_a")
		}()
	}
	wg.Wait()

	orders, err := fx.store.ListConfirmed("dev_a")
	if err != nil {
		t.Fatalf("list confirmed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("racing channels must converge on exactly 1 order, got %d", len(orders))
	}
}

func TestCommitFallsBackToGatewayNotes(t *testing.T) {
	fx := newEngineFixture(t)
	// 本地 pending 丢了（换设备/清数据），注解是唯一的明细来源
	fx.gw.orders["order_1"] = gateway.Order{
		ID:          "order_1",
		AmountPaise: 25000,
		Status:      gateway.OrderStatusPaid,
		Notes: map[string]string{
			"device_id":   "dev_lost",
			"platform":    "Instagram",
			"service":     "Followers - Standard",
			"quantity":    "1000",
			"email":       "buyer@example.com",
			"total_price": "25000",
		},
	}
	fx.addCaptured("order_1", "pay_1")

	res, err := fx.engine.CheckIntent(context.Background(), "order_1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Captured {
		t.Fatal("expected captured")
	}
	if res.Order.DeviceID != "dev_lost" || res.Order.Quantity != 1000 {
		t.Fatalf("notes reconstruction failed: %+v", res.Order)
	}
}
