package confirm

import (
	"context"
	"testing"
	"time"

	"order_recon/internal/model"

	"github.com/sirupsen/logrus"
)

func newTestPoller(fx *engineFixture, maxAttempts int) *Poller {
	return NewPoller(fx.engine, time.Minute, maxAttempts, logrus.New())
}

func TestPollerSweepConfirms(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")
	fx.addCaptured("order_1", "pay_1")

	p := newTestPoller(fx, 3)
	p.Sweep(context.Background())

	got, found, err := fx.store.GetConfirmed("order_1")
	if err != nil || !found {
		t.Fatalf("order should confirm on first sweep: found=%v err=%v", found, err)
	}
	if got.Channel != model.ChannelPoll {
		t.Fatalf("channel = %q, want poll", got.Channel)
	}
	// 轮询落账不发通知
	if fx.notifier.operatorCount() != 0 || fx.notifier.customerCount() != 0 {
		t.Fatal("poll confirmation must be silent")
	}

	// 已确认的意向不再出现在后续扫描里
	attempts := fx.polls.attempts["order_1"]
	p.Sweep(context.Background())
	if fx.polls.attempts["order_1"] != attempts {
		t.Fatal("confirmed intent should drop out of the sweep")
	}
}

func TestPollerExhaustsAttempts(t *testing.T) {
	fx := newEngineFixture(t)
	fx.addPending(t, "order_1", "dev_a")
	// 网关永远没有流水

	p := newTestPoller(fx, 2)
	for i := 0; i < 5; i++ {
		p.Sweep(context.Background())
	}

	if !fx.polls.exhausted["order_1"] {
		t.Fatal("poll should be exhausted after the attempt ceiling")
	}
	// 打满后计数停住：第 3 次自增触发 exhausted，之后不再自增
	if got := fx.polls.attempts["order_1"]; got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}

	// pending 保留到有效期，前台刷新还能救
	if _, found, _ := fx.store.GetPending("order_1"); !found {
		t.Fatal("exhausted intent keeps its pending until the TTL")
	}

	// 刷新通道不受轮询上限约束
	fx.addCaptured("order_1", "pay_late")
	confirmed, err := fx.engine.RefreshDevice(context.Background(), "dev_a")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(confirmed) != 1 {
		t.Fatalf("refresh should still rescue an exhausted intent, got %d", len(confirmed))
	}
}

func TestPollerDropsExpiredPending(t *testing.T) {
	fx := newEngineFixture(t)

	stale := &model.PendingOrder{
		IntentID:    "order_stale",
		DeviceID:    "dev_a",
		Platform:    "Instagram",
		Service:     "Followers - Standard",
		Quantity:    1000,
		AmountPaise: 25000,
	}
	stale.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := fx.store.PutPending(stale); err != nil {
		t.Fatalf("put stale: %v", err)
	}
	// 过期意向即使网关有 captured 也不再确认：静默回收
	fx.addCaptured("order_stale", "pay_1")

	p := newTestPoller(fx, 3)
	p.Sweep(context.Background())

	if _, found, _ := fx.store.GetPending("order_stale"); found {
		t.Fatal("expired pending should be garbage collected")
	}
	if has, _ := fx.store.HasConfirmed("order_stale"); has {
		t.Fatal("expired pending must not turn into a confirmed order")
	}
	if fx.polls.attempts["order_stale"] != 0 {
		t.Fatal("expired pending should not be polled")
	}
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	fx := newEngineFixture(t)
	p := NewPoller(fx.engine, 5*time.Millisecond, 3, logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on context cancel")
	}
}
