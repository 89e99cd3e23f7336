package confirm

import (
	"context"
	"time"

	"order_recon/internal/model"

	"github.com/sirupsen/logrus"
)

// Poller 通道 3：后台轮询。固定间隔扫一遍所有未过期 pending，
// 逐个问网关；首次 captured 即停表提交。次数上限打满的意向不再轮询，
// 但 pending 保留到有效期——前台刷新仍可能救回它。
// 过期的 pending 每轮顺手 GC，不产生 confirmed。
type Poller struct {
	engine *Engine

	interval    time.Duration
	maxAttempts int
	log         *logrus.Entry
}

func NewPoller(engine *Engine, interval time.Duration, maxAttempts int, log *logrus.Logger) *Poller {
	return &Poller{
		engine:      engine,
		interval:    interval,
		maxAttempts: maxAttempts,
		log:         log.WithField("component", "poller"),
	}
}

// Run 阻塞运行直到 ctx 取消。
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep 单轮扫描，独立出来方便测试与手动触发。
func (p *Poller) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-p.engine.cfg.PendingTTL)

	if n, err := p.engine.store.GCExpiredPending(cutoff); err != nil {
		p.log.WithError(err).Warn("gc expired pending failed")
	} else if n > 0 {
		p.log.WithField("count", n).Info("expired pending intents dropped")
	}

	pendings, err := p.engine.store.ListAllPending(cutoff)
	if err != nil {
		p.log.WithError(err).Warn("list pending failed")
		return
	}

	for _, pend := range pendings {
		if ctx.Err() != nil {
			return
		}

		exhausted, err := p.engine.polls.Exhausted(ctx, pend.IntentID)
		if err != nil {
			p.log.WithError(err).WithField("intent_id", pend.IntentID).Warn("poll state read failed")
			continue
		}
		if exhausted {
			continue
		}

		n, err := p.engine.polls.Attempt(ctx, pend.IntentID)
		if err != nil {
			p.log.WithError(err).WithField("intent_id", pend.IntentID).Warn("poll attempt incr failed")
			continue
		}
		if n > p.maxAttempts {
			if err := p.engine.polls.MarkExhausted(ctx, pend.IntentID); err != nil {
				p.log.WithError(err).WithField("intent_id", pend.IntentID).Warn("mark exhausted failed")
			}
			p.log.WithField("intent_id", pend.IntentID).Info("poll attempts exhausted")
			continue
		}

		res, err := p.engine.checkAs(ctx, pend.IntentID, model.ChannelPoll)
		if err != nil {
			// 网络 / 5xx 一律吞掉，下一轮重试
			p.log.WithError(err).WithField("intent_id", pend.IntentID).Debug("poll check failed")
			continue
		}
		if res.Captured {
			p.log.WithFields(logrus.Fields{
				"intent_id": pend.IntentID,
				"attempts":  n,
			}).Info("poll confirmed capture")
		}
	}
}
