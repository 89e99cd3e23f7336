package confirm

import (
	"context"
	"time"

	"order_recon/pkg/redisx"

	rd "github.com/redis/go-redis/v9"
)

// PollStore 记录每个意向的轮询进度。进度放进程外（Redis），
// 服务重启后尝试次数上限依然成立；测试里用内存假实现。
type PollStore interface {
	// Arm 幂等武装轮询，重复武装返回 false。
	Arm(ctx context.Context, intentID string) (bool, error)
	// Attempt 自增并返回当前尝试次数。
	Attempt(ctx context.Context, intentID string) (int, error)
	// MarkDone 确认成功后停表。
	MarkDone(ctx context.Context, intentID string) error
	// MarkExhausted 次数打满仍未 captured。
	MarkExhausted(ctx context.Context, intentID string) error
	// Exhausted 查询是否已打满。
	Exhausted(ctx context.Context, intentID string) (bool, error)
}

// RedisPollStore 是 PollStore 的 Redis 实现。
type RedisPollStore struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewRedisPollStore(rdb *rd.Client, ttl time.Duration) *RedisPollStore {
	return &RedisPollStore{rdb: rdb, ttl: ttl}
}

func (s *RedisPollStore) Arm(ctx context.Context, intentID string) (bool, error) {
	return redisx.ArmPollOnce(ctx, s.rdb, intentID, s.ttl)
}

func (s *RedisPollStore) Attempt(ctx context.Context, intentID string) (int, error) {
	return redisx.IncrPollAttempt(ctx, s.rdb, intentID, s.ttl)
}

func (s *RedisPollStore) MarkDone(ctx context.Context, intentID string) error {
	st, _, err := redisx.GetPollState(ctx, s.rdb, intentID)
	if err != nil {
		return err
	}
	st.IntentID = intentID
	st.Status = redisx.PollDone
	return redisx.PutPollState(ctx, s.rdb, st, s.ttl)
}

func (s *RedisPollStore) MarkExhausted(ctx context.Context, intentID string) error {
	st, _, err := redisx.GetPollState(ctx, s.rdb, intentID)
	if err != nil {
		return err
	}
	st.IntentID = intentID
	st.Status = redisx.PollExhausted
	return redisx.PutPollState(ctx, s.rdb, st, s.ttl)
}

func (s *RedisPollStore) Exhausted(ctx context.Context, intentID string) (bool, error) {
	st, found, err := redisx.GetPollState(ctx, s.rdb, intentID)
	if err != nil || !found {
		return false, err
	}
	return st.Status == redisx.PollExhausted, nil
}
