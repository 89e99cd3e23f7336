package redisx

import (
	"context"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	// PollActive 表示意向仍在轮询窗口内。
	PollActive = "active"
	// PollDone 表示已确认，轮询停止。
	PollDone = "done"
	// PollExhausted 表示尝试次数打满仍未 captured。
	PollExhausted = "exhausted"
)

// PollState 对应 Redis 内某意向的轮询进度。
// 放 Redis 而不是内存，服务重启后次数上限依然成立。
type PollState struct {
	IntentID string
	Status   string
	Attempts int
}

// GetPollState 查询意向的轮询进度。found=false 表示 key 不存在。
func GetPollState(ctx context.Context, rdb *rd.Client, intentID string) (PollState, bool, error) {
	key := PollStateKey(intentID)
	m, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return PollState{}, false, err
	}
	if len(m) == 0 {
		return PollState{}, false, nil
	}

	attempts, _ := strconv.Atoi(m["attempts"])
	out := PollState{
		IntentID: intentID,
		Status:   m["status"],
		Attempts: attempts,
	}
	if out.Status == "" {
		out.Status = PollActive
	}
	return out, true, nil
}

// PutPollState 更新轮询进度并刷新 TTL。
func PutPollState(ctx context.Context, rdb *rd.Client, state PollState, ttl time.Duration) error {
	key := PollStateKey(state.IntentID)
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"intent_id", state.IntentID,
		"status", state.Status,
		"attempts", strconv.Itoa(state.Attempts),
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// IncrPollAttempt 原子自增尝试次数，返回自增后的值。
func IncrPollAttempt(ctx context.Context, rdb *rd.Client, intentID string, ttl time.Duration) (int, error) {
	key := PollStateKey(intentID)
	pipe := rdb.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, "attempts", 1)
	pipe.HSetNX(ctx, key, "intent_id", intentID)
	pipe.HSetNX(ctx, key, "status", PollActive)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}
