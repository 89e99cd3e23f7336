package redisx

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// luaArmPollOnce 通过 SETNX 锁保证“同一意向只武装一次轮询”。
// 关闭检查、前台刷新、会话恢复都会尝试武装，没有这把锁会叠出多份计时任务。
const luaArmPollOnce = `
local lockKey = KEYS[1]
local stateKey = KEYS[2]
local ttlSec = tonumber(ARGV[1])

if redis.call('SETNX', lockKey, '1') == 1 then
  redis.call('EXPIRE', lockKey, ttlSec)
  redis.call('HSETNX', stateKey, 'status', 'active')
  redis.call('HSETNX', stateKey, 'attempts', '0')
  redis.call('EXPIRE', stateKey, ttlSec)
  return 1
end
return 0
`

// ArmPollOnce 幂等武装轮询：
// - 首次武装返回 true
// - 重复武装返回 false（不会重置已有进度）
func ArmPollOnce(ctx context.Context, rdb *rd.Client, intentID string, ttl time.Duration) (bool, error) {
	lockKey := PollArmLockKey(intentID)
	stateKey := PollStateKey(intentID)
	ttlSec := int64(ttl / time.Second)
	if ttlSec <= 0 {
		ttlSec = 1
	}

	n, err := rdb.Eval(ctx, luaArmPollOnce, []string{lockKey, stateKey}, ttlSec).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
