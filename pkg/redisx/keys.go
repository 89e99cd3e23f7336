package redisx

import "fmt"

// PollStateKey 存储某意向的轮询进度（attempts/status）。
func PollStateKey(intentID string) string {
	return fmt.Sprintf("order_recon:poll:state:%s", intentID)
}

// PollArmLockKey 标记某意向是否已进入轮询，避免重复武装。
func PollArmLockKey(intentID string) string {
	return fmt.Sprintf("order_recon:poll:armed:%s", intentID)
}

// RateLimitDeviceKey 按设备限流。
func RateLimitDeviceKey(scope, deviceID string) string {
	return fmt.Sprintf("rate_limit:%s:device:%s", scope, deviceID)
}

// RateLimitIPKey 设备身份缺失时按 IP 限流。
func RateLimitIPKey(scope, ip string) string {
	return fmt.Sprintf("rate_limit:%s:ip:%s", scope, ip)
}
