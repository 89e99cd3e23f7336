package confirm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrSignatureInvalid 表示签名校验失败。这是安全控制，命中即硬拒绝，
// 绝不重试；调用方把它作为不可重试错误带支持引用号返回给用户。
var ErrSignatureInvalid = errors.New("payment signature invalid")

// checkoutSignature 计算同步回调的期望签名：
// HMAC-SHA256(keySecret, intentID + "|" + paymentID)，hex 编码。
func checkoutSignature(secret, intentID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(intentID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyCheckoutSignature 恒定时间比较回调签名。
func verifyCheckoutSignature(secret, intentID, paymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := checkoutSignature(secret, intentID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// verifyWebhookSignature 对原始请求字节做 HMAC-SHA256 校验。
// 必须用原始字节，任何先解析再序列化的做法都会破坏签名。
func verifyWebhookSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
