package confirm

import "testing"

func TestVerifyCheckoutSignature(t *testing.T) {
	secret := "key_secret_test"
	good := checkoutSignature(secret, "order_1", "pay_1")

	if !verifyCheckoutSignature(secret, "order_1", "pay_1", good) {
		t.Fatal("valid signature rejected")
	}
	if verifyCheckoutSignature(secret, "order_2", "pay_1", good) {
		t.Fatal("signature must bind the intent id")
	}
	if verifyCheckoutSignature(secret, "order_1", "pay_2", good) {
		t.Fatal("signature must bind the payment id")
	}
	if verifyCheckoutSignature("other_secret", "order_1", "pay_1", good) {
		t.Fatal("signature must bind the secret")
	}
	// 空密钥 / 空签名一律拒绝，绝不静默放行
	if verifyCheckoutSignature("", "order_1", "pay_1", good) {
		t.Fatal("empty secret must reject")
	}
	if verifyCheckoutSignature(secret, "order_1", "pay_1", "") {
		t.Fatal("empty signature must reject")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "webhook_secret_test"
	body := []byte(`{"event":"payment.captured"}`)
	good := signBody(secret, body)

	if !verifyWebhookSignature(secret, body, good) {
		t.Fatal("valid signature rejected")
	}
	if verifyWebhookSignature(secret, []byte(`{"event":"payment.captured" }`), good) {
		t.Fatal("any byte change must invalidate the signature")
	}
	if verifyWebhookSignature("", body, good) {
		t.Fatal("empty secret must reject")
	}
	if verifyWebhookSignature(secret, body, "") {
		t.Fatal("empty signature must reject")
	}
}
