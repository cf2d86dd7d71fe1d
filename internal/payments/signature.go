package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeSignature returns the lowercase hex HMAC-SHA256 digest of payload
// under secret.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks the gateway webhook signature against the raw
// request body. Comparison is constant time.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || secret == "" {
		return false
	}
	expected := ComputeSignature(body, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// VerifyPaymentSignature checks the client-side checkout signature, computed
// over "<gatewayOrderID>|<gatewayPaymentID>" with the key secret.
func VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" || secret == "" {
		return false
	}
	expected := ComputeSignature([]byte(gatewayOrderID+"|"+gatewayPaymentID), secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
