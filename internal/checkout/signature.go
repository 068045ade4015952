package checkout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns hex(HMAC-SHA256(secret, orderID|paymentID)), the signature a gateway
// attaches to a payment callback.
func Sign(secret, orderID, paymentID string) string {
	return hmacHex(secret, []byte(orderID+"|"+paymentID))
}

func VerifySignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, orderID, paymentID)), []byte(signature))
}

// VerifyWebhook checks the signature of a raw webhook body.
func VerifyWebhook(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(hmacHex(secret, body)), []byte(signature))
}

func hmacHex(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}
