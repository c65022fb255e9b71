package comgate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// CalculateSignature calculates the HMAC-SHA256 signature ComGate attaches
// to callback deliveries: HMAC-SHA256(body, secret), hex-encoded
func CalculateSignature(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateSignature validates a callback signature in constant time
func ValidateSignature(secret string, body []byte, signature string) bool {
	expected := CalculateSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
