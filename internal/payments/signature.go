package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifySignature checks a settlement callback signature. The gateway signs
// the concatenation of its order id and payment id separated by a single pipe
// with HMAC-SHA256 over the key secret, hex encoded.
//
// Comparison is constant time. Empty order id, payment id, signature, or
// secret all fail closed.
func VerifySignature(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
