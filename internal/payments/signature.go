package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HMACVerifier checks checkout signatures of the form
// hex(HMAC-SHA256(providerOrderID + "|" + providerPaymentID, secret)).
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Sign computes the expected signature.
func (v *HMACVerifier) Sign(providerOrderID, providerPaymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(providerOrderID + "|" + providerPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. Empty inputs never verify.
func (v *HMACVerifier) Verify(providerOrderID, providerPaymentID, signature string) bool {
	if len(v.secret) == 0 || providerOrderID == "" || providerPaymentID == "" || signature == "" {
		return false
	}
	expected := v.Sign(providerOrderID, providerPaymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
