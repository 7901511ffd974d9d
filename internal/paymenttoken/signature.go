package paymenttoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureVerifier checks payment gateway signatures.
type SignatureVerifier struct {
	keySecret     string
	webhookSecret string
}

// NewSignatureVerifier creates a verifier for the gateway key and webhook secrets.
func NewSignatureVerifier(keySecret, webhookSecret string) *SignatureVerifier {
	return &SignatureVerifier{keySecret: keySecret, webhookSecret: webhookSecret}
}

// VerifyCheckoutSignature checks the signature returned by checkout over "orderID|paymentID".
func (v *SignatureVerifier) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	if v.keySecret == "" || orderID == "" || paymentID == "" {
		return false
	}
	return verifyHMAC(v.keySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks the signature header sent with a webhook body.
func (v *SignatureVerifier) VerifyWebhookSignature(body []byte, signature string) bool {
	if v.webhookSecret == "" {
		return false
	}
	return verifyHMAC(v.webhookSecret, body, signature)
}

// Sign computes the hex signature the gateway would send. Test fixtures and
// local tooling use it.
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(secret string, message []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hmac.Equal(mac.Sum(nil), got)
}
