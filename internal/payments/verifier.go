package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrVerifierSecretMissing is returned when the verifier has no signing secret.
var ErrVerifierSecretMissing = errors.New("payments: signature verifier secret is required")

// SignatureVerifier checks the gateway signature presented with a payment
// proof. The signed message is "<providerOrderID>|<paymentID>" and the
// signature is the hex encoded HMAC-SHA256 over it.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier constructs a verifier for the given shared secret.
func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrVerifierSecretMissing
	}
	return &SignatureVerifier{secret: []byte(secret)}, nil
}

// Verify reports whether signature matches the expected HMAC for the
// provider order id and payment id pair. Comparison is constant time.
func (v *SignatureVerifier) Verify(providerOrderID, paymentID, signature string) bool {
	if v == nil || len(v.secret) == 0 {
		return false
	}
	providerOrderID = strings.TrimSpace(providerOrderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.TrimSpace(signature)
	if providerOrderID == "" || paymentID == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(providerOrderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
