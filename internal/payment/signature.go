package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrMissingParameters = errors.New("missing required parameters")
	ErrSignatureMismatch = errors.New("invalid payment signature")
	ErrNoSecret          = errors.New("payment key secret is not configured")
)

// Sign returns the hex HMAC-SHA256 of "orderID|paymentID" keyed by secret,
// the value the gateway hands back on a successful payment.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier checks gateway callback signatures against the shared key secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Verify(orderID, paymentID, signature string) error {
	if v.secret == "" {
		return ErrNoSecret
	}
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrMissingParameters
	}
	expected := Sign(v.secret, orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
