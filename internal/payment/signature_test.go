package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test_secret"
	// hex HMAC-SHA256("test_secret", "order_abc|pay_123")
	knownSignature = "2ae265b7794ea1d60d2bfbcb6be50d9e059bce607577aeaf83c1297090a8dfc7"
)

func TestSign_KnownVector(t *testing.T) {
	assert.Equal(t, knownSignature, Sign(testSecret, "order_abc", "pay_123"))
}

func TestVerifier_Accepts(t *testing.T) {
	v := NewVerifier(testSecret)
	require.NoError(t, v.Verify("order_abc", "pay_123", knownSignature))
}

func TestVerifier_RejectsTamperedSignature(t *testing.T) {
	v := NewVerifier(testSecret)

	tampered := []byte(knownSignature)
	tampered[0] = '3'
	assert.ErrorIs(t, v.Verify("order_abc", "pay_123", string(tampered)), ErrSignatureMismatch)

	// swapped fields must not verify either
	assert.ErrorIs(t, v.Verify("pay_123", "order_abc", knownSignature), ErrSignatureMismatch)
	assert.ErrorIs(t, v.Verify("order_abc", "pay_123", knownSignature[:10]), ErrSignatureMismatch)
}

func TestVerifier_MissingParameters(t *testing.T) {
	v := NewVerifier(testSecret)
	assert.ErrorIs(t, v.Verify("", "pay_123", knownSignature), ErrMissingParameters)
	assert.ErrorIs(t, v.Verify("order_abc", "", knownSignature), ErrMissingParameters)
	assert.ErrorIs(t, v.Verify("order_abc", "pay_123", ""), ErrMissingParameters)
}

func TestVerifier_NoSecret(t *testing.T) {
	v := NewVerifier("")
	assert.ErrorIs(t, v.Verify("order_abc", "pay_123", Sign("", "order_abc", "pay_123")), ErrNoSecret)
}
