package comgate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/billingops/payment-orchestrator/internal/adapters/comgate"
)

func TestCalculateSignature_Deterministic(t *testing.T) {
	body := []byte("refId=inv-1&status=PAID&transId=AB12-CD34")

	sig1 := comgate.CalculateSignature("secret-key", body)
	sig2 := comgate.CalculateSignature("secret-key", body)

	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64, "hex-encoded SHA-256 output")
}

func TestCalculateSignature_SecretChangesOutput(t *testing.T) {
	body := []byte("refId=inv-1&status=PAID")

	assert.NotEqual(t,
		comgate.CalculateSignature("secret-a", body),
		comgate.CalculateSignature("secret-b", body),
	)
}

func TestValidateSignature(t *testing.T) {
	body := []byte("refId=inv-1&status=PAID")
	sig := comgate.CalculateSignature("secret-key", body)

	assert.True(t, comgate.ValidateSignature("secret-key", body, sig))
	assert.False(t, comgate.ValidateSignature("other-key", body, sig))
	assert.False(t, comgate.ValidateSignature("secret-key", []byte("tampered"), sig))
	assert.False(t, comgate.ValidateSignature("secret-key", body, ""))
}
