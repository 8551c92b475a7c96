package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShortCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateShortCode()
		require.NoError(t, err)
		assert.Len(t, code, ShortCodeLength)
		assert.True(t, IsShortCode(code), code)
		assert.False(t, strings.ContainsAny(code, "0O1IL"), code)
	}
}

func TestIsShortCode(t *testing.T) {
	assert.True(t, IsShortCode("abc234"))
	assert.True(t, IsShortCode(" XYZ789 "))
	assert.False(t, IsShortCode("ABC23"))
	assert.False(t, IsShortCode("ABC2345"))
	assert.False(t, IsShortCode("ABCO23"))
	assert.False(t, IsShortCode("john"))
}

func TestParsePaymentMethod(t *testing.T) {
	m, ok := ParsePaymentMethod("Transfer")
	assert.True(t, ok)
	assert.Equal(t, PaymentMethodTransfer, m)

	m, ok = ParsePaymentMethod("pos")
	assert.True(t, ok)
	assert.Equal(t, PaymentMethodCard, m)

	_, ok = ParsePaymentMethod("provider")
	assert.False(t, ok)
}
