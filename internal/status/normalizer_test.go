package status

import (
	"testing"

	"lv-escrow/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCanonicalPassthrough(t *testing.T) {
	for _, s := range types.AllStatuses {
		got, err := Normalize(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestNormalizeLegacyValues(t *testing.T) {
	cases := map[string]types.TradeStatus{
		"awaiting_acceptance": types.TradeStatusOpen,
		"escrow_pending":      types.TradeStatusEscrowed,
		"escrow_confirmed":    types.TradeStatusEscrowed,
		"payment_confirmed":   types.TradeStatusPaymentSent,
		"releasing":           types.TradeStatusCompleted,
		"refunded":            types.TradeStatusCancelled,
		"timed_out":           types.TradeStatusExpired,
		"under_review":        types.TradeStatusDisputed,
	}
	for wide, want := range cases {
		got, err := Normalize(wide)
		require.NoError(t, err, wide)
		assert.Equal(t, want, got, wide)
	}
}

func TestNormalizeUnknown(t *testing.T) {
	_, err := Normalize("banana")
	assert.Error(t, err)
}

func TestCheckWritableRejectsTransient(t *testing.T) {
	err := CheckWritable("escrow_pending")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escrowed")

	assert.NoError(t, CheckWritable("escrowed"))
	assert.Error(t, CheckWritable("nonsense"))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient("releasing"))
	assert.False(t, IsTransient("completed"))
	assert.False(t, IsTransient("nonsense"))
}
