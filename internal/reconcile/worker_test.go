package reconcile

import (
	"testing"

	"lv-escrow/internal/model"
	"lv-escrow/internal/transition"
	"lv-escrow/internal/types"

	"github.com/stretchr/testify/assert"
)

func trade(status types.TradeStatus) model.Trade {
	return model.Trade{InitiatorID: "alice", CounterpartyID: "bob", Status: status}
}

func TestTimeoutOutcomeOpenExpires(t *testing.T) {
	assert.Equal(t, types.TradeStatusExpired, TimeoutOutcome(trade(types.TradeStatusOpen)))
}

func TestTimeoutOutcomeAcceptedCancels(t *testing.T) {
	assert.Equal(t, types.TradeStatusCancelled, TimeoutOutcome(trade(types.TradeStatusAccepted)))
}

func TestTimeoutOutcomeNeverCancelsWithEscrowReference(t *testing.T) {
	// External escrow proof can be attached before the row ever reaches
	// escrowed. Those funds are at risk, so timeout must not move the
	// trade; an operator resolves it through the internal transition API.
	ref := "0xabc"
	for _, status := range []types.TradeStatus{types.TradeStatusOpen, types.TradeStatusAccepted} {
		tr := trade(status)
		tr.EscrowReference = &ref
		assert.Empty(t, TimeoutOutcome(tr),
			"trade in %s with escrow_reference set must never be auto-cancelled", status)
	}
}

func TestTimeoutOutcomeNeverCancelsWithRecordedDebit(t *testing.T) {
	// Re-acceptance path: escrowed -> accepted with the debit still held.
	tr := trade(types.TradeStatusAccepted)
	party := "alice"
	tr.DebitedParty = &party
	assert.Empty(t, TimeoutOutcome(tr))
}

func TestTimeoutOutcomeNeverCancelsHeldFunds(t *testing.T) {
	// Once escrow is locked or a payment is claimed, timeout escalates to a
	// dispute for operator resolution instead of moving money automatically.
	for _, status := range []types.TradeStatus{types.TradeStatusEscrowed, types.TradeStatusPaymentSent} {
		tr := trade(status)
		party := "alice"
		tr.DebitedParty = &party
		assert.Equal(t, types.TradeStatusDisputed, TimeoutOutcome(tr), string(status))
	}
}

func TestTimeoutOutcomeLeavesDisputedAndTerminalAlone(t *testing.T) {
	for _, status := range []types.TradeStatus{
		types.TradeStatusDisputed,
		types.TradeStatusCompleted,
		types.TradeStatusCancelled,
		types.TradeStatusExpired,
	} {
		assert.Empty(t, TimeoutOutcome(trade(status)), string(status))
	}
}

func TestTimeoutOutcomeIsAlwaysALegalSystemTransition(t *testing.T) {
	for _, status := range types.AllStatuses {
		outcome := TimeoutOutcome(trade(status))
		if outcome == "" {
			continue
		}
		d := transition.Validate(status, outcome, types.ActorRoleSystem)
		assert.True(t, d.Allowed, "%s -> %s: %s", status, outcome, d.Reason)
	}
}
