package trades

import (
	"lv-escrow/internal/model"
	"lv-escrow/internal/types"

	"github.com/shopspring/decimal"
)

// movement describes the ledger work one transition requires. A nil plan
// means the transition moves no money.
type movement struct {
	DebitOwner  string
	CreditOwner string
	// Amount is the principal. On release the beneficiary receives
	// Amount.Sub(Fee) and the fee account receives Fee, so the escrowed
	// principal is always conserved.
	Amount    decimal.Decimal
	Fee       decimal.Decimal
	EntryType types.LedgerEntryType
	// RecordDebit marks the escrow lock so the trade row captures who paid
	// and how much; refunds and releases read only those recorded fields.
	RecordDebit bool
	// LegacyInferred marks a refund whose payer was reconstructed from trade
	// roles because the row predates debited_party recording.
	LegacyInferred bool
}

// escrowPayer is the party whose balance funds the escrow. The initiator
// pays unless a buyer_id marks the initiator as the buying side, in which
// case the counterparty holds the asset.
func escrowPayer(t model.Trade) string {
	if t.BuyerID != nil && *t.BuyerID == t.InitiatorID {
		return t.CounterpartyID
	}
	return t.InitiatorID
}

// releaseBeneficiary is the party on the other side of the recorded debit.
func releaseBeneficiary(t model.Trade, debitedParty string) string {
	if debitedParty == t.InitiatorID {
		return t.CounterpartyID
	}
	return t.InitiatorID
}

// feeFor computes the platform cut in basis points of the released amount.
func feeFor(amount decimal.Decimal, feeBps int64) decimal.Decimal {
	if feeBps <= 0 {
		return decimal.Zero
	}
	return amount.Mul(decimal.NewFromInt(feeBps)).Div(decimal.NewFromInt(10000))
}

// planMovement maps a validated transition onto ledger work. It never
// touches the database: all inputs come from the locked trade row.
func planMovement(t model.Trade, requested types.TradeStatus, feeBps int64) *movement {
	switch requested {
	case types.TradeStatusEscrowed:
		if t.DebitedParty != nil {
			// Re-entry via escrowed -> accepted -> escrowed; funds are
			// already held.
			return nil
		}
		payer := escrowPayer(t)
		return &movement{
			DebitOwner:  payer,
			Amount:      t.Amount,
			EntryType:   types.LedgerEntryTypeEscrowLock,
			RecordDebit: true,
		}
	case types.TradeStatusCompleted:
		if t.DebitedParty == nil {
			return nil
		}
		amount := t.Amount
		if t.DebitedAmount != nil {
			amount = *t.DebitedAmount
		}
		return &movement{
			CreditOwner: releaseBeneficiary(t, *t.DebitedParty),
			Amount:      amount,
			Fee:         feeFor(amount, feeBps),
			EntryType:   types.LedgerEntryTypeEscrowRelease,
		}
	case types.TradeStatusCancelled, types.TradeStatusExpired, types.TradeStatusDisputed:
		if requested == types.TradeStatusDisputed {
			// Disputes freeze the escrow; resolution moves the money.
			return nil
		}
		if t.DebitedParty != nil {
			amount := t.Amount
			if t.DebitedAmount != nil {
				amount = *t.DebitedAmount
			}
			return &movement{
				CreditOwner: *t.DebitedParty,
				Amount:      amount,
				EntryType:   types.LedgerEntryTypeEscrowRefund,
			}
		}
		if t.EscrowReference != nil {
			// Legacy row escrowed before debited_party was recorded; fall
			// back to role inference and flag it for the caller to log.
			return &movement{
				CreditOwner:    escrowPayer(t),
				Amount:         t.Amount,
				EntryType:      types.LedgerEntryTypeEscrowRefund,
				LegacyInferred: true,
			}
		}
		return nil
	default:
		return nil
	}
}
