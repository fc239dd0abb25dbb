package model

import (
	"time"

	"lv-escrow/internal/types"

	"github.com/shopspring/decimal"
)

// Trade is the aggregate root for one P2P exchange between two parties.
// Version increases by exactly 1 on every applied transition and is the
// staleness signal for external readers.
type Trade struct {
	ID             string            `json:"id"`
	InitiatorID    string            `json:"initiator_id"`
	CounterpartyID string            `json:"counterparty_id"`
	// BuyerID is set for merchant-to-merchant trades where the buying party
	// is not the initiator.
	BuyerID          *string           `json:"buyer_id,omitempty"`
	Version          int64             `json:"version"`
	Status           types.TradeStatus `json:"status"`
	Asset            string            `json:"asset"`
	Amount           decimal.Decimal   `json:"amount"`
	FiatAmount       decimal.Decimal   `json:"fiat_amount"`
	FiatCurrency     string            `json:"fiat_currency"`
	EscrowReference  *string           `json:"escrow_reference,omitempty"`
	ReleaseReference *string           `json:"release_reference,omitempty"`
	RefundReference  *string           `json:"refund_reference,omitempty"`
	// DebitedParty/DebitedAmount are recorded at the moment of the escrow
	// debit and are the only inputs to later refund or release credits.
	DebitedParty  *string          `json:"debited_party,omitempty"`
	DebitedAmount *decimal.Decimal `json:"debited_amount,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	AcceptedAt    *time.Time       `json:"accepted_at,omitempty"`
	EscrowedAt    *time.Time       `json:"escrowed_at,omitempty"`
	PaymentSentAt *time.Time       `json:"payment_sent_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	CancelledAt   *time.Time       `json:"cancelled_at,omitempty"`
	DisputedAt    *time.Time       `json:"disputed_at,omitempty"`
	ExpiredAt     *time.Time       `json:"expired_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// LedgerEntry is one immutable balance mutation. BalanceBefore/After are read
// from the locked account row in the same transaction, never recomputed.
type LedgerEntry struct {
	ID            string                `json:"id"`
	AccountID     string                `json:"account_id"`
	TradeID       string                `json:"trade_id"`
	Asset         string                `json:"asset"`
	Amount        decimal.Decimal       `json:"amount"`
	EntryType     types.LedgerEntryType `json:"entry_type"`
	BalanceBefore decimal.Decimal       `json:"balance_before"`
	BalanceAfter  decimal.Decimal       `json:"balance_after"`
	CreatedAt     time.Time             `json:"created_at"`
}

type Account struct {
	ID        string          `json:"id"`
	OwnerType types.OwnerType `json:"owner_type"`
	OwnerID   string          `json:"owner_id"`
	Asset     string          `json:"asset"`
	Balance   decimal.Decimal `json:"balance"`
}

// AuditEvent records every attempted and applied transition, independent of
// the trade row's mutable status.
type AuditEvent struct {
	ID        string             `json:"id"`
	TradeID   string             `json:"trade_id"`
	OldStatus types.TradeStatus  `json:"old_status"`
	NewStatus types.TradeStatus  `json:"new_status"`
	ActorRole types.ActorRole    `json:"actor_role"`
	ActorID   string             `json:"actor_id"`
	Outcome   types.AuditOutcome `json:"outcome"`
	Reason    string             `json:"reason,omitempty"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// OutboxNotification is written in the same transaction as a status change
// and drained asynchronously by the delivery worker.
type OutboxNotification struct {
	ID            string             `json:"id"`
	TradeID       string             `json:"trade_id"`
	Topic         string             `json:"topic"`
	Payload       []byte             `json:"payload"`
	Status        types.OutboxStatus `json:"status"`
	Attempts      int                `json:"attempts"`
	MaxAttempts   int                `json:"max_attempts"`
	NextAttemptAt time.Time          `json:"next_attempt_at"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// StatusPayload is the outbox payload for a trade status change. Consumers
// must discard payloads whose version is not greater than their last seen.
type StatusPayload struct {
	TradeID   string            `json:"trade_id"`
	OldStatus types.TradeStatus `json:"old_status"`
	NewStatus types.TradeStatus `json:"new_status"`
	Version   int64             `json:"version"`
	ActorRole types.ActorRole   `json:"actor_role"`
	At        time.Time         `json:"at"`
}
