package types

type TradeStatus string

type ActorRole string

type OwnerType string

type LedgerEntryType string

type OutboxStatus string

type AuditOutcome string

const (
	TradeStatusOpen        TradeStatus = "open"
	TradeStatusAccepted    TradeStatus = "accepted"
	TradeStatusEscrowed    TradeStatus = "escrowed"
	TradeStatusPaymentSent TradeStatus = "payment_sent"
	TradeStatusCompleted   TradeStatus = "completed"
	TradeStatusCancelled   TradeStatus = "cancelled"
	TradeStatusDisputed    TradeStatus = "disputed"
	TradeStatusExpired     TradeStatus = "expired"
)

const (
	ActorRoleInitiator    ActorRole = "initiator"
	ActorRoleCounterparty ActorRole = "counterparty"
	ActorRoleSystem       ActorRole = "system"
)

const (
	OwnerTypeUser     OwnerType = "user"
	OwnerTypeMerchant OwnerType = "merchant"
	OwnerTypeSystem   OwnerType = "system"
)

const (
	LedgerEntryTypeEscrowLock    LedgerEntryType = "escrow_lock"
	LedgerEntryTypeEscrowRelease LedgerEntryType = "escrow_release"
	LedgerEntryTypeEscrowRefund  LedgerEntryType = "escrow_refund"
	LedgerEntryTypeFee           LedgerEntryType = "fee"
	LedgerEntryTypeDeposit       LedgerEntryType = "deposit"
)

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusSent       OutboxStatus = "sent"
	OutboxStatusFailed     OutboxStatus = "failed"
)

const (
	AuditOutcomeApplied  AuditOutcome = "applied"
	AuditOutcomeRejected AuditOutcome = "rejected"
)

// AllStatuses lists the canonical trade lifecycle states.
var AllStatuses = []TradeStatus{
	TradeStatusOpen,
	TradeStatusAccepted,
	TradeStatusEscrowed,
	TradeStatusPaymentSent,
	TradeStatusCompleted,
	TradeStatusCancelled,
	TradeStatusDisputed,
	TradeStatusExpired,
}

// IsTerminal reports whether no further transition may leave s.
func IsTerminal(s TradeStatus) bool {
	switch s {
	case TradeStatusCompleted, TradeStatusCancelled, TradeStatusExpired:
		return true
	}
	return false
}

func IsValidStatus(s TradeStatus) bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}
