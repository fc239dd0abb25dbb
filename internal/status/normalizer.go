// Package status maps the wide historical status vocabulary onto the
// canonical state set. Reads are normalized; writes of deprecated transient
// values are rejected so the state space cannot re-fragment.
package status

import (
	"fmt"

	"lv-escrow/internal/types"
)

// wideToCanonical covers legacy sub-statuses still present in historical
// rows. Each transient value names the canonical state it collapses onto.
var wideToCanonical = map[string]types.TradeStatus{
	"awaiting_acceptance": types.TradeStatusOpen,
	"escrow_pending":      types.TradeStatusEscrowed,
	"escrow_confirmed":    types.TradeStatusEscrowed,
	"payment_pending":     types.TradeStatusPaymentSent,
	"payment_confirmed":   types.TradeStatusPaymentSent,
	"releasing":           types.TradeStatusCompleted,
	"released":            types.TradeStatusCompleted,
	"refunding":           types.TradeStatusCancelled,
	"refunded":            types.TradeStatusCancelled,
	"timed_out":           types.TradeStatusExpired,
	"under_review":        types.TradeStatusDisputed,
}

// Normalize maps a stored status value, canonical or legacy, onto the
// canonical set. Unknown values error.
func Normalize(wide string) (types.TradeStatus, error) {
	if types.IsValidStatus(types.TradeStatus(wide)) {
		return types.TradeStatus(wide), nil
	}
	if canonical, ok := wideToCanonical[wide]; ok {
		return canonical, nil
	}
	return "", fmt.Errorf("unknown trade status %q", wide)
}

// IsTransient reports whether wide is a deprecated intermediate status.
func IsTransient(wide string) bool {
	_, ok := wideToCanonical[wide]
	return ok
}

// CheckWritable rejects writes of deprecated vocabulary, naming the canonical
// replacement the caller should use instead.
func CheckWritable(wide string) error {
	if types.IsValidStatus(types.TradeStatus(wide)) {
		return nil
	}
	if canonical, ok := wideToCanonical[wide]; ok {
		return fmt.Errorf("status %q is deprecated; write %q instead", wide, canonical)
	}
	return fmt.Errorf("unknown trade status %q", wide)
}
