package trades

import (
	"errors"

	"lv-escrow/internal/types"
)

// Kind classifies finalization failures so callers can branch without
// parsing messages.
type Kind string

const (
	KindNotFound            Kind = "NOT_FOUND"
	KindAlreadyTerminal     Kind = "ALREADY_TERMINAL"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindRoleNotPermitted    Kind = "ROLE_NOT_PERMITTED"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindMissingReleaseProof Kind = "MISSING_RELEASE_PROOF"
	KindContended           Kind = "CONTENDED"
	KindFinalizationFailed  Kind = "FINALIZATION_FAILED"
)

type Error struct {
	Kind   Kind
	Reason string
	// LegalTargets accompanies INVALID_TRANSITION denials.
	LegalTargets []types.TradeStatus
	cause        error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return string(e.Kind) + ": " + e.Reason
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func wrapError(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, cause: cause}
}

// KindOf extracts the failure kind, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the caller may safely retry the same request.
func IsRetryable(err error) bool {
	return KindOf(err) == KindContended
}
