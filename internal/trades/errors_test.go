package trades

import (
	"errors"
	"fmt"
	"testing"

	"lv-escrow/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(newError(KindNotFound, "missing")))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))

	wrapped := fmt.Errorf("outer: %w", newError(KindContended, "busy"))
	assert.Equal(t, KindContended, KindOf(wrapped))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := wrapError(KindFinalizationFailed, "commit", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "FINALIZATION_FAILED")
	assert.Contains(t, err.Error(), "commit")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(newError(KindContended, "locked")))
	assert.False(t, IsRetryable(newError(KindInvalidTransition, "bad edge")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestErrorCarriesLegalTargets(t *testing.T) {
	err := &Error{
		Kind:         KindInvalidTransition,
		Reason:       "cannot move open to completed",
		LegalTargets: []types.TradeStatus{types.TradeStatusAccepted, types.TradeStatusCancelled},
	}
	var e *Error
	assert.True(t, errors.As(error(err), &e))
	assert.Len(t, e.LegalTargets, 2)
}
