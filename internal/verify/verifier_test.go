package verify

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cleanRelease() snapshot {
	return snapshot{
		Status:        "completed",
		Version:       4,
		MinVersion:    4,
		EscrowHeld:    true,
		PhaseStamped:  true,
		AuditApplied:  true,
		OutboxQueued:  true,
		LockCount:     1,
		ReleaseCount:  1,
		LockedTotal:   d("100"),
		ReleasedTotal: d("99.75"),
		FeeTotal:      d("0.25"),
	}
}

func cleanRefund() snapshot {
	return snapshot{
		Status:        "cancelled",
		Version:       3,
		MinVersion:    3,
		EscrowHeld:    true,
		HasRefundRef:  true,
		PhaseStamped:  true,
		AuditApplied:  true,
		OutboxQueued:  true,
		RefundCount:   1,
		LockedTotal:   d("100"),
		RefundedTotal: d("100"),
	}
}

func hasCheck(failed []string, prefix string) bool {
	for _, c := range failed {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func TestReleaseChecksCleanTrade(t *testing.T) {
	assert.Empty(t, releaseChecks(cleanRelease()))
}

func TestReleaseChecksNoEscrow(t *testing.T) {
	// Completion without escrow is legal when no money was ever held.
	s := cleanRelease()
	s.EscrowHeld = false
	s.ReleaseCount = 0
	s.LockedTotal = decimal.Zero
	s.ReleasedTotal = decimal.Zero
	s.FeeTotal = decimal.Zero
	assert.Empty(t, releaseChecks(s))
}

func TestReleaseChecksDetectDoubleRelease(t *testing.T) {
	s := cleanRelease()
	s.ReleaseCount = 2
	s.ReleasedTotal = d("199.50")
	failed := releaseChecks(s)
	assert.True(t, hasCheck(failed, "release_single"))
}

func TestReleaseChecksDetectConservationBreak(t *testing.T) {
	s := cleanRelease()
	s.ReleasedTotal = d("99")
	failed := releaseChecks(s)
	assert.Len(t, failed, 1)
	assert.True(t, hasCheck(failed, "conservation"))
}

func TestReleaseChecksDetectRefundOnRelease(t *testing.T) {
	s := cleanRelease()
	s.RefundCount = 1
	assert.True(t, hasCheck(releaseChecks(s), "refund_absent"))
}

func TestReleaseChecksDetectWrongStatus(t *testing.T) {
	s := cleanRelease()
	s.Status = "escrowed"
	assert.True(t, hasCheck(releaseChecks(s), "status"))
}

func TestReleaseChecksDetectStaleVersion(t *testing.T) {
	s := cleanRelease()
	s.Version = 3
	s.MinVersion = 4
	assert.True(t, hasCheck(releaseChecks(s), "version"))
}

func TestReleaseChecksDetectMissingReleaseRef(t *testing.T) {
	s := cleanRelease()
	s.HasEscrowRef = true
	s.HasReleaseRef = false
	assert.True(t, hasCheck(releaseChecks(s), "release_ref"))
}

func TestReleaseChecksDetectMissingAuditAndOutbox(t *testing.T) {
	s := cleanRelease()
	s.AuditApplied = false
	s.OutboxQueued = false
	failed := releaseChecks(s)
	assert.True(t, hasCheck(failed, "audit"))
	assert.True(t, hasCheck(failed, "outbox"))
}

func TestRefundChecksCleanTrade(t *testing.T) {
	assert.Empty(t, refundChecks(cleanRefund()))

	s := cleanRefund()
	s.Status = "expired"
	assert.Empty(t, refundChecks(s))
}

func TestRefundChecksDetectMissingRefund(t *testing.T) {
	s := cleanRefund()
	s.RefundCount = 0
	s.RefundedTotal = decimal.Zero
	assert.True(t, hasCheck(refundChecks(s), "refund_present"))
}

func TestRefundChecksDetectShortRefund(t *testing.T) {
	s := cleanRefund()
	s.RefundedTotal = d("50")
	failed := refundChecks(s)
	assert.Len(t, failed, 1)
	assert.True(t, hasCheck(failed, "conservation"))
}

func TestRefundChecksDetectReleaseOnRefund(t *testing.T) {
	s := cleanRefund()
	s.ReleaseCount = 1
	assert.True(t, hasCheck(refundChecks(s), "release_absent"))
}

func TestRefundChecksDetectMissingRefundRef(t *testing.T) {
	s := cleanRefund()
	s.HasRefundRef = false
	assert.True(t, hasCheck(refundChecks(s), "refund_ref"))
}

func TestRefundChecksDetectMissingTimestamp(t *testing.T) {
	s := cleanRefund()
	s.PhaseStamped = false
	assert.True(t, hasCheck(refundChecks(s), "timestamp"))
}

func TestCheckLabel(t *testing.T) {
	assert.Equal(t, "conservation", checkLabel("conservation: released 99 + fee 0 != locked 100"))
	assert.Equal(t, "bare", checkLabel("bare"))
}
