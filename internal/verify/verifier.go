// Package verify runs post-commit invariant checks over finalized trades.
// It reads through its own queries rather than trusting in-memory state, and
// it only detects: a violation is logged and counted, never auto-repaired.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lv-escrow/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// InvariantError reports which checks failed for one trade.
type InvariantError struct {
	TradeID string
	Checks  []string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation on trade %s: %s", e.TradeID, strings.Join(e.Checks, "; "))
}

type Verifier struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewVerifier(pool *pgxpool.Pool, logger *slog.Logger) *Verifier {
	return &Verifier{pool: pool, logger: logger}
}

// snapshot is everything the checks need, gathered fresh from the database.
type snapshot struct {
	TradeID       string
	Status        string
	Version       int64
	MinVersion    int64
	EscrowHeld    bool
	HasEscrowRef  bool
	HasReleaseRef bool
	HasRefundRef  bool
	PhaseStamped  bool
	AuditApplied  bool
	OutboxQueued  bool
	LockCount     int
	ReleaseCount  int
	RefundCount   int
	LockedTotal   decimal.Decimal
	ReleasedTotal decimal.Decimal
	RefundedTotal decimal.Decimal
	FeeTotal      decimal.Decimal
}

// VerifyRelease checks a completed trade: single release, no refund,
// released principal plus fee equal to the locked amount, version advanced
// to at least minVersion, and the audit and outbox rows in place.
func (v *Verifier) VerifyRelease(ctx context.Context, tradeID string, minVersion int64) error {
	return v.run(ctx, tradeID, minVersion, releaseChecks)
}

// VerifyRefund checks a cancelled or expired trade: single refund, no
// release, refunded amount equal to the locked amount, plus the same
// version, audit and outbox assertions.
func (v *Verifier) VerifyRefund(ctx context.Context, tradeID string, minVersion int64) error {
	return v.run(ctx, tradeID, minVersion, refundChecks)
}

func (v *Verifier) run(ctx context.Context, tradeID string, minVersion int64, checks func(snapshot) []string) error {
	s, err := v.gather(ctx, tradeID)
	if err != nil {
		return err
	}
	s.MinVersion = minVersion
	failed := checks(s)
	if len(failed) == 0 {
		return nil
	}
	for _, c := range failed {
		metrics.InvariantViolationCount.WithLabelValues(checkLabel(c)).Inc()
	}
	v.logger.Error("invariant violation detected", "trade_id", tradeID, "checks", failed)
	return &InvariantError{TradeID: tradeID, Checks: failed}
}

func (v *Verifier) gather(ctx context.Context, tradeID string) (snapshot, error) {
	s := snapshot{TradeID: tradeID}
	var debitedParty, escrowRef, releaseRef, refundRef *string
	err := v.pool.QueryRow(ctx, `select status, version, debited_party,
			escrow_reference, release_reference, refund_reference,
			coalesce(completed_at, cancelled_at, expired_at) is not null
		from trades where id = $1`, tradeID).
		Scan(&s.Status, &s.Version, &debitedParty, &escrowRef, &releaseRef, &refundRef, &s.PhaseStamped)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s, fmt.Errorf("trade %s not found", tradeID)
		}
		return s, err
	}
	s.EscrowHeld = debitedParty != nil
	s.HasEscrowRef = escrowRef != nil
	s.HasReleaseRef = releaseRef != nil
	s.HasRefundRef = refundRef != nil

	err = v.pool.QueryRow(ctx, `select
			exists(select 1 from audit_events where trade_id = $1 and new_status = $2 and outcome = 'applied'),
			exists(select 1 from outbox_notifications where trade_id = $1
				and payload->>'new_status' = $2 and (payload->>'version')::bigint >= $3)`,
		tradeID, s.Status, s.Version).Scan(&s.AuditApplied, &s.OutboxQueued)
	if err != nil {
		return s, err
	}

	rows, err := v.pool.Query(ctx,
		`select entry_type, count(*), coalesce(sum(abs(amount)), 0)
		from ledger_entries where trade_id = $1 group by entry_type`, tradeID)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var entryType string
		var count int
		var total decimal.Decimal
		if err := rows.Scan(&entryType, &count, &total); err != nil {
			return s, err
		}
		switch entryType {
		case "escrow_lock":
			s.LockCount, s.LockedTotal = count, total
		case "escrow_release":
			s.ReleaseCount, s.ReleasedTotal = count, total
		case "escrow_refund":
			s.RefundCount, s.RefundedTotal = count, total
		case "fee":
			s.FeeTotal = total
		}
	}
	return s, rows.Err()
}

// commonChecks covers the assertions shared by both terminal outcomes.
func commonChecks(s snapshot) []string {
	var failed []string
	if s.Version < s.MinVersion {
		failed = append(failed, fmt.Sprintf("version: found %d, expected at least %d", s.Version, s.MinVersion))
	}
	if !s.PhaseStamped {
		failed = append(failed, "timestamp: terminal phase timestamp not set")
	}
	if !s.AuditApplied {
		failed = append(failed, "audit: no applied audit event for the terminal status")
	}
	if !s.OutboxQueued {
		failed = append(failed, "outbox: no notification row carrying the terminal status")
	}
	return failed
}

func releaseChecks(s snapshot) []string {
	var failed []string
	if s.Status != "completed" {
		failed = append(failed, "status: expected completed, found "+s.Status)
	}
	failed = append(failed, commonChecks(s)...)
	if s.HasEscrowRef && !s.HasReleaseRef {
		failed = append(failed, "release_ref: externally escrowed trade completed without a release reference")
	}
	if s.RefundCount != 0 {
		failed = append(failed, fmt.Sprintf("refund_absent: found %d refund entries on a release", s.RefundCount))
	}
	if s.ReleaseCount > 1 {
		failed = append(failed, fmt.Sprintf("release_single: found %d release entries", s.ReleaseCount))
	}
	if s.EscrowHeld {
		if s.ReleaseCount == 0 {
			failed = append(failed, "release_present: escrow held but no release entry")
		} else if !s.ReleasedTotal.Add(s.FeeTotal).Equal(s.LockedTotal) {
			failed = append(failed, fmt.Sprintf("conservation: released %s + fee %s != locked %s",
				s.ReleasedTotal, s.FeeTotal, s.LockedTotal))
		}
	}
	return failed
}

func refundChecks(s snapshot) []string {
	var failed []string
	if s.Status != "cancelled" && s.Status != "expired" {
		failed = append(failed, "status: expected cancelled or expired, found "+s.Status)
	}
	failed = append(failed, commonChecks(s)...)
	if s.ReleaseCount != 0 {
		failed = append(failed, fmt.Sprintf("release_absent: found %d release entries on a refund", s.ReleaseCount))
	}
	if s.RefundCount > 1 {
		failed = append(failed, fmt.Sprintf("refund_single: found %d refund entries", s.RefundCount))
	}
	if s.EscrowHeld {
		if s.RefundCount == 0 {
			failed = append(failed, "refund_present: escrow held but no refund entry")
		} else {
			if !s.RefundedTotal.Equal(s.LockedTotal) {
				failed = append(failed, fmt.Sprintf("conservation: refunded %s != locked %s",
					s.RefundedTotal, s.LockedTotal))
			}
			if !s.HasRefundRef {
				failed = append(failed, "refund_ref: refund entry written without a refund reference")
			}
		}
	}
	return failed
}

// checkLabel keeps metric cardinality bounded by the check name alone.
func checkLabel(check string) string {
	if i := strings.IndexByte(check, ':'); i > 0 {
		return check[:i]
	}
	return check
}
