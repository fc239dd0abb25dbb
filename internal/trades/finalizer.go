package trades

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lv-escrow/internal/ledger"
	"lv-escrow/internal/metrics"
	"lv-escrow/internal/model"
	"lv-escrow/internal/outbox"
	"lv-escrow/internal/transition"
	"lv-escrow/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TopicStatusChanged is the outbox topic for trade status notifications.
const TopicStatusChanged = "trade.status_changed"

// Actor identifies who requested a transition. Role is derived from the
// trade's immutable party columns, so it cannot go stale between the
// optimistic read and the locked revalidation.
type Actor struct {
	ID   string
	Role types.ActorRole
}

var SystemActor = Actor{ID: "system", Role: types.ActorRoleSystem}

type FinalizerConfig struct {
	FeeBps       int64
	FeeAccountID string
	AcceptedTTL  time.Duration
	EscrowTTL    time.Duration
}

// Finalizer applies one transition atomically: lock, revalidate, move money,
// bump version, audit, enqueue notification, commit. Either everything
// lands or nothing does.
type Finalizer struct {
	pool   *pgxpool.Pool
	store  *Store
	ledger *ledger.Service
	outbox *outbox.Store
	logger *slog.Logger
	cfg    FinalizerConfig
}

func NewFinalizer(pool *pgxpool.Pool, store *Store, ldg *ledger.Service, ob *outbox.Store, logger *slog.Logger, cfg FinalizerConfig) *Finalizer {
	return &Finalizer{pool: pool, store: store, ledger: ldg, outbox: ob, logger: logger, cfg: cfg}
}

// Finalize applies the transition for interactive callers. A trade row held
// by another transaction fails fast as CONTENDED.
func (f *Finalizer) Finalize(ctx context.Context, tradeID string, requested types.TradeStatus, actor Actor, metadata map[string]string) (model.Trade, error) {
	return f.finalize(ctx, tradeID, requested, actor, metadata, lockNoWait)
}

// FinalizeSkipLocked is the reconciliation variant: a contended row is
// skipped and retried on the next sweep instead of blocking the worker.
func (f *Finalizer) FinalizeSkipLocked(ctx context.Context, tradeID string, requested types.TradeStatus, actor Actor, metadata map[string]string) (model.Trade, error) {
	return f.finalize(ctx, tradeID, requested, actor, metadata, lockSkipLocked)
}

func (f *Finalizer) finalize(ctx context.Context, tradeID string, requested types.TradeStatus, actor Actor, metadata map[string]string, mode lockMode) (model.Trade, error) {
	start := time.Now()
	t, err := f.finalizeTx(ctx, tradeID, requested, actor, metadata, mode)
	outcome := "applied"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.FinalizationCount.WithLabelValues(string(requested), outcome).Inc()
	metrics.FinalizationDuration.WithLabelValues(string(requested)).Observe(time.Since(start).Seconds())
	return t, err
}

func (f *Finalizer) finalizeTx(ctx context.Context, tradeID string, requested types.TradeStatus, actor Actor, metadata map[string]string, mode lockMode) (model.Trade, error) {
	tx, err := f.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Trade{}, wrapError(KindFinalizationFailed, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	t, err := f.store.GetForUpdate(ctx, tx, tradeID, mode)
	if err != nil {
		if errors.Is(err, ErrLockNotAvailable) {
			return model.Trade{}, newError(KindContended, "trade is being finalized by another request")
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Trade{}, newError(KindNotFound, "trade not found")
		}
		return model.Trade{}, wrapError(KindFinalizationFailed, "lock trade", err)
	}

	if t.Status == requested {
		// Retry of an already applied transition; report success without
		// moving anything again.
		return t, nil
	}
	if types.IsTerminal(t.Status) {
		f.recordRejection(ctx, t, requested, actor, string(t.Status)+" is terminal")
		return model.Trade{}, newError(KindAlreadyTerminal, "trade is already "+string(t.Status))
	}

	d := transition.Validate(t.Status, requested, actor.Role)
	if !d.Allowed {
		f.recordRejection(ctx, t, requested, actor, d.Reason)
		if d.RoleMismatch {
			return model.Trade{}, newError(KindRoleNotPermitted, d.Reason)
		}
		return model.Trade{}, &Error{Kind: KindInvalidTransition, Reason: d.Reason, LegalTargets: d.LegalTargets}
	}

	if requested == types.TradeStatusCompleted && t.EscrowReference != nil && t.ReleaseReference == nil {
		f.recordRejection(ctx, t, requested, actor, "release proof required before completion")
		return model.Trade{}, newError(KindMissingReleaseProof, "release proof required before completion")
	}

	upd := TransitionUpdate{NewStatus: requested, ExpiresAt: f.deadlineFor(requested)}
	if mv := planMovement(t, requested, f.cfg.FeeBps); mv != nil {
		if err := f.executeMovement(ctx, tx, t, mv, &upd); err != nil {
			if errors.Is(err, ledger.ErrInsufficientBalance) {
				f.recordRejection(ctx, t, requested, actor, "insufficient balance for escrow")
				return model.Trade{}, newError(KindInsufficientBalance, "insufficient balance for escrow")
			}
			return model.Trade{}, wrapError(KindFinalizationFailed, "ledger movement", err)
		}
	}

	version, err := f.store.ApplyTransition(ctx, tx, t.ID, upd)
	if err != nil {
		return model.Trade{}, wrapError(KindFinalizationFailed, "apply transition", err)
	}

	now := time.Now().UTC()
	audit := model.AuditEvent{
		ID:        uuid.NewString(),
		TradeID:   t.ID,
		OldStatus: t.Status,
		NewStatus: requested,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Outcome:   types.AuditOutcomeApplied,
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err := f.store.InsertAudit(ctx, tx, audit); err != nil {
		return model.Trade{}, wrapError(KindFinalizationFailed, "write audit event", err)
	}

	payload := model.StatusPayload{
		TradeID:   t.ID,
		OldStatus: t.Status,
		NewStatus: requested,
		Version:   version,
		ActorRole: actor.Role,
		At:        now,
	}
	if err := f.outbox.Insert(ctx, tx, t.ID, TopicStatusChanged, payload); err != nil {
		return model.Trade{}, wrapError(KindFinalizationFailed, "enqueue notification", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Trade{}, wrapError(KindFinalizationFailed, "commit", err)
	}

	f.logger.Info("trade transition applied",
		"trade_id", t.ID,
		"old_status", string(t.Status),
		"new_status", string(requested),
		"version", version,
		"actor_role", string(actor.Role),
	)

	updated, err := f.store.Get(ctx, f.pool, t.ID)
	if err != nil {
		// The transition committed; reconstruct from known state rather
		// than failing the caller.
		updated = t
		updated.Status = requested
		updated.Version = version
	}
	return updated, nil
}

// executeMovement performs the planned ledger work and folds its results
// into the pending trade update.
func (f *Finalizer) executeMovement(ctx context.Context, tx pgx.Tx, t model.Trade, mv *movement, upd *TransitionUpdate) error {
	if mv.LegacyInferred {
		f.logger.Warn("refund payer inferred from trade roles; row predates debit recording",
			"trade_id", t.ID, "payer", mv.CreditOwner)
	}
	if mv.DebitOwner != "" {
		acct, err := f.ledger.EnsureAccount(ctx, tx, types.OwnerTypeUser, mv.DebitOwner, t.Asset)
		if err != nil {
			return err
		}
		if _, err := f.ledger.Debit(ctx, tx, acct, t.ID, t.Asset, mv.Amount, mv.EntryType); err != nil {
			return err
		}
	}
	if mv.CreditOwner != "" {
		acct, err := f.ledger.EnsureAccount(ctx, tx, types.OwnerTypeUser, mv.CreditOwner, t.Asset)
		if err != nil {
			return err
		}
		if _, err := f.ledger.Credit(ctx, tx, acct, t.ID, t.Asset, mv.Amount.Sub(mv.Fee), mv.EntryType); err != nil {
			return err
		}
		if mv.Fee.IsPositive() && f.cfg.FeeAccountID != "" {
			feeAcct, err := f.ledger.EnsureAccount(ctx, tx, types.OwnerTypeSystem, f.cfg.FeeAccountID, t.Asset)
			if err != nil {
				return err
			}
			if _, err := f.ledger.Credit(ctx, tx, feeAcct, t.ID, t.Asset, mv.Fee, types.LedgerEntryTypeFee); err != nil {
				return err
			}
		}
		if mv.EntryType == types.LedgerEntryTypeEscrowRefund {
			ref := "internal:" + uuid.NewString()
			upd.RefundReference = &ref
		}
	}
	if mv.RecordDebit {
		owner := mv.DebitOwner
		amount := mv.Amount
		upd.DebitedParty = &owner
		upd.DebitedAmount = &amount
	}
	return nil
}

// deadlineFor assigns the next timeout. Disputed trades never time out;
// terminal trades clear the deadline.
func (f *Finalizer) deadlineFor(status types.TradeStatus) *time.Time {
	var ttl time.Duration
	switch status {
	case types.TradeStatusAccepted:
		ttl = f.cfg.AcceptedTTL
	case types.TradeStatusEscrowed, types.TradeStatusPaymentSent:
		ttl = f.cfg.EscrowTTL
	default:
		return nil
	}
	at := time.Now().UTC().Add(ttl)
	return &at
}

// recordRejection audits a denied attempt. Runs on the pool so the record
// survives the rolled-back finalization transaction. Best effort.
func (f *Finalizer) recordRejection(ctx context.Context, t model.Trade, requested types.TradeStatus, actor Actor, reason string) {
	e := model.AuditEvent{
		ID:        uuid.NewString(),
		TradeID:   t.ID,
		OldStatus: t.Status,
		NewStatus: requested,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Outcome:   types.AuditOutcomeRejected,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.store.InsertAudit(ctx, f.pool, e); err != nil {
		f.logger.Error("audit write failed", "trade_id", t.ID, "error", err)
	}
}
