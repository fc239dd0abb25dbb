// Package reconcile sweeps trades past their deadline and finalizes the
// timeout outcome through the same engine as interactive transitions.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"lv-escrow/internal/metrics"
	"lv-escrow/internal/model"
	"lv-escrow/internal/reputation"
	"lv-escrow/internal/trades"
	"lv-escrow/internal/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Worker struct {
	pool      *pgxpool.Pool
	store     *trades.Store
	finalizer *trades.Finalizer
	emitter   reputation.Emitter
	logger    *slog.Logger
	interval  time.Duration
	batch     int
}

func NewWorker(pool *pgxpool.Pool, store *trades.Store, finalizer *trades.Finalizer, emitter reputation.Emitter, logger *slog.Logger, interval time.Duration, batch int) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Worker{pool: pool, store: store, finalizer: finalizer, emitter: emitter, logger: logger, interval: interval, batch: batch}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep finalizes every due trade independently. A contended or failed
// trade is left for the next tick; one bad row never stalls the batch.
func (w *Worker) sweep(ctx context.Context) {
	ids, err := w.store.ListDueIDs(ctx, w.pool, time.Now().UTC(), w.batch)
	if err != nil {
		w.logger.Error("reconcile list failed", "error", err)
		return
	}
	for _, id := range ids {
		w.reconcileOne(ctx, id)
	}
}

func (w *Worker) reconcileOne(ctx context.Context, tradeID string) {
	t, err := w.store.Get(ctx, w.pool, tradeID)
	if err != nil {
		w.logger.Error("reconcile read failed", "trade_id", tradeID, "error", err)
		return
	}
	if t.ExpiresAt == nil || t.ExpiresAt.After(time.Now().UTC()) {
		// Deadline moved since the listing; nothing to do.
		return
	}

	outcome := TimeoutOutcome(t)
	if outcome == "" {
		return
	}
	meta := map[string]string{"reason": "deadline exceeded"}
	_, err = w.finalizer.FinalizeSkipLocked(ctx, tradeID, outcome, trades.SystemActor, meta)
	switch {
	case err == nil:
		metrics.ReconcileSweepCount.WithLabelValues(string(outcome)).Inc()
		w.logger.Info("trade reconciled", "trade_id", tradeID, "outcome", string(outcome))
		w.emitOutcome(ctx, t, outcome)
	case trades.IsRetryable(err):
		metrics.ReconcileSweepCount.WithLabelValues("contended").Inc()
	case trades.KindOf(err) == trades.KindAlreadyTerminal:
		// Raced with an interactive finalization; already settled.
	default:
		metrics.ReconcileSweepCount.WithLabelValues("error").Inc()
		w.logger.Error("reconcile finalize failed", "trade_id", tradeID, "error", err)
	}
}

func (w *Worker) emitOutcome(ctx context.Context, t model.Trade, outcome types.TradeStatus) {
	eventType := ""
	switch outcome {
	case types.TradeStatusExpired:
		eventType = reputation.EventTradeExpired
	case types.TradeStatusCancelled:
		eventType = reputation.EventTradeCancelled
	case types.TradeStatusDisputed:
		eventType = reputation.EventTradeDisputed
	}
	if eventType == "" {
		return
	}
	for _, party := range []string{t.InitiatorID, t.CounterpartyID} {
		w.emitter.Emit(ctx, reputation.Event{
			EntityID:   party,
			EntityType: "user",
			EventType:  eventType,
			Metadata:   map[string]string{"trade_id": t.ID, "reason": "deadline exceeded"},
		})
	}
}

// TimeoutOutcome decides where an overdue trade goes. The asymmetry is
// deliberate: once money is at risk the system never auto-cancels. Held
// funds in a state without a dispute edge are left untouched for operator
// resolution through the internal transition API.
func TimeoutOutcome(t model.Trade) types.TradeStatus {
	switch t.Status {
	case types.TradeStatusOpen:
		if escrowHeld(t) {
			return ""
		}
		return types.TradeStatusExpired
	case types.TradeStatusAccepted:
		if escrowHeld(t) {
			return ""
		}
		return types.TradeStatusCancelled
	case types.TradeStatusEscrowed, types.TradeStatusPaymentSent:
		return types.TradeStatusDisputed
	}
	return ""
}

// escrowHeld reports whether money is at risk: an internal debit was
// recorded or an external escrow deposit reference is attached.
func escrowHeld(t model.Trade) bool {
	return t.DebitedParty != nil || t.EscrowReference != nil
}
