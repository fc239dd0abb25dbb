package outbox

import (
	"context"
	"log/slog"
	"time"

	"lv-escrow/internal/metrics"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const baseBackoff = 2 * time.Second

type Worker struct {
	pool     *pgxpool.Pool
	store    *Store
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewWorker(pool *pgxpool.Pool, store *Store, sink Sink, logger *slog.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{pool: pool, store: store, sink: sink, logger: logger, interval: interval, batch: 100}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain claims due notifications under SKIP LOCKED and delivers them. The
// claim transaction stays open across delivery so a crashed worker releases
// its rows automatically.
func (w *Worker) drain(ctx context.Context) {
	tx, err := w.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		w.logger.Error("outbox begin failed", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	due, err := w.store.ClaimDue(ctx, tx, time.Now().UTC(), w.batch)
	if err != nil {
		w.logger.Error("outbox claim failed", "error", err)
		return
	}
	for _, n := range due {
		if err := w.sink.Deliver(ctx, n); err != nil {
			metrics.OutboxDeliveryCount.WithLabelValues("retry").Inc()
			w.logger.Warn("notification delivery failed",
				"id", n.ID, "attempts", n.Attempts+1, "error", err)
			if err := w.store.MarkRetry(ctx, tx, n, Backoff(n.Attempts)); err != nil {
				w.logger.Error("outbox retry mark failed", "id", n.ID, "error", err)
				return
			}
			continue
		}
		metrics.OutboxDeliveryCount.WithLabelValues("sent").Inc()
		if err := w.store.MarkSent(ctx, tx, n.ID); err != nil {
			w.logger.Error("outbox sent mark failed", "id", n.ID, "error", err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		w.logger.Error("outbox commit failed", "error", err)
	}
}

// Backoff doubles per attempt from the base, capped at five minutes.
func Backoff(attempts int) time.Duration {
	d := baseBackoff
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return d
}
