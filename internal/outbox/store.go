// Package outbox persists notifications in the same transaction as the state
// change that produced them and delivers them asynchronously. Delivery is
// at-least-once; consumers deduplicate on trade version.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"lv-escrow/internal/model"
	"lv-escrow/internal/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	maxAttempts int
}

func NewStore(maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Store{maxAttempts: maxAttempts}
}

// Insert enqueues one notification. Must be called inside the transaction
// that commits the corresponding trade mutation.
func (s *Store) Insert(ctx context.Context, db dbtx, tradeID, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = db.Exec(ctx, `insert into outbox_notifications
		(id, trade_id, topic, payload, status, attempts, max_attempts, next_attempt_at, created_at, updated_at)
		values ($1,$2,$3,$4,$5,0,$6,$7,$7,$7)`,
		uuid.NewString(), tradeID, topic, body, string(types.OutboxStatusPending), s.maxAttempts, now)
	return err
}

// ClaimDue locks up to limit deliverable notifications. SKIP LOCKED lets
// concurrent workers drain disjoint sets.
func (s *Store) ClaimDue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]model.OutboxNotification, error) {
	rows, err := tx.Query(ctx, `select id, trade_id, topic, payload, status, attempts, max_attempts, next_attempt_at, created_at, updated_at
		from outbox_notifications
		where status = $1 and next_attempt_at <= $2
		order by next_attempt_at asc limit $3
		for update skip locked`, string(types.OutboxStatusPending), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OutboxNotification
	for rows.Next() {
		var n model.OutboxNotification
		var st string
		if err := rows.Scan(&n.ID, &n.TradeID, &n.Topic, &n.Payload, &st, &n.Attempts, &n.MaxAttempts, &n.NextAttemptAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		n.Status = types.OutboxStatus(st)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkSent(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `update outbox_notifications set status = $2, updated_at = $3 where id = $1`,
		id, string(types.OutboxStatusSent), time.Now().UTC())
	return err
}

// MarkRetry bumps attempts and schedules the next try, or marks the row
// failed once the attempt budget is spent.
func (s *Store) MarkRetry(ctx context.Context, tx pgx.Tx, n model.OutboxNotification, backoff time.Duration) error {
	now := time.Now().UTC()
	attempts := n.Attempts + 1
	if attempts >= n.MaxAttempts {
		_, err := tx.Exec(ctx, `update outbox_notifications set status = $2, attempts = $3, updated_at = $4 where id = $1`,
			n.ID, string(types.OutboxStatusFailed), attempts, now)
		return err
	}
	_, err := tx.Exec(ctx, `update outbox_notifications set attempts = $2, next_attempt_at = $3, updated_at = $4 where id = $1`,
		n.ID, attempts, now.Add(backoff), now)
	return err
}

func (s *Store) CountByStatus(ctx context.Context, db dbtx, st types.OutboxStatus) (int, error) {
	var n int
	err := db.QueryRow(ctx, `select count(*) from outbox_notifications where status = $1`, string(st)).Scan(&n)
	return n, err
}
