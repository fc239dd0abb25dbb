package trades

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"lv-escrow/internal/model"
	"lv-escrow/internal/status"
	"lv-escrow/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrLockNotAvailable is returned when the trade row is held by another
// transaction and the lock mode does not wait.
var ErrLockNotAvailable = errors.New("trade row is locked")

type lockMode int

const (
	lockNoWait lockMode = iota
	lockSkipLocked
)

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

const tradeColumns = `id, initiator_id, counterparty_id, buyer_id, version, status, asset, amount, fiat_amount, fiat_currency,
	escrow_reference, release_reference, refund_reference, debited_party, debited_amount,
	expires_at, accepted_at, escrowed_at, payment_sent_at, completed_at, cancelled_at, disputed_at, expired_at,
	created_at, updated_at`

func scanTrade(row pgx.Row) (model.Trade, error) {
	var t model.Trade
	var rawStatus string
	err := row.Scan(
		&t.ID, &t.InitiatorID, &t.CounterpartyID, &t.BuyerID, &t.Version, &rawStatus, &t.Asset, &t.Amount, &t.FiatAmount, &t.FiatCurrency,
		&t.EscrowReference, &t.ReleaseReference, &t.RefundReference, &t.DebitedParty, &t.DebitedAmount,
		&t.ExpiresAt, &t.AcceptedAt, &t.EscrowedAt, &t.PaymentSentAt, &t.CompletedAt, &t.CancelledAt, &t.DisputedAt, &t.ExpiredAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}
	// Legacy rows may still carry the wide vocabulary; reads always collapse
	// onto the canonical set.
	canonical, err := status.Normalize(rawStatus)
	if err != nil {
		return t, err
	}
	t.Status = canonical
	return t, nil
}

func (s *Store) Create(ctx context.Context, db dbtx, t model.Trade) (string, error) {
	var id string
	err := db.QueryRow(ctx, `insert into trades
		(initiator_id, counterparty_id, buyer_id, version, status, asset, amount, fiat_amount, fiat_currency, expires_at, created_at, updated_at)
		values ($1,$2,$3,1,$4,$5,$6,$7,$8,$9,$10,$10) returning id`,
		t.InitiatorID, t.CounterpartyID, t.BuyerID, string(t.Status), t.Asset, t.Amount, t.FiatAmount, t.FiatCurrency, t.ExpiresAt, time.Now().UTC()).Scan(&id)
	return id, err
}

func (s *Store) Get(ctx context.Context, db dbtx, id string) (model.Trade, error) {
	return scanTrade(db.QueryRow(ctx, "select "+tradeColumns+" from trades where id = $1", id))
}

// GetForUpdate locks the trade row. lockNoWait surfaces ErrLockNotAvailable
// immediately when the row is held elsewhere; lockSkipLocked reports the same
// when the row is skipped.
func (s *Store) GetForUpdate(ctx context.Context, tx pgx.Tx, id string, mode lockMode) (model.Trade, error) {
	suffix := " for update nowait"
	if mode == lockSkipLocked {
		suffix = " for update skip locked"
	}
	t, err := scanTrade(tx.QueryRow(ctx, "select "+tradeColumns+" from trades where id = $1"+suffix, id))
	if err == nil {
		return t, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "55P03" {
		return t, ErrLockNotAvailable
	}
	if mode == lockSkipLocked && errors.Is(err, pgx.ErrNoRows) {
		// Row either does not exist or is locked; distinguish with a plain read.
		if _, getErr := s.Get(ctx, tx, id); getErr == nil {
			return t, ErrLockNotAvailable
		}
	}
	return t, err
}

type TransitionUpdate struct {
	NewStatus       types.TradeStatus
	ExpiresAt       *time.Time
	DebitedParty    *string
	DebitedAmount   *decimal.Decimal
	RefundReference *string
}

var phaseColumn = map[types.TradeStatus]string{
	types.TradeStatusAccepted:    "accepted_at",
	types.TradeStatusEscrowed:    "escrowed_at",
	types.TradeStatusPaymentSent: "payment_sent_at",
	types.TradeStatusCompleted:   "completed_at",
	types.TradeStatusCancelled:   "cancelled_at",
	types.TradeStatusDisputed:    "disputed_at",
	types.TradeStatusExpired:     "expired_at",
}

// ApplyTransition writes the new status, bumps version by exactly 1, stamps
// the phase timestamp and returns the new version.
func (s *Store) ApplyTransition(ctx context.Context, tx pgx.Tx, id string, upd TransitionUpdate) (int64, error) {
	column, ok := phaseColumn[upd.NewStatus]
	if !ok {
		return 0, errors.New("no phase timestamp for status " + string(upd.NewStatus))
	}
	now := time.Now().UTC()
	var version int64
	err := tx.QueryRow(ctx, `update trades set
			status = $2,
			version = version + 1,
			updated_at = $3,
			`+column+` = $3,
			expires_at = $4,
			debited_party = coalesce($5, debited_party),
			debited_amount = coalesce($6, debited_amount),
			refund_reference = coalesce($7, refund_reference)
		where id = $1
		returning version`,
		id, string(upd.NewStatus), now, upd.ExpiresAt, upd.DebitedParty, upd.DebitedAmount, upd.RefundReference).Scan(&version)
	return version, err
}

func (s *Store) SetEscrowReference(ctx context.Context, db dbtx, id, ref string) error {
	tag, err := db.Exec(ctx, `update trades set escrow_reference = $2, updated_at = $3
		where id = $1 and (escrow_reference is null or escrow_reference = $2)
		and status not in ('completed','cancelled','expired')`, id, ref, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("escrow reference cannot be attached")
	}
	return nil
}

func (s *Store) SetReleaseReference(ctx context.Context, db dbtx, id, ref string) error {
	tag, err := db.Exec(ctx, `update trades set release_reference = $2, updated_at = $3
		where id = $1 and (release_reference is null or release_reference = $2)
		and status not in ('cancelled','expired')`, id, ref, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("release reference cannot be attached")
	}
	return nil
}

// ListDueIDs returns trades past their deadline in a non-terminal status.
// Plain read: the reconciliation worker acquires its locks per trade.
func (s *Store) ListDueIDs(ctx context.Context, db dbtx, now time.Time, limit int) ([]string, error) {
	rows, err := db.Query(ctx, `select id from trades
		where expires_at is not null and expires_at < $1
		and status not in ('completed','cancelled','expired')
		order by expires_at asc limit $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListByParticipant(ctx context.Context, db dbtx, userID string, limit int) ([]model.Trade, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.Query(ctx, "select "+tradeColumns+` from trades
		where initiator_id = $1 or counterparty_id = $1 or buyer_id = $1
		order by created_at desc limit $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertAudit appends one audit event. Called for applied transitions inside
// the finalization transaction and for rejected attempts outside it.
func (s *Store) InsertAudit(ctx context.Context, db dbtx, e model.AuditEvent) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
	}
	_, err := db.Exec(ctx, `insert into audit_events
		(id, trade_id, old_status, new_status, actor_role, actor_id, outcome, reason, metadata, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.TradeID, string(e.OldStatus), string(e.NewStatus), string(e.ActorRole), e.ActorID, string(e.Outcome), e.Reason, meta, e.CreatedAt)
	return err
}
