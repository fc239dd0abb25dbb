// Package ledger owns account balances and the append-only entry log.
// Every balance mutation happens under a FOR UPDATE lock on the account row
// and writes exactly one entry whose balance_before/balance_after come from
// that locked row.
package ledger

import (
	"context"
	"errors"
	"time"

	"lv-escrow/internal/model"
	"lv-escrow/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) EnsureAccount(ctx context.Context, tx pgx.Tx, ownerType types.OwnerType, ownerID, asset string) (string, error) {
	var id string
	err := tx.QueryRow(ctx, "select id from accounts where owner_type = $1 and owner_id = $2 and asset = $3", string(ownerType), ownerID, asset).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}
	err = tx.QueryRow(ctx, "insert into accounts (owner_type, owner_id, asset, balance) values ($1, $2, $3, 0) returning id", string(ownerType), ownerID, asset).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetBalanceForUpdate locks the account row and returns its balance. Callers
// must already hold the corresponding trade lock.
func (s *Service) GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, "select balance from accounts where id = $1 for update", accountID).Scan(&balance)
	return balance, err
}

// Debit removes amount from the account and appends the paired entry.
// Returns ErrInsufficientBalance without mutating anything when the locked
// balance is too low.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, accountID, tradeID, asset string, amount decimal.Decimal, entryType types.LedgerEntryType) (model.LedgerEntry, error) {
	return s.apply(ctx, tx, accountID, tradeID, asset, amount.Neg(), entryType)
}

// Credit adds amount to the account and appends the paired entry.
func (s *Service) Credit(ctx context.Context, tx pgx.Tx, accountID, tradeID, asset string, amount decimal.Decimal, entryType types.LedgerEntryType) (model.LedgerEntry, error) {
	return s.apply(ctx, tx, accountID, tradeID, asset, amount, entryType)
}

func (s *Service) apply(ctx context.Context, tx pgx.Tx, accountID, tradeID, asset string, signed decimal.Decimal, entryType types.LedgerEntryType) (model.LedgerEntry, error) {
	if signed.IsZero() {
		return model.LedgerEntry{}, errors.New("amount must be non-zero")
	}
	before, err := s.GetBalanceForUpdate(ctx, tx, accountID)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	after := before.Add(signed)
	if after.IsNegative() {
		return model.LedgerEntry{}, ErrInsufficientBalance
	}
	if _, err := tx.Exec(ctx, "update accounts set balance = $1 where id = $2", after, accountID); err != nil {
		return model.LedgerEntry{}, err
	}
	entry := model.LedgerEntry{
		AccountID:     accountID,
		TradeID:       tradeID,
		Asset:         asset,
		Amount:        signed,
		EntryType:     entryType,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     time.Now().UTC(),
	}
	err = tx.QueryRow(ctx, "insert into ledger_entries (account_id, trade_id, asset, amount, entry_type, balance_before, balance_after, created_at) values ($1,$2,$3,$4,$5,$6,$7,$8) returning id",
		entry.AccountID, entry.TradeID, entry.Asset, entry.Amount, string(entry.EntryType), entry.BalanceBefore, entry.BalanceAfter, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	return entry, nil
}

// Deposit credits an external top-up. No trade is involved, so the entry
// carries a null trade reference.
func (s *Service) Deposit(ctx context.Context, ownerType types.OwnerType, ownerID, asset string, amount decimal.Decimal) (model.LedgerEntry, error) {
	if !amount.IsPositive() {
		return model.LedgerEntry{}, errors.New("amount must be positive")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.LedgerEntry{}, err
	}
	defer tx.Rollback(ctx)

	accountID, err := s.EnsureAccount(ctx, tx, ownerType, ownerID, asset)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	before, err := s.GetBalanceForUpdate(ctx, tx, accountID)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	after := before.Add(amount)
	if _, err := tx.Exec(ctx, "update accounts set balance = $1 where id = $2", after, accountID); err != nil {
		return model.LedgerEntry{}, err
	}
	entry := model.LedgerEntry{
		AccountID:     accountID,
		Asset:         asset,
		Amount:        amount,
		EntryType:     types.LedgerEntryTypeDeposit,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     time.Now().UTC(),
	}
	err = tx.QueryRow(ctx, "insert into ledger_entries (account_id, trade_id, asset, amount, entry_type, balance_before, balance_after, created_at) values ($1,null,$2,$3,$4,$5,$6,$7) returning id",
		entry.AccountID, entry.Asset, entry.Amount, string(entry.EntryType), entry.BalanceBefore, entry.BalanceAfter, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.LedgerEntry{}, err
	}
	return entry, nil
}

type Balance struct {
	AccountID string          `json:"account_id"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
}

func (s *Service) BalancesByOwner(ctx context.Context, ownerType types.OwnerType, ownerID string) ([]Balance, error) {
	rows, err := s.pool.Query(ctx, "select id, asset, balance from accounts where owner_type = $1 and owner_id = $2 order by asset", string(ownerType), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.AccountID, &b.Asset, &b.Amount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Service) EntriesByTrade(ctx context.Context, tradeID string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, "select id, account_id, trade_id, asset, amount, entry_type, balance_before, balance_after, created_at from ledger_entries where trade_id = $1 order by created_at asc, id asc", tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var entryType string
		if err := rows.Scan(&e.ID, &e.AccountID, &e.TradeID, &e.Asset, &e.Amount, &entryType, &e.BalanceBefore, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntryType = types.LedgerEntryType(entryType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEntries returns how many entries of one type exist for a trade. The
// post-commit verifier and idempotency tests rely on it.
func (s *Service) CountEntries(ctx context.Context, tradeID string, entryType types.LedgerEntryType) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, "select count(*) from ledger_entries where trade_id = $1 and entry_type = $2", tradeID, string(entryType)).Scan(&n)
	return n, err
}
