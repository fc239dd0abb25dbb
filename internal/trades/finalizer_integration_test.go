//go:build integration

package trades

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"lv-escrow/internal/ledger"
	"lv-escrow/internal/model"
	"lv-escrow/internal/outbox"
	"lv-escrow/internal/types"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresContainer starts a disposable PostgreSQL container and returns
// the connection string plus a teardown function for t.Cleanup.
func setupPostgresContainer(t *testing.T) (string, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return connStr, func() {
		require.NoError(t, container.Terminate(ctx))
	}
}

type finalizerFixture struct {
	pool      *pgxpool.Pool
	store     *Store
	ledger    *ledger.Service
	finalizer *Finalizer
}

const testFeeAccount = "platform_fees"

func setupFinalizer(t *testing.T) *finalizerFixture {
	t.Helper()

	dsn, cleanup := setupPostgresContainer(t)
	t.Cleanup(cleanup)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	ddl, err := os.ReadFile("../../schema.sql")
	require.NoError(t, err)

	// The simple protocol allows the multi-statement schema file in one shot.
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = conn.Conn().PgConn().Exec(ctx, string(ddl)).ReadAll()
	conn.Release()
	require.NoError(t, err)

	store := NewStore()
	ldg := ledger.NewService(pool)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fin := NewFinalizer(pool, store, ldg, outbox.NewStore(5), logger, FinalizerConfig{
		FeeBps:       100,
		FeeAccountID: testFeeAccount,
		AcceptedTTL:  time.Hour,
		EscrowTTL:    time.Hour,
	})
	return &finalizerFixture{pool: pool, store: store, ledger: ldg, finalizer: fin}
}

func (f *finalizerFixture) createUser(t *testing.T, email string) string {
	t.Helper()
	var id string
	err := f.pool.QueryRow(context.Background(), "insert into users (email) values ($1) returning id", email).Scan(&id)
	require.NoError(t, err)
	return id
}

func (f *finalizerFixture) createTrade(t *testing.T, initiator, counterparty string, amount decimal.Decimal) string {
	t.Helper()
	id, err := f.store.Create(context.Background(), f.pool, model.Trade{
		InitiatorID:    initiator,
		CounterpartyID: counterparty,
		Status:         types.TradeStatusOpen,
		Asset:          "USDT",
		Amount:         amount,
		FiatAmount:     amount.Mul(decimal.NewFromInt(90)),
		FiatCurrency:   "USD",
	})
	require.NoError(t, err)
	return id
}

func (f *finalizerFixture) balanceOf(t *testing.T, ownerType types.OwnerType, ownerID, asset string) decimal.Decimal {
	t.Helper()
	balances, err := f.ledger.BalancesByOwner(context.Background(), ownerType, ownerID)
	require.NoError(t, err)
	for _, b := range balances {
		if b.Asset == asset {
			return b.Amount
		}
	}
	return decimal.Zero
}

func (f *finalizerFixture) countAudit(t *testing.T, tradeID string, newStatus types.TradeStatus, outcome types.AuditOutcome) int {
	t.Helper()
	var n int
	err := f.pool.QueryRow(context.Background(),
		"select count(*) from audit_events where trade_id = $1 and new_status = $2 and outcome = $3",
		tradeID, string(newStatus), string(outcome)).Scan(&n)
	require.NoError(t, err)
	return n
}

func (f *finalizerFixture) countOutbox(t *testing.T, tradeID string) int {
	t.Helper()
	var n int
	err := f.pool.QueryRow(context.Background(),
		"select count(*) from outbox_notifications where trade_id = $1", tradeID).Scan(&n)
	require.NoError(t, err)
	return n
}

// Walks a 500 unit trade through its full lifecycle and verifies the version
// bumps by exactly 1 per applied transition, the escrow conserves the
// principal across release and fee, and a retried completion changes nothing.
func TestIntegration_Finalizer_FullLifecycle(t *testing.T) {
	f := setupFinalizer(t)
	ctx := context.Background()

	seller := f.createUser(t, "seller@example.com")
	buyer := f.createUser(t, "buyer@example.com")
	amount := decimal.NewFromInt(500)

	_, err := f.ledger.Deposit(ctx, types.OwnerTypeUser, seller, "USDT", amount)
	require.NoError(t, err)

	tradeID := f.createTrade(t, seller, buyer, amount)

	sellerActor := Actor{ID: seller, Role: types.ActorRoleInitiator}
	buyerActor := Actor{ID: buyer, Role: types.ActorRoleCounterparty}

	tr, err := f.finalizer.Finalize(ctx, tradeID, types.TradeStatusAccepted, buyerActor, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tr.Version)
	assert.NotNil(t, tr.AcceptedAt)

	tr, err = f.finalizer.Finalize(ctx, tradeID, types.TradeStatusEscrowed, sellerActor, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tr.Version)
	require.NotNil(t, tr.DebitedParty)
	assert.Equal(t, seller, *tr.DebitedParty)
	assert.True(t, f.balanceOf(t, types.OwnerTypeUser, seller, "USDT").IsZero())

	require.NoError(t, f.store.SetEscrowReference(ctx, f.pool, tradeID, "0xescrow"))

	tr, err = f.finalizer.Finalize(ctx, tradeID, types.TradeStatusPaymentSent, buyerActor, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), tr.Version)

	require.NoError(t, f.store.SetReleaseReference(ctx, f.pool, tradeID, "0xrelease"))

	tr, err = f.finalizer.Finalize(ctx, tradeID, types.TradeStatusCompleted, sellerActor, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tr.Version)
	assert.Equal(t, types.TradeStatusCompleted, tr.Status)
	assert.NotNil(t, tr.CompletedAt)

	// 1% fee on 500: buyer receives 495, the platform account 5, and the
	// seller stays at zero. locked == released + fee.
	assert.True(t, f.balanceOf(t, types.OwnerTypeUser, buyer, "USDT").Equal(decimal.NewFromInt(495)))
	assert.True(t, f.balanceOf(t, types.OwnerTypeSystem, testFeeAccount, "USDT").Equal(decimal.NewFromInt(5)))
	assert.True(t, f.balanceOf(t, types.OwnerTypeUser, seller, "USDT").IsZero())

	locks, err := f.ledger.CountEntries(ctx, tradeID, types.LedgerEntryTypeEscrowLock)
	require.NoError(t, err)
	assert.Equal(t, 1, locks)
	releases, err := f.ledger.CountEntries(ctx, tradeID, types.LedgerEntryTypeEscrowRelease)
	require.NoError(t, err)
	assert.Equal(t, 1, releases)

	assert.Equal(t, 1, f.countAudit(t, tradeID, types.TradeStatusCompleted, types.AuditOutcomeApplied))
	outboxRows := f.countOutbox(t, tradeID)
	assert.Equal(t, 4, outboxRows)

	// Retried completion reports success without touching anything: same
	// version, no second release, no new audit or outbox rows, balances flat.
	again, err := f.finalizer.Finalize(ctx, tradeID, types.TradeStatusCompleted, sellerActor, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), again.Version)

	releases, err = f.ledger.CountEntries(ctx, tradeID, types.LedgerEntryTypeEscrowRelease)
	require.NoError(t, err)
	assert.Equal(t, 1, releases, "a second release must never be minted")
	assert.Equal(t, 1, f.countAudit(t, tradeID, types.TradeStatusCompleted, types.AuditOutcomeApplied))
	assert.Equal(t, outboxRows, f.countOutbox(t, tradeID))
	assert.True(t, f.balanceOf(t, types.OwnerTypeUser, buyer, "USDT").Equal(decimal.NewFromInt(495)))

	// The enqueued notification carries the terminal status and version.
	var queued bool
	err = f.pool.QueryRow(ctx, `select exists(select 1 from outbox_notifications
		where trade_id = $1 and payload->>'new_status' = 'completed'
		and (payload->>'version')::bigint = 5)`, tradeID).Scan(&queued)
	require.NoError(t, err)
	assert.True(t, queued)
}

// A failed escrow debit must roll back the whole transition: the trade keeps
// its status and version and no partial ledger, audit or outbox rows land.
func TestIntegration_Finalizer_InsufficientBalanceRollsBack(t *testing.T) {
	f := setupFinalizer(t)
	ctx := context.Background()

	seller := f.createUser(t, "broke@example.com")
	buyer := f.createUser(t, "counter@example.com")
	tradeID := f.createTrade(t, seller, buyer, decimal.NewFromInt(500))

	buyerActor := Actor{ID: buyer, Role: types.ActorRoleCounterparty}
	sellerActor := Actor{ID: seller, Role: types.ActorRoleInitiator}

	tr, err := f.finalizer.Finalize(ctx, tradeID, types.TradeStatusAccepted, buyerActor, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), tr.Version)

	_, err = f.finalizer.Finalize(ctx, tradeID, types.TradeStatusEscrowed, sellerActor, nil)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientBalance, KindOf(err))

	got, err := f.store.Get(ctx, f.pool, tradeID)
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusAccepted, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.Nil(t, got.DebitedParty)
	assert.Nil(t, got.EscrowedAt)

	locks, err := f.ledger.CountEntries(ctx, tradeID, types.LedgerEntryTypeEscrowLock)
	require.NoError(t, err)
	assert.Zero(t, locks)
	assert.Zero(t, f.countAudit(t, tradeID, types.TradeStatusEscrowed, types.AuditOutcomeApplied))
	// One accepted notification only; nothing escaped the rollback.
	assert.Equal(t, 1, f.countOutbox(t, tradeID))
	// The denied attempt is still audited, outside the rolled back tx.
	assert.Equal(t, 1, f.countAudit(t, tradeID, types.TradeStatusEscrowed, types.AuditOutcomeRejected))
}

// Cancelling an escrowed trade refunds the recorded payer in full.
func TestIntegration_Finalizer_CancelRefundsRecordedParty(t *testing.T) {
	f := setupFinalizer(t)
	ctx := context.Background()

	seller := f.createUser(t, "refund@example.com")
	buyer := f.createUser(t, "other@example.com")
	amount := decimal.NewFromInt(500)

	_, err := f.ledger.Deposit(ctx, types.OwnerTypeUser, seller, "USDT", amount)
	require.NoError(t, err)

	tradeID := f.createTrade(t, seller, buyer, amount)
	sellerActor := Actor{ID: seller, Role: types.ActorRoleInitiator}

	_, err = f.finalizer.Finalize(ctx, tradeID, types.TradeStatusEscrowed, sellerActor, nil)
	require.NoError(t, err)
	require.True(t, f.balanceOf(t, types.OwnerTypeUser, seller, "USDT").IsZero())

	tr, err := f.finalizer.Finalize(ctx, tradeID, types.TradeStatusCancelled, sellerActor, nil)
	require.NoError(t, err)
	assert.Equal(t, types.TradeStatusCancelled, tr.Status)
	assert.NotNil(t, tr.RefundReference)

	assert.True(t, f.balanceOf(t, types.OwnerTypeUser, seller, "USDT").Equal(amount))
	refunds, err := f.ledger.CountEntries(ctx, tradeID, types.LedgerEntryTypeEscrowRefund)
	require.NoError(t, err)
	assert.Equal(t, 1, refunds)

	// A retried cancel is a no-op: no second refund.
	again, err := f.finalizer.Finalize(ctx, tradeID, types.TradeStatusCancelled, sellerActor, nil)
	require.NoError(t, err)
	assert.Equal(t, tr.Version, again.Version)
	refunds, err = f.ledger.CountEntries(ctx, tradeID, types.LedgerEntryTypeEscrowRefund)
	require.NoError(t, err)
	assert.Equal(t, 1, refunds)
	assert.True(t, f.balanceOf(t, types.OwnerTypeUser, seller, "USDT").Equal(amount))
}
