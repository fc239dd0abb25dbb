// Package trades owns the trade lifecycle: creation, the validated
// transition path, and proof attachment. All money movement funnels through
// the finalizer; nothing else writes trade status.
package trades

import (
	"context"
	"log/slog"
	"time"

	"lv-escrow/internal/model"
	"lv-escrow/internal/reputation"
	"lv-escrow/internal/status"
	"lv-escrow/internal/transition"
	"lv-escrow/internal/types"
	"lv-escrow/internal/verify"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Service struct {
	pool       *pgxpool.Pool
	store      *Store
	finalizer  *Finalizer
	verifier   *verify.Verifier
	reputation reputation.Emitter
	logger     *slog.Logger
	openTTL    time.Duration
}

func NewService(pool *pgxpool.Pool, store *Store, finalizer *Finalizer, verifier *verify.Verifier, rep reputation.Emitter, logger *slog.Logger, openTTL time.Duration) *Service {
	return &Service{
		pool:       pool,
		store:      store,
		finalizer:  finalizer,
		verifier:   verifier,
		reputation: rep,
		logger:     logger,
		openTTL:    openTTL,
	}
}

type CreateRequest struct {
	InitiatorID    string
	CounterpartyID string
	BuyerID        *string
	Asset          string
	Amount         decimal.Decimal
	FiatAmount     decimal.Decimal
	FiatCurrency   string
}

func (s *Service) CreateTrade(ctx context.Context, req CreateRequest) (model.Trade, error) {
	if req.InitiatorID == "" || req.CounterpartyID == "" {
		return model.Trade{}, newError(KindFinalizationFailed, "initiator and counterparty are required")
	}
	if req.InitiatorID == req.CounterpartyID {
		return model.Trade{}, newError(KindFinalizationFailed, "initiator and counterparty must differ")
	}
	if !req.Amount.IsPositive() {
		return model.Trade{}, newError(KindFinalizationFailed, "amount must be positive")
	}
	expires := time.Now().UTC().Add(s.openTTL)
	t := model.Trade{
		InitiatorID:    req.InitiatorID,
		CounterpartyID: req.CounterpartyID,
		BuyerID:        req.BuyerID,
		Status:         types.TradeStatusOpen,
		Asset:          req.Asset,
		Amount:         req.Amount,
		FiatAmount:     req.FiatAmount,
		FiatCurrency:   req.FiatCurrency,
		ExpiresAt:      &expires,
	}
	id, err := s.store.Create(ctx, s.pool, t)
	if err != nil {
		return model.Trade{}, wrapError(KindFinalizationFailed, "create trade", err)
	}
	return s.store.Get(ctx, s.pool, id)
}

// RoleOf derives the actor's role from the trade's immutable party columns.
// A buyer_id user acts on the counterparty side.
func RoleOf(t model.Trade, actorID string) (types.ActorRole, bool) {
	switch {
	case actorID == t.InitiatorID:
		return types.ActorRoleInitiator, true
	case actorID == t.CounterpartyID:
		return types.ActorRoleCounterparty, true
	case t.BuyerID != nil && actorID == *t.BuyerID:
		return types.ActorRoleCounterparty, true
	}
	return "", false
}

// RequestTransition is the single mutation entry point for trade status.
// The optimistic pre-check rejects obviously bad requests cheaply; the
// finalizer revalidates under the row lock before anything is written.
func (s *Service) RequestTransition(ctx context.Context, tradeID, rawStatus, actorID string, metadata map[string]string) (model.Trade, error) {
	if err := status.CheckWritable(rawStatus); err != nil {
		return model.Trade{}, newError(KindInvalidTransition, err.Error())
	}
	requested := types.TradeStatus(rawStatus)

	t, err := s.store.Get(ctx, s.pool, tradeID)
	if err != nil {
		return model.Trade{}, newError(KindNotFound, "trade not found")
	}
	actor := SystemActor
	if actorID != SystemActor.ID {
		role, ok := RoleOf(t, actorID)
		if !ok {
			return model.Trade{}, newError(KindRoleNotPermitted, "actor is not a participant in this trade")
		}
		actor = Actor{ID: actorID, Role: role}
	}

	updated, err := s.finalizer.Finalize(ctx, tradeID, requested, actor, metadata)
	if err != nil {
		return model.Trade{}, err
	}

	s.afterTerminal(ctx, updated)
	return updated, nil
}

// afterTerminal runs post-commit concerns. Verification failures and lost
// reputation events are logged, never surfaced to the caller: the
// transition has already committed.
func (s *Service) afterTerminal(ctx context.Context, t model.Trade) {
	switch t.Status {
	case types.TradeStatusCompleted:
		if err := s.verifier.VerifyRelease(ctx, t.ID, t.Version); err != nil {
			s.logger.Error("release verification failed", "trade_id", t.ID, "error", err)
		}
		s.emit(ctx, t, reputation.EventTradeCompleted)
	case types.TradeStatusCancelled, types.TradeStatusExpired:
		if err := s.verifier.VerifyRefund(ctx, t.ID, t.Version); err != nil {
			s.logger.Error("refund verification failed", "trade_id", t.ID, "error", err)
		}
		if t.Status == types.TradeStatusCancelled {
			s.emit(ctx, t, reputation.EventTradeCancelled)
		} else {
			s.emit(ctx, t, reputation.EventTradeExpired)
		}
	case types.TradeStatusDisputed:
		s.emit(ctx, t, reputation.EventTradeDisputed)
	}
}

func (s *Service) emit(ctx context.Context, t model.Trade, eventType string) {
	for _, party := range []string{t.InitiatorID, t.CounterpartyID} {
		s.reputation.Emit(ctx, reputation.Event{
			EntityID:   party,
			EntityType: "user",
			EventType:  eventType,
			Metadata:   map[string]string{"trade_id": t.ID},
		})
	}
}

// AttachEscrowProof records the external escrow deposit reference.
// Idempotent for the same reference; conflicting references are rejected.
func (s *Service) AttachEscrowProof(ctx context.Context, tradeID, actorID, ref string) (model.Trade, error) {
	return s.attachProof(ctx, tradeID, actorID, ref, s.store.SetEscrowReference)
}

// AttachReleaseProof records the reference required before completion of an
// externally escrowed trade.
func (s *Service) AttachReleaseProof(ctx context.Context, tradeID, actorID, ref string) (model.Trade, error) {
	return s.attachProof(ctx, tradeID, actorID, ref, s.store.SetReleaseReference)
}

func (s *Service) attachProof(ctx context.Context, tradeID, actorID, ref string, set func(context.Context, dbtx, string, string) error) (model.Trade, error) {
	if ref == "" {
		return model.Trade{}, newError(KindFinalizationFailed, "reference is required")
	}
	t, err := s.store.Get(ctx, s.pool, tradeID)
	if err != nil {
		return model.Trade{}, newError(KindNotFound, "trade not found")
	}
	if actorID != SystemActor.ID {
		if _, ok := RoleOf(t, actorID); !ok {
			return model.Trade{}, newError(KindRoleNotPermitted, "actor is not a participant in this trade")
		}
	}
	if err := set(ctx, s.pool, tradeID, ref); err != nil {
		return model.Trade{}, wrapError(KindFinalizationFailed, "attach proof", err)
	}
	return s.store.Get(ctx, s.pool, tradeID)
}

func (s *Service) GetTrade(ctx context.Context, tradeID string) (model.Trade, error) {
	t, err := s.store.Get(ctx, s.pool, tradeID)
	if err != nil {
		return model.Trade{}, newError(KindNotFound, "trade not found")
	}
	return t, nil
}

func (s *Service) ListTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	return s.store.ListByParticipant(ctx, s.pool, userID, limit)
}

// LegalTargets reports the transitions currently available on a trade.
func (s *Service) LegalTargets(ctx context.Context, tradeID string) (model.Trade, []types.TradeStatus, error) {
	t, err := s.GetTrade(ctx, tradeID)
	if err != nil {
		return model.Trade{}, nil, err
	}
	return t, transition.Targets(t.Status), nil
}
