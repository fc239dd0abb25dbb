package ledger

import (
	"net/http"
	"strings"

	"lv-escrow/internal/httputil"
	"lv-escrow/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Balances(w http.ResponseWriter, r *http.Request, userID string) {
	balances, err := h.svc.BalancesByOwner(r.Context(), types.OwnerTypeUser, userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load balances"})
		return
	}
	if balances == nil {
		balances = []Balance{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"balances": balances})
}

type depositRequest struct {
	UserID string `json:"user_id"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// Deposit is the internal-only endpoint settlement systems call when an
// on-chain deposit confirms.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.UserID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "user_id is required"})
		return
	}
	asset := strings.ToUpper(strings.TrimSpace(req.Asset))
	if asset == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "asset is required"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	entry, err := h.svc.Deposit(r.Context(), types.OwnerTypeUser, req.UserID, asset, amount)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "deposit failed"})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

// Entries returns the ledger trail for one trade.
func (h *Handler) Entries(w http.ResponseWriter, r *http.Request, tradeID string) {
	entries, err := h.svc.EntriesByTrade(r.Context(), tradeID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load entries"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
