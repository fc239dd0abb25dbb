package trades

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"lv-escrow/internal/httputil"
	"lv-escrow/internal/model"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createTradeRequest struct {
	CounterpartyID string `json:"counterparty_id"`
	BuyerID        string `json:"buyer_id"`
	Asset          string `json:"asset"`
	Amount         string `json:"amount"`
	FiatAmount     string `json:"fiat_amount"`
	FiatCurrency   string `json:"fiat_currency"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request, userID string) {
	var req createTradeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.CounterpartyID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "counterparty_id is required"})
		return
	}
	if req.CounterpartyID == userID {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "cannot trade with yourself"})
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
	fiatAmount, err := decimal.NewFromString(req.FiatAmount)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid fiat_amount"})
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.FiatCurrency))
	if currency == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "fiat_currency is required"})
		return
	}
	var buyerID *string
	if req.BuyerID != "" {
		buyerID = &req.BuyerID
	}
	t, err := h.svc.CreateTrade(r.Context(), CreateRequest{
		InitiatorID:    userID,
		CounterpartyID: req.CounterpartyID,
		BuyerID:        buyerID,
		Asset:          asset,
		Amount:         amount,
		FiatAmount:     fiatAmount,
		FiatCurrency:   currency,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, t)
}

type transitionRequest struct {
	Status string            `json:"status"`
	Reason string            `json:"reason"`
	Meta   map[string]string `json:"meta"`
}

// Transition is the single entry point for status changes; the requested
// status in the body selects the edge.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request, userID, tradeID string) {
	var req transitionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if req.Status == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "status is required"})
		return
	}
	meta := req.Meta
	if req.Reason != "" {
		if meta == nil {
			meta = map[string]string{}
		}
		meta["reason"] = req.Reason
	}
	t, err := h.svc.RequestTransition(r.Context(), tradeID, req.Status, userID, meta)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

type proofRequest struct {
	Reference string `json:"reference"`
}

func (h *Handler) AttachEscrowProof(w http.ResponseWriter, r *http.Request, userID, tradeID string) {
	h.attachProof(w, r, tradeID, func(ref string) (any, error) {
		return h.svc.AttachEscrowProof(r.Context(), tradeID, userID, ref)
	})
}

func (h *Handler) AttachReleaseProof(w http.ResponseWriter, r *http.Request, userID, tradeID string) {
	h.attachProof(w, r, tradeID, func(ref string) (any, error) {
		return h.svc.AttachReleaseProof(r.Context(), tradeID, userID, ref)
	})
}

func (h *Handler) attachProof(w http.ResponseWriter, r *http.Request, tradeID string, attach func(string) (any, error)) {
	var req proofRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Reference) == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "reference is required"})
		return
	}
	t, err := attach(strings.TrimSpace(req.Reference))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID, tradeID string) {
	t, err := h.svc.GetTrade(r.Context(), tradeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, ok := RoleOf(t, userID); !ok {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "trade not found", Kind: string(KindNotFound)})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	list, err := h.svc.ListTrades(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []model.Trade{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trades": list})
}

// Targets reports the currently legal next statuses for a trade.
func (h *Handler) Targets(w http.ResponseWriter, r *http.Request, userID, tradeID string) {
	t, targets, err := h.svc.LegalTargets(r.Context(), tradeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, ok := RoleOf(t, userID); !ok {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "trade not found", Kind: string(KindNotFound)})
		return
	}
	out := make([]string, len(targets))
	for i, s := range targets {
		out[i] = string(s)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": string(t.Status), "legal_targets": out})
}

// writeError maps finalization error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
		return
	}
	status := http.StatusBadRequest
	switch e.Kind {
	case KindNotFound:
		status = http.StatusNotFound
	case KindContended:
		status = http.StatusConflict
	case KindAlreadyTerminal, KindInvalidTransition, KindMissingReleaseProof, KindInsufficientBalance:
		status = http.StatusUnprocessableEntity
	case KindRoleNotPermitted:
		status = http.StatusForbidden
	case KindFinalizationFailed:
		status = http.StatusInternalServerError
	}
	resp := httputil.ErrorResponse{Error: e.Reason, Kind: string(e.Kind)}
	for _, t := range e.LegalTargets {
		resp.LegalTargets = append(resp.LegalTargets, string(t))
	}
	httputil.WriteJSON(w, status, resp)
}
