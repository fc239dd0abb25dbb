package httpserver

import (
	"net/http"

	"lv-escrow/internal/auth"
	"lv-escrow/internal/health"
	"lv-escrow/internal/httputil"
	"lv-escrow/internal/ledger"
	"lv-escrow/internal/trades"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	AuthHandler    *auth.Handler
	TradeHandler   *trades.Handler
	LedgerHandler  *ledger.Handler
	HealthHandler  *health.Handler
	MetricsHandler http.Handler
	AuthService    *auth.Service
	InternalToken  string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(SecurityHeaders)

	r.Get("/health", d.HealthHandler.Ready)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Get("/health/ready", d.HealthHandler.Ready)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.AuthHandler.Register)
			r.Post("/login", d.AuthHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.AuthHandler.Me(w, r, userID)
			})
			r.Get("/balances", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.LedgerHandler.Balances(w, r, userID)
			})
			r.Post("/trades", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.Create(w, r, userID)
			})
			r.Get("/trades", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.List(w, r, userID)
			})
			r.Get("/trades/{id}", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.Get(w, r, userID, chi.URLParam(r, "id"))
			})
			r.Get("/trades/{id}/targets", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.Targets(w, r, userID, chi.URLParam(r, "id"))
			})
			r.Post("/trades/{id}/transition", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.Transition(w, r, userID, chi.URLParam(r, "id"))
			})
			r.Post("/trades/{id}/escrow-proof", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.AttachEscrowProof(w, r, userID, chi.URLParam(r, "id"))
			})
			r.Post("/trades/{id}/release-proof", func(w http.ResponseWriter, r *http.Request) {
				userID, ok := UserID(r)
				if !ok {
					httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
					return
				}
				d.TradeHandler.AttachReleaseProof(w, r, userID, chi.URLParam(r, "id"))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(InternalAuth(d.InternalToken))
			r.Post("/internal/deposits", d.LedgerHandler.Deposit)
			r.Get("/internal/trades/{id}/entries", func(w http.ResponseWriter, r *http.Request) {
				d.LedgerHandler.Entries(w, r, chi.URLParam(r, "id"))
			})
			r.Post("/internal/trades/{id}/transition", func(w http.ResponseWriter, r *http.Request) {
				d.TradeHandler.Transition(w, r, "system", chi.URLParam(r, "id"))
			})
		})
	})

	r.Method(http.MethodGet, "/metrics", d.MetricsHandler)

	return r
}
