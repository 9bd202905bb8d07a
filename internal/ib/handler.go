package ib

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"lv-settle/internal/httputil"
	"lv-settle/internal/types"
)

type Handler struct {
	svc             *Service
	defaultCurrency string
}

func NewHandler(svc *Service, defaultCurrency string) *Handler {
	return &Handler{svc: svc, defaultCurrency: defaultCurrency}
}

type enrollRequest struct {
	ParentID   string `json:"parent_id"`
	RatePerLot string `json:"rate_per_lot"`
}

func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	var rate *decimal.Decimal
	if req.RatePerLot != "" {
		d, err := decimal.NewFromString(req.RatePerLot)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid rate_per_lot"})
			return
		}
		rate = &d
	}
	p, err := h.svc.Enroll(r.Context(), httputil.UserID(r.Context()), req.ParentID, rate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	userID := httputil.UserID(r.Context())
	p, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	level, err := h.svc.Level(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pending, err := h.svc.PendingTotal(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"profile": p,
		"level":   level,
		"pending": pending,
	})
}

func (h *Handler) Commissions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	status := types.CommissionStatus(r.URL.Query().Get("status"))
	comms, err := h.svc.Commissions(r.Context(), httputil.UserID(r.Context()), status, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, comms)
}

type payoutRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	var amount *decimal.Decimal
	if req.Amount != "" {
		d, err := decimal.NewFromString(req.Amount)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
			return
		}
		amount = &d
	}
	currency := req.Currency
	if currency == "" {
		currency = h.defaultCurrency
	}
	payout, err := h.svc.RequestPayout(r.Context(), httputil.UserID(r.Context()), amount, currency)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, payout)
}
