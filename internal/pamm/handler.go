package pamm

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"lv-settle/internal/apperr"
	"lv-settle/internal/httputil"
)

type Handler struct {
	svc             *Service
	defaultCurrency string
}

func NewHandler(svc *Service, defaultCurrency string) *Handler {
	return &Handler{svc: svc, defaultCurrency: defaultCurrency}
}

type createFundRequest struct {
	Name              string `json:"name"`
	FeePercent        string `json:"fee_percent"`
	AllocationPercent string `json:"allocation_percent"`
}

func (h *Handler) CreateFund(w http.ResponseWriter, r *http.Request) {
	var req createFundRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	fee, err := decimal.NewFromString(req.FeePercent)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid fee percent"))
		return
	}
	allocPct := decimal.Zero
	if req.AllocationPercent != "" {
		if allocPct, err = decimal.NewFromString(req.AllocationPercent); err != nil {
			httputil.WriteError(w, apperr.Validation("invalid allocation percent"))
			return
		}
	}
	fund, err := h.svc.CreateFund(r.Context(), httputil.UserID(r.Context()), req.Name, fee, allocPct)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fund)
}

func (h *Handler) Fund(w http.ResponseWriter, r *http.Request) {
	fund, err := h.svc.Fund(r.Context(), chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fund)
}

type allocateRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid amount"))
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.defaultCurrency
	}
	alloc, err := h.svc.Allocate(r.Context(), httputil.UserID(r.Context()), chi.URLParam(r, "fundID"), amount, currency)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, alloc)
}

func (h *Handler) Unallocate(w http.ResponseWriter, r *http.Request) {
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = h.defaultCurrency
	}
	alloc, err := h.svc.Unallocate(r.Context(), httputil.UserID(r.Context()), chi.URLParam(r, "fundID"), currency)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alloc)
}

type capitalRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (h *Handler) capital(w http.ResponseWriter, r *http.Request, out bool) {
	var req capitalRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid amount"))
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.defaultCurrency
	}
	managerID := httputil.UserID(r.Context())
	var fund any
	if out {
		fund, err = h.svc.ManagerCapitalOut(r.Context(), managerID, amount, currency)
	} else {
		fund, err = h.svc.ManagerCapitalIn(r.Context(), managerID, amount, currency)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fund)
}

func (h *Handler) CapitalIn(w http.ResponseWriter, r *http.Request)  { h.capital(w, r, false) }
func (h *Handler) CapitalOut(w http.ResponseWriter, r *http.Request) { h.capital(w, r, true) }

func (h *Handler) Allocations(w http.ResponseWriter, r *http.Request) {
	allocs, err := h.svc.Allocations(r.Context(), chi.URLParam(r, "fundID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, allocs)
}
