package wallet

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"lv-settle/internal/httputil"
)

type Handler struct {
	svc             *Service
	defaultCurrency string
}

func NewHandler(svc *Service, defaultCurrency string) *Handler {
	return &Handler{svc: svc, defaultCurrency: defaultCurrency}
}

func (h *Handler) currency(r *http.Request) string {
	if c := r.URL.Query().Get("currency"); c != "" {
		return c
	}
	return h.defaultCurrency
}

type movementRequest struct {
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (h *Handler) parseMovement(r *http.Request) (currency string, amount decimal.Decimal, desc string, ok bool) {
	var req movementRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		return "", decimal.Zero, "", false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return "", decimal.Zero, "", false
	}
	currency = req.Currency
	if currency == "" {
		currency = h.defaultCurrency
	}
	return currency, amount, req.Description, true
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	wlt, err := h.svc.Get(r.Context(), httputil.UserID(r.Context()), h.currency(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wlt)
}

func (h *Handler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	currency, amount, desc, ok := h.parseMovement(r)
	if !ok {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	wt, err := h.svc.RequestDeposit(r.Context(), httputil.UserID(r.Context()), currency, amount, desc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, wt)
}

// ConfirmDeposit is a back-office action guarded by the internal token.
func (h *Handler) ConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	wt, err := h.svc.ConfirmDeposit(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wt)
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	currency, amount, desc, ok := h.parseMovement(r)
	if !ok {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	wt, err := h.svc.RequestWithdrawal(r.Context(), httputil.UserID(r.Context()), currency, amount, desc)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, wt)
}

func (h *Handler) ConfirmWithdrawal(w http.ResponseWriter, r *http.Request) {
	wt, err := h.svc.ConfirmWithdrawal(r.Context(), chi.URLParam(r, "txID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, wt)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Reason == "" {
		req.Reason = "rejected"
	}
	if err := h.svc.RejectWithdrawal(r.Context(), chi.URLParam(r, "txID"), req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "failed"})
}

type transferRequest struct {
	ToUserID string `json:"to_user_id"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.defaultCurrency
	}
	refID, err := h.svc.Transfer(r.Context(), httputil.UserID(r.Context()), req.ToUserID, currency, amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"reference_id": refID})
}

type adminCreditRequest struct {
	UserID      string `json:"user_id"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// AdminCredit is a back-office action guarded by the internal token.
func (h *Handler) AdminCredit(w http.ResponseWriter, r *http.Request) {
	var req adminCreditRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.defaultCurrency
	}
	wt, err := h.svc.AdminCredit(r.Context(), req.UserID, currency, amount, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, wt)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	txs, err := h.svc.ListTransactions(r.Context(), httputil.UserID(r.Context()), h.currency(r), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, txs)
}
