package recon

import (
	"net/http"

	"lv-settle/internal/httputil"
)

type Handler struct {
	svc             *Service
	defaultCurrency string
}

func NewHandler(svc *Service, defaultCurrency string) *Handler {
	return &Handler{svc: svc, defaultCurrency: defaultCurrency}
}

func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = h.defaultCurrency
	}
	report, err := h.svc.Run(r.Context(), httputil.UserID(r.Context()), currency)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// RunAll is the back-office sweep over every wallet.
func (h *Handler) RunAll(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.RunAll(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reports)
}
