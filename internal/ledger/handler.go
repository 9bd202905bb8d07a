package ledger

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lv-settle/internal/chart"
	"lv-settle/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func parseAsOf(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Balance serves one entity/account aggregate. The entity defaults to the
// authenticated user.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	entityID := httputil.UserID(r.Context())
	code := chi.URLParam(r, "code")
	asOf, err := parseAsOf(r)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid as_of"})
		return
	}
	balance, err := h.svc.GetBalance(r.Context(), entityID, code, asOf)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, Balance{
		AccountCode: code,
		AccountName: chart.Name(code),
		Balance:     balance,
	})
}

// Balances serves every account the authenticated user has touched.
func (h *Handler) Balances(w http.ResponseWriter, r *http.Request) {
	entityID := httputil.UserID(r.Context())
	asOf, err := parseAsOf(r)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid as_of"})
		return
	}
	balances, err := h.svc.GetBalances(r.Context(), entityID, asOf)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balances)
}

// Pnl serves realized trading P&L over [from, to]; from defaults to the
// start of the current UTC day, to defaults to now.
func (h *Handler) Pnl(w http.ResponseWriter, r *http.Request) {
	entityID := httputil.UserID(r.Context())
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := now
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid from"})
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid to"})
			return
		}
		to = t
	}
	pnl, err := h.svc.GetPnlForPeriod(r.Context(), entityID, from, to)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"entity_id": entityID,
		"from":      from,
		"to":        to,
		"pnl":       pnl,
	})
}
