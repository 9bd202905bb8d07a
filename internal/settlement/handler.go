package settlement

import (
	"net/http"

	"github.com/shopspring/decimal"

	"lv-settle/internal/apperr"
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

// openRequest comes from the matching engine over the internal surface, so
// it names the user explicitly instead of trusting the bearer token.
type openRequest struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id,omitempty"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Volume    string `json:"volume"`
	OpenPrice string `json:"open_price"`
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	volume, err := decimal.NewFromString(req.Volume)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid volume"))
		return
	}
	openPrice, err := decimal.NewFromString(req.OpenPrice)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid open price"))
		return
	}
	pos, err := h.svc.Open(r.Context(), OpenRequest{
		UserID:    req.UserID,
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      types.PositionSide(req.Side),
		Volume:    volume,
		OpenPrice: openPrice,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, pos)
}

type closeRequest struct {
	PositionID string `json:"position_id"`
	Volume     string `json:"volume,omitempty"`
	Pnl        string `json:"pnl,omitempty"`
	ClosePrice string `json:"close_price,omitempty"`
	Currency   string `json:"currency,omitempty"`
}

func optionalDecimal(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, apperr.Validation("invalid request body"))
		return
	}
	if req.PositionID == "" {
		httputil.WriteError(w, apperr.Validation("position_id is required"))
		return
	}
	volume, err := optionalDecimal(req.Volume)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid volume"))
		return
	}
	pnl, err := optionalDecimal(req.Pnl)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid pnl"))
		return
	}
	closePrice, err := optionalDecimal(req.ClosePrice)
	if err != nil {
		httputil.WriteError(w, apperr.Validation("invalid close price"))
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.defaultCurrency
	}
	result, err := h.svc.ClosePosition(r.Context(), httputil.UserID(r.Context()), currency, CloseRequest{
		PositionID: req.PositionID,
		Volume:     volume,
		Pnl:        pnl,
		ClosePrice: closePrice,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Positions(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("open") == "true"
	positions, err := h.svc.ListPositions(r.Context(), httputil.UserID(r.Context()), openOnly)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, positions)
}
