package accounts

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lv-settle/internal/httputil"
	"lv-settle/internal/types"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accs, err := h.svc.List(r.Context(), httputil.UserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, accs)
}

type createRequest struct {
	Mode string `json:"mode"`
	Name string `json:"name"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	acc, err := h.svc.Create(r.Context(), httputil.UserID(r.Context()), types.AccountMode(req.Mode), req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, acc)
}

func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SetActive(r.Context(), httputil.UserID(r.Context()), chi.URLParam(r, "accountID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type renameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid request body"})
		return
	}
	if err := h.svc.UpdateName(r.Context(), httputil.UserID(r.Context()), chi.URLParam(r, "accountID"), req.Name); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
