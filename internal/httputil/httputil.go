// Package httputil carries the small request/response helpers shared by
// every handler package.
package httputil

import (
	"encoding/json"
	"net/http"

	"lv-settle/internal/apperr"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodes the request body into v, rejecting unknown fields.
func ReadJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// WriteError maps an error to its HTTP status and writes the uniform body.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, apperr.Status(err), ErrorResponse{Error: err.Error()})
}
