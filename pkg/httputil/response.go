// Package httputil provides shared HTTP response helpers and middleware for all services.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// ErrorBody is the JSON shape of every error answer. apiclient decodes the same shape.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// JSONResponse writes a JSON response with the given status code.
func JSONResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

// ErrorResponse writes a JSON error response.
func ErrorResponse(w http.ResponseWriter, status int, code, message string) {
	JSONResponse(w, status, ErrorBody{Error: message, Code: code})
}

// DecodeJSON reads a JSON request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
