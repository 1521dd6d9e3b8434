package webui

import (
	"encoding/json"
	"net/http"

	"chferry/internal/logging"
)

// ErrorResponse is the JSON envelope every failed request returns. Error is a
// short machine-matchable label; Message is for the user; Detail carries the
// underlying error text when it is safe to show.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// respondJSON writes v as JSON with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError logs the technical error with the request ID and returns the
// JSON envelope to the client.
func respondError(w http.ResponseWriter, r *http.Request, status int, label, message string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	logging.FromContext(r.Context()).Error("request failed",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", label,
		"detail", detail,
	)
	respondJSON(w, status, ErrorResponse{Error: label, Message: message, Detail: detail})
}
