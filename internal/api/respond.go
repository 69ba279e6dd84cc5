package api

import (
	"encoding/json"
	"net/http"
)

// errorBody is the shape every failing endpoint returns: a bare
// {"error": "..."} for simple 4xx/5xx, matching spec.md §7's
// "HTTP endpoints always return JSON; errors carry ... a 4xx with
// {error}" rule. Successful responses use their own shapes; only the
// webhook ack carries a "success" field.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the standard {"error": message} envelope. Exported
// so the server package's middleware chain can reuse the same shape
// for transport-level failures (rate limiting, bad origin, etc).
func WriteError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
