package api

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as the response body with the given status.
// Encoding failures after the header is written are not recoverable
// and are ignored.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
