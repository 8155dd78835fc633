package handlers

import (
	"net/http"
)

// NewRouter builds the path-based router for the API. Endpoints accept GET
// only; anything else is answered with 405.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	getOnly := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				h.HandleMethodNotAllowed(w, r)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("/turnstile", getOnly(h.HandleTurnstile))
	mux.HandleFunc("/result", getOnly(h.HandleResult))
	mux.HandleFunc("/health", getOnly(h.HandleHealth))
	mux.HandleFunc("/status", getOnly(h.HandleStatus))
	mux.HandleFunc("/", getOnly(h.HandleIndex))

	return mux
}
