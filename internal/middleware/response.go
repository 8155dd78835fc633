package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// errorResponse matches the handler error shape so clients see one format
// regardless of which layer rejected the request.
type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// writeErrorResponse writes a JSON error response.
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := errorResponse{
		Status: "error",
		Error:  message,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Str("message", message).Msg("Failed to encode middleware error response")
	}
}
