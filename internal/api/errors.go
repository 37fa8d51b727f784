package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/readingd/internal/ingest"
)

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

// writeInternalError writes the generic 500 response. Details only go to
// the log.
func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ingest.MessageInternalError)
}
