package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/readingd/internal/device"
	"github.com/nerrad567/readingd/internal/ingest"
)

// emptyObject is the body returned for lookups of unknown devices.
var emptyObject = struct{}{}

// countResponse is the /count body.
type countResponse struct {
	Count int64 `json:"count"`
}

// handleListDevices returns every aggregate in first-seen order.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.reader.GetAll(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// handleIngest merges a batch. The raw body is passed through untouched
// because duplicate detection fingerprints the exact bytes.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		writeBadRequest(w, ingest.MessageInvalidRequest)
		return
	}

	merged, err := s.ingester.Ingest(r.Context(), body)
	if err != nil {
		if ingest.IsRejection(err) {
			writeBadRequest(w, ingest.RejectionMessage(err))
			return
		}
		s.logger.Error("ingesting batch", "error", err, "request_id", requestID(r.Context()))
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, merged)
}

// deviceID extracts and validates the {id} URL parameter, writing the 400
// response itself when it is not UUID-shaped.
func deviceID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !device.ValidID(id) {
		writeBadRequest(w, ingest.MessageInvalidID)
		return "", false
	}
	return id, true
}

// handleGetDevice returns one aggregate, or {} when the id is unknown.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}

	d, err := s.reader.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("getting device", "device_id", id, "error", err)
		writeInternalError(w)
		return
	}
	if d == nil {
		writeJSON(w, http.StatusOK, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleGetCount returns {count}, or {} when the id is unknown.
func (s *Server) handleGetCount(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}

	count, err := s.reader.GetCount(r.Context(), id)
	if err != nil {
		s.logger.Error("getting device count", "device_id", id, "error", err)
		writeInternalError(w)
		return
	}
	if count == nil {
		writeJSON(w, http.StatusOK, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: *count})
}

// handleGetLatest returns the latest reading, or {} when there is none.
func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	id, ok := deviceID(w, r)
	if !ok {
		return
	}

	latest, err := s.reader.GetLatest(r.Context(), id)
	if err != nil {
		s.logger.Error("getting latest reading", "device_id", id, "error", err)
		writeInternalError(w)
		return
	}
	if latest == nil {
		writeJSON(w, http.StatusOK, emptyObject)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}
