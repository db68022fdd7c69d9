package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/gametable/gametable/internal/repository"
	"github.com/gametable/gametable/internal/service"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeServiceError maps service-layer sentinels to HTTP statuses and writes
// the error payload. Unknown errors become a generic 500; the detail goes to
// the log only.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrGameNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUnknownGameType), errors.Is(err, service.ErrInvalidMove):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrGameFull),
		errors.Is(err, service.ErrInvalidLifecycle),
		errors.Is(err, service.ErrPlayerAlreadyPresent),
		errors.Is(err, repository.ErrStaleState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUnauthorizedMove):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
