package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gametable/gametable/internal/auth"
)

// SessionHandler mints tokens for websocket attribution. There is no user
// store; callers either bring their own id or get a fresh one.
type SessionHandler struct {
	tokens *auth.TokenManager
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(tokens *auth.TokenManager) *SessionHandler {
	return &SessionHandler{tokens: tokens}
}

// CreateSession handles POST /api/session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId,omitempty"`
		Name   string `json:"name,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	token, err := h.tokens.Generate(userID)
	if err != nil {
		log.Error().Err(err).Msg("minting session token failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "userId": userID})
}
