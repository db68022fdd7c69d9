package handler

import (
	"net/http"

	"github.com/gametable/gametable/internal/service"
	"github.com/gametable/gametable/pkg/game"
)

// MoveHandler handles move submission and validation.
type MoveHandler struct {
	moveSvc *service.MoveService
}

// NewMoveHandler creates a MoveHandler.
func NewMoveHandler(moveSvc *service.MoveService) *MoveHandler {
	return &MoveHandler{moveSvc: moveSvc}
}

type moveRequest struct {
	PlayerID        string         `json:"playerId"`
	Action          string         `json:"action,omitempty"`
	Parameters      map[string]any `json:"parameters"`
	ExpectedVersion int64          `json:"expectedVersion"`
}

func (req moveRequest) move() game.Move {
	return game.Move{Action: req.Action, Parameters: req.Parameters}
}

// SubmitMove handles POST /api/games/{id}/moves
func (h *MoveHandler) SubmitMove(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerId is required")
		return
	}

	st, err := h.moveSvc.ApplyMove(r.Context(), gameID, req.PlayerID, req.move(), req.ExpectedVersion)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ValidateMove handles POST /api/games/{id}/moves/validate — a dry run that
// never mutates the game.
func (h *MoveHandler) ValidateMove(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerId is required")
		return
	}

	v, err := h.moveSvc.ValidateMove(r.Context(), gameID, req.PlayerID, req.move())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
