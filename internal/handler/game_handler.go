package handler

import (
	"net/http"
	"strconv"

	"github.com/gametable/gametable/internal/registry"
	"github.com/gametable/gametable/internal/service"
	"github.com/gametable/gametable/pkg/game"
)

// GameHandler handles game lifecycle endpoints.
type GameHandler struct {
	gameSvc *service.GameService
	engines *registry.Registry
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(gameSvc *service.GameService, engines *registry.Registry) *GameHandler {
	return &GameHandler{gameSvc: gameSvc, engines: engines}
}

// CreateGame handles POST /api/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameType    string         `json:"gameType"`
		Name        string         `json:"name,omitempty"`
		Description string         `json:"description,omitempty"`
		CreatorID   string         `json:"creatorId,omitempty"`
		Config      map[string]any `json:"config,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GameType == "" {
		writeError(w, http.StatusBadRequest, "gameType is required")
		return
	}

	st, err := h.gameSvc.CreateGame(r.Context(), service.CreateGameInput{
		GameType:    req.GameType,
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   req.CreatorID,
		Config:      req.Config,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// JoinGame handles POST /api/games/{id}/join
func (h *GameHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	var req struct {
		PlayerID   string         `json:"playerId"`
		PlayerName string         `json:"playerName,omitempty"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerId is required")
		return
	}

	st, err := h.gameSvc.JoinGame(r.Context(), service.JoinGameInput{
		GameID:     gameID,
		PlayerID:   req.PlayerID,
		PlayerName: req.PlayerName,
		Metadata:   req.Metadata,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListGames handles GET /api/games
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	list, err := h.gameSvc.ListGames(r.Context(), service.ListGamesInput{
		PlayerID:  q.Get("playerId"),
		GameType:  q.Get("gameType"),
		Lifecycle: game.Lifecycle(q.Get("lifecycle")),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetGame handles GET /api/games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	st, err := h.gameSvc.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// AbandonGame handles POST /api/games/{id}/abandon
func (h *GameHandler) AbandonGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	var req struct {
		PlayerID string `json:"playerId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerId is required")
		return
	}

	st, err := h.gameSvc.AbandonGame(r.Context(), gameID, req.PlayerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// RenderBoard handles GET /api/games/{id}/board
func (h *GameHandler) RenderBoard(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	st, err := h.gameSvc.GetGame(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	eng, ok := h.engines.Get(st.GameType)
	if !ok {
		writeError(w, http.StatusInternalServerError, "engine missing for stored game")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"gameId": gameID,
		"render": eng.RenderBoard(st),
	})
}

// ListGameTypes handles GET /api/game-types
func (h *GameHandler) ListGameTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engines.List())
}

// Health handles GET /healthz
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
