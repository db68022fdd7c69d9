package hub

import (
	"time"

	"github.com/gametable/gametable/pkg/game"
)

// Event type discriminators, carried in the "type" field of every frame.
const (
	EventGameUpdate       = "GAME_UPDATE"
	EventGameComplete     = "GAME_COMPLETE"
	EventTurnNotification = "TURN_NOTIFICATION"
)

// GameUpdate carries a full post-mutation state snapshot.
type GameUpdate struct {
	Type         string      `json:"type"`
	GameID       string      `json:"gameId"`
	GameState    *game.State `json:"gameState"`
	LastMoveByAI bool        `json:"lastMoveByAI"`
	Timestamp    time.Time   `json:"timestamp"`
}

func NewGameUpdate(st *game.State, lastMoveByAI bool) GameUpdate {
	return GameUpdate{
		Type:         EventGameUpdate,
		GameID:       st.GameID,
		GameState:    st,
		LastMoveByAI: lastMoveByAI,
		Timestamp:    time.Now().UTC(),
	}
}

// GameComplete announces a finished game. Winner is null for a draw.
type GameComplete struct {
	Type       string    `json:"type"`
	GameID     string    `json:"gameId"`
	Winner     *string   `json:"winner"`
	WinnerIsAI bool      `json:"winnerIsAI"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewGameComplete(st *game.State) GameComplete {
	ev := GameComplete{
		Type:      EventGameComplete,
		GameID:    st.GameID,
		Timestamp: time.Now().UTC(),
	}
	if st.Winner != "" {
		w := st.Winner
		ev.Winner = &w
		if p, ok := st.PlayerByID(w); ok {
			ev.WinnerIsAI = p.IsAI()
		}
	}
	return ev
}

// TurnNotification tells a game's subscribers whose turn has begun.
type TurnNotification struct {
	Type          string    `json:"type"`
	GameID        string    `json:"gameId"`
	CurrentPlayer string    `json:"currentPlayer"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTurnNotification(gameID, playerID string) TurnNotification {
	return TurnNotification{
		Type:          EventTurnNotification,
		GameID:        gameID,
		CurrentPlayer: playerID,
		Timestamp:     time.Now().UTC(),
	}
}
