// Package game defines the core types shared by the server and by game
// engine plugins: the versioned game state, players, moves, and the Engine
// contract every game type implements.
package game

import (
	"encoding/json"
	"time"
)

// Lifecycle is the coarse game status managed by the server. Engines never
// set it; they only report game-over and winner facts.
type Lifecycle string

const (
	LifecycleCreated   Lifecycle = "created"
	LifecycleWaiting   Lifecycle = "waiting_for_players"
	LifecycleActive    Lifecycle = "active"
	LifecycleCompleted Lifecycle = "completed"
	LifecycleAbandoned Lifecycle = "abandoned"
)

// Terminal reports whether the lifecycle admits no further transitions.
func (l Lifecycle) Terminal() bool {
	return l == LifecycleCompleted || l == LifecycleAbandoned
}

// Valid reports whether l is one of the known lifecycle values.
func (l Lifecycle) Valid() bool {
	switch l {
	case LifecycleCreated, LifecycleWaiting, LifecycleActive, LifecycleCompleted, LifecycleAbandoned:
		return true
	}
	return false
}

// Metadata keys with meaning to the server. Engines may add their own keys
// but must not collide with these.
const (
	MetaIsAI          = "isAI"
	MetaStrategyID    = "strategyId"
	MetaIsDraw        = "isDraw"
	MetaHasAIPlayers  = "hasAIPlayers"
	MetaAIPlayerCount = "aiPlayerCount"
	MetaCreatorID     = "creatorId"
	MetaName          = "name"
	MetaDescription   = "description"
)

// Player is one seat in a game. Seat order is fixed at join time and drives
// turn order.
type Player struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	JoinedAt time.Time      `json:"joinedAt"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsAI reports whether the seat is occupied by an AI player.
func (p Player) IsAI() bool {
	v, ok := p.Metadata[MetaIsAI].(bool)
	return ok && v
}

// StrategyID returns the AI strategy id declared for this seat, or "" for
// human seats and AI seats without an explicit strategy.
func (p Player) StrategyID() string {
	s, _ := p.Metadata[MetaStrategyID].(string)
	return s
}

// Move is one entry of a game's move history. PlayerID and Timestamp are
// always set by the server; client-supplied values are discarded.
type Move struct {
	PlayerID   string         `json:"playerId"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     string         `json:"action,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// State is the full snapshot of one game. It is the unit of persistence and
// of optimistic concurrency: every persisted mutation bumps Version by one.
//
// Board is opaque to the server; only the owning engine interprets it.
type State struct {
	GameID             string          `json:"gameId"`
	GameType           string          `json:"gameType"`
	Lifecycle          Lifecycle       `json:"lifecycle"`
	Players            []Player        `json:"players"`
	CurrentPlayerIndex int             `json:"currentPlayerIndex"`
	Phase              string          `json:"phase,omitempty"`
	Board              json.RawMessage `json:"board,omitempty"`
	MoveHistory        []Move          `json:"moveHistory"`
	Winner             string          `json:"winner,omitempty"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// PlayerByID returns the seat with the given player id.
func (s *State) PlayerByID(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// HasPlayer reports whether the player id occupies a seat.
func (s *State) HasPlayer(id string) bool {
	_, ok := s.PlayerByID(id)
	return ok
}

// CurrentPlayer returns the seat whose turn it is, as recorded by
// CurrentPlayerIndex. Engines may define a different notion of "to act";
// the server asks the engine, not this helper, inside the move pipeline.
func (s *State) CurrentPlayer() (Player, bool) {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return Player{}, false
	}
	return s.Players[s.CurrentPlayerIndex], true
}

// AIPlayerCount returns the number of AI-occupied seats.
func (s *State) AIPlayerCount() int {
	n := 0
	for _, p := range s.Players {
		if p.IsAI() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the state. Engines rely on this to keep
// ValidateMove/ApplyMove pure: they clone, mutate the clone, and return it.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s

	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		out.Players[i] = p
		out.Players[i].Metadata = cloneMap(p.Metadata)
	}

	out.MoveHistory = make([]Move, len(s.MoveHistory))
	for i, m := range s.MoveHistory {
		out.MoveHistory[i] = m
		out.MoveHistory[i].Parameters = cloneMap(m.Parameters)
	}

	if s.Board != nil {
		out.Board = make(json.RawMessage, len(s.Board))
		copy(out.Board, s.Board)
	}

	out.Metadata = cloneMap(s.Metadata)
	return &out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue deep-copies the JSON-shaped values that appear in metadata and
// move parameters. Scalars are returned as-is.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
