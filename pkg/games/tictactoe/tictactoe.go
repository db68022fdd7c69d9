// Package tictactoe implements the reference game engine: 3x3 tic-tac-toe
// for exactly two players. Seat 0 plays X, seat 1 plays O, X moves first.
package tictactoe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gametable/gametable/pkg/game"
)

const (
	gameType = "tictactoe"
	rows     = 3
	cols     = 3

	tokenX = "X"
	tokenO = "O"
)

// winLines are the eight winning space triples: three rows, three columns,
// two diagonals.
var winLines = [8][3]string{
	{"0-0", "0-1", "0-2"},
	{"1-0", "1-1", "1-2"},
	{"2-0", "2-1", "2-2"},
	{"0-0", "1-0", "2-0"},
	{"0-1", "1-1", "2-1"},
	{"0-2", "1-2", "2-2"},
	{"0-0", "1-1", "2-2"},
	{"0-2", "1-1", "2-0"},
}

// token occupies one space of the board.
type token struct {
	Type    string `json:"type"`
	OwnerID string `json:"ownerId"`
}

// board is the engine-owned structured value stored in State.Board. All nine
// space keys are always present; empty spaces hold null.
type board struct {
	Rows   int               `json:"rows"`
	Cols   int               `json:"cols"`
	Spaces map[string]*token `json:"spaces"`
}

func newBoard() *board {
	b := &board{Rows: rows, Cols: cols, Spaces: make(map[string]*token, rows*cols)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			b.Spaces[spaceKey(r, c)] = nil
		}
	}
	return b
}

func spaceKey(r, c int) string {
	return fmt.Sprintf("%d-%d", r, c)
}

func decodeBoard(st *game.State) (*board, error) {
	var b board
	if err := json.Unmarshal(st.Board, &b); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	return &b, nil
}

func (b *board) encode() (json.RawMessage, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode board: %w", err)
	}
	return data, nil
}

// full reports whether every space is occupied.
func (b *board) full() bool {
	for _, t := range b.Spaces {
		if t == nil {
			return false
		}
	}
	return true
}

// winner returns the owner id of a completed line, or "".
func (b *board) winner() string {
	for _, line := range winLines {
		first := b.Spaces[line[0]]
		if first == nil {
			continue
		}
		if second := b.Spaces[line[1]]; second == nil || second.OwnerID != first.OwnerID {
			continue
		}
		if third := b.Spaces[line[2]]; third == nil || third.OwnerID != first.OwnerID {
			continue
		}
		return first.OwnerID
	}
	return ""
}

// Engine implements game.Engine for tic-tac-toe.
type Engine struct{}

// New returns the tic-tac-toe engine.
func New() *Engine { return &Engine{} }

func (e *Engine) GameType() string    { return gameType }
func (e *Engine) Description() string { return "Classic 3x3 tic-tac-toe" }
func (e *Engine) MinPlayers() int     { return 2 }
func (e *Engine) MaxPlayers() int     { return 2 }

// NewGame builds the engine-owned fields: a fresh board, the main phase, and
// seat 0 to act. The server overlays ids, lifecycle, version and timestamps.
func (e *Engine) NewGame(players []game.Player, _ map[string]any) (*game.State, error) {
	if len(players) > e.MaxPlayers() {
		return nil, fmt.Errorf("tictactoe seats at most %d players, got %d", e.MaxPlayers(), len(players))
	}
	raw, err := newBoard().encode()
	if err != nil {
		return nil, err
	}
	return &game.State{
		GameType:           gameType,
		Players:            players,
		CurrentPlayerIndex: 0,
		Phase:              "main",
		Board:              raw,
		MoveHistory:        make([]game.Move, 0),
	}, nil
}

// ValidateMove checks turn order, the row/col parameters, and occupancy.
func (e *Engine) ValidateMove(st *game.State, playerID string, mv game.Move) game.Validation {
	b, err := decodeBoard(st)
	if err != nil {
		return game.Validation{Reason: err.Error()}
	}
	if b.winner() != "" || b.full() {
		return game.Validation{Reason: "game is already over"}
	}
	if e.CurrentPlayer(st) != playerID {
		return game.Validation{Reason: "not this player's turn"}
	}
	r, ok := intParam(mv.Parameters, "row")
	if !ok {
		return game.Validation{Reason: "missing or invalid row"}
	}
	c, ok := intParam(mv.Parameters, "col")
	if !ok {
		return game.Validation{Reason: "missing or invalid col"}
	}
	if r < 0 || r >= rows || c < 0 || c >= cols {
		return game.Validation{Reason: fmt.Sprintf("space %d-%d is out of bounds", r, c)}
	}
	if b.Spaces[spaceKey(r, c)] != nil {
		return game.Validation{Reason: fmt.Sprintf("space %d-%d is already occupied", r, c)}
	}
	return game.Validation{Valid: true}
}

// ApplyMove places the token, appends the move to the history, and advances
// the turn unless the move ended the game. The input state is not mutated.
func (e *Engine) ApplyMove(st *game.State, playerID string, mv game.Move) (*game.State, error) {
	if v := e.ValidateMove(st, playerID, mv); !v.Valid {
		return nil, fmt.Errorf("illegal move: %s", v.Reason)
	}

	next := st.Clone()
	b, err := decodeBoard(next)
	if err != nil {
		return nil, err
	}

	r, _ := intParam(mv.Parameters, "row")
	c, _ := intParam(mv.Parameters, "col")
	b.Spaces[spaceKey(r, c)] = &token{Type: tokenFor(next, playerID), OwnerID: playerID}

	raw, err := b.encode()
	if err != nil {
		return nil, err
	}
	next.Board = raw
	next.MoveHistory = append(next.MoveHistory, mv)

	if b.winner() == "" && !b.full() && len(next.Players) > 0 {
		next.CurrentPlayerIndex = (next.CurrentPlayerIndex + 1) % len(next.Players)
	}
	return next, nil
}

func (e *Engine) IsGameOver(st *game.State) bool {
	b, err := decodeBoard(st)
	if err != nil {
		return false
	}
	return b.winner() != "" || b.full()
}

func (e *Engine) Winner(st *game.State) string {
	b, err := decodeBoard(st)
	if err != nil {
		return ""
	}
	return b.winner()
}

func (e *Engine) CurrentPlayer(st *game.State) string {
	p, ok := st.CurrentPlayer()
	if !ok {
		return ""
	}
	return p.ID
}

func (e *Engine) AdvanceTurn(st *game.State) *game.State {
	next := st.Clone()
	if len(next.Players) > 0 {
		next.CurrentPlayerIndex = (next.CurrentPlayerIndex + 1) % len(next.Players)
	}
	return next
}

// RenderBoard draws the grid with X, O, and . for empty spaces.
func (e *Engine) RenderBoard(st *game.State) string {
	b, err := decodeBoard(st)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for r := 0; r < rows; r++ {
		cells := make([]string, cols)
		for c := 0; c < cols; c++ {
			cells[c] = "."
			if t := b.Spaces[spaceKey(r, c)]; t != nil {
				cells[c] = t.Type
			}
		}
		sb.WriteString(strings.Join(cells, " "))
		if r < rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// tokenFor maps a seat to its token type: seat 0 plays X, seat 1 plays O.
func tokenFor(st *game.State, playerID string) string {
	for i, p := range st.Players {
		if p.ID == playerID && i == 1 {
			return tokenO
		}
	}
	return tokenX
}

// intParam reads an integer move parameter, accepting the numeric types a
// JSON decode or direct Go caller may produce.
func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
