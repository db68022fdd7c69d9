package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gametable/gametable/pkg/game"
)

// spacesBoard is the minimal view of a position-based board: a map of
// "row-col" space ids to occupants, where null marks an empty space. Engines
// that lay their boards out this way get candidate enumeration for free.
type spacesBoard struct {
	Spaces map[string]json.RawMessage `json:"spaces"`
}

// candidateMoves enumerates one candidate move per empty space and keeps the
// ones the engine validates for playerID. Board shapes without a spaces map
// yield no candidates.
func candidateMoves(st *game.State, eng game.Engine, playerID string) ([]game.Move, error) {
	if len(st.Board) == 0 {
		return nil, fmt.Errorf("game %s has no board", st.GameID)
	}
	var b spacesBoard
	if err := json.Unmarshal(st.Board, &b); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}

	var moves []game.Move
	for id, occupant := range b.Spaces {
		if !isJSONNull(occupant) {
			continue
		}
		row, col, ok := parseSpaceID(id)
		if !ok {
			continue
		}
		mv := game.Move{
			PlayerID:   playerID,
			Parameters: map[string]any{"row": row, "col": col},
		}
		if v := eng.ValidateMove(st, playerID, mv); v.Valid {
			moves = append(moves, mv)
		}
	}
	return moves, nil
}

// parseSpaceID splits a "row-col" space id into coordinates.
func parseSpaceID(id string) (row, col int, ok bool) {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	row, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	col, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return row, col, true
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
