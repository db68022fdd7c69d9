package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/gametable/gametable/pkg/game"
)

// TacticalStrategy looks one move ahead: it takes an immediate win when one
// exists, otherwise blocks an opponent's immediate win, otherwise plays
// randomly. The lookahead runs entirely through the engine's pure ApplyMove,
// so the strategy knows nothing about any particular game's rules.
type TacticalStrategy struct{}

func (TacticalStrategy) ID() string            { return "tactical" }
func (TacticalStrategy) Budget() time.Duration { return 0 }

func (s TacticalStrategy) GenerateMove(_ context.Context, st *game.State, eng game.Engine, playerID string) (game.Move, error) {
	moves, err := candidateMoves(st, eng, playerID)
	if err != nil {
		return game.Move{}, err
	}
	if len(moves) == 0 {
		return game.Move{}, fmt.Errorf("%w: no valid candidate for %s", ErrNoLegalMove, playerID)
	}

	// Shuffle first so ties break randomly.
	aiShuffle(len(moves), func(i, j int) { moves[i], moves[j] = moves[j], moves[i] })

	// Take a winning move.
	for _, mv := range moves {
		if winsGame(st, eng, playerID, mv) {
			return mv, nil
		}
	}

	// Block an opponent who could win on the same space next turn.
	for _, mv := range moves {
		for _, opp := range st.Players {
			if opp.ID == playerID {
				continue
			}
			if winsGame(st, eng, opp.ID, game.Move{
				PlayerID:   opp.ID,
				Action:     mv.Action,
				Parameters: mv.Parameters,
			}) {
				return mv, nil
			}
		}
	}

	return moves[0], nil
}

// winsGame reports whether applying mv as playerID ends the game with
// playerID as the winner. Turn-order validation is bypassed by probing on a
// clone whose current seat is forced to the prober.
func winsGame(st *game.State, eng game.Engine, playerID string, mv game.Move) bool {
	probe := st.Clone()
	for i, p := range probe.Players {
		if p.ID == playerID {
			probe.CurrentPlayerIndex = i
			break
		}
	}
	after, err := eng.ApplyMove(probe, playerID, mv)
	if err != nil {
		return false
	}
	return eng.IsGameOver(after) && eng.Winner(after) == playerID
}
