package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/gametable/gametable/pkg/game"
)

// RandomStrategy plays a uniformly random valid move. It is the fallback for
// every AI seat and the baseline opponent for testing other strategies.
type RandomStrategy struct{}

func (RandomStrategy) ID() string            { return "random" }
func (RandomStrategy) Budget() time.Duration { return 0 }

// GenerateMove enumerates the empty spaces, keeps the engine-valid ones, and
// picks one at random.
func (RandomStrategy) GenerateMove(_ context.Context, st *game.State, eng game.Engine, playerID string) (game.Move, error) {
	moves, err := candidateMoves(st, eng, playerID)
	if err != nil {
		return game.Move{}, err
	}
	if len(moves) == 0 {
		return game.Move{}, fmt.Errorf("%w: no valid candidate for %s", ErrNoLegalMove, playerID)
	}
	return moves[aiIntn(len(moves))], nil
}
