// Package ai drives AI-occupied seats: a registry of move-generation
// strategies plus the bounded, budgeted machinery that asks a strategy for a
// move and re-validates it through the game engine before it is trusted.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gametable/gametable/pkg/game"
)

var (
	// ErrNoLegalMove means a strategy could not produce a valid move within
	// its budget. It ends the AI chain; it never reaches the HTTP API.
	ErrNoLegalMove = errors.New("no legal move")

	ErrDuplicateStrategy = errors.New("strategy already registered")
	ErrUnknownStrategy   = errors.New("unknown strategy")
)

// DefaultStrategyID is used for AI seats that declare no strategy, or whose
// declared strategy is not registered.
const DefaultStrategyID = "random"

// defaultBudget bounds a strategy call whose Budget() is zero.
const defaultBudget = 500 * time.Millisecond

// Strategy synthesizes a move for an AI seat. GenerateMove receives a private
// clone of the state, so strategies may scribble on it freely.
type Strategy interface {
	ID() string
	// Budget is the advisory time limit per move; zero means the default.
	Budget() time.Duration
	GenerateMove(ctx context.Context, st *game.State, eng game.Engine, playerID string) (game.Move, error)
}

// Driver resolves a seat's strategy and runs it under its time budget.
type Driver struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewDriver returns a driver with the reference strategies registered.
func NewDriver() *Driver {
	d := &Driver{strategies: make(map[string]Strategy)}
	d.Register(&RandomStrategy{})
	d.Register(&TacticalStrategy{})
	return d
}

// Register adds a strategy under its id.
func (d *Driver) Register(s Strategy) error {
	id := s.ID()
	if id == "" {
		return errors.New("strategy has an empty id")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.strategies[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, id)
	}
	d.strategies[id] = s
	return nil
}

// Strategy returns a registered strategy by id.
func (d *Driver) Strategy(id string) (Strategy, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.strategies[id]
	return s, ok
}

// strategyFor resolves the strategy for a seat from its metadata, falling
// back to the default for unknown or empty ids.
func (d *Driver) strategyFor(p game.Player) Strategy {
	id := p.StrategyID()
	if s, ok := d.Strategy(id); ok {
		return s
	}
	if id != "" {
		log.Warn().Str("playerId", p.ID).Str("strategyId", id).Msg("unknown strategy, falling back to random")
	}
	s, _ := d.Strategy(DefaultStrategyID)
	return s
}

// GenerateMove produces a validated move for the AI seat playerID. The
// strategy runs against a clone of st under its time budget; a move the
// engine rejects, a strategy error, or a blown budget all surface as
// ErrNoLegalMove.
func (d *Driver) GenerateMove(ctx context.Context, st *game.State, eng game.Engine, playerID string) (game.Move, error) {
	seat, ok := st.PlayerByID(playerID)
	if !ok {
		return game.Move{}, fmt.Errorf("player %s is not in game %s", playerID, st.GameID)
	}
	if !seat.IsAI() {
		return game.Move{}, fmt.Errorf("player %s is not an AI seat", playerID)
	}

	strat := d.strategyFor(seat)
	budget := strat.Budget()
	if budget <= 0 {
		budget = defaultBudget
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type result struct {
		mv  game.Move
		err error
	}
	ch := make(chan result, 1)
	snapshot := st.Clone()
	go func() {
		mv, err := strat.GenerateMove(ctx, snapshot, eng, playerID)
		ch <- result{mv, err}
	}()

	var mv game.Move
	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, ErrNoLegalMove) {
				return game.Move{}, res.err
			}
			return game.Move{}, fmt.Errorf("%w: strategy %s: %v", ErrNoLegalMove, strat.ID(), res.err)
		}
		mv = res.mv
	case <-ctx.Done():
		return game.Move{}, fmt.Errorf("%w: strategy %s exceeded its %s budget", ErrNoLegalMove, strat.ID(), budget)
	}

	// Never trust a strategy's output blindly.
	if v := eng.ValidateMove(st, playerID, mv); !v.Valid {
		return game.Move{}, fmt.Errorf("%w: strategy %s produced an invalid move: %s", ErrNoLegalMove, strat.ID(), v.Reason)
	}
	return mv, nil
}
