package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gametable/gametable/internal/ai"
	"github.com/gametable/gametable/internal/hub"
	"github.com/gametable/gametable/internal/lock"
	"github.com/gametable/gametable/internal/registry"
	"github.com/gametable/gametable/internal/repository"
	"github.com/gametable/gametable/pkg/game"
)

var (
	ErrUnauthorizedMove = errors.New("not authorized to move")
	ErrInvalidMove      = errors.New("invalid move")
)

// maxAIIterations bounds the AI chain per human move. A well-behaved engine
// ends or reaches a human seat long before this; the cap protects the lock
// holder from a plugin whose turn order cycles through AI seats forever.
const maxAIIterations = 10

// MoveService is the move pipeline. ApplyMove serializes per game, validates
// through the engine, persists under optimistic concurrency, publishes to
// subscribers, and drives any consecutive AI turns before returning.
type MoveService struct {
	repo      repository.GameRepository
	engines   *registry.Registry
	locks     *lock.Manager
	publisher Publisher
	driver    *ai.Driver
}

// NewMoveService creates a MoveService.
func NewMoveService(repo repository.GameRepository, engines *registry.Registry, locks *lock.Manager, publisher Publisher, driver *ai.Driver) *MoveService {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &MoveService{repo: repo, engines: engines, locks: locks, publisher: publisher, driver: driver}
}

// ApplyMove runs the whole pipeline for one player move inside the per-game
// lock: load, gate, authorize, validate, apply, persist with expectedVersion
// as the CAS guard, publish, then chain AI turns while it stays an AI's
// turn. The returned state is the last one persisted, post-AI-chain.
func (s *MoveService) ApplyMove(ctx context.Context, gameID, playerID string, mv game.Move, expectedVersion int64) (*game.State, error) {
	var final *game.State
	err := s.locks.WithLock(ctx, gameID, func(ctx context.Context) error {
		st, eng, err := s.loadWithEngine(ctx, gameID)
		if err != nil {
			return err
		}

		// Early staleness gate. The repository CAS would catch this at
		// persist time anyway, but failing here keeps a stale client from
		// reading as "not your turn" when the turn has since passed.
		if expectedVersion != st.Version {
			return fmt.Errorf("%w: expected version %d, game is at %d", repository.ErrStaleState, expectedVersion, st.Version)
		}

		switch st.Lifecycle {
		case game.LifecycleActive:
		case game.LifecycleCompleted:
			return fmt.Errorf("%w: game is already completed", ErrInvalidLifecycle)
		default:
			return fmt.Errorf("%w: game is %s", ErrInvalidLifecycle, st.Lifecycle)
		}

		if !st.HasPlayer(playerID) {
			return fmt.Errorf("%w: %s is not in game %s", ErrUnauthorizedMove, playerID, gameID)
		}
		if current := eng.CurrentPlayer(st); current != playerID {
			return fmt.Errorf("%w: it is not %s's turn", ErrUnauthorizedMove, playerID)
		}

		post, err := s.applyOne(ctx, eng, st, playerID, mv, false)
		if err != nil {
			return err
		}
		final = post

		if post.Lifecycle == game.LifecycleActive {
			final = s.runAIChain(ctx, eng, post)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

// ValidateMove is the advisory dry-run: no lock, no mutation, no
// authorization beyond what the engine itself checks.
func (s *MoveService) ValidateMove(ctx context.Context, gameID, playerID string, mv game.Move) (game.Validation, error) {
	st, eng, err := s.loadWithEngine(ctx, gameID)
	if err != nil {
		return game.Validation{}, err
	}
	return eng.ValidateMove(st, playerID, mv), nil
}

// applyOne performs one validated move transition and persists it: hooks,
// engine validate + apply, game-over handling, CAS update, publishes. The
// caller has already authorized playerID and holds the game lock.
func (s *MoveService) applyOne(ctx context.Context, eng game.Engine, st *game.State, playerID string, mv game.Move, byAI bool) (*game.State, error) {
	hooks, _ := eng.(game.MoveHooks)
	if hooks != nil {
		hooks.BeforeApplyMove(ctx, st, mv)
	}

	if v := eng.ValidateMove(st, playerID, mv); !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMove, v.Reason)
	}

	// The server, not the client, decides who moved and when.
	now := time.Now().UTC()
	mv.PlayerID = playerID
	mv.Timestamp = now

	post, err := eng.ApplyMove(st, playerID, mv)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMove, err)
	}

	if eng.IsGameOver(post) {
		post.Lifecycle = game.LifecycleCompleted
		post.Winner = eng.Winner(post)
		if post.Metadata == nil {
			post.Metadata = make(map[string]any)
		}
		post.Metadata[game.MetaIsDraw] = post.Winner == ""
	}

	expected := st.Version
	post.Version = expected + 1
	post.UpdatedAt = now

	if err := s.repo.Update(ctx, st.GameID, post, expected); err != nil {
		return nil, err
	}

	log.Info().Str("gameId", st.GameID).Str("playerId", playerID).
		Int64("version", post.Version).Bool("byAI", byAI).
		Str("lifecycle", string(post.Lifecycle)).
		Msg("move applied")

	s.publisher.BroadcastToGame(st.GameID, hub.NewGameUpdate(post, byAI))
	if hooks != nil {
		hooks.AfterApplyMove(ctx, st, post, mv)
	}

	if post.Lifecycle == game.LifecycleCompleted {
		if h, ok := eng.(game.EndedHook); ok {
			h.OnGameEnded(ctx, post)
		}
		s.publisher.BroadcastToGame(st.GameID, hub.NewGameComplete(post))
	} else if pid := eng.CurrentPlayer(post); pid != "" {
		s.publisher.SendToUser(pid, hub.NewTurnNotification(st.GameID, pid))
	}
	return post, nil
}

// runAIChain advances consecutive AI seats while the game stays active,
// re-reading the repository between iterations. Any failure ends the chain;
// the preceding persisted moves stand. Always returns the latest state it
// trusts.
func (s *MoveService) runAIChain(ctx context.Context, eng game.Engine, st *game.State) *game.State {
	current := st
	for i := 0; i < maxAIIterations; i++ {
		if current.Lifecycle != game.LifecycleActive {
			return current
		}
		pid := eng.CurrentPlayer(current)
		if pid == "" {
			return current
		}
		seat, ok := current.PlayerByID(pid)
		if !ok || !seat.IsAI() {
			return current
		}

		mv, err := s.driver.GenerateMove(ctx, current, eng, pid)
		if err != nil {
			log.Warn().Err(err).Str("gameId", current.GameID).Str("playerId", pid).
				Msg("AI turn failed, ending chain")
			return current
		}

		post, err := s.applyOne(ctx, eng, current, pid, mv, true)
		if err != nil {
			log.Error().Err(err).Str("gameId", current.GameID).Str("playerId", pid).
				Msg("persisting AI move failed, ending chain")
			return current
		}

		// The repository, not the in-memory copy, is the source of truth
		// between iterations.
		reloaded, err := s.repo.FindByID(ctx, current.GameID)
		if err != nil || reloaded == nil {
			log.Error().Err(err).Str("gameId", current.GameID).Msg("reload after AI move failed")
			return post
		}
		current = reloaded
	}

	log.Warn().Str("gameId", current.GameID).Int("iterations", maxAIIterations).
		Msg("AI chain hit iteration cap")
	return current
}

// loadWithEngine loads a game and resolves its engine.
func (s *MoveService) loadWithEngine(ctx context.Context, gameID string) (*game.State, game.Engine, error) {
	st, err := s.repo.FindByID(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	if st == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	eng, ok := s.engines.Get(st.GameType)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownGameType, st.GameType)
	}
	return st, eng, nil
}
