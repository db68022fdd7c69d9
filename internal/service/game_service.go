// Package service holds the game manager and the move pipeline: everything
// between the transport layer and the repository. All game-state mutations
// funnel through here, serialized per game by the lock manager and persisted
// under optimistic concurrency.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gametable/gametable/internal/hub"
	"github.com/gametable/gametable/internal/lock"
	"github.com/gametable/gametable/internal/registry"
	"github.com/gametable/gametable/internal/repository"
	"github.com/gametable/gametable/pkg/game"
)

var (
	ErrUnknownGameType      = errors.New("unknown game type")
	ErrGameNotFound         = errors.New("game not found")
	ErrGameFull             = errors.New("game is full")
	ErrInvalidLifecycle     = errors.New("operation not allowed in this lifecycle")
	ErrPlayerAlreadyPresent = errors.New("player already in game")
)

// GameService manages game lifecycle: creation, joining, listing, abandoning.
// Move processing lives in MoveService.
type GameService struct {
	repo      repository.GameRepository
	engines   *registry.Registry
	locks     *lock.Manager
	publisher Publisher
}

// NewGameService creates a GameService.
func NewGameService(repo repository.GameRepository, engines *registry.Registry, locks *lock.Manager, publisher Publisher) *GameService {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &GameService{repo: repo, engines: engines, locks: locks, publisher: publisher}
}

// CreateGameInput declares a new game. Config is passed through to the
// engine; the keys "players" and "aiPlayers" additionally declare seats to
// fill at creation time.
type CreateGameInput struct {
	GameType    string
	Name        string
	Description string
	CreatorID   string
	Config      map[string]any
}

// CreateGame materializes declared seats, asks the engine for the initial
// state, overlays the managed fields, and persists version 1.
func (s *GameService) CreateGame(ctx context.Context, in CreateGameInput) (*game.State, error) {
	eng, ok := s.engines.Get(in.GameType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGameType, in.GameType)
	}

	players, err := seatsFromConfig(in.Config)
	if err != nil {
		return nil, err
	}
	if len(players) > eng.MaxPlayers() {
		return nil, fmt.Errorf("%w: %s seats at most %d players", ErrGameFull, in.GameType, eng.MaxPlayers())
	}

	st, err := eng.NewGame(players, in.Config)
	if err != nil {
		return nil, fmt.Errorf("initialize %s game: %w", in.GameType, err)
	}

	now := time.Now().UTC()
	st.GameID = uuid.NewString()
	st.GameType = in.GameType
	st.Players = players
	st.Version = 1
	st.CreatedAt = now
	st.UpdatedAt = now
	st.Lifecycle = lifecycleForCount(len(players), eng.MinPlayers())
	if st.MoveHistory == nil {
		st.MoveHistory = make([]game.Move, 0)
	}

	if st.Metadata == nil {
		st.Metadata = make(map[string]any)
	}
	if in.CreatorID != "" {
		st.Metadata[game.MetaCreatorID] = in.CreatorID
	}
	if in.Name != "" {
		st.Metadata[game.MetaName] = in.Name
	}
	if in.Description != "" {
		st.Metadata[game.MetaDescription] = in.Description
	}
	applyAISummary(st)

	if err := s.repo.Save(ctx, st); err != nil {
		return nil, err
	}

	log.Info().Str("gameId", st.GameID).Str("gameType", in.GameType).
		Int("players", len(players)).Str("lifecycle", string(st.Lifecycle)).
		Msg("game created")

	if h, ok := eng.(game.CreatedHook); ok {
		h.OnGameCreated(ctx, st)
	}
	if st.Lifecycle == game.LifecycleActive {
		if h, ok := eng.(game.StartedHook); ok {
			h.OnGameStarted(ctx, st)
		}
		s.notifyTurn(eng, st)
	}
	return st, nil
}

// JoinGameInput seats a player in an existing game.
type JoinGameInput struct {
	GameID     string
	PlayerID   string
	PlayerName string
	Metadata   map[string]any
}

// JoinGame appends a seat and recomputes the lifecycle. Runs under the
// per-game lock so concurrent joins serialize.
func (s *GameService) JoinGame(ctx context.Context, in JoinGameInput) (*game.State, error) {
	var joined *game.State
	err := s.locks.WithLock(ctx, in.GameID, func(ctx context.Context) error {
		st, eng, err := s.loadWithEngine(ctx, in.GameID)
		if err != nil {
			return err
		}
		if len(st.Players) >= eng.MaxPlayers() {
			return fmt.Errorf("%w: %s", ErrGameFull, in.GameID)
		}
		switch st.Lifecycle {
		case game.LifecycleCreated, game.LifecycleWaiting, game.LifecycleActive:
		default:
			return fmt.Errorf("%w: cannot join a %s game", ErrInvalidLifecycle, st.Lifecycle)
		}
		if st.HasPlayer(in.PlayerID) {
			return fmt.Errorf("%w: %s", ErrPlayerAlreadyPresent, in.PlayerID)
		}

		name := in.PlayerName
		if name == "" {
			name = in.PlayerID
		}
		p := game.Player{
			ID:       in.PlayerID,
			Name:     name,
			JoinedAt: time.Now().UTC(),
			Metadata: in.Metadata,
		}

		expected := st.Version
		next := st.Clone()
		next.Players = append(next.Players, p)
		activated := false
		if next.Lifecycle != game.LifecycleActive && len(next.Players) >= eng.MinPlayers() {
			next.Lifecycle = game.LifecycleActive
			activated = true
		}
		next.Version = expected + 1
		next.UpdatedAt = time.Now().UTC()
		applyAISummary(next)

		if err := s.repo.Update(ctx, in.GameID, next, expected); err != nil {
			return err
		}

		log.Info().Str("gameId", in.GameID).Str("playerId", in.PlayerID).
			Bool("activated", activated).Int("players", len(next.Players)).
			Msg("player joined")

		if h, ok := eng.(game.PlayerJoinedHook); ok {
			h.OnPlayerJoined(ctx, next, p)
		}
		if activated {
			if h, ok := eng.(game.StartedHook); ok {
				h.OnGameStarted(ctx, next)
			}
			s.notifyTurn(eng, next)
		}
		s.publisher.BroadcastToGame(in.GameID, hub.NewGameUpdate(next, false))

		joined = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

// GetGame returns a game by id.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*game.State, error) {
	st, err := s.repo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	applyAISummary(st)
	return st, nil
}

// ListGamesInput filters and pages the game listing.
type ListGamesInput struct {
	PlayerID  string
	GameType  string
	Lifecycle game.Lifecycle
	Page      int
	PageSize  int
}

// ListGames returns games matching the filters, newest first.
func (s *GameService) ListGames(ctx context.Context, in ListGamesInput) (*repository.GameList, error) {
	f := repository.Filters{
		GameType:  in.GameType,
		Lifecycle: in.Lifecycle,
		Page:      in.Page,
		PageSize:  in.PageSize,
	}

	var list *repository.GameList
	var err error
	if in.PlayerID != "" {
		list, err = s.repo.FindByPlayer(ctx, in.PlayerID, f)
	} else {
		list, err = s.repo.FindAll(ctx, f)
	}
	if err != nil {
		return nil, err
	}
	for i := range list.Games {
		applyAISummary(&list.Games[i])
	}
	return list, nil
}

// AbandonGame marks a non-terminal game abandoned. Only a seated player may
// abandon. Runs under the per-game lock.
func (s *GameService) AbandonGame(ctx context.Context, gameID, requesterID string) (*game.State, error) {
	var abandoned *game.State
	err := s.locks.WithLock(ctx, gameID, func(ctx context.Context) error {
		st, _, err := s.loadWithEngine(ctx, gameID)
		if err != nil {
			return err
		}
		if !st.HasPlayer(requesterID) {
			return fmt.Errorf("%w: %s is not in game %s", ErrUnauthorizedMove, requesterID, gameID)
		}
		if st.Lifecycle.Terminal() {
			return fmt.Errorf("%w: game is already %s", ErrInvalidLifecycle, st.Lifecycle)
		}

		expected := st.Version
		next := st.Clone()
		next.Lifecycle = game.LifecycleAbandoned
		next.Version = expected + 1
		next.UpdatedAt = time.Now().UTC()

		if err := s.repo.Update(ctx, gameID, next, expected); err != nil {
			return err
		}

		log.Info().Str("gameId", gameID).Str("playerId", requesterID).Msg("game abandoned")
		s.publisher.BroadcastToGame(gameID, hub.NewGameUpdate(next, false))

		abandoned = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return abandoned, nil
}

// loadWithEngine loads a game and resolves its engine.
func (s *GameService) loadWithEngine(ctx context.Context, gameID string) (*game.State, game.Engine, error) {
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

// notifyTurn tells the current player their turn has begun. Best-effort.
func (s *GameService) notifyTurn(eng game.Engine, st *game.State) {
	if pid := eng.CurrentPlayer(st); pid != "" {
		s.publisher.SendToUser(pid, hub.NewTurnNotification(st.GameID, pid))
	}
}

// lifecycleForCount picks the birth lifecycle from the declared seat count.
func lifecycleForCount(count, minPlayers int) game.Lifecycle {
	switch {
	case count == 0:
		return game.LifecycleCreated
	case count < minPlayers:
		return game.LifecycleWaiting
	default:
		return game.LifecycleActive
	}
}

// applyAISummary refreshes the derived AI metadata on a state.
func applyAISummary(st *game.State) {
	if st.Metadata == nil {
		st.Metadata = make(map[string]any)
	}
	n := st.AIPlayerCount()
	st.Metadata[game.MetaHasAIPlayers] = n > 0
	st.Metadata[game.MetaAIPlayerCount] = n
}

// seatsFromConfig materializes the seats declared in a create request:
// "players" lists human seats, "aiPlayers" declares AI seats either as a
// count or as a list of {name, strategyId} entries.
func seatsFromConfig(config map[string]any) ([]game.Player, error) {
	now := time.Now().UTC()
	var players []game.Player
	seen := make(map[string]bool)

	if raw, ok := config["players"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("config players must be a list")
		}
		for _, entry := range list {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("config players entries must be objects")
			}
			id, _ := m["id"].(string)
			if id == "" {
				return nil, fmt.Errorf("config players entries need an id")
			}
			if seen[id] {
				return nil, fmt.Errorf("%w: %s", ErrPlayerAlreadyPresent, id)
			}
			seen[id] = true
			name, _ := m["name"].(string)
			if name == "" {
				name = id
			}
			meta, _ := m["metadata"].(map[string]any)
			players = append(players, game.Player{ID: id, Name: name, JoinedAt: now, Metadata: meta})
		}
	}

	aiSeats, err := aiSeatsFromConfig(config)
	if err != nil {
		return nil, err
	}
	for i, seat := range aiSeats {
		id := fmt.Sprintf("ai-%s", uuid.NewString()[:8])
		name := seat.name
		if name == "" {
			name = fmt.Sprintf("AI %d", i+1)
		}
		strategy := seat.strategy
		if strategy == "" {
			strategy = "random"
		}
		players = append(players, game.Player{
			ID:       id,
			Name:     name,
			JoinedAt: now,
			Metadata: map[string]any{game.MetaIsAI: true, game.MetaStrategyID: strategy},
		})
	}
	return players, nil
}

type aiSeatDecl struct {
	name     string
	strategy string
}

func aiSeatsFromConfig(config map[string]any) ([]aiSeatDecl, error) {
	raw, ok := config["aiPlayers"]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case int:
		return make([]aiSeatDecl, v), nil
	case float64:
		return make([]aiSeatDecl, int(v)), nil
	case []any:
		seats := make([]aiSeatDecl, 0, len(v))
		for _, entry := range v {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("config aiPlayers entries must be objects")
			}
			name, _ := m["name"].(string)
			strategy, _ := m["strategyId"].(string)
			seats = append(seats, aiSeatDecl{name: name, strategy: strategy})
		}
		return seats, nil
	default:
		return nil, fmt.Errorf("config aiPlayers must be a count or a list")
	}
}
