package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gametable/gametable/internal/lock"
	"github.com/gametable/gametable/internal/registry"
	"github.com/gametable/gametable/internal/repository"
	"github.com/gametable/gametable/pkg/game"
	"github.com/gametable/gametable/pkg/games/tictactoe"
)

func newTestRegistry(t *testing.T, engines ...game.Engine) *registry.Registry {
	t.Helper()
	reg := registry.New()
	if len(engines) == 0 {
		engines = []game.Engine{tictactoe.New()}
	}
	for _, e := range engines {
		if err := reg.Register(e); err != nil {
			t.Fatalf("register %s: %v", e.GameType(), err)
		}
	}
	return reg
}

func twoHumans() map[string]any {
	return map[string]any{
		"players": []any{
			map[string]any{"id": "alice", "name": "Alice"},
			map[string]any{"id": "bob", "name": "Bob"},
		},
	}
}

func TestCreateGameLifecycleFromSeatCount(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		want   game.Lifecycle
	}{
		{"no seats", nil, game.LifecycleCreated},
		{"one of two", map[string]any{
			"players": []any{map[string]any{"id": "alice"}},
		}, game.LifecycleWaiting},
		{"full", twoHumans(), game.LifecycleActive},
		{"human plus AI", map[string]any{
			"players":   []any{map[string]any{"id": "alice"}},
			"aiPlayers": 1,
		}, game.LifecycleActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			svc := NewGameService(repo, newTestRegistry(t), lock.NewManager(), nil)

			st, err := svc.CreateGame(context.Background(), CreateGameInput{
				GameType: "tictactoe",
				Config:   tt.config,
			})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if st.Lifecycle != tt.want {
				t.Errorf("lifecycle = %s, want %s", st.Lifecycle, tt.want)
			}
			if st.Version != 1 {
				t.Errorf("version = %d, want 1", st.Version)
			}
			if repo.stored(st.GameID) == nil {
				t.Error("game not persisted")
			}
		})
	}
}

func TestCreateGameMaterializesAISeats(t *testing.T) {
	svc := NewGameService(newMockRepo(), newTestRegistry(t), lock.NewManager(), nil)

	st, err := svc.CreateGame(context.Background(), CreateGameInput{
		GameType:  "tictactoe",
		Name:      "bots only",
		CreatorID: "alice",
		Config: map[string]any{
			"aiPlayers": []any{
				map[string]any{"strategyId": "tactical"},
				map[string]any{"name": "Robby"},
			},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(st.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(st.Players))
	}
	if !st.Players[0].IsAI() || st.Players[0].StrategyID() != "tactical" {
		t.Errorf("seat 0 = %+v, want AI with tactical strategy", st.Players[0])
	}
	if st.Players[1].Name != "Robby" || st.Players[1].StrategyID() != "random" {
		t.Errorf("seat 1 = %+v, want Robby with default strategy", st.Players[1])
	}
	if st.Metadata[game.MetaHasAIPlayers] != true || st.Metadata[game.MetaAIPlayerCount] != 2 {
		t.Errorf("AI summary metadata = %v", st.Metadata)
	}
	if st.Metadata[game.MetaCreatorID] != "alice" || st.Metadata[game.MetaName] != "bots only" {
		t.Errorf("managed metadata = %v", st.Metadata)
	}
}

func TestCreateGameUnknownType(t *testing.T) {
	svc := NewGameService(newMockRepo(), newTestRegistry(t), lock.NewManager(), nil)

	_, err := svc.CreateGame(context.Background(), CreateGameInput{GameType: "chess"})
	if !errors.Is(err, ErrUnknownGameType) {
		t.Fatalf("want ErrUnknownGameType, got %v", err)
	}
}

func TestCreateGameTooManySeats(t *testing.T) {
	svc := NewGameService(newMockRepo(), newTestRegistry(t), lock.NewManager(), nil)

	_, err := svc.CreateGame(context.Background(), CreateGameInput{
		GameType: "tictactoe",
		Config:   map[string]any{"aiPlayers": 3},
	})
	if !errors.Is(err, ErrGameFull) {
		t.Fatalf("want ErrGameFull, got %v", err)
	}
}

func TestCreateGameFiresHooks(t *testing.T) {
	eng := &hookEngine{Engine: tictactoe.New()}
	svc := NewGameService(newMockRepo(), newTestRegistry(t, eng), lock.NewManager(), nil)

	if _, err := svc.CreateGame(context.Background(), CreateGameInput{
		GameType: "tictactoe",
		Config:   twoHumans(),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	fired := eng.firedHooks()
	if len(fired) != 2 || fired[0] != "created" || fired[1] != "started" {
		t.Fatalf("hooks = %v, want [created started]", fired)
	}
}

func TestJoinGameActivates(t *testing.T) {
	repo := newMockRepo()
	pub := &mockPublisher{}
	svc := NewGameService(repo, newTestRegistry(t), lock.NewManager(), pub)

	st, err := svc.CreateGame(context.Background(), CreateGameInput{
		GameType: "tictactoe",
		Config:   map[string]any{"players": []any{map[string]any{"id": "alice"}}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if st.Lifecycle != game.LifecycleWaiting {
		t.Fatalf("lifecycle = %s, want waiting", st.Lifecycle)
	}

	joined, err := svc.JoinGame(context.Background(), JoinGameInput{GameID: st.GameID, PlayerID: "bob", PlayerName: "Bob"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Lifecycle != game.LifecycleActive {
		t.Errorf("lifecycle = %s, want active", joined.Lifecycle)
	}
	if joined.Version != 2 {
		t.Errorf("version = %d, want 2", joined.Version)
	}
	if len(joined.Players) != 2 || joined.Players[1].ID != "bob" {
		t.Errorf("players = %+v", joined.Players)
	}

	// Activation pushes a GAME_UPDATE to subscribers and a turn notification
	// to the seat that opens.
	if got := pub.broadcastEvents(); len(got) != 1 || got[0].target != st.GameID {
		t.Errorf("broadcasts = %+v, want one for the game", got)
	}
	if got := pub.directEvents(); len(got) != 1 || got[0].target != "alice" {
		t.Errorf("directs = %+v, want one turn notification to alice", got)
	}
}

func TestJoinGameErrors(t *testing.T) {
	repo := newMockRepo()
	svc := NewGameService(repo, newTestRegistry(t), lock.NewManager(), nil)

	full, err := svc.CreateGame(context.Background(), CreateGameInput{GameType: "tictactoe", Config: twoHumans()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	abandoned, err := svc.CreateGame(context.Background(), CreateGameInput{
		GameType: "tictactoe",
		Config:   map[string]any{"players": []any{map[string]any{"id": "alice"}}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.AbandonGame(context.Background(), abandoned.GameID, "alice"); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	tests := []struct {
		name     string
		gameID   string
		playerID string
		want     error
	}{
		{"missing game", "nope", "carol", ErrGameNotFound},
		{"full game", full.GameID, "carol", ErrGameFull},
		{"terminal lifecycle", abandoned.GameID, "carol", ErrInvalidLifecycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.JoinGame(context.Background(), JoinGameInput{GameID: tt.gameID, PlayerID: tt.playerID})
			if !errors.Is(err, tt.want) {
				t.Fatalf("join err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestJoinGameDuplicatePlayer(t *testing.T) {
	svc := NewGameService(newMockRepo(), newTestRegistry(t), lock.NewManager(), nil)

	st, err := svc.CreateGame(context.Background(), CreateGameInput{
		GameType: "tictactoe",
		Config:   map[string]any{"players": []any{map[string]any{"id": "alice"}}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.JoinGame(context.Background(), JoinGameInput{GameID: st.GameID, PlayerID: "alice"}); !errors.Is(err, ErrPlayerAlreadyPresent) {
		t.Fatalf("want ErrPlayerAlreadyPresent, got %v", err)
	}
}

func TestConcurrentJoinsSeatOnlyMax(t *testing.T) {
	svc := NewGameService(newMockRepo(), newTestRegistry(t), lock.NewManager(), nil)

	st, err := svc.CreateGame(context.Background(), CreateGameInput{GameType: "tictactoe"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const joiners = 10
	var wg sync.WaitGroup
	errs := make([]error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = svc.JoinGame(context.Background(), JoinGameInput{
				GameID:   st.GameID,
				PlayerID: string(rune('a' + n)),
			})
		}(i)
	}
	wg.Wait()

	seated := 0
	for _, err := range errs {
		if err == nil {
			seated++
		} else if !errors.Is(err, ErrGameFull) {
			t.Errorf("unexpected join error: %v", err)
		}
	}
	if seated != 2 {
		t.Fatalf("seated = %d, want exactly 2", seated)
	}

	final, err := svc.GetGame(context.Background(), st.GameID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(final.Players) != 2 || final.Lifecycle != game.LifecycleActive {
		t.Fatalf("final state: %d players, lifecycle %s", len(final.Players), final.Lifecycle)
	}
}

func TestGetGameNotFound(t *testing.T) {
	svc := NewGameService(newMockRepo(), newTestRegistry(t), lock.NewManager(), nil)
	if _, err := svc.GetGame(context.Background(), "nope"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("want ErrGameNotFound, got %v", err)
	}
}

func TestListGamesFilters(t *testing.T) {
	svc := NewGameService(newMockRepo(), newTestRegistry(t), lock.NewManager(), nil)

	if _, err := svc.CreateGame(context.Background(), CreateGameInput{GameType: "tictactoe", Config: twoHumans()}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateGame(context.Background(), CreateGameInput{GameType: "tictactoe"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := svc.ListGames(context.Background(), ListGamesInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if all.Total != 2 {
		t.Errorf("total = %d, want 2", all.Total)
	}

	alices, err := svc.ListGames(context.Background(), ListGamesInput{PlayerID: "alice"})
	if err != nil {
		t.Fatalf("list by player: %v", err)
	}
	if alices.Total != 1 {
		t.Errorf("alice's games = %d, want 1", alices.Total)
	}

	active, err := svc.ListGames(context.Background(), ListGamesInput{Lifecycle: game.LifecycleActive})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if active.Total != 1 {
		t.Errorf("active games = %d, want 1", active.Total)
	}

	for _, st := range all.Games {
		if _, ok := st.Metadata[game.MetaAIPlayerCount]; !ok {
			t.Errorf("game %s missing AI summary", st.GameID)
		}
	}
}

func TestAbandonGame(t *testing.T) {
	repo := newMockRepo()
	svc := NewGameService(repo, newTestRegistry(t), lock.NewManager(), nil)

	st, err := svc.CreateGame(context.Background(), CreateGameInput{GameType: "tictactoe", Config: twoHumans()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.AbandonGame(context.Background(), st.GameID, "stranger"); !errors.Is(err, ErrUnauthorizedMove) {
		t.Fatalf("stranger abandon err = %v, want ErrUnauthorizedMove", err)
	}

	got, err := svc.AbandonGame(context.Background(), st.GameID, "alice")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if got.Lifecycle != game.LifecycleAbandoned || got.Version != 2 {
		t.Fatalf("abandoned state: lifecycle %s version %d", got.Lifecycle, got.Version)
	}

	if _, err := svc.AbandonGame(context.Background(), st.GameID, "alice"); !errors.Is(err, ErrInvalidLifecycle) {
		t.Fatalf("second abandon err = %v, want ErrInvalidLifecycle", err)
	}
}

func TestJoinSurfacesStaleState(t *testing.T) {
	repo := newMockRepo()
	svc := NewGameService(repo, newTestRegistry(t), lock.NewManager(), nil)

	st, err := svc.CreateGame(context.Background(), CreateGameInput{GameType: "tictactoe"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	repo.updateErr = repository.ErrStaleState
	if _, err := svc.JoinGame(context.Background(), JoinGameInput{GameID: st.GameID, PlayerID: "alice"}); !errors.Is(err, repository.ErrStaleState) {
		t.Fatalf("want ErrStaleState passthrough, got %v", err)
	}
}
