package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/gametable/gametable/internal/repository"
	"github.com/gametable/gametable/pkg/game"
)

// mockRepo is a map-backed repository.GameRepository with CAS semantics and
// injectable failures.
type mockRepo struct {
	mu        sync.Mutex
	games     map[string]*game.State
	saveErr   error
	updateErr error
	updates   int
}

func newMockRepo() *mockRepo {
	return &mockRepo{games: make(map[string]*game.State)}
}

func (m *mockRepo) Save(_ context.Context, st *game.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, exists := m.games[st.GameID]; exists {
		return fmt.Errorf("%w: %s", repository.ErrAlreadyExists, st.GameID)
	}
	m.games[st.GameID] = st.Clone()
	return nil
}

func (m *mockRepo) FindByID(_ context.Context, id string) (*game.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (m *mockRepo) Update(_ context.Context, id string, st *game.State, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.games[id]
	if !ok || stored.Version != expectedVersion {
		return fmt.Errorf("%w: %s not at version %d", repository.ErrStaleState, id, expectedVersion)
	}
	m.games[id] = st.Clone()
	m.updates++
	return nil
}

func (m *mockRepo) FindAll(_ context.Context, f repository.Filters) (*repository.GameList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f = f.Normalize()

	var matched []game.State
	for _, st := range m.games {
		if f.GameType != "" && st.GameType != f.GameType {
			continue
		}
		if f.Lifecycle != "" && st.Lifecycle != f.Lifecycle {
			continue
		}
		if f.PlayerID != "" && !st.HasPlayer(f.PlayerID) {
			continue
		}
		matched = append(matched, *st.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].GameID < matched[j].GameID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (f.Page - 1) * f.PageSize
	if start > total {
		start = total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	return &repository.GameList{Games: matched[start:end], Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

func (m *mockRepo) FindByPlayer(ctx context.Context, playerID string, f repository.Filters) (*repository.GameList, error) {
	f.PlayerID = playerID
	return m.FindAll(ctx, f)
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.games, id)
	return nil
}

// stored returns the persisted state without cloning, for assertions.
func (m *mockRepo) stored(id string) *game.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.games[id]
}

// mockPublisher records everything published.
type mockPublisher struct {
	mu         sync.Mutex
	broadcasts []publishedEvent
	directs    []publishedEvent
}

type publishedEvent struct {
	target string // game id for broadcasts, user id for directs
	event  any
}

func (p *mockPublisher) BroadcastToGame(gameID string, event any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = append(p.broadcasts, publishedEvent{target: gameID, event: event})
}

func (p *mockPublisher) SendToUser(userID string, event any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.directs = append(p.directs, publishedEvent{target: userID, event: event})
}

func (p *mockPublisher) broadcastEvents() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.broadcasts...)
}

func (p *mockPublisher) directEvents() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.directs...)
}

// loopEngine is a pathological two-seat engine that never ends and whose
// turn order never leaves seat 1. With an AI in seat 1 it would chain
// forever; the pipeline's iteration cap must stop it.
type loopEngine struct{}

func (loopEngine) GameType() string    { return "loop" }
func (loopEngine) Description() string { return "never-ending test engine" }
func (loopEngine) MinPlayers() int     { return 2 }
func (loopEngine) MaxPlayers() int     { return 2 }

func (loopEngine) NewGame(players []game.Player, _ map[string]any) (*game.State, error) {
	return &game.State{
		Players:            players,
		CurrentPlayerIndex: 0,
		Phase:              "main",
		MoveHistory:        make([]game.Move, 0),
	}, nil
}

func (loopEngine) ValidateMove(*game.State, string, game.Move) game.Validation {
	return game.Validation{Valid: true}
}

func (loopEngine) ApplyMove(st *game.State, _ string, mv game.Move) (*game.State, error) {
	next := st.Clone()
	next.MoveHistory = append(next.MoveHistory, mv)
	next.CurrentPlayerIndex = 1
	return next, nil
}

func (loopEngine) IsGameOver(*game.State) bool { return false }
func (loopEngine) Winner(*game.State) string   { return "" }

func (loopEngine) CurrentPlayer(st *game.State) string {
	p, ok := st.CurrentPlayer()
	if !ok {
		return ""
	}
	return p.ID
}

func (loopEngine) AdvanceTurn(st *game.State) *game.State { return st.Clone() }
func (loopEngine) RenderBoard(*game.State) string         { return "" }

// boardLoopEngine is loopEngine with a position board that never fills, so
// the AI driver always finds an empty space and the chain only stops at the
// iteration cap.
type boardLoopEngine struct{ loopEngine }

func (e boardLoopEngine) NewGame(players []game.Player, cfg map[string]any) (*game.State, error) {
	st, err := e.loopEngine.NewGame(players, cfg)
	if err != nil {
		return nil, err
	}
	spaces := make(map[string]any, 16)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			spaces[fmt.Sprintf("%d-%d", r, c)] = nil
		}
	}
	st.Board, err = json.Marshal(map[string]any{"spaces": spaces})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// hookEngine wraps the tic-tac-toe engine and records which lifecycle hooks
// fired, in order.
type hookEngine struct {
	game.Engine
	mu    sync.Mutex
	fired []string
}

func (h *hookEngine) record(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fired = append(h.fired, name)
}

func (h *hookEngine) firedHooks() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.fired...)
}

func (h *hookEngine) OnGameCreated(context.Context, *game.State)              { h.record("created") }
func (h *hookEngine) OnPlayerJoined(context.Context, *game.State, game.Player) { h.record("joined") }
func (h *hookEngine) OnGameStarted(context.Context, *game.State)              { h.record("started") }
func (h *hookEngine) OnGameEnded(context.Context, *game.State)                { h.record("ended") }

func (h *hookEngine) BeforeApplyMove(context.Context, *game.State, game.Move) { h.record("before") }
func (h *hookEngine) AfterApplyMove(_ context.Context, before, after *game.State, _ game.Move) {
	if before.Version >= after.Version {
		h.record("after(bad-versions)")
		return
	}
	h.record("after")
}
