// Package memory is the default, dependency-free game store. It keeps deep
// copies on both write and read so callers never alias stored state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gametable/gametable/internal/repository"
	"github.com/gametable/gametable/pkg/game"
)

// Store is an in-memory repository.GameRepository.
type Store struct {
	mu    sync.RWMutex
	games map[string]*game.State
}

func NewStore() *Store {
	return &Store{games: make(map[string]*game.State)}
}

func (s *Store) Save(_ context.Context, st *game.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.games[st.GameID]; exists {
		return fmt.Errorf("%w: %s", repository.ErrAlreadyExists, st.GameID)
	}
	s.games[st.GameID] = st.Clone()
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (*game.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.games[id]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (s *Store) Update(_ context.Context, id string, st *game.State, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.games[id]
	if !ok {
		return fmt.Errorf("%w: %s is gone", repository.ErrStaleState, id)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("%w: %s at version %d, expected %d", repository.ErrStaleState, id, cur.Version, expectedVersion)
	}
	if st.Version <= expectedVersion {
		return fmt.Errorf("refusing update of %s: new version %d not greater than %d", id, st.Version, expectedVersion)
	}
	s.games[id] = st.Clone()
	return nil
}

func (s *Store) FindAll(_ context.Context, f repository.Filters) (*repository.GameList, error) {
	f = f.Normalize()

	s.mu.RLock()
	matched := make([]*game.State, 0)
	for _, st := range s.games {
		if matches(st, f) {
			matched = append(matched, st)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].GameID < matched[j].GameID
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

	games := make([]game.State, 0, end-start)
	for _, st := range matched[start:end] {
		games = append(games, *st.Clone())
	}
	return &repository.GameList{Games: games, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

func (s *Store) FindByPlayer(ctx context.Context, playerID string, f repository.Filters) (*repository.GameList, error) {
	f.PlayerID = playerID
	return s.FindAll(ctx, f)
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, id)
	return nil
}

func matches(st *game.State, f repository.Filters) bool {
	if f.PlayerID != "" && !st.HasPlayer(f.PlayerID) {
		return false
	}
	if f.GameType != "" && st.GameType != f.GameType {
		return false
	}
	if f.Lifecycle != "" && st.Lifecycle != f.Lifecycle {
		return false
	}
	return true
}
