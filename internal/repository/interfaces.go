// Package repository defines the persistence contract for game state. Three
// implementations exist: memory (default), postgres, and redis. All of them
// enforce optimistic concurrency on Update via the expected version.
package repository

import (
	"context"
	"errors"

	"github.com/gametable/gametable/pkg/game"
)

var (
	// ErrStaleState means the stored version no longer matches the version
	// the caller based its mutation on. A deleted game fails the same way:
	// no stored version can match.
	ErrStaleState = errors.New("stale game state")

	// ErrAlreadyExists means Save was called with an id that is taken.
	ErrAlreadyExists = errors.New("game already exists")
)

// Filters narrows and pages list queries. Zero values mean "any".
type Filters struct {
	PlayerID  string
	GameType  string
	Lifecycle game.Lifecycle
	Page      int
	PageSize  int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize fills pagination defaults and clamps the page size.
func (f Filters) Normalize() Filters {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// GameList is one page of results plus the unpaged total.
type GameList struct {
	Games    []game.State `json:"games"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

// GameRepository stores versioned game state. FindByID returns (nil, nil)
// for missing games; callers translate to their own not-found errors.
type GameRepository interface {
	// Save persists a brand-new game.
	Save(ctx context.Context, st *game.State) error

	FindByID(ctx context.Context, id string) (*game.State, error)

	// Update persists st only if the stored version equals expectedVersion,
	// otherwise ErrStaleState. st.Version must be greater than
	// expectedVersion; callers set expectedVersion+1.
	Update(ctx context.Context, id string, st *game.State, expectedVersion int64) error

	// FindAll lists games newest-first, filtered and paged.
	FindAll(ctx context.Context, f Filters) (*GameList, error)

	// FindByPlayer lists the games a player is seated in.
	FindByPlayer(ctx context.Context, playerID string, f Filters) (*GameList, error)

	// Delete removes a game. Deleting a missing game is not an error.
	Delete(ctx context.Context, id string) error
}
