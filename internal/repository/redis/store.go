package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/gametable/gametable/internal/repository"
	"github.com/gametable/gametable/pkg/game"
)

// Key patterns for stored games and their index sets.
func gameKey(id string) string              { return "game:" + id }
func allKey() string                        { return "games:all" }
func playerKey(pid string) string           { return "games:player:" + pid }
func typeKey(gt string) string              { return "games:type:" + gt }
func lifecycleKey(lc game.Lifecycle) string { return "games:lifecycle:" + string(lc) }

// Store implements repository.GameRepository on Redis.
type Store struct {
	client *Client
}

// NewStore creates a Store over an established client.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// Save persists a brand-new game and its index entries. The state value is
// created with SETNX so a duplicate id fails instead of overwriting.
func (s *Store) Save(ctx context.Context, st *game.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}

	ok, err := s.client.rdb.SetNX(ctx, gameKey(st.GameID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", repository.ErrAlreadyExists, st.GameID)
	}

	_, err = s.client.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		s.indexAdd(ctx, pipe, st)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index game: %w", err)
	}
	return nil
}

// FindByID returns a game by id, or (nil, nil) when missing.
func (s *Store) FindByID(ctx context.Context, id string) (*game.State, error) {
	data, err := s.client.rdb.Get(ctx, gameKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get game: %w", err)
	}
	var st game.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal game state: %w", err)
	}
	return &st, nil
}

// Update persists st only if the stored version still equals expectedVersion.
// WATCH makes the read-check-write atomic; a concurrent writer aborts the
// transaction, which also reads as staleness.
func (s *Store) Update(ctx context.Context, id string, st *game.State, expectedVersion int64) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}

	key := gameKey(id)
	err = s.client.rdb.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s is gone", repository.ErrStaleState, id)
		}
		if err != nil {
			return fmt.Errorf("get game: %w", err)
		}

		var current game.State
		if err := json.Unmarshal(stored, &current); err != nil {
			return fmt.Errorf("unmarshal stored state: %w", err)
		}
		if current.Version != expectedVersion {
			return fmt.Errorf("%w: %s at version %d, expected %d", repository.ErrStaleState, id, current.Version, expectedVersion)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if current.Lifecycle != st.Lifecycle {
				pipe.SRem(ctx, lifecycleKey(current.Lifecycle), id)
				pipe.SAdd(ctx, lifecycleKey(st.Lifecycle), id)
			}
			for _, p := range st.Players {
				pipe.SAdd(ctx, playerKey(p.ID), id)
			}
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %s modified concurrently", repository.ErrStaleState, id)
	}
	return err
}

// FindAll lists games newest-first, filtered and paged.
func (s *Store) FindAll(ctx context.Context, f repository.Filters) (*repository.GameList, error) {
	return s.list(ctx, f.Normalize())
}

// FindByPlayer lists the games a player is seated in.
func (s *Store) FindByPlayer(ctx context.Context, playerID string, f repository.Filters) (*repository.GameList, error) {
	f.PlayerID = playerID
	return s.list(ctx, f.Normalize())
}

// Delete removes a game and its index entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	st, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}

	_, err = s.client.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, gameKey(id))
		pipe.SRem(ctx, allKey(), id)
		pipe.SRem(ctx, typeKey(st.GameType), id)
		pipe.SRem(ctx, lifecycleKey(st.Lifecycle), id)
		for _, p := range st.Players {
			pipe.SRem(ctx, playerKey(p.ID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}

// indexAdd queues the index writes for a state onto a pipeline.
func (s *Store) indexAdd(ctx context.Context, pipe redis.Pipeliner, st *game.State) {
	pipe.SAdd(ctx, allKey(), st.GameID)
	pipe.SAdd(ctx, typeKey(st.GameType), st.GameID)
	pipe.SAdd(ctx, lifecycleKey(st.Lifecycle), st.GameID)
	for _, p := range st.Players {
		pipe.SAdd(ctx, playerKey(p.ID), st.GameID)
	}
}

// list loads the candidates from the narrowest matching index set, applies
// the remaining filters in memory, sorts newest-first, and pages.
func (s *Store) list(ctx context.Context, f repository.Filters) (*repository.GameList, error) {
	ids, err := s.client.rdb.SMembers(ctx, s.narrowestIndex(f)).Result()
	if err != nil {
		return nil, fmt.Errorf("list game ids: %w", err)
	}

	var matched []game.State
	for _, id := range ids {
		st, err := s.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if st == nil {
			continue // index entry outlived its game
		}
		if f.GameType != "" && st.GameType != f.GameType {
			continue
		}
		if f.Lifecycle != "" && st.Lifecycle != f.Lifecycle {
			continue
		}
		if f.PlayerID != "" && !st.HasPlayer(f.PlayerID) {
			continue
		}
		matched = append(matched, *st)
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
	return &repository.GameList{
		Games:    matched[start:end],
		Total:    total,
		Page:     f.Page,
		PageSize: f.PageSize,
	}, nil
}

// narrowestIndex picks the most selective index set for a filter combination.
func (s *Store) narrowestIndex(f repository.Filters) string {
	switch {
	case f.PlayerID != "":
		return playerKey(f.PlayerID)
	case f.Lifecycle != "":
		return lifecycleKey(f.Lifecycle)
	case f.GameType != "":
		return typeKey(f.GameType)
	default:
		return allKey()
	}
}
