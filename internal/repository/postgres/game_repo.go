package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/gametable/gametable/internal/repository"
	"github.com/gametable/gametable/pkg/game"
)

// uniqueViolation is the Postgres error code for duplicate primary keys.
const uniqueViolation = "23505"

// GameRepo stores game state as a JSONB blob with denormalized columns for
// filtering. Writes go through a compare-and-swap on the version column.
type GameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a GameRepo.
func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

// Save inserts a new game. The game ID must not already exist.
func (r *GameRepo) Save(ctx context.Context, st *game.State) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO games (game_id, game_type, lifecycle, winner, state, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		st.GameID, st.GameType, string(st.Lifecycle), nullStr(st.Winner), blob, st.Version, st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", repository.ErrAlreadyExists, st.GameID)
		}
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

// FindByID returns a game by ID, or nil if it does not exist.
func (r *GameRepo) FindByID(ctx context.Context, id string) (*game.State, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT state FROM games WHERE game_id = $1`, id,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	return unmarshalState(blob)
}

// Update replaces a game's state if the stored version still matches
// expectedVersion. A vanished row and a version mismatch are the same
// failure from the caller's point of view: someone else got there first.
func (r *GameRepo) Update(ctx context.Context, id string, st *game.State, expectedVersion int64) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE games
		 SET game_type = $1, lifecycle = $2, winner = $3, state = $4, version = $5, updated_at = $6
		 WHERE game_id = $7 AND version = $8`,
		st.GameType, string(st.Lifecycle), nullStr(st.Winner), blob, st.Version, st.UpdatedAt,
		id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update game rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s not at version %d", repository.ErrStaleState, id, expectedVersion)
	}
	return nil
}

// FindAll returns games matching the filters, newest first.
func (r *GameRepo) FindAll(ctx context.Context, f repository.Filters) (*repository.GameList, error) {
	f = f.Normalize()

	var where []string
	var args []any
	if f.GameType != "" {
		args = append(args, f.GameType)
		where = append(where, fmt.Sprintf("game_type = $%d", len(args)))
	}
	if f.Lifecycle != "" {
		args = append(args, string(f.Lifecycle))
		where = append(where, fmt.Sprintf("lifecycle = $%d", len(args)))
	}
	if f.PlayerID != "" {
		member, err := json.Marshal([]map[string]string{{"id": f.PlayerID}})
		if err != nil {
			return nil, fmt.Errorf("marshal player filter: %w", err)
		}
		args = append(args, string(member))
		where = append(where, fmt.Sprintf("state->'players' @> $%d::jsonb", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count games: %w", err)
	}

	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	rows, err := r.db.QueryContext(ctx,
		`SELECT state FROM games`+clause+
			fmt.Sprintf(` ORDER BY created_at DESC, game_id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	games := make([]game.State, 0)
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		st, err := unmarshalState(blob)
		if err != nil {
			return nil, err
		}
		games = append(games, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return &repository.GameList{Games: games, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// FindByPlayer returns games the player is seated in, newest first.
func (r *GameRepo) FindByPlayer(ctx context.Context, playerID string, f repository.Filters) (*repository.GameList, error) {
	f.PlayerID = playerID
	return r.FindAll(ctx, f)
}

// Delete removes a game. Deleting a missing game is not an error.
func (r *GameRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM games WHERE game_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}

func unmarshalState(blob []byte) (*game.State, error) {
	var st game.State
	if err := json.Unmarshal(blob, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &st, nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
