package game

import "context"

// Validation is the result of asking an engine whether a move is legal.
type Validation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Engine is the contract a game type implements to plug into the server.
//
// ValidateMove, ApplyMove, and AdvanceTurn are pure: they must not mutate
// the state they receive. ApplyMove returns a new state with the move
// appended to the history and, unless the move ended the game, the turn
// advanced. The server never calls AdvanceTurn during move processing; turn
// advancement is the engine's job inside ApplyMove. AdvanceTurn remains part
// of the contract for engines and strategies that need to step turn order
// outside a move (for example skip mechanics).
type Engine interface {
	// GameType returns the registry tag, for example "tictactoe".
	GameType() string
	Description() string
	MinPlayers() int
	MaxPlayers() int

	// NewGame builds the initial engine-owned fields of a state (board,
	// phase, current player index) for the given seats. The server overlays
	// the managed fields (ids, lifecycle, version, timestamps, metadata)
	// afterwards.
	NewGame(players []Player, config map[string]any) (*State, error)

	ValidateMove(st *State, playerID string, mv Move) Validation
	ApplyMove(st *State, playerID string, mv Move) (*State, error)

	IsGameOver(st *State) bool
	// Winner returns the winning player id, or "" when there is none (game
	// still running, or a draw).
	Winner(st *State) string
	// CurrentPlayer returns the id of the player expected to act.
	CurrentPlayer(st *State) string
	AdvanceTurn(st *State) *State

	// RenderBoard returns a human-readable rendering of the board for
	// text surfaces (CLI, logs, debug endpoints).
	RenderBoard(st *State) string
}

// Optional lifecycle hooks. The server discovers these on an engine via type
// assertion and fires them at the corresponding points. Hooks observe; they
// must not mutate the states they receive, and they cannot fail.
type (
	// CreatedHook fires after a game is first persisted.
	CreatedHook interface {
		OnGameCreated(ctx context.Context, st *State)
	}

	// PlayerJoinedHook fires after a join is persisted.
	PlayerJoinedHook interface {
		OnPlayerJoined(ctx context.Context, st *State, p Player)
	}

	// StartedHook fires when a game transitions into the active lifecycle,
	// whether at creation or on a later join.
	StartedHook interface {
		OnGameStarted(ctx context.Context, st *State)
	}

	// EndedHook fires after a game is persisted in the completed lifecycle.
	EndedHook interface {
		OnGameEnded(ctx context.Context, st *State)
	}

	// MoveHooks bracket move application. BeforeApplyMove receives the
	// pre-move state; AfterApplyMove receives both pre- and post-move
	// states along with the enriched move. The asymmetry is deliberate:
	// after-hooks often need to diff the transition.
	MoveHooks interface {
		BeforeApplyMove(ctx context.Context, st *State, mv Move)
		AfterApplyMove(ctx context.Context, before, after *State, mv Move)
	}
)
