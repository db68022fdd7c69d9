package game

import (
	"encoding/json"
	"testing"
	"time"
)

func sampleState() *State {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &State{
		GameID:    "g-1",
		GameType:  "tictactoe",
		Lifecycle: LifecycleActive,
		Players: []Player{
			{ID: "A", Name: "Alice", JoinedAt: now},
			{ID: "B", Name: "Bot", JoinedAt: now, Metadata: map[string]any{MetaIsAI: true, MetaStrategyID: "random"}},
		},
		CurrentPlayerIndex: 0,
		Phase:              "main",
		Board:              json.RawMessage(`{"rows":3}`),
		MoveHistory: []Move{
			{PlayerID: "A", Timestamp: now, Parameters: map[string]any{"row": 0, "col": 0}},
		},
		Metadata:  map[string]any{MetaName: "first", "nested": map[string]any{"k": "v"}},
		Version:   2,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := sampleState()
	cp := orig.Clone()

	cp.Players[1].Metadata[MetaStrategyID] = "tactical"
	cp.MoveHistory[0].Parameters["row"] = 9
	cp.Metadata[MetaName] = "second"
	cp.Metadata["nested"].(map[string]any)["k"] = "x"
	cp.Board[1] = 'X'

	if got := orig.Players[1].StrategyID(); got != "random" {
		t.Errorf("player metadata shared with clone: got %q", got)
	}
	if got := orig.MoveHistory[0].Parameters["row"]; got != 0 {
		t.Errorf("move parameters shared with clone: got %v", got)
	}
	if got := orig.Metadata[MetaName]; got != "first" {
		t.Errorf("metadata shared with clone: got %v", got)
	}
	if got := orig.Metadata["nested"].(map[string]any)["k"]; got != "v" {
		t.Errorf("nested metadata shared with clone: got %v", got)
	}
	if string(orig.Board) != `{"rows":3}` {
		t.Errorf("board bytes shared with clone: got %s", orig.Board)
	}
}

func TestCloneNil(t *testing.T) {
	var s *State
	if s.Clone() != nil {
		t.Error("expected nil clone of nil state")
	}
}

func TestCloneAppendDoesNotAliasHistory(t *testing.T) {
	orig := sampleState()
	cp := orig.Clone()
	cp.MoveHistory = append(cp.MoveHistory, Move{PlayerID: "B"})
	if len(orig.MoveHistory) != 1 {
		t.Errorf("expected original history untouched, got %d entries", len(orig.MoveHistory))
	}
}

func TestPlayerHelpers(t *testing.T) {
	s := sampleState()

	if !s.HasPlayer("A") || s.HasPlayer("C") {
		t.Error("HasPlayer membership wrong")
	}
	p, ok := s.PlayerByID("B")
	if !ok || !p.IsAI() {
		t.Error("expected B to be an AI seat")
	}
	if p.StrategyID() != "random" {
		t.Errorf("expected strategy random, got %q", p.StrategyID())
	}
	if s.AIPlayerCount() != 1 {
		t.Errorf("expected 1 AI player, got %d", s.AIPlayerCount())
	}

	cur, ok := s.CurrentPlayer()
	if !ok || cur.ID != "A" {
		t.Errorf("expected current player A, got %v", cur.ID)
	}
	s.CurrentPlayerIndex = 5
	if _, ok := s.CurrentPlayer(); ok {
		t.Error("expected no current player for out-of-range index")
	}
}

func TestLifecycle(t *testing.T) {
	tests := []struct {
		l        Lifecycle
		valid    bool
		terminal bool
	}{
		{LifecycleCreated, true, false},
		{LifecycleWaiting, true, false},
		{LifecycleActive, true, false},
		{LifecycleCompleted, true, true},
		{LifecycleAbandoned, true, true},
		{Lifecycle("paused"), false, false},
	}
	for _, tt := range tests {
		if got := tt.l.Valid(); got != tt.valid {
			t.Errorf("%s.Valid() = %v, want %v", tt.l, got, tt.valid)
		}
		if got := tt.l.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.l, got, tt.terminal)
		}
	}
}

func TestStateJSONShape(t *testing.T) {
	s := sampleState()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"gameId", "gameType", "lifecycle", "players", "currentPlayerIndex", "moveHistory", "version", "createdAt", "updatedAt"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing %q in state JSON", key)
		}
	}
	if _, ok := m["winner"]; ok {
		t.Error("empty winner should be omitted")
	}
}
