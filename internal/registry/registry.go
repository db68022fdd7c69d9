// Package registry maps game-type tags to their engines. Engines register
// during startup wiring; the service layer resolves them per request.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gametable/gametable/pkg/game"
)

var ErrDuplicateEngine = errors.New("engine already registered")

// Info describes a registered engine for listing surfaces.
type Info struct {
	GameType    string `json:"gameType"`
	Description string `json:"description"`
	MinPlayers  int    `json:"minPlayers"`
	MaxPlayers  int    `json:"maxPlayers"`
}

// Registry holds the known game engines keyed by game-type tag.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]game.Engine
}

func New() *Registry {
	return &Registry{engines: make(map[string]game.Engine)}
}

// Register adds an engine under its game-type tag.
func (r *Registry) Register(e game.Engine) error {
	tag := e.GameType()
	if tag == "" {
		return errors.New("engine has an empty game type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[tag]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEngine, tag)
	}
	r.engines[tag] = e
	return nil
}

// Get returns the engine for a game-type tag.
func (r *Registry) Get(gameType string) (game.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[gameType]
	return e, ok
}

// List returns the registered engines sorted by tag.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.engines))
	for _, e := range r.engines {
		infos = append(infos, Info{
			GameType:    e.GameType(),
			Description: e.Description(),
			MinPlayers:  e.MinPlayers(),
			MaxPlayers:  e.MaxPlayers(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].GameType < infos[j].GameType })
	return infos
}
