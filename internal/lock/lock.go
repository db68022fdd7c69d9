// Package lock serializes asynchronous operations per game id. Operations on
// the same game run one at a time in arrival order; operations on different
// games run concurrently.
package lock

import (
	"context"
	"sync"
)

// Manager hands out per-game critical sections. The zero value is not usable;
// construct with NewManager.
//
// Waiters are granted the lock in strict FIFO order. A game's entry exists
// only while the lock is held or waited on; an idle manager holds no state.
type Manager struct {
	mu    sync.Mutex
	games map[string]*gameLock
}

type gameLock struct {
	held    bool
	waiters []*waiter
}

type waiter struct {
	ready chan struct{}
	// granted is set under Manager.mu when the lock is handed to this
	// waiter, so a grant that races ctx cancellation can be detected and
	// passed on instead of leaking.
	granted bool
}

func NewManager() *Manager {
	return &Manager{games: make(map[string]*gameLock)}
}

// WithLock runs fn while holding the lock for gameID. The lock is released
// when fn returns, whether or not it failed; an error from fn never poisons
// the queue. If ctx is cancelled before the lock is acquired, WithLock
// returns ctx.Err() without running fn.
func (m *Manager) WithLock(ctx context.Context, gameID string, fn func(context.Context) error) error {
	if err := m.acquire(ctx, gameID); err != nil {
		return err
	}
	defer m.release(gameID)
	return fn(ctx)
}

func (m *Manager) acquire(ctx context.Context, gameID string) error {
	m.mu.Lock()
	gl := m.games[gameID]
	if gl == nil {
		gl = &gameLock{}
		m.games[gameID] = gl
	}
	if !gl.held {
		gl.held = true
		m.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	gl.waiters = append(gl.waiters, w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		if w.granted {
			// The grant won the race; hand the lock straight to the
			// next waiter rather than holding it past cancellation.
			m.releaseLocked(gameID)
			m.mu.Unlock()
			return ctx.Err()
		}
		for i, q := range gl.waiters {
			if q == w {
				gl.waiters = append(gl.waiters[:i], gl.waiters[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		return ctx.Err()
	}
}

func (m *Manager) release(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(gameID)
}

// releaseLocked hands the lock to the next waiter or, with nobody waiting,
// drops the game's entry entirely. Callers hold m.mu.
func (m *Manager) releaseLocked(gameID string) {
	gl := m.games[gameID]
	if gl == nil {
		return
	}
	if len(gl.waiters) > 0 {
		next := gl.waiters[0]
		gl.waiters = gl.waiters[1:]
		next.granted = true
		close(next.ready)
		return
	}
	delete(m.games, gameID)
}

// entries returns the number of live per-game entries, for tests.
func (m *Manager) entries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.games)
}

// waiting returns the queue depth behind the current holder, for tests.
func (m *Manager) waiting(gameID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	gl := m.games[gameID]
	if gl == nil {
		return 0
	}
	return len(gl.waiters)
}
