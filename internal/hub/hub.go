// Package hub fans server events out to websocket subscribers. Connections
// belong to users; subscriptions are (user, game) pairs, so every live
// connection of a subscribed user receives that game's events.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

type connection struct {
	id     string
	userID string
	send   chan []byte
}

// Hub tracks live connections and game subscriptions. Delivery is
// best-effort: a connection whose send buffer is full is skipped, never
// waited on.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*connection
	userConns map[string]map[string]*connection
	gameSubs  map[string]map[string]struct{} // game id → subscribed user ids
	userSubs  map[string]map[string]struct{} // user id → subscribed game ids
}

func NewHub() *Hub {
	return &Hub{
		conns:     make(map[string]*connection),
		userConns: make(map[string]map[string]*connection),
		gameSubs:  make(map[string]map[string]struct{}),
		userSubs:  make(map[string]map[string]struct{}),
	}
}

// RegisterConnection adds a live connection for a user. The hub takes
// ownership of sink and closes it on unregister. Re-registering an existing
// connection id replaces the old connection.
func (h *Hub) RegisterConnection(userID, connectionID string, sink chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.conns[connectionID]; ok {
		h.removeConnLocked(old)
	}

	c := &connection{id: connectionID, userID: userID, send: sink}
	h.conns[connectionID] = c
	byUser := h.userConns[userID]
	if byUser == nil {
		byUser = make(map[string]*connection)
		h.userConns[userID] = byUser
	}
	byUser[connectionID] = c

	log.Debug().Str("userId", userID).Str("connectionId", connectionID).Msg("connection registered")
}

// UnregisterConnection removes a connection and closes its sink. When the
// user's last connection goes away, all of that user's subscriptions are
// dropped with it.
func (h *Hub) UnregisterConnection(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connectionID]
	if !ok {
		return
	}
	h.removeConnLocked(c)
	log.Debug().Str("userId", c.userID).Str("connectionId", connectionID).Msg("connection unregistered")
}

func (h *Hub) removeConnLocked(c *connection) {
	delete(h.conns, c.id)
	if byUser := h.userConns[c.userID]; byUser != nil {
		delete(byUser, c.id)
		if len(byUser) == 0 {
			delete(h.userConns, c.userID)
			h.dropUserSubsLocked(c.userID)
		}
	}
	close(c.send)
}

func (h *Hub) dropUserSubsLocked(userID string) {
	for gameID := range h.userSubs[userID] {
		if subs := h.gameSubs[gameID]; subs != nil {
			delete(subs, userID)
			if len(subs) == 0 {
				delete(h.gameSubs, gameID)
			}
		}
	}
	delete(h.userSubs, userID)
}

// Subscribe adds a (user, game) subscription. Idempotent. Users without a
// live connection cannot subscribe: subscriptions are tied to connections so
// they can be cleaned up on disconnect, and a subscribe arriving before the
// user's first RegisterConnection is silently dropped, not held. Clients
// must subscribe after the CONNECTED welcome message.
func (h *Hub) Subscribe(userID, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.userConns[userID]) == 0 {
		log.Debug().Str("userId", userID).Str("gameId", gameID).Msg("subscribe ignored: no live connection")
		return
	}

	subs := h.gameSubs[gameID]
	if subs == nil {
		subs = make(map[string]struct{})
		h.gameSubs[gameID] = subs
	}
	subs[userID] = struct{}{}

	byUser := h.userSubs[userID]
	if byUser == nil {
		byUser = make(map[string]struct{})
		h.userSubs[userID] = byUser
	}
	byUser[gameID] = struct{}{}
}

// Unsubscribe removes a (user, game) subscription. Idempotent.
func (h *Hub) Unsubscribe(userID, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs := h.gameSubs[gameID]; subs != nil {
		delete(subs, userID)
		if len(subs) == 0 {
			delete(h.gameSubs, gameID)
		}
	}
	if byUser := h.userSubs[userID]; byUser != nil {
		delete(byUser, gameID)
		if len(byUser) == 0 {
			delete(h.userSubs, userID)
		}
	}
}

// BroadcastToGame delivers an event to every live connection of every user
// subscribed to the game. The event is marshaled once.
func (h *Hub) BroadcastToGame(gameID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for userID := range h.gameSubs[gameID] {
		for _, c := range h.userConns[userID] {
			h.deliver(c, data)
		}
	}
}

// SendToUser delivers an event to every live connection of one user. Unknown
// users are a no-op.
func (h *Hub) SendToUser(userID string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.userConns[userID] {
		h.deliver(c, data)
	}
}

func (h *Hub) deliver(c *connection, data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warn().Str("userId", c.userID).Str("connectionId", c.id).Msg("send buffer full, dropping event")
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// SubscriberCount returns the number of users subscribed to a game.
func (h *Hub) SubscriberCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.gameSubs[gameID])
}
