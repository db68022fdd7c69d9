package service

// Publisher pushes real-time events to subscribed clients.
// Implemented by the WebSocket hub.
type Publisher interface {
	// BroadcastToGame delivers an event to every subscriber of a game.
	BroadcastToGame(gameID string, event any)
	// SendToUser delivers an event to every live connection of one user.
	SendToUser(userID string, event any)
}

// NoopPublisher is a no-op implementation for tests and for tooling that
// runs the pipeline without a live push channel.
type NoopPublisher struct{}

func (NoopPublisher) BroadcastToGame(string, any) {}
func (NoopPublisher) SendToUser(string, any)      {}
