package chathub

import "staychat/backend/internal/models"

// Client is one live realtime connection of an authenticated identity.
// An identity may hold several clients at once (tabs, devices).
type Client interface {
	// ID is unique per connection.
	ID() string
	// Identity is the authenticated principal, fixed at handshake.
	Identity() models.Identity

	// Send queues an envelope without blocking. It reports false when the
	// buffer is full or the client is closed; the event is then lost for this client.
	Send(env models.Envelope) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close stops the write pump and closes the connection. Safe to call twice.
	Close()
}
