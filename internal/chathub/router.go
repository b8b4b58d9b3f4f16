package chathub

import (
	"sync"

	"staychat/backend/internal/metrics"
	"staychat/backend/internal/models"

	"github.com/rs/zerolog"
)

// UserChannel is the personal channel of an identity; every connection of the
// identity is a member.
func UserChannel(id string) string { return "user:" + id }

// RoomChannel is the channel of a chat room.
func RoomChannel(id string) string { return "room:" + id }

// Router keeps channel membership of live clients and fans envelopes out.
// Membership is in memory only; clients rejoin after reconnecting.
type Router struct {
	mu       sync.RWMutex
	clients  map[string]Client
	channels map[string]map[string]Client
	joined   map[string]map[string]struct{}
	log      zerolog.Logger
}

func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		clients:  make(map[string]Client),
		channels: make(map[string]map[string]Client),
		joined:   make(map[string]map[string]struct{}),
		log:      log,
	}
}

// Add registers a client for broadcasts.
func (r *Router) Add(c Client) {
	r.mu.Lock()
	r.clients[c.ID()] = c
	r.mu.Unlock()
}

// Remove drops the client from every channel and from broadcasts.
func (r *Router) Remove(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.joined[c.ID()] {
		r.leaveLocked(ch, c.ID())
	}
	delete(r.joined, c.ID())
	delete(r.clients, c.ID())
}

// Join adds c to channel. Joining twice is a no-op.
func (r *Router) Join(channel string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]Client)
		r.channels[channel] = members
	}
	members[c.ID()] = c

	chans, ok := r.joined[c.ID()]
	if !ok {
		chans = make(map[string]struct{})
		r.joined[c.ID()] = chans
	}
	chans[channel] = struct{}{}
}

// Leave removes c from channel.
func (r *Router) Leave(channel string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(channel, c.ID())
	if chans, ok := r.joined[c.ID()]; ok {
		delete(chans, channel)
	}
}

func (r *Router) leaveLocked(channel, clientID string) {
	members, ok := r.channels[channel]
	if !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(r.channels, channel)
	}
}

// IsMember reports whether c has joined channel.
func (r *Router) IsMember(channel string, c Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channel][c.ID()]
	return ok
}

// Members returns the number of clients in channel.
func (r *Router) Members(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// Emit queues env to every member of channel except the client with id except.
// It never blocks and returns the number of clients that accepted the event.
func (r *Router) Emit(channel string, env models.Envelope, except string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for id, c := range r.channels[channel] {
		if id == except {
			continue
		}
		if r.send(c, env) {
			delivered++
		}
	}
	return delivered
}

// Broadcast queues env to every registered client.
func (r *Router) Broadcast(env models.Envelope) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for _, c := range r.clients {
		if r.send(c, env) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) send(c Client, env models.Envelope) bool {
	if c.Send(env) {
		return true
	}
	metrics.DroppedEvents.WithLabelValues(env.Event).Inc()
	r.log.Warn().
		Str("client", c.ID()).
		Str("identity", c.Identity().String()).
		Str("event", env.Event).
		Msg("send buffer full, event dropped")
	return false
}
