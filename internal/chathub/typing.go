package chathub

import (
	"sync"
	"time"

	"staychat/backend/internal/config"
	"staychat/backend/internal/models"

	"github.com/rs/zerolog"
)

type typingKey struct {
	roomID   string
	clientID string
}

type typingEntry struct {
	timer  *time.Timer
	signal models.TypingSignal
}

// TypingRelay forwards typing signals to the rest of a room. Nothing is
// persisted. A typing signal not renewed within ttl is closed by the server
// with a stopTyping, as is every open signal of a disconnecting client.
type TypingRelay struct {
	mu     sync.Mutex
	active map[typingKey]*typingEntry
	ttl    time.Duration
	router *Router
	log    zerolog.Logger
}

func NewTypingRelay(router *Router, ttl time.Duration, log zerolog.Logger) *TypingRelay {
	if ttl <= 0 {
		ttl = config.DefaultTypingTTL
	}
	return &TypingRelay{
		active: make(map[typingKey]*typingEntry),
		ttl:    ttl,
		router: router,
		log:    log,
	}
}

// Start relays typing from c and (re)arms its expiry timer.
func (t *TypingRelay) Start(c Client, sig models.TypingSignal) {
	if !t.router.IsMember(RoomChannel(sig.RoomID), c) {
		t.log.Debug().Str("client", c.ID()).Str("room", sig.RoomID).Msg("typing outside joined room ignored")
		return
	}
	sig.UserID = c.Identity().ID
	key := typingKey{roomID: sig.RoomID, clientID: c.ID()}

	t.mu.Lock()
	if e, ok := t.active[key]; ok {
		e.timer.Stop()
	}
	e := &typingEntry{signal: sig}
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(key, e) })
	t.active[key] = e
	t.mu.Unlock()

	t.relay(models.EventTyping, sig, c.ID())
}

// Stop closes the open typing signal of c in the room, if any, and relays
// stopTyping. Without an open signal nothing is sent.
func (t *TypingRelay) Stop(c Client, sig models.TypingSignal) {
	if !t.router.IsMember(RoomChannel(sig.RoomID), c) {
		return
	}
	key := typingKey{roomID: sig.RoomID, clientID: c.ID()}

	t.mu.Lock()
	e, ok := t.active[key]
	if ok {
		e.timer.Stop()
		delete(t.active, key)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	if sig.DisplayName == "" {
		sig.DisplayName = e.signal.DisplayName
	}
	sig.UserID = c.Identity().ID
	t.relay(models.EventStopTyping, sig, c.ID())
}

// Clear closes every open typing signal of c.
func (t *TypingRelay) Clear(c Client) {
	var open []models.TypingSignal
	t.mu.Lock()
	for key, e := range t.active {
		if key.clientID != c.ID() {
			continue
		}
		e.timer.Stop()
		delete(t.active, key)
		open = append(open, e.signal)
	}
	t.mu.Unlock()

	for _, sig := range open {
		t.relay(models.EventStopTyping, sig, c.ID())
	}
}

// Active reports whether c has an open typing signal in room.
func (t *TypingRelay) Active(roomID string, c Client) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[typingKey{roomID: roomID, clientID: c.ID()}]
	return ok
}

func (t *TypingRelay) expire(key typingKey, e *typingEntry) {
	t.mu.Lock()
	if t.active[key] != e {
		// Renewed or stopped after the timer fired.
		t.mu.Unlock()
		return
	}
	delete(t.active, key)
	t.mu.Unlock()

	t.relay(models.EventStopTyping, e.signal, key.clientID)
}

func (t *TypingRelay) relay(event string, sig models.TypingSignal, except string) {
	env, err := models.NewEnvelope(event, sig)
	if err != nil {
		t.log.Error().Err(err).Str("event", event).Msg("encode typing signal")
		return
	}
	t.router.Emit(RoomChannel(sig.RoomID), env, except)
}
