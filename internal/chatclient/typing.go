package chatclient

import (
	"sync"
	"time"

	"staychat/backend/internal/config"
	"staychat/backend/internal/models"
)

// TypingNotifier turns keystrokes in one room into typing signals: typing on
// the first keystroke and again every renew period while input continues,
// stopTyping once input has been idle for the idle period.
type TypingNotifier struct {
	emit  func(event string, data any) error
	sig   models.TypingSignal
	idle  time.Duration
	renew time.Duration

	mu       sync.Mutex
	active   bool
	lastSent time.Time
	gen      int
	timer    *time.Timer
}

// NewTypingNotifier returns a notifier for roomID using the default idle period.
func (c *Client) NewTypingNotifier(roomID, displayName string) *TypingNotifier {
	sig := models.TypingSignal{RoomID: roomID, DisplayName: displayName}
	return newTypingNotifier(c.emit, sig, config.ClientTypingIdle, c.renew)
}

func newTypingNotifier(emit func(string, any) error, sig models.TypingSignal, idle, renew time.Duration) *TypingNotifier {
	if idle <= 0 {
		idle = config.ClientTypingIdle
	}
	if renew <= 0 {
		renew = config.ClientTypingRenew
	}
	return &TypingNotifier{emit: emit, sig: sig, idle: idle, renew: renew}
}

// Keystroke records input activity.
func (n *TypingNotifier) Keystroke() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.gen++
	gen := n.gen
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.idle, func() { n.expire(gen) })

	// The server drops a signal that is not renewed within its TTL.
	if n.active && time.Since(n.lastSent) < n.renew {
		return nil
	}
	n.active = true
	n.lastSent = time.Now()
	return n.emit(models.EventTyping, n.sig)
}

// Stop ends the typing signal now, e.g. when the message is sent.
func (n *TypingNotifier) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.gen++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if !n.active {
		return nil
	}
	n.active = false
	return n.emit(models.EventStopTyping, n.sig)
}

func (n *TypingNotifier) expire(gen int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// A later keystroke or Stop superseded this timer.
	if gen != n.gen || !n.active {
		return
	}
	n.active = false
	n.timer = nil
	_ = n.emit(models.EventStopTyping, n.sig)
}
