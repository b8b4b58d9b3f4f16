package chathub

import (
	"context"
	"sync"
	"time"

	"staychat/backend/internal/metrics"
	"staychat/backend/internal/models"
	"staychat/backend/internal/storage"

	"github.com/rs/zerolog"
)

// PresenceTracker counts live connections per identity. Only the 0->1 and 1->0
// transitions touch the directory and broadcast userStatusUpdate, so a second
// tab closing does not mark its owner offline.
type PresenceTracker struct {
	mu     sync.Mutex
	counts map[models.Identity]int

	store  storage.Storage
	router *Router
	log    zerolog.Logger
	now    func() time.Time
}

func NewPresenceTracker(store storage.Storage, router *Router, log zerolog.Logger) *PresenceTracker {
	return &PresenceTracker{
		counts: make(map[models.Identity]int),
		store:  store,
		router: router,
		log:    log,
		now:    time.Now,
	}
}

// Connect records a new connection of id. It reports whether id came online.
func (p *PresenceTracker) Connect(ctx context.Context, id models.Identity) bool {
	p.mu.Lock()
	p.counts[id]++
	first := p.counts[id] == 1
	p.mu.Unlock()

	if first {
		metrics.OnlineIdentities.Inc()
		p.publish(ctx, id, true, nil)
	}
	return first
}

// Disconnect records a closed connection of id. It reports whether id went offline.
func (p *PresenceTracker) Disconnect(ctx context.Context, id models.Identity) bool {
	p.mu.Lock()
	n, ok := p.counts[id]
	if !ok {
		p.mu.Unlock()
		return false
	}
	last := n <= 1
	if last {
		delete(p.counts, id)
	} else {
		p.counts[id] = n - 1
	}
	p.mu.Unlock()

	if last {
		metrics.OnlineIdentities.Dec()
		seen := p.now().UTC()
		p.publish(ctx, id, false, &seen)
	}
	return last
}

// Snapshot returns the in-memory online flag for each id.
func (p *PresenceTracker) Snapshot(ids []string) map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	online := make(map[string]bool, len(p.counts))
	for id := range p.counts {
		online[id.ID] = true
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = online[id]
	}
	return out
}

// Online lists every identity with at least one connection.
func (p *PresenceTracker) Online() []models.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Identity, 0, len(p.counts))
	for id := range p.counts {
		out = append(out, id)
	}
	return out
}

// Refresh keeps the directory's live presence entries from expiring.
func (p *PresenceTracker) Refresh(ctx context.Context) {
	byRole := make(map[models.Role][]string)
	for _, id := range p.Online() {
		byRole[id.Role] = append(byRole[id.Role], id.ID)
	}
	for role, ids := range byRole {
		dir, err := p.store.Directory(role)
		if err != nil {
			continue
		}
		if err := dir.Touch(ctx, ids); err != nil {
			p.log.Warn().Err(err).Str("role", string(role)).Msg("presence refresh failed")
		}
	}
}

// Shutdown marks every tracked identity offline.
func (p *PresenceTracker) Shutdown(ctx context.Context) {
	p.mu.Lock()
	ids := make([]models.Identity, 0, len(p.counts))
	for id := range p.counts {
		ids = append(ids, id)
	}
	p.counts = make(map[models.Identity]int)
	p.mu.Unlock()

	seen := p.now().UTC()
	for _, id := range ids {
		metrics.OnlineIdentities.Dec()
		p.publish(ctx, id, false, &seen)
	}
}

// publish persists the transition, then broadcasts it. A failed write is
// logged and the broadcast still goes out.
func (p *PresenceTracker) publish(ctx context.Context, id models.Identity, online bool, lastSeen *time.Time) {
	if dir, err := p.store.Directory(id.Role); err == nil {
		if err := dir.SetPresence(ctx, id.ID, online, lastSeen); err != nil {
			p.log.Error().Err(err).Str("identity", id.String()).Bool("online", online).Msg("presence write failed")
		}
	}

	env, err := models.NewEnvelope(models.EventUserStatus, models.PresenceUpdate{
		UserID:   id.ID,
		Role:     id.Role,
		IsOnline: online,
		LastSeen: lastSeen,
	})
	if err != nil {
		p.log.Error().Err(err).Msg("encode presence update")
		return
	}
	p.router.Broadcast(env)
}
