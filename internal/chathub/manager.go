// Package chathub is the realtime layer: connections, channel membership,
// presence, typing signals and message delivery.
package chathub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/config"
	"staychat/backend/internal/metrics"
	"staychat/backend/internal/models"
	"staychat/backend/internal/ratelimit"
	"staychat/backend/internal/storage"

	"github.com/rs/zerolog"
)

// Options tunes a ManagerService. Zero values fall back to defaults.
type Options struct {
	TypingTTL         time.Duration
	SendRatePerMinute int
	Logger            zerolog.Logger
}

// ManagerService is the hub. Its Run loop owns registration, so the presence
// transitions caused by connects and disconnects happen in arrival order.
type ManagerService struct {
	clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client

	Storage  storage.Storage
	Router   *Router
	Presence *PresenceTracker
	Typing   *TypingRelay
	Delivery *DeliveryEngine

	limiter *ratelimit.LimiterStore
	log     zerolog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewManagerService wires the realtime components around s.
func NewManagerService(s storage.Storage, opts Options) *ManagerService {
	log := opts.Logger.With().Str("component", "chathub").Logger()
	router := NewRouter(log)

	var limiter *ratelimit.LimiterStore
	if opts.SendRatePerMinute > 0 {
		limiter = ratelimit.NewLimiterStore(opts.SendRatePerMinute, opts.SendRatePerMinute/6+1, time.Minute)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ManagerService{
		clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Storage:      s,
		Router:       router,
		Presence:     NewPresenceTracker(s, router, log),
		Typing:       NewTypingRelay(router, opts.TypingTTL, log),
		Delivery:     NewDeliveryEngine(s, router, limiter, log),
		limiter:      limiter,
		log:          log,
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
	}
}

// Run serves registrations until Shutdown.
func (m *ManagerService) Run() {
	defer close(m.stopped)
	refresh := time.NewTicker(config.PresenceRefresh)
	defer refresh.Stop()

	m.log.Info().Msg("hub started")
	for {
		select {
		case c := <-m.RegisterCh:
			m.register(c)

		case c := <-m.UnregisterCh:
			m.unregister(c)

		case <-refresh.C:
			ctx, cancel := context.WithTimeout(m.ctx, config.PresenceTimeout)
			m.Presence.Refresh(ctx)
			cancel()

		case <-m.ctx.Done():
			m.drain()
			m.log.Info().Msg("hub stopped")
			return
		}
	}
}

func (m *ManagerService) register(c Client) {
	m.clients[c.ID()] = c
	m.Router.Add(c)
	m.Router.Join(UserChannel(c.Identity().ID), c)
	metrics.WSConnections.Inc()

	m.log.Info().Str("client", c.ID()).Str("identity", c.Identity().String()).Msg("client registered")

	ctx, cancel := context.WithTimeout(m.ctx, config.PresenceTimeout)
	m.Presence.Connect(ctx, c.Identity())
	cancel()
}

func (m *ManagerService) unregister(c Client) {
	if _, ok := m.clients[c.ID()]; !ok {
		return
	}
	delete(m.clients, c.ID())
	m.Typing.Clear(c)
	m.Router.Remove(c)
	c.Close()
	metrics.WSConnections.Dec()

	m.log.Info().Str("client", c.ID()).Str("identity", c.Identity().String()).Msg("client unregistered")

	ctx, cancel := context.WithTimeout(m.ctx, config.PresenceTimeout)
	m.Presence.Disconnect(ctx, c.Identity())
	cancel()
}

// drain closes every client and marks their identities offline.
func (m *ManagerService) drain() {
	for id, c := range m.clients {
		m.Typing.Clear(c)
		m.Router.Remove(c)
		c.Close()
		metrics.WSConnections.Dec()
		delete(m.clients, id)
	}
	// m.ctx is already cancelled here.
	ctx, cancel := context.WithTimeout(context.Background(), config.StoreTimeout)
	defer cancel()
	m.Presence.Shutdown(ctx)
	if m.limiter != nil {
		m.limiter.Stop()
	}
}

// Register hands c to the Run loop. It returns false once the hub is stopping.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.ctx.Done():
		return false
	}
}

// Unregister hands c to the Run loop for removal.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.ctx.Done():
	}
}

// Shutdown stops the Run loop and waits for it to close every client.
func (m *ManagerService) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(m.cancel)
	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch handles one client event. Failures are logged and, for message
// events, reported to the client; the connection stays open either way.
func (m *ManagerService) Dispatch(c Client, env models.Envelope) {
	log := m.log.With().Str("client", c.ID()).Str("event", env.Event).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("event handler panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(m.ctx, config.StoreTimeout)
	defer cancel()
	id := c.Identity()

	switch env.Event {
	case models.EventJoinUserRoom:
		target := decodeID(env, "userId")
		if target != id.ID {
			log.Warn().Str("target", target).Msg("join of another identity's channel ignored")
			return
		}
		m.Router.Join(UserChannel(id.ID), c)

	case models.EventJoinChatRoom:
		roomID := decodeID(env, "roomId")
		room, err := m.Storage.GetRoom(ctx, roomID)
		if err != nil {
			log.Warn().Err(err).Str("room", roomID).Msg("join failed")
			return
		}
		if !room.HasIdentity(id) {
			log.Warn().Err(apperr.Unauthorized("not a participant")).Str("room", roomID).Msg("join refused")
			return
		}
		m.Router.Join(RoomChannel(room.ID), c)

	case models.EventLeaveChatRoom:
		roomID := decodeID(env, "roomId")
		m.Typing.Stop(c, models.TypingSignal{RoomID: roomID})
		m.Router.Leave(RoomChannel(roomID), c)

	case models.EventSendMessage:
		var req models.SendRequest
		if err := env.Decode(&req); err != nil {
			m.reportError(c, env.Event, apperr.Invalid("bad payload: %v", err))
			return
		}
		if _, err := m.Delivery.Send(ctx, id, req); err != nil {
			log.Warn().Err(err).Str("room", req.RoomID).Msg("send failed")
			m.reportError(c, env.Event, err)
		}

	case models.EventSeenMessage:
		var req models.SeenRequest
		if err := env.Decode(&req); err != nil {
			m.reportError(c, env.Event, apperr.Invalid("bad payload: %v", err))
			return
		}
		if _, err := m.Delivery.MarkMessageSeen(ctx, id, req); err != nil {
			log.Warn().Err(err).Str("message", req.MessageID).Msg("seen failed")
			m.reportError(c, env.Event, err)
		}

	case models.EventTyping, models.EventStopTyping:
		var sig models.TypingSignal
		if err := env.Decode(&sig); err != nil {
			log.Debug().Err(err).Msg("bad typing payload")
			return
		}
		if env.Event == models.EventTyping {
			m.Typing.Start(c, sig)
		} else {
			m.Typing.Stop(c, sig)
		}

	default:
		log.Debug().Msg("unknown event ignored")
	}
}

func (m *ManagerService) reportError(c Client, event string, err error) {
	env, encErr := models.NewEnvelope(models.EventError, models.ErrorEvent{
		Event:   event,
		Kind:    apperr.Name(err),
		Message: err.Error(),
	})
	if encErr != nil {
		return
	}
	c.Send(env)
}

// decodeID reads an id payload sent either as a bare JSON string or as an
// object carrying field.
func decodeID(env models.Envelope, field string) string {
	var s string
	if err := env.Decode(&s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]json.RawMessage
	if err := env.Decode(&obj); err != nil {
		return ""
	}
	if err := json.Unmarshal(obj[field], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
