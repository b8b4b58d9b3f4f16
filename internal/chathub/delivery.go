package chathub

import (
	"context"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/metrics"
	"staychat/backend/internal/models"
	"staychat/backend/internal/ratelimit"
	"staychat/backend/internal/storage"

	"github.com/rs/zerolog"
)

// DeliveryEngine persists messages and fans them out on two paths: the room
// channel and the recipient's personal channel. A client that is on both paths
// receives the message twice and drops the copy by id.
type DeliveryEngine struct {
	store   storage.Storage
	router  *Router
	limiter *ratelimit.LimiterStore
	log     zerolog.Logger
}

// NewDeliveryEngine returns an engine. limiter may be nil.
func NewDeliveryEngine(store storage.Storage, router *Router, limiter *ratelimit.LimiterStore, log zerolog.Logger) *DeliveryEngine {
	return &DeliveryEngine{store: store, router: router, limiter: limiter, log: log}
}

// Send persists a message from sender and emits receiveMessage. An empty
// message is dropped without error and returns nil.
func (d *DeliveryEngine) Send(ctx context.Context, sender models.Identity, req models.SendRequest) (*models.Message, error) {
	n := models.NewMessage{
		RoomID:     req.RoomID,
		SenderID:   sender.ID,
		SenderRole: sender.Role,
		Text:       req.Text,
		ImageURL:   req.ImageURL,
		Status:     models.StatusDelivered,
	}.Normalize()
	if n.Empty() {
		d.log.Debug().Str("identity", sender.String()).Str("room", req.RoomID).Msg("empty message dropped")
		return nil, nil
	}

	if d.limiter != nil && !d.limiter.Allow(sender.String()) {
		return nil, apperr.Invalid("sending too fast, slow down")
	}

	room, err := d.store.GetRoom(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.HasIdentity(sender) {
		return nil, apperr.Unauthorized("%s is not a participant of room %s", sender, room.ID)
	}

	msg, err := d.store.AppendMessage(ctx, n)
	if err != nil {
		return nil, err
	}
	metrics.MessagesPersisted.Inc()

	env, err := models.NewEnvelope(models.EventReceiveMessage, msg)
	if err != nil {
		return msg, apperr.Server("encode message", err)
	}

	// Emission misses are not errors: the message is stored and will be
	// picked up on the next history fetch.
	n1 := d.router.Emit(RoomChannel(room.ID), env, "")
	metrics.ChannelDeliveries.WithLabelValues("room").Add(float64(n1))

	if other, ok := room.Counterpart(sender); ok {
		n2 := d.router.Emit(UserChannel(other.ID), env, "")
		metrics.ChannelDeliveries.WithLabelValues("direct").Add(float64(n2))
	}

	d.log.Debug().
		Str("message", msg.ID).
		Str("room", room.ID).
		Str("sender", sender.String()).
		Msg("message delivered")
	return msg, nil
}

// MarkRoomSeen flips every message reader has received in the room to seen
// and emits messageSeen for each.
func (d *DeliveryEngine) MarkRoomSeen(ctx context.Context, reader models.Identity, roomID string) ([]models.Message, error) {
	room, err := d.participantRoom(ctx, reader, roomID)
	if err != nil {
		return nil, err
	}
	flipped, err := d.store.MarkSeen(ctx, room.ID, reader.ID)
	if err != nil {
		return nil, err
	}
	for i := range flipped {
		d.emitSeen(&flipped[i])
	}
	return flipped, nil
}

// MarkMessageSeen flips one message and emits messageSeen when it changed.
func (d *DeliveryEngine) MarkMessageSeen(ctx context.Context, reader models.Identity, req models.SeenRequest) (*models.Message, error) {
	if req.MessageID == "" {
		return nil, apperr.Invalid("message id is required")
	}
	room, err := d.participantRoom(ctx, reader, req.RoomID)
	if err != nil {
		return nil, err
	}
	msg, changed, err := d.store.MarkMessageSeen(ctx, room.ID, req.MessageID, reader.ID)
	if err != nil {
		return nil, err
	}
	if changed {
		d.emitSeen(msg)
	}
	return msg, nil
}

func (d *DeliveryEngine) participantRoom(ctx context.Context, id models.Identity, roomID string) (*models.Room, error) {
	room, err := d.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasIdentity(id) {
		return nil, apperr.Unauthorized("%s is not a participant of room %s", id, roomID)
	}
	return room, nil
}

// emitSeen notifies the room and the message's sender.
func (d *DeliveryEngine) emitSeen(msg *models.Message) {
	env, err := models.NewEnvelope(models.EventMessageSeen, msg)
	if err != nil {
		d.log.Error().Err(err).Str("message", msg.ID).Msg("encode seen message")
		return
	}
	d.router.Emit(RoomChannel(msg.RoomID), env, "")
	d.router.Emit(UserChannel(msg.SenderID), env, "")
}
