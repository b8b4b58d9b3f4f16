package models

import (
	"encoding/json"
	"time"
)

// Realtime event names. Client->server events are handled by the hub;
// server->client events are written to connections.
const (
	EventJoinUserRoom   = "joinUserRoom"
	EventJoinChatRoom   = "joinChatRoom"
	EventLeaveChatRoom  = "leaveChatRoom"
	EventSendMessage    = "sendMessage"
	EventSeenMessage    = "seenMessage"
	EventTyping         = "typing"
	EventStopTyping     = "stopTyping"
	EventReceiveMessage = "receiveMessage"
	EventMessageSeen    = "messageSeen"
	EventUserStatus     = "userStatusUpdate"
	EventError          = "error"
)

// Envelope is the frame exchanged over the websocket: an event name and its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(e.Data, v)
}

// SendRequest is the payload of sendMessage.
type SendRequest struct {
	RoomID   string `json:"roomId"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageRef,omitempty"`
}

// SeenRequest is the payload of seenMessage.
type SeenRequest struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// TypingSignal is the payload of typing and stopTyping in both directions.
// UserID is filled in by the server when relaying.
type TypingSignal struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	UserID      string `json:"userId,omitempty"`
}

// PresenceUpdate is the payload of userStatusUpdate.
type PresenceUpdate struct {
	UserID   string     `json:"userId"`
	Role     Role       `json:"role"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

// ErrorEvent reports a failed client event back to the originating connection.
type ErrorEvent struct {
	Event   string `json:"event"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
