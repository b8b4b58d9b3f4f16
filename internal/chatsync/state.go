// Package chatsync reconciles a client's view of its chats (room list, unread
// counts, message history, typing and presence) against REST snapshots and the
// realtime event stream. It performs no I/O: reducers return Effects that the
// caller carries out.
package chatsync

import (
	"fmt"
	"sort"
	"sync"

	"staychat/backend/internal/config"
	"staychat/backend/internal/models"
)

// EffectKind names a side effect the caller has to perform.
type EffectKind string

const (
	// EffectRefetch asks for the room list to be reloaded.
	EffectRefetch EffectKind = "refetch"
	// EffectMarkSeen asks for every message of RoomID to be marked seen.
	EffectMarkSeen EffectKind = "markSeen"
	// EffectSeenMessage asks for one message to be marked seen.
	EffectSeenMessage EffectKind = "seenMessage"
)

// Effect is an action requested by a reducer.
type Effect struct {
	Kind      EffectKind
	RoomID    string
	MessageID string
}

// Typist is a participant currently typing in the active room.
type Typist struct {
	UserID      string
	DisplayName string
}

// State is the client-side chat model of one identity.
type State struct {
	mu sync.RWMutex

	self     string
	rooms    []models.RoomSummary
	active   string
	messages map[string][]models.Message
	typing   map[string]Typist
	presence map[string]models.PresenceUpdate
	recent   *RecentIDs
}

// New returns an empty state for the identity selfID.
func New(selfID string) *State {
	return &State{
		self:     selfID,
		messages: make(map[string][]models.Message),
		typing:   make(map[string]Typist),
		presence: make(map[string]models.PresenceUpdate),
		recent:   NewRecentIDs(config.RecentMessageWindow),
	}
}

// SetRooms replaces the room list with a fresh snapshot, most recent first.
// Presence already received over the socket wins over the snapshot.
func (s *State) SetRooms(rooms []models.RoomSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rooms = append([]models.RoomSummary(nil), rooms...)
	sort.SliceStable(s.rooms, func(i, j int) bool {
		return s.rooms[i].UpdatedAt.After(s.rooms[j].UpdatedAt)
	})
	for i := range s.rooms {
		if p, ok := s.presence[s.rooms[i].Other.ID]; ok {
			s.rooms[i].Other.IsOnline = p.IsOnline
			s.rooms[i].Other.LastSeen = p.LastSeen
		}
	}
	if s.active != "" && s.roomIndex(s.active) >= 0 {
		s.rooms[s.roomIndex(s.active)].UnreadCount = 0
	}
}

// SetMessages replaces the history of a room with a fresh snapshot.
func (s *State) SetMessages(roomID string, msgs []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[roomID] = append([]models.Message(nil), msgs...)
}

// Open makes roomID the active room, clears its unread counter and asks for
// its messages to be marked seen.
func (s *State) Open(roomID string) []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != roomID {
		s.typing = make(map[string]Typist)
	}
	s.active = roomID
	if i := s.roomIndex(roomID); i >= 0 {
		s.rooms[i].UnreadCount = 0
	}
	return []Effect{{Kind: EffectMarkSeen, RoomID: roomID}}
}

// CloseRoom clears the active room.
func (s *State) CloseRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = ""
	s.typing = make(map[string]Typist)
}

// Apply reduces one server event into the state.
func (s *State) Apply(env models.Envelope) ([]Effect, error) {
	switch env.Event {
	case models.EventReceiveMessage:
		var msg models.Message
		if err := env.Decode(&msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return s.Receive(msg), nil

	case models.EventMessageSeen:
		var msg models.Message
		if err := env.Decode(&msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.Seen(msg)
		return nil, nil

	case models.EventTyping, models.EventStopTyping:
		var sig models.TypingSignal
		if err := env.Decode(&sig); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.Typing(sig, env.Event == models.EventTyping)
		return nil, nil

	case models.EventUserStatus:
		var update models.PresenceUpdate
		if err := env.Decode(&update); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.Presence(update)
		return nil, nil

	default:
		return nil, nil
	}
}

// Receive merges an incoming message. Copies of a message already seen
// within the recent window, or already in the room history, are ignored.
func (s *State) Receive(msg models.Message) []Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" || !s.recent.Add(msg.ID) || s.hasMessage(msg.RoomID, msg.ID) {
		return nil
	}
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)

	i := s.roomIndex(msg.RoomID)
	if i < 0 {
		return []Effect{{Kind: EffectRefetch}}
	}

	room := s.rooms[i]
	room.LastMessage = msg.Text
	room.LastImageURL = msg.ImageURL
	at := msg.CreatedAt
	room.LastMessageAt = &at
	room.UpdatedAt = msg.CreatedAt

	fromOther := msg.SenderID != s.self
	var effects []Effect
	switch {
	case fromOther && msg.RoomID != s.active:
		room.UnreadCount++
	case fromOther && msg.Status != models.StatusSeen:
		effects = append(effects, Effect{Kind: EffectSeenMessage, RoomID: msg.RoomID, MessageID: msg.ID})
	}

	copy(s.rooms[1:i+1], s.rooms[:i])
	s.rooms[0] = room
	return effects
}

// Seen applies a messageSeen event. It reports whether a stored message
// advanced; statuses never move backwards.
func (s *State) Seen(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.messages[msg.RoomID]
	for i := range history {
		if history[i].ID != msg.ID {
			continue
		}
		if !history[i].Status.Advances(msg.Status) {
			return false
		}
		history[i].Status = msg.Status
		return true
	}
	return false
}

// Typing records a typing or stopTyping signal. Signals outside the active
// room and the identity's own echoes are ignored.
func (s *State) Typing(sig models.TypingSignal, start bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sig.RoomID == "" || sig.RoomID != s.active || sig.UserID == s.self {
		return
	}
	key := sig.UserID
	if key == "" {
		key = sig.DisplayName
	}
	if start {
		s.typing[key] = Typist{UserID: sig.UserID, DisplayName: sig.DisplayName}
	} else {
		delete(s.typing, key)
	}
}

// Presence records the latest status of an identity.
func (s *State) Presence(update models.PresenceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.presence[update.UserID] = update
	for i := range s.rooms {
		if s.rooms[i].Other.ID == update.UserID {
			s.rooms[i].Other.IsOnline = update.IsOnline
			s.rooms[i].Other.LastSeen = update.LastSeen
		}
	}
}

// Rooms returns a copy of the room list, most recently active first.
func (s *State) Rooms() []models.RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.RoomSummary(nil), s.rooms...)
}

// RoomIDs returns the ids of every known room.
func (s *State) RoomIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.rooms))
	for i, r := range s.rooms {
		ids[i] = r.ID
	}
	return ids
}

// Messages returns a copy of the history of roomID.
func (s *State) Messages(roomID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.messages[roomID]...)
}

// Unread returns the unread counter of roomID.
func (s *State) Unread(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.roomIndex(roomID); i >= 0 {
		return s.rooms[i].UnreadCount
	}
	return 0
}

// TotalUnread sums the unread counters of every room.
func (s *State) TotalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, r := range s.rooms {
		total += r.UnreadCount
	}
	return total
}

// ActiveRoom returns the id of the open room, or "".
func (s *State) ActiveRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Typists returns who is typing in the active room, ordered by name.
func (s *State) Typists() []Typist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Typist, 0, len(s.typing))
	for _, t := range s.typing {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

// PresenceOf returns the last status received for userID.
func (s *State) PresenceOf(userID string) (models.PresenceUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presence[userID]
	return p, ok
}

func (s *State) roomIndex(roomID string) int {
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			return i
		}
	}
	return -1
}

func (s *State) hasMessage(roomID, messageID string) bool {
	for _, m := range s.messages[roomID] {
		if m.ID == messageID {
			return true
		}
	}
	return false
}
