package chatclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/chatsync"
	"staychat/backend/internal/config"
	"staychat/backend/internal/models"

	"github.com/gorilla/websocket"
)

// Connect opens the realtime socket, joins the personal channel, loads the
// room list and joins every room channel.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return errors.New("chatclient: already connected")
	}

	u := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws?token=" + url.QueryEscape(c.token)
	conn, resp, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return apperr.Auth("handshake refused")
		}
		return apperr.Server("dial", err)
	}
	c.conn = conn
	c.done = make(chan struct{})
	go c.readLoop()

	if err := c.emit(models.EventJoinUserRoom, c.self.ID); err != nil {
		return err
	}
	return c.Sync(ctx)
}

// Sync reloads the room list and joins every room channel.
func (c *Client) Sync(ctx context.Context) error {
	rooms, err := c.MyRooms(ctx)
	if err != nil {
		return err
	}
	c.State.SetRooms(rooms)
	for _, id := range c.State.RoomIDs() {
		if err := c.emit(models.EventJoinChatRoom, id); err != nil {
			return err
		}
	}
	return nil
}

// Open loads a room's history, makes it the active room and marks it read.
func (c *Client) Open(ctx context.Context, roomID string) error {
	msgs, err := c.Messages(ctx, roomID)
	if err != nil {
		return err
	}
	c.State.SetMessages(roomID, msgs)
	if err := c.emit(models.EventJoinChatRoom, roomID); err != nil {
		return err
	}
	return c.perform(ctx, c.State.Open(roomID))
}

// Send posts a message to a room. The message shows up in State once the
// server echoes it back.
func (c *Client) Send(roomID, text, imageURL string) error {
	return c.emit(models.EventSendMessage, models.SendRequest{RoomID: roomID, Text: text, ImageURL: imageURL})
}

// Leave leaves a room channel and clears the active room if it was open.
func (c *Client) Leave(roomID string) error {
	if c.State.ActiveRoom() == roomID {
		c.State.CloseRoom()
	}
	return c.emit(models.EventLeaveChatRoom, roomID)
}

// Close closes the socket and waits for the read loop and pending effects.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(config.WriteWait))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	c.effects.Wait()

	c.writeMu.Lock()
	c.conn = nil
	c.writeMu.Unlock()
	return err
}

// Done is closed when the socket stops reading.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) emit(event string, data any) error {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		return apperr.Invalid("encode %s: %v", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return apperr.Server("emit "+event, errors.New("not connected"))
	}
	c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
	if err := c.conn.WriteJSON(env); err != nil {
		return apperr.Server("emit "+event, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var env models.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("socket read failed")
			}
			return
		}

		if env.Event == models.EventError {
			var ev models.ErrorEvent
			if err := env.Decode(&ev); err == nil {
				c.log.Warn().Str("event", ev.Event).Str("kind", ev.Kind).Msg(ev.Message)
				if c.OnError != nil {
					c.OnError(ev)
				}
			}
			continue
		}

		effects, err := c.State.Apply(env)
		if err != nil {
			c.log.Debug().Err(err).Msg("event skipped")
			continue
		}
		if len(effects) == 0 {
			continue
		}

		// REST calls must not stall the socket.
		c.effects.Add(1)
		go func() {
			defer c.effects.Done()
			ctx, cancel := context.WithTimeout(context.Background(), config.StoreTimeout)
			defer cancel()
			if err := c.perform(ctx, effects); err != nil {
				c.log.Warn().Err(err).Msg("effect failed")
			}
		}()
	}
}

func (c *Client) perform(ctx context.Context, effects []chatsync.Effect) error {
	var errs []error
	for _, e := range effects {
		var err error
		switch e.Kind {
		case chatsync.EffectRefetch:
			err = c.Sync(ctx)
		case chatsync.EffectMarkSeen:
			_, err = c.MarkRead(ctx, e.RoomID)
		case chatsync.EffectSeenMessage:
			err = c.emit(models.EventSeenMessage, models.SeenRequest{MessageID: e.MessageID, RoomID: e.RoomID})
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
