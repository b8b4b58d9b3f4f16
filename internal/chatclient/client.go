// Package chatclient is a Go client of the chat server. It speaks the REST API
// and the realtime socket, and keeps a chatsync.State current from both.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"staychat/backend/internal/apperr"
	"staychat/backend/internal/chatsync"
	"staychat/backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config holds the settings of a Client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// Token is the bearer JWT of Self.
	Token string
	Self  models.Identity

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Logger zerolog.Logger

	// TypingRenew is how often typing is repeated while input continues.
	// It must stay below the server's typing TTL. Defaults to
	// config.ClientTypingRenew.
	TypingRenew time.Duration
}

// Client is one signed-in chat participant.
type Client struct {
	baseURL string
	token   string
	self    models.Identity
	http    *http.Client
	dialer  *websocket.Dialer
	log     zerolog.Logger
	renew   time.Duration

	State *chatsync.State

	// OnError receives error events sent back by the server. Optional.
	OnError func(models.ErrorEvent)

	writeMu sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	effects sync.WaitGroup
}

// New returns a disconnected client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, fmt.Errorf("chatclient: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Token == "" || cfg.Self.ID == "" {
		return nil, fmt.Errorf("chatclient: token and identity are required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		self:    cfg.Self,
		http:    httpClient,
		dialer:  dialer,
		renew:   cfg.TypingRenew,
		log:     cfg.Logger.With().Str("component", "chatclient").Str("identity", cfg.Self.String()).Logger(),
		State:   chatsync.New(cfg.Self.ID),
	}, nil
}

// StartChat finds or creates the room for listingID. Requesters only.
func (c *Client) StartChat(ctx context.Context, listingID string) (*models.Room, error) {
	body, err := json.Marshal(map[string]string{"stayId": listingID})
	if err != nil {
		return nil, err
	}
	var room models.Room
	if err := c.do(ctx, http.MethodPost, "/chat/start", bytes.NewReader(body), "application/json", &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// MyRooms fetches the room list.
func (c *Client) MyRooms(ctx context.Context) ([]models.RoomSummary, error) {
	var rooms []models.RoomSummary
	if err := c.do(ctx, http.MethodGet, "/chat/my-rooms", nil, "", &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// Messages fetches the history of a room.
func (c *Client) Messages(ctx context.Context, roomID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := c.do(ctx, http.MethodGet, "/chat/"+url.PathEscape(roomID), nil, "", &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead marks the room read and returns how many messages changed.
func (c *Client) MarkRead(ctx context.Context, roomID string) (int, error) {
	var resp struct {
		Seen int `json:"seen"`
	}
	if err := c.do(ctx, http.MethodPut, "/chat/"+url.PathEscape(roomID)+"/read", nil, "", &resp); err != nil {
		return 0, err
	}
	return resp.Seen, nil
}

// ClearRoom deletes the room's messages.
func (c *Client) ClearRoom(ctx context.Context, roomID string) error {
	if err := c.do(ctx, http.MethodDelete, "/chat/"+url.PathEscape(roomID), nil, "", nil); err != nil {
		return err
	}
	c.State.SetMessages(roomID, nil)
	return nil
}

// UploadImage uploads an image and returns the URL to send as imageRef.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var resp struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat/upload-image", &buf, mw.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	return resp.ImageURL, nil
}

// do sends an authenticated request and decodes a JSON response into out.
// Error bodies are turned back into apperr kinds.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("chatclient: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Server(method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
			return apperr.Server(method+" "+path, fmt.Errorf("status %d", resp.StatusCode))
		}
		return apperr.FromName(body.Error, body.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Server("decode "+path, err)
	}
	return nil
}
