package config

import "time"

const (
	// Websocket
	WriteWait      = 10 * time.Second
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10
	MaxMessageSize = 16 * 1024
	SendBufferSize = 256

	// Typing
	DefaultTypingTTL = 5 * time.Second
	ClientTypingIdle = 2 * time.Second
	// ClientTypingRenew is how often a client repeats typing during a long burst.
	ClientTypingRenew = DefaultTypingTTL / 2

	// Client synchronizer
	RecentMessageWindow = 50

	// Persistence
	StoreTimeout    = 5 * time.Second
	PresenceTimeout = 3 * time.Second
	PresenceRefresh = 30 * time.Second

	// Uploads
	MaxImageSize = 5 << 20
)

// AllowedImageExts are the accepted upload extensions.
var AllowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}
