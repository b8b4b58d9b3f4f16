package chathub_test

import (
	"sync"
	"testing"
	"time"

	"staychat/backend/internal/models"

	"github.com/stretchr/testify/require"
)

type MockClient struct {
	id       string
	identity models.Identity

	mu     sync.Mutex
	full   bool
	closed bool

	RecvChannel chan models.Envelope
}

func newMockClient(id string, identity models.Identity) *MockClient {
	return &MockClient{
		id:          id,
		identity:    identity,
		RecvChannel: make(chan models.Envelope, 32),
	}
}

func (c *MockClient) ID() string                { return c.id }
func (c *MockClient) Identity() models.Identity { return c.identity }

func (c *MockClient) Send(env models.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	select {
	case c.RecvChannel <- env:
		return true
	default:
		return false
	}
}

func (c *MockClient) setFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

func (c *MockClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// nextEvent waits for the next envelope named event, skipping others.
func nextEvent(t *testing.T, c *MockClient, event string) models.Envelope {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case env := <-c.RecvChannel:
			if env.Event == event {
				return env
			}
		case <-deadline:
			require.FailNowf(t, "event not received", "%s did not receive %s", c.id, event)
			return models.Envelope{}
		}
	}
}

// noEvent asserts that no envelope named event arrives within wait.
func noEvent(t *testing.T, c *MockClient, event string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case env := <-c.RecvChannel:
			if env.Event == event {
				require.FailNowf(t, "unexpected event", "%s received %s: %s", c.id, event, env.Data)
			}
		case <-deadline:
			return
		}
	}
}
