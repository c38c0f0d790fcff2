package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencom-org/series/pkg/api"
)

// SentMessage is one delivery recorded by a memory channel.
type SentMessage struct {
	WorkspaceID string
	VisitorID   string
	Msg         api.MessageConfig
}

// MemoryChatChannel is a ChatChannel that records every send.
type MemoryChatChannel struct {
	mu   sync.Mutex
	sent []SentMessage
}

// NewMemoryChatChannel creates a new MemoryChatChannel.
func NewMemoryChatChannel() *MemoryChatChannel {
	return &MemoryChatChannel{}
}

// Ensure MemoryChatChannel implements ChatChannel.
var _ api.ChatChannel = (*MemoryChatChannel)(nil)

func (c *MemoryChatChannel) SendMessage(ctx context.Context, workspaceID, visitorID string, msg api.MessageConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, SentMessage{WorkspaceID: workspaceID, VisitorID: visitorID, Msg: msg})
	return nil
}

// Sent returns a copy of all recorded deliveries.
func (c *MemoryChatChannel) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SentMessage, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentEmail is one email delivery recorded by MemoryEmailChannel.
type SentEmail struct {
	WorkspaceID string
	VisitorID   string
	To          string
	Msg         api.MessageConfig
}

// MemoryEmailChannel is an EmailChannel that records every send. It reads
// the recipient address from a MemoryVisitorStore; a visitor without an
// email address yields a recoverable error, so the block is retried
// rather than failed outright.
type MemoryEmailChannel struct {
	mu       sync.Mutex
	visitors *MemoryVisitorStore
	sent     []SentEmail
}

// NewMemoryEmailChannel creates a MemoryEmailChannel resolving recipients
// from the given visitor store.
func NewMemoryEmailChannel(visitors *MemoryVisitorStore) *MemoryEmailChannel {
	return &MemoryEmailChannel{visitors: visitors}
}

// Ensure MemoryEmailChannel implements EmailChannel.
var _ api.EmailChannel = (*MemoryEmailChannel)(nil)

func (c *MemoryEmailChannel) SendEmail(ctx context.Context, workspaceID, visitorID string, msg api.MessageConfig) error {
	snapshot, err := c.visitors.Snapshot(ctx, workspaceID, visitorID)
	if err != nil {
		return err
	}

	to := snapshot.Email()
	if to == "" {
		return api.NewRecoverableError(fmt.Errorf("visitor %s: %w", visitorID, api.ErrNoEmailAddress))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, SentEmail{WorkspaceID: workspaceID, VisitorID: visitorID, To: to, Msg: msg})
	return nil
}

// Sent returns a copy of all recorded deliveries.
func (c *MemoryEmailChannel) Sent() []SentEmail {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SentEmail, len(c.sent))
	copy(out, c.sent)
	return out
}
