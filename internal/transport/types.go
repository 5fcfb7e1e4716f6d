package transport

import (
	"context"
	"time"
)

// Message is one inbound chat message, platform-agnostic.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	// SentAt is the platform's own timestamp for the message, not the
	// instant we happened to poll it. Dedup history records this.
	SentAt  time.Time
	IsGroup bool
}

type Update struct {
	Message *Message
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyTo makes the outgoing text a threaded reply to an inbound
	// message where the platform supports it.
	ReplyTo *MessageRef
}

// Adapter is the boundary to a chat platform. Start feeds inbound
// updates into out and must not block on a slow consumer (drop and
// count instead); SendText is the reply sink.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
