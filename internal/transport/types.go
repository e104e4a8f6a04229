// Package transport defines platform-neutral messaging types and the
// Adapter interface implemented by concrete platforms (Telegram).
package transport

import "context"

// ChatTarget addresses a chat, optionally a forum topic thread inside it.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // forum topic thread id (0 if none)
}

// UserRef identifies a platform user.
type UserRef struct {
	UserID   int64
	Username string
}

// MessageRef identifies a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string // "HTML" or "" for plain text
	DisablePreview bool
}

// Notification is one outbound message queued for best-effort delivery.
type Notification struct {
	Target  ChatTarget
	Text    string
	Options *SendOptions
}

// Adapter is the outbound platform surface used by the dispatcher.
//
// AddMember and CreateGroupSpace return a short human-readable detail
// string that ends up in per-document summaries.
type Adapter interface {
	// SendText delivers a message to a chat or user.
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)

	// AddMember brings a user into the given group/topic.
	AddMember(ctx context.Context, group ChatTarget, user UserRef) (detail string, err error)

	// CreateGroupSpace provisions a new group space (forum topic) with
	// the given title and invites its first member.
	CreateGroupSpace(ctx context.Context, title string, first UserRef) (ChatTarget, string, error)

	Close() error
}
