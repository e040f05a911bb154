// internal/types/models.go
package types

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a session's conversation log. Messages are
// append-only and never mutated once written; Seq is assigned by the
// conversation store at append time.
type Message struct {
	ID        MessageID `json:"id"`
	SessionID SessionID `json:"session_id"`
	RunID     RunID     `json:"run_id,omitempty"`
	Seq       int64     `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

// SessionIndex is the durable record for one session.
type SessionIndex struct {
	SessionID    SessionID  `json:"session_id"`
	SessionKey   SessionKey `json:"session_key"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastRunID    RunID      `json:"last_run_id,omitempty"`
	MessageCount int64      `json:"message_count"`
}

// InboundTurn is one user turn arriving from any surface (HTTP, Telegram,
// scheduler). Exactly one of Text or ImagePath drives routing: a non-empty
// ImagePath selects the image-analysis path, otherwise Text must be set.
type InboundTurn struct {
	Source     string     `json:"source"`
	SessionKey SessionKey `json:"session_key"`
	UserID     string     `json:"user_id"`
	Text       string     `json:"text"`
	ImagePath  string     `json:"image_path,omitempty"`
}
