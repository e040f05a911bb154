// internal/types/interfaces.go
package types

import (
	"context"
)

type SessionStore interface {
	ResolveOrCreate(ctx context.Context, key SessionKey) (SessionID, error)
	Get(ctx context.Context, id SessionID) (*SessionIndex, error)
	List(ctx context.Context) ([]*SessionIndex, error)
	Update(ctx context.Context, session *SessionIndex) error
}

// ConversationStore is the append-only message log. Append assigns sequence
// numbers; ReadAll returns messages oldest-first; Clear removes a session's
// log atomically. All mutation of conversation history goes through this
// interface.
type ConversationStore interface {
	Append(ctx context.Context, msg *Message) error
	ReadAll(ctx context.Context, sessionID SessionID) ([]*Message, error)
	Clear(ctx context.Context, sessionID SessionID) error
	Count(ctx context.Context, sessionID SessionID) (int64, error)
}
