// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type SessionID string
type RunID string
type MessageID string

// AnonymousKey is the fixed session key substituted when a request carries
// no session identity at all.
const AnonymousKey SessionKey = "anon"

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewMessageID() MessageID {
	return MessageID(uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}

// NormalizeKey returns the key unchanged, or AnonymousKey if it is empty.
func NormalizeKey(key SessionKey) SessionKey {
	if key == "" {
		return AnonymousKey
	}
	return key
}
