// internal/state/conversation.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/parley/internal/types"
)

// ConversationStore is a JSONL-backed append-only message log.
// Messages are stored per-session in sessions/<sessionID>/messages.jsonl.
// A per-session mutex serializes writers so sequence numbers stay dense and
// strictly increasing.
type ConversationStore struct {
	root  string
	mu    sync.Mutex
	locks map[types.SessionID]*sync.Mutex
}

// NewConversationStore creates a new file-backed ConversationStore rooted at
// the given directory.
func NewConversationStore(root string) *ConversationStore {
	return &ConversationStore{
		root:  root,
		locks: make(map[types.SessionID]*sync.Mutex),
	}
}

// getLock returns the per-session mutex, creating one if it doesn't exist.
func (c *ConversationStore) getLock(sessionID types.SessionID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lock, ok := c.locks[sessionID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	c.locks[sessionID] = lock
	return lock
}

func (c *ConversationStore) messagesPath(sessionID types.SessionID) string {
	return filepath.Join(c.root, "sessions", string(sessionID), "messages.jsonl")
}

// count reads the message file and counts lines. Caller must hold the session lock.
func (c *ConversationStore) count(sessionID types.SessionID) (int64, error) {
	f, err := os.Open(c.messagesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, types.WrapError(types.KindStorage, "open messages file", err)
	}
	defer f.Close()

	var count int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, types.WrapError(types.KindStorage, "scan messages file", err)
	}
	return count, nil
}

// Append adds a message to the session's log with an auto-incremented
// sequence number. The write is flushed before Append returns; any failure
// surfaces as a storage error, never silently.
func (c *ConversationStore) Append(_ context.Context, msg *types.Message) error {
	lock := c.getLock(msg.SessionID)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(c.messagesPath(msg.SessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.WrapError(types.KindStorage, "create session dir", err)
	}

	existing, err := c.count(msg.SessionID)
	if err != nil {
		return err
	}
	msg.Seq = existing + 1

	data, err := json.Marshal(msg)
	if err != nil {
		return types.WrapError(types.KindStorage, "marshal message", err)
	}

	f, err := os.OpenFile(c.messagesPath(msg.SessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return types.WrapError(types.KindStorage, "open messages file", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return types.WrapError(types.KindStorage, "write message", err)
	}

	return nil
}

// ReadAll returns every message for the given session, oldest first.
// A session with no history yields an empty slice, not an error.
func (c *ConversationStore) ReadAll(_ context.Context, sessionID types.SessionID) ([]*types.Message, error) {
	lock := c.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(c.messagesPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.WrapError(types.KindStorage, "open messages file", err)
	}
	defer f.Close()

	var messages []*types.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var msg types.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, types.WrapError(types.KindStorage, "unmarshal message", err)
		}
		messages = append(messages, &msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, types.WrapError(types.KindStorage, "scan messages file", err)
	}

	return messages, nil
}

// Clear removes the session's entire message log in one operation. Readers
// and writers for the session are blocked while the file is removed, so no
// partially-cleared state is ever observable.
func (c *ConversationStore) Clear(_ context.Context, sessionID types.SessionID) error {
	lock := c.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(c.messagesPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return types.WrapError(types.KindStorage, "remove messages file", err)
	}
	return nil
}

// Count returns the number of messages for the given session.
func (c *ConversationStore) Count(_ context.Context, sessionID types.SessionID) (int64, error) {
	lock := c.getLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	return c.count(sessionID)
}
