// internal/state/conversation_test.go
package state

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/user/parley/internal/types"
)

func userMsg(sessionID types.SessionID, content string) *types.Message {
	return &types.Message{
		ID:        types.NewMessageID(),
		SessionID: sessionID,
		Role:      types.RoleUser,
		Content:   content,
		At:        time.Now(),
	}
}

func TestConversationStore(t *testing.T) {
	dir := t.TempDir()
	store := NewConversationStore(dir)
	ctx := context.Background()

	sessionID := types.NewSessionID()

	if err := store.Append(ctx, userMsg(sessionID, "hello")); err != nil {
		t.Fatal(err)
	}

	msgs, err := store.ReadAll(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Seq != 1 {
		t.Errorf("expected seq 1, got %d", msgs[0].Seq)
	}

	count, err := store.Count(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
}

func TestConversationStoreOrdering(t *testing.T) {
	dir := t.TempDir()
	store := NewConversationStore(dir)
	ctx := context.Background()

	sessionID := types.NewSessionID()

	// Two messages per turn, user then assistant, over several turns.
	const turns = 4
	for i := 0; i < turns; i++ {
		if err := store.Append(ctx, userMsg(sessionID, fmt.Sprintf("question %d", i))); err != nil {
			t.Fatal(err)
		}
		reply := &types.Message{
			ID:        types.NewMessageID(),
			SessionID: sessionID,
			Role:      types.RoleAssistant,
			Content:   fmt.Sprintf("answer %d", i),
			At:        time.Now(),
		}
		if err := store.Append(ctx, reply); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := store.ReadAll(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2*turns {
		t.Fatalf("expected %d messages, got %d", 2*turns, len(msgs))
	}
	for i, msg := range msgs {
		if msg.Seq != int64(i+1) {
			t.Errorf("message %d: expected seq %d, got %d", i, i+1, msg.Seq)
		}
		want := types.RoleUser
		if i%2 == 1 {
			want = types.RoleAssistant
		}
		if msg.Role != want {
			t.Errorf("message %d: expected role %s, got %s", i, want, msg.Role)
		}
	}
}

func TestConversationStoreClear(t *testing.T) {
	dir := t.TempDir()
	store := NewConversationStore(dir)
	ctx := context.Background()

	sessionID := types.NewSessionID()
	if err := store.Append(ctx, userMsg(sessionID, "hello")); err != nil {
		t.Fatal(err)
	}

	if err := store.Clear(ctx, sessionID); err != nil {
		t.Fatal(err)
	}

	msgs, err := store.ReadAll(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history after clear, got %d messages", len(msgs))
	}

	// Clearing an already-empty session is fine.
	if err := store.Clear(ctx, sessionID); err != nil {
		t.Errorf("expected clear to be idempotent, got %v", err)
	}
}

func TestConversationStoreConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	store := NewConversationStore(dir)
	ctx := context.Background()

	sessionID := types.NewSessionID()
	const writers = 10

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Append(ctx, userMsg(sessionID, fmt.Sprintf("msg %d", i))); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	msgs, err := store.ReadAll(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != writers {
		t.Fatalf("expected %d messages, got %d (lost update)", writers, len(msgs))
	}
	seen := make(map[int64]bool)
	for _, msg := range msgs {
		if seen[msg.Seq] {
			t.Errorf("duplicate seq %d", msg.Seq)
		}
		seen[msg.Seq] = true
	}
}

func TestConversationStoreEmptySession(t *testing.T) {
	dir := t.TempDir()
	store := NewConversationStore(dir)

	msgs, err := store.ReadAll(context.Background(), "never-seen")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty slice, got %d", len(msgs))
	}
}
