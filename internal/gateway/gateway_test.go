package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/user/parley/internal/types"
)

// fakeSessions is an in-memory SessionStore for gateway tests.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[types.SessionKey]types.SessionID
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[types.SessionKey]types.SessionID)}
}

func (f *fakeSessions) ResolveOrCreate(ctx context.Context, key types.SessionKey) (types.SessionID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key = types.NormalizeKey(key)
	if id, ok := f.sessions[key]; ok {
		return id, nil
	}
	id := types.NewSessionID()
	f.sessions[key] = id
	return id, nil
}

func (f *fakeSessions) Get(ctx context.Context, id types.SessionID) (*types.SessionIndex, error) {
	return &types.SessionIndex{SessionID: id, Status: "active"}, nil
}

func (f *fakeSessions) List(ctx context.Context) ([]*types.SessionIndex, error) {
	return nil, nil
}

func (f *fakeSessions) Update(ctx context.Context, index *types.SessionIndex) error {
	return nil
}

func TestGatewayHandleInbound(t *testing.T) {
	sessions := newFakeSessions()
	gw := New(sessions, 2)
	gw.Start(context.Background())
	defer gw.Stop()

	gw.Queue.SetProcessor(func(run *Run) error {
		run.Complete("echo: " + run.Turn.Text)
		return nil
	})

	run, err := gw.HandleInbound(context.Background(), &types.InboundTurn{
		Source:     "http",
		SessionKey: "http:abc",
		Text:       "hello",
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := run.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result != "echo: hello" {
		t.Errorf("expected echoed response, got %q", result)
	}
}

func TestGatewaySameKeySameSession(t *testing.T) {
	sessions := newFakeSessions()
	gw := New(sessions, 2)
	gw.Start(context.Background())
	defer gw.Stop()

	gw.Queue.SetProcessor(func(run *Run) error {
		run.Complete("ok")
		return nil
	})

	run1, err := gw.HandleInbound(context.Background(), &types.InboundTurn{Source: "http", SessionKey: "http:abc", Text: "a"})
	if err != nil {
		t.Fatal(err)
	}
	run2, err := gw.HandleInbound(context.Background(), &types.InboundTurn{Source: "http", SessionKey: "http:abc", Text: "b"})
	if err != nil {
		t.Fatal(err)
	}

	if run1.SessionID != run2.SessionID {
		t.Error("expected same session for same key")
	}

	run3, err := gw.HandleInbound(context.Background(), &types.InboundTurn{Source: "http", SessionKey: "http:other", Text: "c"})
	if err != nil {
		t.Fatal(err)
	}
	if run3.SessionID == run1.SessionID {
		t.Error("expected different session for different key")
	}
}

func TestGatewayEmptyKeyMapsToAnonymous(t *testing.T) {
	sessions := newFakeSessions()
	gw := New(sessions, 1)
	gw.Start(context.Background())
	defer gw.Stop()

	gw.Queue.SetProcessor(func(run *Run) error {
		run.Complete("ok")
		return nil
	})

	run1, err := gw.HandleInbound(context.Background(), &types.InboundTurn{Source: "http", Text: "a"})
	if err != nil {
		t.Fatal(err)
	}
	run2, err := gw.HandleInbound(context.Background(), &types.InboundTurn{Source: "http", SessionKey: types.AnonymousKey, Text: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if run1.SessionID != run2.SessionID {
		t.Error("expected empty key to share the anonymous session")
	}
}

func TestGatewayOnComplete(t *testing.T) {
	sessions := newFakeSessions()
	gw := New(sessions, 1)
	gw.Start(context.Background())
	defer gw.Stop()

	gw.Queue.SetProcessor(func(run *Run) error {
		run.Complete("delivered")
		return nil
	})

	got := make(chan string, 1)
	_, err := gw.HandleInbound(context.Background(),
		&types.InboundTurn{Source: "telegram", SessionKey: "telegram:1", Text: "hi"},
		WithOnComplete(func(resp string) { got <- resp }))
	if err != nil {
		t.Fatal(err)
	}

	select {
	case resp := <-got:
		if resp != "delivered" {
			t.Errorf("expected 'delivered', got %q", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnComplete")
	}
}
