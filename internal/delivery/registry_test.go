package delivery

import (
	"testing"

	"github.com/user/parley/internal/types"
)

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var gotKey types.SessionKey
	var gotMsg string
	reg.Register("telegram:", func(sessionKey types.SessionKey, message string) error {
		gotKey = sessionKey
		gotMsg = message
		return nil
	})

	if err := reg.Deliver("telegram:123:456", "hello"); err != nil {
		t.Fatal(err)
	}
	if gotKey != "telegram:123:456" {
		t.Errorf("unexpected key %q", gotKey)
	}
	if gotMsg != "hello" {
		t.Errorf("unexpected message %q", gotMsg)
	}
}

func TestRegistryPrefixRouting(t *testing.T) {
	reg := NewRegistry()

	var hits []string
	reg.Register("telegram:", func(sessionKey types.SessionKey, message string) error {
		hits = append(hits, "telegram")
		return nil
	})
	reg.Register("http:", func(sessionKey types.SessionKey, message string) error {
		hits = append(hits, "http")
		return nil
	})

	if err := reg.Deliver("http:abc", "x"); err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0] != "http" {
		t.Errorf("expected http handler, got %v", hits)
	}
}

func TestRegistryNoHandler(t *testing.T) {
	reg := NewRegistry()

	err := reg.Deliver("slack:whatever", "x")
	if err == nil {
		t.Fatal("expected error for unregistered prefix")
	}
	if types.KindOf(err) != types.KindNotFound {
		t.Errorf("expected KindNotFound, got %s", types.KindOf(err))
	}
}
