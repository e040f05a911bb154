package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestSplitMessageRuneBoundary(t *testing.T) {
	// Each rune is 3 bytes, so 4096 bytes falls mid-rune.
	long := strings.Repeat("€", 2000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	var joined strings.Builder
	for i, part := range parts {
		if !utf8.ValidString(part) {
			t.Errorf("part %d is not valid UTF-8", i)
		}
		if len(part) > maxTelegramMessage {
			t.Errorf("part %d exceeds limit: %d bytes", i, len(part))
		}
		joined.WriteString(part)
	}
	if joined.String() != long {
		t.Error("expected split parts to reassemble the original text")
	}
}

func TestBuildSessionKey(t *testing.T) {
	key := buildSessionKey(12345, 67890)
	if string(key) != "telegram:12345:67890" {
		t.Errorf("expected 'telegram:12345:67890', got %q", key)
	}
}

func TestSendToRejectsForeignKeys(t *testing.T) {
	a := &Adapter{}
	if err := a.SendTo("http:abc", "hi"); err == nil {
		t.Error("expected error for non-telegram key")
	}
	if err := a.SendTo("telegram:12345:notanumber", "hi"); err == nil {
		t.Error("expected error for non-numeric chat ID")
	}
}
