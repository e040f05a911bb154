// internal/state/upload_test.go
package state

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestUploadStoreSaveRemove(t *testing.T) {
	dir := t.TempDir()
	store := NewUploadStore(dir)

	path, err := store.Save(strings.NewReader("fake image bytes"), "photo.PNG")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, ".png") {
		t.Errorf("expected lowercased extension preserved, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fake image bytes" {
		t.Errorf("unexpected content %q", data)
	}

	if err := store.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected file to be gone")
	}

	// Double remove is not an error.
	if err := store.Remove(path); err != nil {
		t.Errorf("expected idempotent remove, got %v", err)
	}
}

func TestUploadStoreSweep(t *testing.T) {
	dir := t.TempDir()
	store := NewUploadStore(dir)

	path, err := store.Save(strings.NewReader("stale"), "old.jpg")
	if err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	fresh, err := store.Save(strings.NewReader("fresh"), "new.jpg")
	if err != nil {
		t.Fatal(err)
	}

	removed, err := store.Sweep(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("expected fresh upload to survive sweep")
	}
}
