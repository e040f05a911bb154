// internal/state/upload.go
package state

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadStore holds request-scoped file uploads under uploads/. Files live
// only for the duration of one request; callers must Remove them on every
// exit path. Sweep exists to clean up anything a crashed process left behind.
type UploadStore struct {
	root string
}

// NewUploadStore creates an UploadStore rooted at the given directory.
func NewUploadStore(root string) *UploadStore {
	return &UploadStore{root: root}
}

func (u *UploadStore) dir() string {
	return filepath.Join(u.root, "uploads")
}

// Save writes the reader's contents to a uniquely-named file, preserving the
// original extension, and returns the file path.
func (u *UploadStore) Save(r io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(u.dir(), 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(u.dir(), uuid.New().String()+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}

	return path, nil
}

// Remove deletes an upload. Removing an already-removed file is not an error.
func (u *UploadStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}

// Sweep removes uploads older than maxAge and returns how many were deleted.
func (u *UploadStore) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(u.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read uploads dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(u.dir(), entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
