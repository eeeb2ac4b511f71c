package evidence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FSStore writes blobs under a base directory, date-partitioned so a
// directory never accumulates unbounded entries.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	ref := storageKey(contentType)

	path := filepath.Join(s.dir, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create evidence subdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write evidence blob: %w", err)
	}
	return ref, nil
}

func (s *FSStore) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (s *FSStore) Delete(ctx context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// resolve rejects refs that would escape the base directory.
func (s *FSStore) resolve(ref string) (string, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(ref))
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid evidence ref %q", ref)
	}
	return path, nil
}

func storageKey(contentType string) string {
	d := time.Now()
	return fmt.Sprintf("%d/%d/%d/%s%s", d.Year(), d.Month(), d.Day(), uuid.New(), extensionFor(contentType))
}

func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "video/webm"):
		return ".webm"
	case strings.HasPrefix(contentType, "video/mp4"):
		return ".mp4"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	default:
		return ".bin"
	}
}

var _ Store = (*FSStore)(nil)
