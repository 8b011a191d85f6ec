package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS is a filesystem-backed Store rooted at one directory.
type FS struct {
	root string
}

// NewFS creates the root directory when missing and returns the store.
func NewFS(root string) (*FS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob root must not be empty")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create blob root %q: %w", root, err)
	}
	return &FS{root: root}, nil
}

// Root returns the store's base directory.
func (s *FS) Root() string {
	return s.root
}

// Put writes data at objectPath, replacing any existing object. The write
// goes through a temp file and rename so readers never observe a torn object.
func (s *FS) Put(ctx context.Context, objectPath string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(objectPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write object %q: %w", objectPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close object %q: %w", objectPath, err)
	}
	_ = os.Chmod(tmpName, 0o600)
	if err := os.Rename(tmpName, full); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("publish object %q: %w", objectPath, err)
	}

	return objectPath, nil
}

// Get reads the object at objectPath or reports ErrNotFound.
func (s *FS) Get(ctx context.Context, objectPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%q: %w", objectPath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", objectPath, err)
	}
	return data, nil
}

// Exists reports whether an object is present without reading it.
func (s *FS) Exists(ctx context.Context, objectPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.resolve(objectPath)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat object %q: %w", objectPath, err)
	}
	return true, nil
}

// Delete removes the object; deleting a missing object is not an error.
func (s *FS) Delete(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object %q: %w", objectPath, err)
	}
	return nil
}

// resolve maps an object path under the root and rejects traversal escapes.
func (s *FS) resolve(objectPath string) (string, error) {
	clean := filepath.Clean(strings.TrimSpace(objectPath))
	if clean == "" || clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return filepath.Join(s.root, clean), nil
}
