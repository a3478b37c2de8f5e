package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStorage writes objects as files under Dir.
type FilesystemStorage struct {
	Dir string
}

func NewFilesystemStorage(dir string) *FilesystemStorage {
	if dir == "" {
		dir = "cases"
	}
	return &FilesystemStorage{Dir: dir}
}

func (f *FilesystemStorage) Upload(objectKey string, _ string, body []byte) error {
	clean := filepath.Clean("/" + objectKey)
	if strings.Contains(objectKey, "..") || clean == "/" {
		return fmt.Errorf("invalid object key %q", objectKey)
	}
	path := filepath.Join(f.Dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
