package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// localBackend writes documents under a directory on the server's disk.
// Used for development and single-node deployments.
type localBackend struct {
	baseDir string
}

func NewLocalBackend() (Backend, error) {
	baseDir := os.Getenv("LOCAL_STORAGE_DIR")
	if baseDir == "" {
		baseDir = "data/documents"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &localBackend{baseDir: baseDir}, nil
}

func (l *localBackend) Name() string {
	return "local"
}

func (l *localBackend) Store(_ context.Context, key string, data []byte, _ string) error {
	target := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

func (l *localBackend) Remove(_ context.Context, key string) error {
	return os.Remove(filepath.Join(l.baseDir, filepath.FromSlash(key)))
}

func (l *localBackend) SignedURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", ErrSignedURLUnsupported
}
