package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage keeps uploaded files and returns their public URL.
type Storage interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// DirStorage stores files in a local directory served under BaseURL.
type DirStorage struct {
	Root    string
	BaseURL string
}

// Put implements Storage.
func (d *DirStorage) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + key)[1:]
	if clean == "" || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}

	path := filepath.Join(d.Root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return strings.TrimRight(d.BaseURL, "/") + "/" + clean, nil
}
