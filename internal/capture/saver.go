package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirSaver writes captures into a directory
type DirSaver struct {
	Dir string
}

// Save writes data under Dir, creating it when needed
func (s DirSaver) Save(ctx context.Context, filename, mime string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save capture: %w", err)
	}
	return path, nil
}
