package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// dialogSaver asks where to put each capture. Cancelling the dialog skips
// the save.
type dialogSaver struct {
	app *App
}

func (d dialogSaver) Save(ctx context.Context, filename, mime string, data []byte) (string, error) {
	d.app.mu.Lock()
	dir := d.app.settings.DownloadPath
	d.app.mu.Unlock()

	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	path, err := wailsRuntime.SaveFileDialog(d.app.ctx, wailsRuntime.SaveDialogOptions{
		Title:            "Save Capture",
		DefaultDirectory: dir,
		DefaultFilename:  filename,
		Filters: []wailsRuntime.FileFilter{
			{DisplayName: fmt.Sprintf("Image (%s)", mime), Pattern: "*." + ext},
		},
	})
	if err != nil {
		return "", fmt.Errorf("save dialog failed: %w", err)
	}
	if path == "" {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save capture: %w", err)
	}
	return path, nil
}
