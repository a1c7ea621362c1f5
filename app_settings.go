package main

import (
	"os"

	"github.com/sirupsen/logrus"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"geocapture-desktop/internal/caption"
	"geocapture-desktop/internal/config"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/remote"
)

// ===================
// Settings Management
// ===================

// GetSettings returns current user settings
func (a *App) GetSettings() (*config.UserSettings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Return a copy to prevent external modifications
	settingsCopy := *a.settings
	return &settingsCopy, nil
}

// SaveSettings saves user settings to disk and updates app state. The
// captioner is swapped immediately; endpoints, navigation and framing apply
// on next start.
func (a *App) SaveSettings(settings *config.UserSettings) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// The API key never reaches the frontend, so keep the one loaded from env
	settings.GeminiAPIKey = a.settings.GeminiAPIKey

	if err := config.SaveSettings(settings); err != nil {
		return err
	}

	a.settings = settings

	if a.pipeline != nil {
		rc := remote.NewClient(settings.RequestTimeout(), a.rateLimitHandler, logging.Component(a.logger, "remote"))
		a.pipeline.SetCaptioner(caption.FromSettings(a.ctx, settings, rc, logging.Component(a.logger, "caption")))
	}
	if a.searchClient != nil {
		a.searchClient.Flush()
	}

	a.log.WithField("captionMode", settings.CaptionMode).Info("Settings saved")
	return nil
}

// GetSettingsPath returns the OS-specific settings file path
func (a *App) GetSettingsPath() string {
	return config.GetSettingsPath()
}

// SaveMapPosition saves the current map position for session persistence
func (a *App) SaveMapPosition(lat, lon, zoom float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.settings.LastCenterLat = lat
	a.settings.LastCenterLon = lon
	a.settings.LastZoom = zoom

	if err := config.SaveSettings(a.settings); err != nil {
		return err
	}

	a.log.WithFields(logrus.Fields{"lat": lat, "lon": lon, "zoom": zoom}).Debug("Saved map position")
	return nil
}

// SelectDownloadFolder opens a folder picker and stores the choice
func (a *App) SelectDownloadFolder() (string, error) {
	a.mu.Lock()
	current := a.settings.DownloadPath
	a.mu.Unlock()

	path, err := wailsRuntime.OpenDirectoryDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title:            "Select Download Folder",
		DefaultDirectory: current,
	})
	if err != nil || path == "" {
		return "", err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", err
	}

	updated, _ := a.GetSettings()
	updated.DownloadPath = path
	if err := a.SaveSettings(updated); err != nil {
		return "", err
	}
	return path, nil
}
