package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/navigator"
	"geocapture-desktop/internal/search"
)

// Caption modes
const (
	CaptionRemote      = "remote"
	CaptionGemini      = "gemini"
	CaptionPlaceholder = "placeholder"
)

// Endpoints are the external services the desktop app talks to
type Endpoints struct {
	Upload  string `json:"upload" validate:"omitempty,url"`
	Caption string `json:"caption" validate:"omitempty,url"`
	Query   string `json:"query" validate:"omitempty,url"`
}

// UserSettings represents persistent user preferences
type UserSettings struct {
	// Capture settings
	DownloadPath      string `json:"downloadPath" validate:"required"`
	ScreenshotQuality int    `json:"screenshotQuality" validate:"gte=1,lte=100"`
	UploadOnCapture   bool   `json:"uploadOnCapture"`
	CaptionOnCapture  bool   `json:"captionOnCapture"`
	SaveOnCapture     bool   `json:"saveOnCapture"`
	PromptOnSave      bool   `json:"promptOnSave"` // ask for a location instead of writing to DownloadPath

	// Services
	Endpoints         Endpoints `json:"endpoints"`
	RequestTimeoutSec int       `json:"requestTimeoutSec" validate:"gt=0,lte=300"`
	CaptionMode       string    `json:"captionMode" validate:"oneof=remote gemini placeholder"`
	GeminiModel       string    `json:"geminiModel"`
	GeminiAPIKey      string    `json:"-"` // environment only
	SearchCacheTTLSec int       `json:"searchCacheTTLSec" validate:"gte=0"`

	// Camera behaviour
	Navigation navigator.Config `json:"navigation"`
	Framing    search.Framing   `json:"framing"`

	// Default map settings
	DefaultZoom      float64 `json:"defaultZoom" validate:"gte=0,lte=24"`
	DefaultCenterLat float64 `json:"defaultCenterLat" validate:"gte=-90,lte=90"`
	DefaultCenterLon float64 `json:"defaultCenterLon" validate:"gte=-180,lte=180"`

	// Last session position, restored on startup when LastZoom > 0
	LastCenterLat float64 `json:"lastCenterLat"`
	LastCenterLon float64 `json:"lastCenterLon"`
	LastZoom      float64 `json:"lastZoom"`

	// Logging
	Log logging.LogConfig `json:"log"`

	// UI preferences
	Theme string `json:"theme" validate:"oneof=light dark system"`
}

// DefaultSettings returns default user settings
func DefaultSettings() *UserSettings {
	homeDir, _ := os.UserHomeDir()
	downloadPath := filepath.Join(homeDir, "Downloads", "geocapture")

	return &UserSettings{
		DownloadPath:      downloadPath,
		ScreenshotQuality: 90,
		UploadOnCapture:   true,
		CaptionOnCapture:  true,
		SaveOnCapture:     true,
		Endpoints: Endpoints{
			// geocaptured has no upload route; uploads stay off until one is configured
			Upload:  "",
			Caption: "http://localhost:8000/process_caption",
			Query:   "http://localhost:8000/process_query",
		},
		RequestTimeoutSec: 30,
		CaptionMode:       CaptionRemote,
		SearchCacheTTLSec: int(search.DefaultCacheTTL / time.Second),
		Navigation:        navigator.DefaultConfig(),
		Framing:           search.DefaultFraming(),
		DefaultZoom:       12,
		DefaultCenterLat:  40.7128, // New York City
		DefaultCenterLon:  -74.0060,
		Log:               logging.DefaultLogConfig(),
		Theme:             "system",
	}
}

// RequestTimeout returns the service request timeout
func (s *UserSettings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

// SearchCacheTTL returns how long search responses are cached
func (s *UserSettings) SearchCacheTTL() time.Duration {
	return time.Duration(s.SearchCacheTTLSec) * time.Second
}

var validate = validator.New()

// Validate checks field constraints
func (s *UserSettings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// GetSettingsPath returns the OS-specific settings file path
func GetSettingsPath() string {
	homeDir, _ := os.UserHomeDir()

	// ~/.geocapture/desktop/settings/
	baseDir := filepath.Join(homeDir, ".geocapture", "desktop", "settings")
	os.MkdirAll(baseDir, 0755)

	return filepath.Join(baseDir, "settings.json")
}

// LoadSettings loads user settings from disk
func LoadSettings() (*UserSettings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom loads settings from path. Missing fields keep their
// defaults; a missing file yields the defaults.
func LoadSettingsFrom(settingsPath string) (*UserSettings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(settingsPath)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	// Zero values that cannot be valid fall back to defaults
	defaults := DefaultSettings()
	if settings.DownloadPath == "" {
		settings.DownloadPath = defaults.DownloadPath
	}
	if settings.ScreenshotQuality == 0 {
		settings.ScreenshotQuality = defaults.ScreenshotQuality
	}
	if settings.RequestTimeoutSec == 0 {
		settings.RequestTimeoutSec = defaults.RequestTimeoutSec
	}
	if settings.CaptionMode == "" {
		settings.CaptionMode = defaults.CaptionMode
	}
	if settings.Navigation.TargetZoom == 0 {
		settings.Navigation = defaults.Navigation
	}
	if settings.Framing.SingleResultZoom == 0 {
		settings.Framing = defaults.Framing
	}
	if settings.Theme == "" {
		settings.Theme = defaults.Theme
	}

	return settings, nil
}

// SaveSettings saves user settings to disk
func SaveSettings(settings *UserSettings) error {
	return SaveSettingsTo(GetSettingsPath(), settings)
}

// SaveSettingsTo validates settings and writes them to path
func SaveSettingsTo(settingsPath string, settings *UserSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(settingsPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(settingsPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}
