package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv reads a .env file from the working directory when present
func LoadEnv() {
	_ = godotenv.Load()
}

// ApplyEnv overrides settings from GEOCAPTURE_* variables and GEMINI_API_KEY
func ApplyEnv(s *UserSettings) {
	setString(&s.Endpoints.Upload, "GEOCAPTURE_UPLOAD_URL")
	setString(&s.Endpoints.Caption, "GEOCAPTURE_CAPTION_URL")
	setString(&s.Endpoints.Query, "GEOCAPTURE_QUERY_URL")
	setString(&s.CaptionMode, "GEOCAPTURE_CAPTION_MODE")
	setString(&s.GeminiModel, "GEOCAPTURE_GEMINI_MODEL")
	setString(&s.DownloadPath, "GEOCAPTURE_DOWNLOAD_PATH")
	setString(&s.Log.Level, "GEOCAPTURE_LOG_LEVEL")
	setString(&s.Log.Format, "GEOCAPTURE_LOG_FORMAT")
	setString(&s.Log.Output, "GEOCAPTURE_LOG_OUTPUT")
	setInt(&s.RequestTimeoutSec, "GEOCAPTURE_REQUEST_TIMEOUT")
	setInt(&s.ScreenshotQuality, "GEOCAPTURE_SCREENSHOT_QUALITY")
	setString(&s.GeminiAPIKey, "GEMINI_API_KEY")

	// A key without an explicit mode switches captioning to Gemini
	if s.GeminiAPIKey != "" && getEnv("GEOCAPTURE_CAPTION_MODE", "") == "" && s.CaptionMode == CaptionPlaceholder {
		s.CaptionMode = CaptionGemini
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func setString(dst *string, key string) {
	*dst = getEnv(key, *dst)
}

func setInt(dst *int, key string) {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
