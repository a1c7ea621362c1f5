package config

import (
	"fmt"
	"strconv"
	"time"

	"geocapture-desktop/internal/logging"
)

// ServerConfig configures the caption and query service
type ServerConfig struct {
	Addr             string        `validate:"required"`
	GeoSearchURL     string        `validate:"omitempty,url"` // empty serves placeholder results
	GeoSearchTimeout time.Duration `validate:"gt=0"`
	CORSOrigins      []string      `validate:"dive,required"`
	RateLimit        float64       `validate:"gt=0"` // requests per second per client IP
	RateBurst        int           `validate:"gt=0"`
	GeminiAPIKey     string
	GeminiModel      string
	Log              logging.LogConfig
}

// LoadServerConfig reads the service configuration from the environment
func LoadServerConfig() (*ServerConfig, error) {
	LoadEnv()

	rateLimit, err := strconv.ParseFloat(getEnv("GEOCAPTURE_RATE_LIMIT", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GEOCAPTURE_RATE_LIMIT: %w", err)
	}
	burst, err := strconv.Atoi(getEnv("GEOCAPTURE_RATE_BURST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid GEOCAPTURE_RATE_BURST: %w", err)
	}
	timeout, err := time.ParseDuration(getEnv("GEOCAPTURE_GEOSEARCH_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GEOCAPTURE_GEOSEARCH_TIMEOUT: %w", err)
	}

	log := logging.DefaultLogConfig()
	log.Level = getEnv("GEOCAPTURE_LOG_LEVEL", log.Level)
	log.Format = getEnv("GEOCAPTURE_LOG_FORMAT", log.Format)
	log.Output = getEnv("GEOCAPTURE_LOG_OUTPUT", log.Output)

	cfg := &ServerConfig{
		Addr:             getEnv("GEOCAPTURE_ADDR", ":8000"),
		GeoSearchURL:     getEnv("GEOCAPTURE_GEOSEARCH_URL", ""),
		GeoSearchTimeout: timeout,
		CORSOrigins:      splitCSV(getEnv("GEOCAPTURE_CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),
		RateLimit:        rateLimit,
		RateBurst:        burst,
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEOCAPTURE_GEMINI_MODEL", ""),
		Log:              log,
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}
