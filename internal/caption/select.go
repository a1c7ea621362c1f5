package caption

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/config"
	"geocapture-desktop/internal/llm"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/remote"
)

// FromSettings picks the captioner for the configured mode. Gemini without a
// usable key and remote without an endpoint fall back to Placeholder.
func FromSettings(ctx context.Context, s *config.UserSettings, rc *remote.Client, log *logrus.Entry) Captioner {
	if log == nil {
		log = logging.Discard()
	}
	switch s.CaptionMode {
	case config.CaptionGemini:
		client, err := llm.New(ctx, llm.Config{APIKey: s.GeminiAPIKey, Model: s.GeminiModel}, log)
		if errors.Is(err, llm.ErrNoKey) {
			log.Info("No Gemini API key, using placeholder captions")
			return Placeholder{}
		}
		if err != nil {
			log.WithError(err).Warn("Gemini unavailable, using placeholder captions")
			return Placeholder{}
		}
		return NewGemini(client)
	case config.CaptionPlaceholder:
		return Placeholder{}
	default:
		if s.Endpoints.Caption == "" {
			return Placeholder{}
		}
		return remote.NewCaptioner(rc, s.Endpoints.Caption)
	}
}
