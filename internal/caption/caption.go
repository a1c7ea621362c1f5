// Package caption describes map captures in one sentence.
package caption

import (
	"context"
	"fmt"

	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/llm"
)

// PlaceholderText is returned when no model is configured
const PlaceholderText = "A small satellite view showing buildings and streets (placeholder caption)."

const prompt = "Describe this aerial map capture in one sentence. Mention land use, notable " +
	"structures and terrain. Reply with the sentence only."

// Captioner turns an image into text
type Captioner = capture.Captioner

// Placeholder returns a fixed caption for any image
type Placeholder struct{}

var _ Captioner = Placeholder{}

func (Placeholder) Caption(ctx context.Context, img capture.EncodedImage) (string, error) {
	return PlaceholderText, nil
}

// Generator is the slice of llm.Client a Gemini captioner needs
type Generator interface {
	Generate(ctx context.Context, system, prompt string, images ...llm.Image) (string, error)
}

// Gemini captions images with a multimodal model
type Gemini struct {
	gen Generator
}

var _ Captioner = (*Gemini)(nil)

// NewGemini creates a captioner backed by gen
func NewGemini(gen Generator) *Gemini {
	return &Gemini{gen: gen}
}

func (g *Gemini) Caption(ctx context.Context, img capture.EncodedImage) (string, error) {
	data, err := img.Bytes()
	if err != nil {
		return "", err
	}
	text, err := g.gen.Generate(ctx, "", prompt, llm.Image{MIMEType: img.MimeType(), Data: data})
	if err != nil {
		return "", fmt.Errorf("caption: %w", err)
	}
	return text, nil
}
