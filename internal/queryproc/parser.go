// Package queryproc turns a free-form location query into geosearch results:
// an LLM splits the query into search keywords and a rough bounding box, the
// geosearch service returns tiles, and the tiles are normalized into points
// with captions and thumbnails.
package queryproc

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"geocapture-desktop/internal/llm"
	"geocapture-desktop/internal/logging"
)

// ParsedQuery is a query split into keywords and an optional area.
// BBox is [minx, miny, maxx, maxy] in WGS84 lon/lat, or nil.
type ParsedQuery struct {
	Content  string    `json:"content"`
	Location string    `json:"location,omitempty"`
	BBox     []float64 `json:"bbox,omitempty"`
}

// Parser extracts keywords and an area from a query
type Parser interface {
	Parse(ctx context.Context, input string) (ParsedQuery, error)
}

const parserSystem = "You are a strict parser. Given a user's search string which may contain both a search " +
	"query and a human location, return a JSON object ONLY with keys: content, location, bbox. " +
	"content: concise search keywords (string). " +
	"location: the human readable location (string). " +
	"bbox: the rough min max coordinates of the location, a list [minx, miny, maxx, maxy] " +
	"representing lon/lat coordinates in WGS84. Respond with JSON only, no explanation."

// Generator is the slice of llm.Client the parser needs
type Generator interface {
	Generate(ctx context.Context, system, prompt string, images ...llm.Image) (string, error)
}

// GeminiParser asks a model to split the query
type GeminiParser struct {
	gen Generator
}

var _ Parser = (*GeminiParser)(nil)

// NewGeminiParser creates a parser backed by gen
func NewGeminiParser(gen Generator) *GeminiParser {
	return &GeminiParser{gen: gen}
}

// Parse returns the model's split. A reply with no JSON object yields the raw
// input as content.
func (p *GeminiParser) Parse(ctx context.Context, input string) (ParsedQuery, error) {
	text, err := p.gen.Generate(ctx, parserSystem, "User input: "+input+"\nRespond with JSON only.")
	if err != nil {
		return ParsedQuery{Content: input}, err
	}
	doc, ok := ExtractJSON(text)
	if !ok || !doc.IsObject() {
		return ParsedQuery{Content: input}, nil
	}

	q := ParsedQuery{
		Content:  firstString(doc, "content", "query"),
		Location: firstString(doc, "location", "place"),
	}
	if q.Content == "" {
		q.Content = input
	}
	if bbox := doc.Get("bbox"); bbox.IsArray() {
		q.BBox = numbers(bbox.Array())
	}
	return q, nil
}

// ExtractJSON parses text as JSON, falling back to the substring between the
// first "{" and the last "}".
func ExtractJSON(text string) (gjson.Result, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return gjson.Result{}, false
	}
	if gjson.Valid(text) {
		return gjson.Parse(text), true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return gjson.Result{}, false
	}
	if maybe := text[start : end+1]; gjson.Valid(maybe) {
		return gjson.Parse(maybe), true
	}
	return gjson.Result{}, false
}

// numbers reads the first four values as floats, or nil when any is not numeric
func numbers(vals []gjson.Result) []float64 {
	if len(vals) < 4 {
		return nil
	}
	out := make([]float64, 4)
	for i := range out {
		v := vals[i]
		if v.Type != gjson.Number && v.Type != gjson.String {
			return nil
		}
		if v.Type == gjson.String && !gjson.Valid(v.Str) {
			return nil
		}
		out[i] = v.Float()
	}
	return out
}

func firstString(doc gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := doc.Get(k); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}

// parseOrFallback runs p and degrades to the raw input on any failure
func parseOrFallback(ctx context.Context, p Parser, input string, log *logrus.Entry) ParsedQuery {
	if log == nil {
		log = logging.Discard()
	}
	if p == nil {
		log.Info("query parser not configured, using raw input")
		return ParsedQuery{Content: input}
	}
	q, err := p.Parse(ctx, input)
	if err != nil {
		log.WithError(err).Warn("query parse failed, using raw input")
		return ParsedQuery{Content: input}
	}
	return q
}
