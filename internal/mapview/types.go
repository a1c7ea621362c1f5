package mapview

import (
	"time"

	"geocapture-desktop/internal/geo"
)

// Symbol kinds understood by the frontend renderer
const (
	SymbolSimpleMarker  = "simple-marker"
	SymbolPictureMarker = "picture-marker"
)

// Symbol describes how a graphic is drawn
type Symbol struct {
	Kind         string  `json:"type"`
	Color        string  `json:"color,omitempty"`
	Size         float64 `json:"size,omitempty"`
	OutlineColor string  `json:"outlineColor,omitempty"`
	OutlineWidth float64 `json:"outlineWidth,omitempty"`
	URL          string  `json:"url,omitempty"` // picture markers only
	Width        float64 `json:"width,omitempty"`
	Height       float64 `json:"height,omitempty"`
	YOffset      float64 `json:"yoffset,omitempty"`
}

// PopupTemplate is attached to a graphic and shown when it is clicked
type PopupTemplate struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Graphic is a single drawable feature
type Graphic struct {
	ID         string         `json:"id"`
	Geometry   geo.Point      `json:"geometry"`
	Symbol     Symbol         `json:"symbol"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Popup      *PopupTemplate `json:"popupTemplate,omitempty"`
}

// Attr returns a string attribute, or "" when absent or not a string
func (g *Graphic) Attr(key string) string {
	if g == nil || g.Attributes == nil {
		return ""
	}
	s, _ := g.Attributes[key].(string)
	return s
}

// Layer is a graphics layer attached to the map
type Layer struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Visible  bool       `json:"visible"`
	Graphics []*Graphic `json:"graphics,omitempty"`
}

// LayerInfo is what the view reports about attached layers
type LayerInfo struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Visible bool   `json:"visible"`
}

// Camera is the current view position
type Camera struct {
	Center geo.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
}

// Target is a goTo destination. Unset fields are left unchanged by the view.
type Target struct {
	Center  *geo.Point       `json:"center,omitempty"`
	Zoom    *float64         `json:"zoom,omitempty"`
	Extent  *geo.BoundingBox `json:"target,omitempty"`
	Padding int              `json:"padding,omitempty"`
}

// Animation controls a goTo transition
type Animation struct {
	Duration time.Duration `json:"-"`
	Easing   string        `json:"easing,omitempty"`
}

// ScreenshotOptions configures a capture
type ScreenshotOptions struct {
	Quality int    `json:"quality"`
	Format  string `json:"format,omitempty"`
}

// PopupState is the visibility of the single info popup
type PopupState struct {
	Open    bool `json:"open"`
	Visible bool `json:"visible"`
}

// Screenshot is the wrapped capture shape some views return: either Data or
// DataURL holds the encoded image.
type Screenshot struct {
	Data    string `json:"data,omitempty"`
	DataURL string `json:"dataUrl,omitempty"`
}

// Blob is raw image bytes with a declared mime type
type Blob struct {
	Type string
	Data []byte
}

// Float returns a pointer to f, for Target.Zoom
func Float(f float64) *float64 {
	return &f
}

// At returns a pointer to p, for Target.Center
func At(p geo.Point) *geo.Point {
	return &p
}
