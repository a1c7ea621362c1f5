// Package mapview defines the map view capability the orchestrator drives and
// the Session that owns the single live view handle.
//
// A View is implemented by a transport to a real renderer: the Wails event
// bridge for the desktop app and headless Chrome for the CLI. Optional
// capabilities (layer visibility, layer hiding, popup visibility) are separate
// interfaces a View may also satisfy, checked with a type assertion.
package mapview

import (
	"context"
	"errors"
)

// ErrUnsupported is returned when a renderer does not implement an operation
var ErrUnsupported = errors.New("operation not supported by map view")

// View is the map view capability surface
type View interface {
	// TakeScreenshot returns the renderer's raw capture value. Its concrete
	// shape varies by renderer: a string, a Screenshot, a map decoded from
	// JSON, raw JSON, a Blob or plain bytes.
	TakeScreenshot(ctx context.Context, opts ScreenshotOptions) (any, error)
	GoTo(ctx context.Context, target Target, anim Animation) error
	Camera(ctx context.Context) (Camera, error)

	Layers(ctx context.Context) ([]LayerInfo, error)
	AddLayer(ctx context.Context, layer *Layer) error
	RemoveLayer(ctx context.Context, layerID string) error
	AddGraphics(ctx context.Context, layerID string, graphics []*Graphic) error
	RemoveAllGraphics(ctx context.Context, layerID string) error
	RemoveGraphic(ctx context.Context, layerID, graphicID string) error
	UpdateGraphic(ctx context.Context, layerID string, graphic *Graphic) error

	// View graphics live outside any layer (overlays, ad-hoc markers)
	ViewGraphics(ctx context.Context) ([]*Graphic, error)
	AddViewGraphic(ctx context.Context, graphic *Graphic) error
	RemoveViewGraphic(ctx context.Context, graphicID string) error

	Popup() Popup
}

// Popup is the single info popup of the view
type Popup interface {
	Open(ctx context.Context, title, content string, at PopupLocation) error
	State(ctx context.Context) (PopupState, error)
	Close(ctx context.Context) error
}

// PopupLocation is where a popup is anchored
type PopupLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LayerVisibility is implemented by views whose layers carry a visible flag
type LayerVisibility interface {
	LayerVisible(ctx context.Context, layerID string) (bool, error)
	SetLayerVisible(ctx context.Context, layerID string, visible bool) error
}

// LayerHider is the last-resort hide capability
type LayerHider interface {
	HideLayer(ctx context.Context, layerID string) error
	ShowLayer(ctx context.Context, layerID string) error
}

// PopupVisibility is implemented by popups that can be hidden and reshown
// without losing their content
type PopupVisibility interface {
	SetVisible(ctx context.Context, visible bool) error
}

// MimeType returns the declared type of the blob
func (b Blob) MimeType() string {
	return b.Type
}

// ReadAll returns the blob bytes
func (b Blob) ReadAll(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.Data, nil
}
