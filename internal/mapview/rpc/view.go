// Package rpc implements mapview.View on top of a request/response transport
// to the JavaScript map page. Every operation is a named call with a JSON
// argument object; the page answers with a JSON value or an error message.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"geocapture-desktop/internal/mapview"
)

// UnsupportedMessage is the error text the page uses for operations its
// renderer cannot perform
const UnsupportedMessage = "unsupported"

// Transport carries one call to the map page and returns its JSON result
type Transport interface {
	Call(ctx context.Context, op string, args any) (json.RawMessage, error)
}

// RemoteError is an error reported by the page itself, as opposed to a
// transport failure
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("map page %s: %s", e.Op, e.Message)
}

// View adapts a Transport to mapview.View
type View struct {
	t Transport
}

// New creates a View over t
func New(t Transport) *View {
	return &View{t: t}
}

var (
	_ mapview.View            = (*View)(nil)
	_ mapview.LayerVisibility = (*View)(nil)
	_ mapview.LayerHider      = (*View)(nil)
)

func (v *View) call(ctx context.Context, op string, args any, out any) error {
	raw, err := v.t.Call(ctx, op, args)
	if err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && remote.Message == UnsupportedMessage {
			return mapview.ErrUnsupported
		}
		return err
	}
	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", op, err)
	}
	return nil
}

// TakeScreenshot returns the page's result untouched as json.RawMessage, or
// nil when the page returned nothing
func (v *View) TakeScreenshot(ctx context.Context, opts mapview.ScreenshotOptions) (any, error) {
	raw, err := v.t.Call(ctx, "takeScreenshot", opts)
	if err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && remote.Message == UnsupportedMessage {
			return nil, mapview.ErrUnsupported
		}
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

type goToArgs struct {
	Target   mapview.Target `json:"target"`
	Duration int64          `json:"duration"`
	Easing   string         `json:"easing,omitempty"`
}

func (v *View) GoTo(ctx context.Context, target mapview.Target, anim mapview.Animation) error {
	return v.call(ctx, "goTo", goToArgs{
		Target:   target,
		Duration: anim.Duration.Milliseconds(),
		Easing:   anim.Easing,
	}, nil)
}

func (v *View) Camera(ctx context.Context) (mapview.Camera, error) {
	var c mapview.Camera
	err := v.call(ctx, "camera", nil, &c)
	return c, err
}

func (v *View) Layers(ctx context.Context) ([]mapview.LayerInfo, error) {
	var layers []mapview.LayerInfo
	err := v.call(ctx, "layers", nil, &layers)
	return layers, err
}

type layerArgs struct {
	LayerID   string             `json:"layerId,omitempty"`
	GraphicID string             `json:"graphicId,omitempty"`
	Layer     *mapview.Layer     `json:"layer,omitempty"`
	Graphic   *mapview.Graphic   `json:"graphic,omitempty"`
	Graphics  []*mapview.Graphic `json:"graphics,omitempty"`
	Visible   *bool              `json:"visible,omitempty"`
}

func (v *View) AddLayer(ctx context.Context, layer *mapview.Layer) error {
	return v.call(ctx, "addLayer", layerArgs{Layer: layer}, nil)
}

func (v *View) RemoveLayer(ctx context.Context, layerID string) error {
	return v.call(ctx, "removeLayer", layerArgs{LayerID: layerID}, nil)
}

func (v *View) AddGraphics(ctx context.Context, layerID string, graphics []*mapview.Graphic) error {
	return v.call(ctx, "addGraphics", layerArgs{LayerID: layerID, Graphics: graphics}, nil)
}

func (v *View) RemoveAllGraphics(ctx context.Context, layerID string) error {
	return v.call(ctx, "removeAllGraphics", layerArgs{LayerID: layerID}, nil)
}

func (v *View) RemoveGraphic(ctx context.Context, layerID, graphicID string) error {
	return v.call(ctx, "removeGraphic", layerArgs{LayerID: layerID, GraphicID: graphicID}, nil)
}

func (v *View) UpdateGraphic(ctx context.Context, layerID string, graphic *mapview.Graphic) error {
	return v.call(ctx, "updateGraphic", layerArgs{LayerID: layerID, Graphic: graphic}, nil)
}

func (v *View) ViewGraphics(ctx context.Context) ([]*mapview.Graphic, error) {
	var graphics []*mapview.Graphic
	err := v.call(ctx, "viewGraphics", nil, &graphics)
	return graphics, err
}

func (v *View) AddViewGraphic(ctx context.Context, graphic *mapview.Graphic) error {
	return v.call(ctx, "addViewGraphic", layerArgs{Graphic: graphic}, nil)
}

func (v *View) RemoveViewGraphic(ctx context.Context, graphicID string) error {
	return v.call(ctx, "removeViewGraphic", layerArgs{GraphicID: graphicID}, nil)
}

func (v *View) LayerVisible(ctx context.Context, layerID string) (bool, error) {
	var visible bool
	err := v.call(ctx, "layerVisible", layerArgs{LayerID: layerID}, &visible)
	return visible, err
}

func (v *View) SetLayerVisible(ctx context.Context, layerID string, visible bool) error {
	return v.call(ctx, "setLayerVisible", layerArgs{LayerID: layerID, Visible: &visible}, nil)
}

func (v *View) HideLayer(ctx context.Context, layerID string) error {
	return v.call(ctx, "hideLayer", layerArgs{LayerID: layerID}, nil)
}

func (v *View) ShowLayer(ctx context.Context, layerID string) error {
	return v.call(ctx, "showLayer", layerArgs{LayerID: layerID}, nil)
}

func (v *View) Popup() mapview.Popup {
	return popup{v: v}
}

type popup struct {
	v *View
}

type popupArgs struct {
	Title    string                 `json:"title,omitempty"`
	Content  string                 `json:"content,omitempty"`
	Location *mapview.PopupLocation `json:"location,omitempty"`
	Visible  *bool                  `json:"visible,omitempty"`
}

func (p popup) Open(ctx context.Context, title, content string, at mapview.PopupLocation) error {
	return p.v.call(ctx, "popup.open", popupArgs{Title: title, Content: content, Location: &at}, nil)
}

func (p popup) State(ctx context.Context) (mapview.PopupState, error) {
	var st mapview.PopupState
	err := p.v.call(ctx, "popup.state", nil, &st)
	return st, err
}

func (p popup) Close(ctx context.Context) error {
	return p.v.call(ctx, "popup.close", nil, nil)
}

func (p popup) SetVisible(ctx context.Context, visible bool) error {
	return p.v.call(ctx, "popup.setVisible", popupArgs{Visible: &visible}, nil)
}
