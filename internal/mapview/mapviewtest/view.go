// Package mapviewtest provides an in-memory mapview.View for tests.
package mapviewtest

import (
	"context"
	"fmt"
	"sync"

	"geocapture-desktop/internal/mapview"
)

// GoToCall records one camera animation request
type GoToCall struct {
	Target    mapview.Target
	Animation mapview.Animation
}

// View is a fake map view. All capabilities are supported unless switched off
// with the No* flags, in which case they return mapview.ErrUnsupported.
type View struct {
	mu sync.Mutex

	NoLayerVisibility bool
	NoLayerHider      bool
	NoPopupVisibility bool

	screenshot   any
	camera       mapview.Camera
	layers       []*mapview.Layer
	hidden       map[string]bool
	viewGraphics []*mapview.Graphic
	popup        *Popup
	failures     map[string]error
	calls        map[string]int
	goTos        []GoToCall
	order        []string
}

// New returns an empty view at zoom 10 centred on 0,0
func New() *View {
	v := &View{
		camera:   mapview.Camera{Zoom: 10},
		hidden:   map[string]bool{},
		failures: map[string]error{},
		calls:    map[string]int{},
	}
	v.popup = &Popup{view: v}
	return v
}

// SetScreenshot sets the raw value TakeScreenshot returns
func (v *View) SetScreenshot(raw any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.screenshot = raw
}

// SetCamera positions the camera
func (v *View) SetCamera(c mapview.Camera) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.camera = c
}

// Fail makes every later call of op return err. A nil err clears the failure.
func (v *View) Fail(op string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err == nil {
		delete(v.failures, op)
		return
	}
	v.failures[op] = err
}

// Calls returns how many times op was invoked
func (v *View) Calls(op string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[op]
}

// Order returns every op in invocation order
func (v *View) Order() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.order...)
}

// GoTos returns the recorded camera animations
func (v *View) GoTos() []GoToCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]GoToCall(nil), v.goTos...)
}

// LayersTitled returns the attached layers carrying title
func (v *View) LayersTitled(title string) []*mapview.Layer {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []*mapview.Layer
	for _, l := range v.layers {
		if l.Title == title {
			out = append(out, l)
		}
	}
	return out
}

// Hidden reports whether HideLayer is in effect for layerID
func (v *View) Hidden(layerID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hidden[layerID]
}

// AllViewGraphics returns a snapshot of the view graphics
func (v *View) AllViewGraphics() []*mapview.Graphic {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]*mapview.Graphic(nil), v.viewGraphics...)
}

// PopupFake returns the fake popup for inspection
func (v *View) PopupFake() *Popup {
	return v.popup
}

// record must be called with mu held
func (v *View) record(op string) error {
	v.calls[op]++
	v.order = append(v.order, op)
	return v.failures[op]
}

func (v *View) layer(id string) (int, *mapview.Layer) {
	for i, l := range v.layers {
		if l.ID == id {
			return i, l
		}
	}
	return -1, nil
}

func (v *View) TakeScreenshot(ctx context.Context, opts mapview.ScreenshotOptions) (any, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("takeScreenshot"); err != nil {
		return nil, err
	}
	return v.screenshot, nil
}

func (v *View) GoTo(ctx context.Context, target mapview.Target, anim mapview.Animation) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.goTos = append(v.goTos, GoToCall{Target: target, Animation: anim})
	if err := v.record("goTo"); err != nil {
		return err
	}
	if target.Extent != nil {
		v.camera.Center = target.Extent.Center()
	}
	if target.Center != nil {
		v.camera.Center = *target.Center
	}
	if target.Zoom != nil {
		v.camera.Zoom = *target.Zoom
	}
	return nil
}

func (v *View) Camera(ctx context.Context) (mapview.Camera, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("camera"); err != nil {
		return mapview.Camera{}, err
	}
	return v.camera, nil
}

func (v *View) Layers(ctx context.Context) ([]mapview.LayerInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("layers"); err != nil {
		return nil, err
	}
	infos := make([]mapview.LayerInfo, 0, len(v.layers))
	for _, l := range v.layers {
		infos = append(infos, mapview.LayerInfo{ID: l.ID, Title: l.Title, Visible: l.Visible})
	}
	return infos, nil
}

func (v *View) AddLayer(ctx context.Context, layer *mapview.Layer) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("addLayer"); err != nil {
		return err
	}
	if _, existing := v.layer(layer.ID); existing != nil {
		return fmt.Errorf("layer %s already attached", layer.ID)
	}
	v.layers = append(v.layers, layer)
	return nil
}

func (v *View) RemoveLayer(ctx context.Context, layerID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("removeLayer"); err != nil {
		return err
	}
	i, _ := v.layer(layerID)
	if i < 0 {
		return nil
	}
	v.layers = append(v.layers[:i], v.layers[i+1:]...)
	delete(v.hidden, layerID)
	return nil
}

func (v *View) AddGraphics(ctx context.Context, layerID string, graphics []*mapview.Graphic) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("addGraphics"); err != nil {
		return err
	}
	_, l := v.layer(layerID)
	if l == nil {
		return fmt.Errorf("layer %s not found", layerID)
	}
	l.Graphics = append(l.Graphics, graphics...)
	return nil
}

func (v *View) RemoveAllGraphics(ctx context.Context, layerID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("removeAllGraphics"); err != nil {
		return err
	}
	if _, l := v.layer(layerID); l != nil {
		l.Graphics = nil
	}
	return nil
}

func (v *View) RemoveGraphic(ctx context.Context, layerID, graphicID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("removeGraphic"); err != nil {
		return err
	}
	_, l := v.layer(layerID)
	if l == nil {
		return nil
	}
	for i, g := range l.Graphics {
		if g.ID == graphicID {
			l.Graphics = append(l.Graphics[:i], l.Graphics[i+1:]...)
			break
		}
	}
	return nil
}

func (v *View) UpdateGraphic(ctx context.Context, layerID string, graphic *mapview.Graphic) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("updateGraphic"); err != nil {
		return err
	}
	_, l := v.layer(layerID)
	if l == nil {
		return fmt.Errorf("layer %s not found", layerID)
	}
	for i, g := range l.Graphics {
		if g.ID == graphic.ID {
			l.Graphics[i] = graphic
			return nil
		}
	}
	return fmt.Errorf("graphic %s not found", graphic.ID)
}

func (v *View) ViewGraphics(ctx context.Context) ([]*mapview.Graphic, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("viewGraphics"); err != nil {
		return nil, err
	}
	return append([]*mapview.Graphic(nil), v.viewGraphics...), nil
}

func (v *View) AddViewGraphic(ctx context.Context, graphic *mapview.Graphic) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("addViewGraphic"); err != nil {
		return err
	}
	v.viewGraphics = append(v.viewGraphics, graphic)
	return nil
}

func (v *View) RemoveViewGraphic(ctx context.Context, graphicID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.record("removeViewGraphic"); err != nil {
		return err
	}
	for i, g := range v.viewGraphics {
		if g.ID == graphicID {
			v.viewGraphics = append(v.viewGraphics[:i], v.viewGraphics[i+1:]...)
			break
		}
	}
	return nil
}

func (v *View) LayerVisible(ctx context.Context, layerID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.NoLayerVisibility {
		return false, mapview.ErrUnsupported
	}
	if err := v.record("layerVisible"); err != nil {
		return false, err
	}
	_, l := v.layer(layerID)
	if l == nil {
		return false, fmt.Errorf("layer %s not found", layerID)
	}
	return l.Visible, nil
}

func (v *View) SetLayerVisible(ctx context.Context, layerID string, visible bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.NoLayerVisibility {
		return mapview.ErrUnsupported
	}
	if err := v.record("setLayerVisible"); err != nil {
		return err
	}
	_, l := v.layer(layerID)
	if l == nil {
		return fmt.Errorf("layer %s not found", layerID)
	}
	l.Visible = visible
	return nil
}

func (v *View) HideLayer(ctx context.Context, layerID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.NoLayerHider {
		return mapview.ErrUnsupported
	}
	if err := v.record("hideLayer"); err != nil {
		return err
	}
	v.hidden[layerID] = true
	return nil
}

func (v *View) ShowLayer(ctx context.Context, layerID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.NoLayerHider {
		return mapview.ErrUnsupported
	}
	if err := v.record("showLayer"); err != nil {
		return err
	}
	delete(v.hidden, layerID)
	return nil
}

func (v *View) Popup() mapview.Popup {
	return v.popup
}

// Popup is the fake info popup
type Popup struct {
	view *View

	open    bool
	visible bool
	title   string
	content string
	at      mapview.PopupLocation
}

// Show opens the popup directly, bypassing call accounting
func (p *Popup) Show(title, content string) {
	p.view.mu.Lock()
	defer p.view.mu.Unlock()
	p.open, p.visible, p.title, p.content = true, true, title, content
}

// Snapshot returns the popup fields
func (p *Popup) Snapshot() (open, visible bool, title, content string, at mapview.PopupLocation) {
	p.view.mu.Lock()
	defer p.view.mu.Unlock()
	return p.open, p.visible, p.title, p.content, p.at
}

func (p *Popup) Open(ctx context.Context, title, content string, at mapview.PopupLocation) error {
	p.view.mu.Lock()
	defer p.view.mu.Unlock()
	if err := p.view.record("popup.open"); err != nil {
		return err
	}
	p.open, p.visible, p.title, p.content, p.at = true, true, title, content, at
	return nil
}

func (p *Popup) State(ctx context.Context) (mapview.PopupState, error) {
	p.view.mu.Lock()
	defer p.view.mu.Unlock()
	if err := p.view.record("popup.state"); err != nil {
		return mapview.PopupState{}, err
	}
	return mapview.PopupState{Open: p.open, Visible: p.visible}, nil
}

func (p *Popup) Close(ctx context.Context) error {
	p.view.mu.Lock()
	defer p.view.mu.Unlock()
	if err := p.view.record("popup.close"); err != nil {
		return err
	}
	p.open, p.visible = false, false
	return nil
}

func (p *Popup) SetVisible(ctx context.Context, visible bool) error {
	p.view.mu.Lock()
	defer p.view.mu.Unlock()
	if p.view.NoPopupVisibility {
		return mapview.ErrUnsupported
	}
	if err := p.view.record("popup.setVisible"); err != nil {
		return err
	}
	p.visible = visible
	return nil
}
