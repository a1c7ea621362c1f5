package mapview

import (
	"context"
	"sync"

	"geocapture-desktop/internal/apperr"
)

// Session owns the process-wide map view handle. Every component talks to the
// view through the session, so a detached view fails uniformly with
// CapabilityUnavailable instead of nil checks at each call site.
//
// Session itself satisfies View, LayerVisibility and LayerHider; optional
// capabilities the attached view lacks return ErrUnsupported.
type Session struct {
	mu         sync.RWMutex
	view       View
	generation uint64
}

// NewSession creates a session, optionally attached to a view
func NewSession(view View) *Session {
	s := &Session{}
	if view != nil {
		s.Attach(view)
	}
	return s
}

// Attach binds a view. Any previous view is replaced.
func (s *Session) Attach(view View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = view
	s.generation++
}

// Detach drops the view handle without waiting for in-flight calls
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = nil
	s.generation++
}

// Available reports whether a view is attached
func (s *Session) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view != nil
}

// Generation changes on every Attach/Detach. The navigator compares it across
// its stage pauses to detect a torn-down view.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Session) current(op string) (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.view == nil {
		return nil, apperr.CapabilityUnavailable(op)
	}
	return s.view, nil
}

func (s *Session) TakeScreenshot(ctx context.Context, opts ScreenshotOptions) (any, error) {
	v, err := s.current("takeScreenshot")
	if err != nil {
		return nil, err
	}
	return v.TakeScreenshot(ctx, opts)
}

func (s *Session) GoTo(ctx context.Context, target Target, anim Animation) error {
	v, err := s.current("goTo")
	if err != nil {
		return err
	}
	return v.GoTo(ctx, target, anim)
}

func (s *Session) Camera(ctx context.Context) (Camera, error) {
	v, err := s.current("camera")
	if err != nil {
		return Camera{}, err
	}
	return v.Camera(ctx)
}

func (s *Session) Layers(ctx context.Context) ([]LayerInfo, error) {
	v, err := s.current("layers")
	if err != nil {
		return nil, err
	}
	return v.Layers(ctx)
}

func (s *Session) AddLayer(ctx context.Context, layer *Layer) error {
	v, err := s.current("addLayer")
	if err != nil {
		return err
	}
	return v.AddLayer(ctx, layer)
}

func (s *Session) RemoveLayer(ctx context.Context, layerID string) error {
	v, err := s.current("removeLayer")
	if err != nil {
		return err
	}
	return v.RemoveLayer(ctx, layerID)
}

func (s *Session) AddGraphics(ctx context.Context, layerID string, graphics []*Graphic) error {
	v, err := s.current("addGraphics")
	if err != nil {
		return err
	}
	return v.AddGraphics(ctx, layerID, graphics)
}

func (s *Session) RemoveAllGraphics(ctx context.Context, layerID string) error {
	v, err := s.current("removeAllGraphics")
	if err != nil {
		return err
	}
	return v.RemoveAllGraphics(ctx, layerID)
}

func (s *Session) RemoveGraphic(ctx context.Context, layerID, graphicID string) error {
	v, err := s.current("removeGraphic")
	if err != nil {
		return err
	}
	return v.RemoveGraphic(ctx, layerID, graphicID)
}

func (s *Session) UpdateGraphic(ctx context.Context, layerID string, graphic *Graphic) error {
	v, err := s.current("updateGraphic")
	if err != nil {
		return err
	}
	return v.UpdateGraphic(ctx, layerID, graphic)
}

func (s *Session) ViewGraphics(ctx context.Context) ([]*Graphic, error) {
	v, err := s.current("viewGraphics")
	if err != nil {
		return nil, err
	}
	return v.ViewGraphics(ctx)
}

func (s *Session) AddViewGraphic(ctx context.Context, graphic *Graphic) error {
	v, err := s.current("addViewGraphic")
	if err != nil {
		return err
	}
	return v.AddViewGraphic(ctx, graphic)
}

func (s *Session) RemoveViewGraphic(ctx context.Context, graphicID string) error {
	v, err := s.current("removeViewGraphic")
	if err != nil {
		return err
	}
	return v.RemoveViewGraphic(ctx, graphicID)
}

// LayerVisible implements LayerVisibility
func (s *Session) LayerVisible(ctx context.Context, layerID string) (bool, error) {
	v, err := s.current("layerVisible")
	if err != nil {
		return false, err
	}
	lv, ok := v.(LayerVisibility)
	if !ok {
		return false, ErrUnsupported
	}
	return lv.LayerVisible(ctx, layerID)
}

// SetLayerVisible implements LayerVisibility
func (s *Session) SetLayerVisible(ctx context.Context, layerID string, visible bool) error {
	v, err := s.current("setLayerVisible")
	if err != nil {
		return err
	}
	lv, ok := v.(LayerVisibility)
	if !ok {
		return ErrUnsupported
	}
	return lv.SetLayerVisible(ctx, layerID, visible)
}

// HideLayer implements LayerHider
func (s *Session) HideLayer(ctx context.Context, layerID string) error {
	v, err := s.current("hideLayer")
	if err != nil {
		return err
	}
	h, ok := v.(LayerHider)
	if !ok {
		return ErrUnsupported
	}
	return h.HideLayer(ctx, layerID)
}

// ShowLayer implements LayerHider
func (s *Session) ShowLayer(ctx context.Context, layerID string) error {
	v, err := s.current("showLayer")
	if err != nil {
		return err
	}
	h, ok := v.(LayerHider)
	if !ok {
		return ErrUnsupported
	}
	return h.ShowLayer(ctx, layerID)
}

// Popup returns a popup handle that resolves the attached view on every call
func (s *Session) Popup() Popup {
	return sessionPopup{s: s}
}

type sessionPopup struct {
	s *Session
}

func (p sessionPopup) popup(op string) (Popup, error) {
	v, err := p.s.current(op)
	if err != nil {
		return nil, err
	}
	pp := v.Popup()
	if pp == nil {
		return nil, ErrUnsupported
	}
	return pp, nil
}

func (p sessionPopup) Open(ctx context.Context, title, content string, at PopupLocation) error {
	pp, err := p.popup("popup.open")
	if err != nil {
		return err
	}
	return pp.Open(ctx, title, content, at)
}

func (p sessionPopup) State(ctx context.Context) (PopupState, error) {
	pp, err := p.popup("popup.state")
	if err != nil {
		return PopupState{}, err
	}
	return pp.State(ctx)
}

func (p sessionPopup) Close(ctx context.Context) error {
	pp, err := p.popup("popup.close")
	if err != nil {
		return err
	}
	return pp.Close(ctx)
}

// SetVisible implements PopupVisibility
func (p sessionPopup) SetVisible(ctx context.Context, visible bool) error {
	pp, err := p.popup("popup.setVisible")
	if err != nil {
		return err
	}
	pv, ok := pp.(PopupVisibility)
	if !ok {
		return ErrUnsupported
	}
	return pv.SetVisible(ctx, visible)
}
