package capture

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/mapview"
)

// RestorePolicy decides what happens to a results layer that suppression
// removed from the map
type RestorePolicy int

const (
	// RestoreVisibility restores hidden layers only; a removed layer stays removed
	RestoreVisibility RestorePolicy = iota
	// RegenerateMarkers rebuilds a removed layer from the last result set
	RegenerateMarkers
)

// ResultsLayer is the hook surface the marker manager exposes to the guard
type ResultsLayer interface {
	// ResultsLayerID is the attached results layer, or "" when none
	ResultsLayerID() string
	// DetachResults removes the layer from the map and drops the reference
	DetachResults(ctx context.Context) error
	// RegenerateResults rebuilds the layer from the last result set
	RegenerateResults(ctx context.Context) error
	// HideOverlay removes the selection overlay and reports whether one was shown
	HideOverlay(ctx context.Context) (bool, error)
	// ShowOverlay puts back the overlay HideOverlay removed
	ShowOverlay(ctx context.Context) error
}

// Guard hides transient overlays around a screenshot
type Guard struct {
	view  mapview.View
	layer ResultsLayer
	log   *logrus.Entry
}

// NewGuard creates a guard. layer may be nil when no marker manager exists.
func NewGuard(view mapview.View, layer ResultsLayer, log *logrus.Entry) *Guard {
	if log == nil {
		log = logging.Discard()
	}
	return &Guard{view: view, layer: layer, log: log}
}

// suppressedState records what suppression changed. It is consumed exactly
// once by restore.
type suppressedState struct {
	layerID     string
	onMap       bool
	removed     bool
	flagHidden  bool
	prevVisible bool
	hiderHidden bool

	overlayHidden bool

	popupWasVisible bool
	popupFlagHidden bool
	popupClosed     bool
}

// RunSuppressed runs op with the results layer, selection overlay and popup
// hidden and restores them afterwards, whether op returns a value, an error, or panics.
func RunSuppressed[T any](ctx context.Context, g *Guard, policy RestorePolicy, op func(ctx context.Context) (T, error)) (T, error) {
	st := g.suppress(ctx)
	defer g.restore(context.WithoutCancel(ctx), st, policy)
	return op(ctx)
}

func (g *Guard) suppress(ctx context.Context) suppressedState {
	var st suppressedState
	g.suppressLayer(ctx, &st)
	g.suppressOverlay(ctx, &st)
	g.suppressPopup(ctx, &st)
	return st
}

func (g *Guard) suppressLayer(ctx context.Context, st *suppressedState) {
	if g.layer == nil {
		return
	}
	st.layerID = g.layer.ResultsLayerID()
	if st.layerID == "" {
		return
	}
	st.onMap = g.layerOnMap(ctx, st.layerID)
	if !st.onMap {
		return
	}

	err := g.layer.DetachResults(ctx)
	if err == nil {
		st.removed = true
		g.log.WithField("layer", st.layerID).Debug("results layer removed for capture")
		return
	}
	g.log.WithError(err).Debug("results layer removal failed, hiding instead")

	if lv, ok := g.view.(mapview.LayerVisibility); ok {
		err := hideByFlag(ctx, lv, st)
		if err == nil {
			return
		}
		if !errors.Is(err, mapview.ErrUnsupported) {
			g.log.WithError(err).Debug("layer visibility unavailable")
		}
	}

	if h, ok := g.view.(mapview.LayerHider); ok {
		err := h.HideLayer(ctx, st.layerID)
		if err == nil {
			st.hiderHidden = true
			return
		}
		g.log.WithError(err).Warn("results layer could not be hidden")
	}
}

func (g *Guard) suppressOverlay(ctx context.Context, st *suppressedState) {
	if g.layer == nil {
		return
	}
	hidden, err := g.layer.HideOverlay(ctx)
	if err != nil {
		g.log.WithError(err).Warn("selection overlay could not be hidden")
	}
	st.overlayHidden = hidden
}

func hideByFlag(ctx context.Context, lv mapview.LayerVisibility, st *suppressedState) error {
	visible, err := lv.LayerVisible(ctx, st.layerID)
	if err != nil {
		return err
	}
	if err := lv.SetLayerVisible(ctx, st.layerID, false); err != nil {
		return err
	}
	st.flagHidden = true
	st.prevVisible = visible
	return nil
}

// layerOnMap confirms the held layer is attached. When the view cannot list
// layers the reference is trusted.
func (g *Guard) layerOnMap(ctx context.Context, layerID string) bool {
	layers, err := g.view.Layers(ctx)
	if err != nil {
		return true
	}
	for _, l := range layers {
		if l.ID == layerID {
			return true
		}
	}
	return false
}

func (g *Guard) suppressPopup(ctx context.Context, st *suppressedState) {
	popup := g.view.Popup()
	if popup == nil {
		return
	}
	state, err := popup.State(ctx)
	if err != nil {
		g.log.WithError(err).Debug("popup state unavailable")
		return
	}
	st.popupWasVisible = state.Open && state.Visible
	if !st.popupWasVisible {
		return
	}

	if pv, ok := popup.(mapview.PopupVisibility); ok {
		if err := pv.SetVisible(ctx, false); err == nil {
			st.popupFlagHidden = true
			return
		}
	}
	if err := popup.Close(ctx); err != nil {
		g.log.WithError(err).Warn("popup could not be hidden")
		return
	}
	st.popupClosed = true
}

func (g *Guard) restore(ctx context.Context, st suppressedState, policy RestorePolicy) {
	switch {
	case st.flagHidden:
		if lv, ok := g.view.(mapview.LayerVisibility); ok {
			if err := lv.SetLayerVisible(ctx, st.layerID, st.prevVisible); err != nil {
				g.log.WithError(err).Warn("failed to restore results layer visibility")
			}
		}
	case st.hiderHidden:
		if h, ok := g.view.(mapview.LayerHider); ok {
			if err := h.ShowLayer(ctx, st.layerID); err != nil {
				g.log.WithError(err).Warn("failed to show results layer")
			}
		}
	case st.removed && policy == RegenerateMarkers:
		if err := g.layer.RegenerateResults(ctx); err != nil {
			g.log.WithError(err).Warn("failed to regenerate result markers")
		}
	case st.removed:
		g.log.Debug("results layer left removed after capture")
	}

	// the overlay comes back under both policies
	if st.overlayHidden {
		if err := g.layer.ShowOverlay(ctx); err != nil {
			g.log.WithError(err).Warn("failed to restore selection overlay")
		}
	}

	switch {
	case st.popupFlagHidden:
		if pv, ok := g.view.Popup().(mapview.PopupVisibility); ok {
			if err := pv.SetVisible(ctx, true); err != nil {
				g.log.WithError(err).Warn("failed to restore popup")
			}
		}
	case st.popupClosed:
		g.log.Debug("popup was closed for capture and cannot be reshown")
	}
}
