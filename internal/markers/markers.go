// Package markers owns the search results layer and the single selection
// overlay on the map. At most one results layer is attached at any time: every
// add is preceded by a clear that finds layers by title, not by the held
// reference, so stale layers from a lost reference are removed too.
package markers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/mapview"
)

const (
	// ResultsLayerTitle tags the results layer
	ResultsLayerTitle = "search-results"
	// OwnerAttr marks every graphic this package creates
	OwnerAttr    = "owner"
	ResultsOwner = "geocapture-results"
	// ResultIDAttr carries the search result ID on result and overlay graphics
	ResultIDAttr = "resultId"
	// KindAttr distinguishes result markers from overlays
	KindAttr    = "kind"
	KindMarker  = "marker"
	KindOverlay = "overlay"
)

// Marker symbols
var (
	DefaultSymbol = mapview.Symbol{
		Kind:         mapview.SymbolSimpleMarker,
		Color:        "#e53935",
		Size:         10,
		OutlineColor: "#ffffff",
		OutlineWidth: 1,
	}
	HighlightSymbol = mapview.Symbol{
		Kind:         mapview.SymbolSimpleMarker,
		Color:        "#ffd600",
		Size:         16,
		OutlineColor: "#000000",
		OutlineWidth: 2,
	}
)

// Overlay thumbnail geometry in screen pixels
const (
	OverlayWidth   = 96
	OverlayHeight  = 96
	OverlayYOffset = 60
)

// Manager owns the results layer and selection state
type Manager struct {
	view mapview.View
	log  *logrus.Entry

	mu         sync.Mutex
	layerID    string
	results    []geo.Result
	selectedID string
	overlayID  string
	overlayFor string
	overlayURL string

	// hidden is the overlay HideOverlay took off the map
	hidden *geo.Result
}

// New creates a manager drawing on view
func New(view mapview.View, log *logrus.Entry) *Manager {
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{view: view, log: log}
}

// Clear removes every results layer and owned view graphic. It is idempotent.
// The selected ID survives; Reset drops it.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearLocked(ctx)
}

// Reset clears the map state and the selection, used when a search fails
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectedID = ""
	m.hidden = nil
	return m.clearLocked(ctx)
}

func (m *Manager) clearLocked(ctx context.Context) error {
	var errs []error

	held := m.layerID
	layers, err := m.view.Layers(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list layers: %w", err))
	}
	for _, l := range layers {
		if l.Title != ResultsLayerTitle {
			continue
		}
		if err := m.removeLayer(ctx, l.ID); err != nil {
			errs = append(errs, err)
		}
		if l.ID == held {
			held = ""
		}
	}
	if held != "" {
		if err := m.removeLayer(ctx, held); err != nil {
			errs = append(errs, err)
		}
	}

	graphics, err := m.view.ViewGraphics(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list view graphics: %w", err))
	}
	for _, g := range graphics {
		if g.Attr(OwnerAttr) != ResultsOwner {
			continue
		}
		if err := m.view.RemoveViewGraphic(ctx, g.ID); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove graphic %s: %w", g.ID, err))
		}
	}

	m.layerID = ""
	m.results = nil
	m.overlayID = ""
	m.overlayFor = ""
	m.overlayURL = ""

	if err := errors.Join(errs...); err != nil {
		m.log.WithError(err).Warn("results clear incomplete")
		return err
	}
	return nil
}

func (m *Manager) removeLayer(ctx context.Context, id string) error {
	if err := m.view.RemoveAllGraphics(ctx, id); err != nil {
		m.log.WithError(err).WithField("layer", id).Debug("failed to empty layer before removal")
	}
	if err := m.view.RemoveLayer(ctx, id); err != nil {
		return fmt.Errorf("failed to remove layer %s: %w", id, err)
	}
	return nil
}

// SetAll replaces the results layer with one marker per result. A new result
// set drops the selection: result IDs are only unique within one set.
func (m *Manager) SetAll(ctx context.Context, results []geo.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectedID = ""
	m.hidden = nil
	return m.setAllLocked(ctx, results)
}

func (m *Manager) setAllLocked(ctx context.Context, results []geo.Result) error {
	if err := m.clearLocked(ctx); err != nil {
		m.log.WithError(err).Debug("continuing after partial clear")
	}
	if len(results) == 0 {
		return nil
	}

	layer := &mapview.Layer{
		ID:      "results-" + uuid.NewString(),
		Title:   ResultsLayerTitle,
		Visible: true,
	}
	if err := m.view.AddLayer(ctx, layer); err != nil {
		return fmt.Errorf("failed to add results layer: %w", err)
	}
	m.layerID = layer.ID
	m.results = append([]geo.Result(nil), results...)

	graphics := make([]*mapview.Graphic, 0, len(results))
	for _, r := range results {
		graphics = append(graphics, markerFor(r, m.symbolFor(r.ID)))
	}
	if err := m.view.AddGraphics(ctx, layer.ID, graphics); err != nil {
		return fmt.Errorf("failed to add result markers: %w", err)
	}

	m.log.WithFields(logrus.Fields{"layer": layer.ID, "count": len(results)}).Debug("results layer set")
	return nil
}

// reapplySelectionLocked restores the selection overlay after a rebuild
func (m *Manager) reapplySelectionLocked(ctx context.Context) {
	if m.selectedID == "" {
		return
	}
	if r, ok := geo.FindResult(m.results, m.selectedID); ok && r.Thumbnail != "" {
		if err := m.setOverlayLocked(ctx, r); err != nil {
			m.log.WithError(err).Warn("selection overlay not restored")
		}
	}
}

func (m *Manager) symbolFor(id string) mapview.Symbol {
	if id != "" && id == m.selectedID {
		return HighlightSymbol
	}
	return DefaultSymbol
}

func markerFor(r geo.Result, sym mapview.Symbol) *mapview.Graphic {
	return &mapview.Graphic{
		ID:       "result:" + r.ID,
		Geometry: r.Point(),
		Symbol:   sym,
		Attributes: map[string]any{
			OwnerAttr:    ResultsOwner,
			ResultIDAttr: r.ID,
			KindAttr:     KindMarker,
			"name":       r.Name,
			"address":    r.Address,
		},
		Popup: &mapview.PopupTemplate{Title: PopupTitle(r), Content: PopupContent(r)},
	}
}

// PopupTitle is the escaped popup heading for a result
func PopupTitle(r geo.Result) string {
	return html.EscapeString(r.Name)
}

// PopupContent renders the info popup body for a result, inlining the
// thumbnail when one exists
func PopupContent(r geo.Result) string {
	var b strings.Builder
	if r.Address != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(r.Address))
	}
	if r.Caption != "" {
		fmt.Fprintf(&b, "<p><em>%s</em></p>", html.EscapeString(r.Caption))
	}
	if r.Thumbnail != "" {
		fmt.Fprintf(&b, `<img src="%s" alt="%s" style="max-width:240px">`,
			html.EscapeString(r.Thumbnail), html.EscapeString(r.Name))
	}
	return b.String()
}

// Highlight resets every marker to the default symbol and highlights id. An
// unknown id leaves nothing highlighted.
func (m *Manager) Highlight(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.layerID == "" {
		return nil
	}

	var errs []error
	for _, r := range m.results {
		sym := DefaultSymbol
		if r.ID == id {
			sym = HighlightSymbol
		}
		if err := m.view.UpdateGraphic(ctx, m.layerID, markerFor(r, sym)); err != nil {
			errs = append(errs, fmt.Errorf("failed to update marker %s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}

// SetSelected records the selected result ID
func (m *Manager) SetSelected(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectedID = id
}

// Selected returns the selected result ID
func (m *Manager) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedID
}

// Results returns the current result set
func (m *Manager) Results() []geo.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]geo.Result(nil), m.results...)
}

// Result looks up a result in the current set
func (m *Manager) Result(id string) (geo.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return geo.FindResult(m.results, id)
}

// SetOverlay shows thumbnail above the result's marker, replacing any previous
// overlay. When the picture marker cannot be created an info popup with the
// thumbnail inline is opened instead and an OverlayCreationFailure returned.
func (m *Manager) SetOverlay(ctx context.Context, id, thumbnail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := geo.FindResult(m.results, id)
	if !ok {
		return apperr.Validation("overlay", fmt.Sprintf("unknown result %q", id))
	}
	r.Thumbnail = thumbnail
	return m.setOverlayLocked(ctx, r)
}

func (m *Manager) setOverlayLocked(ctx context.Context, r geo.Result) error {
	if err := m.clearOverlayLocked(ctx); err != nil {
		m.log.WithError(err).Debug("previous overlay not removed")
	}

	err := validThumbnail(r.Thumbnail)
	if err == nil {
		overlay := &mapview.Graphic{
			ID:       "overlay:" + r.ID,
			Geometry: r.Point(),
			Symbol: mapview.Symbol{
				Kind:    mapview.SymbolPictureMarker,
				URL:     r.Thumbnail,
				Width:   OverlayWidth,
				Height:  OverlayHeight,
				YOffset: OverlayYOffset,
			},
			Attributes: map[string]any{
				OwnerAttr:    ResultsOwner,
				ResultIDAttr: r.ID,
				KindAttr:     KindOverlay,
			},
		}
		err = m.view.AddViewGraphic(ctx, overlay)
		if err == nil {
			m.overlayID = overlay.ID
			m.overlayFor = r.ID
			m.overlayURL = r.Thumbnail
			return nil
		}
	}

	overlayErr := apperr.OverlayCreation(err)
	m.log.WithError(overlayErr).WithField("result", r.ID).Warn("overlay unavailable, opening popup")
	at := mapview.PopupLocation{Lat: r.Lat, Lng: r.Lng}
	if perr := m.view.Popup().Open(ctx, PopupTitle(r), PopupContent(r), at); perr != nil {
		m.log.WithError(perr).Warn("fallback popup failed")
	}
	return overlayErr
}

func validThumbnail(src string) error {
	switch {
	case src == "":
		return errors.New("empty thumbnail")
	case strings.HasPrefix(src, "data:image/"),
		strings.HasPrefix(src, "https://"),
		strings.HasPrefix(src, "http://"):
		return nil
	}
	return fmt.Errorf("unsupported thumbnail source %.32q", src)
}

// ClearOverlay removes the overlay graphic, if any
func (m *Manager) ClearOverlay(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearOverlayLocked(ctx)
}

func (m *Manager) clearOverlayLocked(ctx context.Context) error {
	graphics, err := m.view.ViewGraphics(ctx)
	if err != nil {
		return fmt.Errorf("failed to list view graphics: %w", err)
	}
	var errs []error
	for _, g := range graphics {
		if g.Attr(KindAttr) != KindOverlay || g.Attr(OwnerAttr) != ResultsOwner {
			continue
		}
		if err := m.view.RemoveViewGraphic(ctx, g.ID); err != nil {
			errs = append(errs, err)
		}
	}
	m.overlayID = ""
	m.overlayFor = ""
	m.overlayURL = ""
	return errors.Join(errs...)
}

// HideOverlay takes the overlay off the map and remembers it for ShowOverlay.
// It reports whether an overlay was showing.
func (m *Manager) HideOverlay(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overlayID == "" {
		return false, nil
	}
	r, ok := geo.FindResult(m.results, m.overlayFor)
	if ok {
		r.Thumbnail = m.overlayURL
	}
	if err := m.clearOverlayLocked(ctx); err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	m.hidden = &r
	return true, nil
}

// ShowOverlay puts back the overlay HideOverlay removed. Nothing is drawn when
// the selection moved on or its overlay is already showing.
func (m *Manager) ShowOverlay(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.hidden
	m.hidden = nil
	if r == nil || r.ID != m.selectedID {
		return nil
	}
	if m.overlayID != "" && m.overlayFor == r.ID {
		return nil
	}
	if _, ok := geo.FindResult(m.results, r.ID); !ok {
		return nil
	}
	return m.setOverlayLocked(ctx, *r)
}

// HasOverlay reports whether the current overlay belongs to result id
func (m *Manager) HasOverlay(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlayID != "" && m.overlayFor == id
}

// ResultsLayerID returns the attached results layer, or ""
func (m *Manager) ResultsLayerID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.layerID
}

// DetachResults removes the results layer from the map but keeps the result
// set so RegenerateResults can rebuild it
func (m *Manager) DetachResults(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.layerID == "" {
		return nil
	}
	if err := m.removeLayer(ctx, m.layerID); err != nil {
		return err
	}
	m.layerID = ""
	return nil
}

// RegenerateResults rebuilds the results layer from the last result set and
// re-applies the selection
func (m *Manager) RegenerateResults(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 {
		return nil
	}
	if err := m.setAllLocked(ctx, append([]geo.Result(nil), m.results...)); err != nil {
		return err
	}
	m.reapplySelectionLocked(ctx)
	return nil
}
