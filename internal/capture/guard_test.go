package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/mapview"
	"geocapture-desktop/internal/mapview/mapviewtest"
	"geocapture-desktop/internal/markers"
)

// fakeResults is a results layer living in a mapviewtest.View
type fakeResults struct {
	view       *mapviewtest.View
	id         string
	detachErr  error
	detached   int
	regenerate int

	overlay *mapview.Graphic
	hidden  *mapview.Graphic
	shown   int
}

func newFakeResults(t *testing.T, view *mapviewtest.View) *fakeResults {
	r := &fakeResults{view: view, id: "results-1"}
	require.NoError(t, view.AddLayer(context.Background(), &mapview.Layer{ID: r.id, Title: "search-results", Visible: true}))
	return r
}

func (r *fakeResults) ResultsLayerID() string { return r.id }

func (r *fakeResults) DetachResults(ctx context.Context) error {
	if r.detachErr != nil {
		return r.detachErr
	}
	r.detached++
	err := r.view.RemoveLayer(ctx, r.id)
	r.id = ""
	return err
}

func (r *fakeResults) RegenerateResults(ctx context.Context) error {
	r.regenerate++
	r.id = "results-2"
	return r.view.AddLayer(ctx, &mapview.Layer{ID: r.id, Title: "search-results", Visible: true})
}

func (r *fakeResults) withOverlay(t *testing.T) *fakeResults {
	r.overlay = &mapview.Graphic{ID: "overlay:1", Attributes: map[string]any{"kind": "overlay"}}
	require.NoError(t, r.view.AddViewGraphic(context.Background(), r.overlay))
	return r
}

func (r *fakeResults) HideOverlay(ctx context.Context) (bool, error) {
	if r.overlay == nil {
		return false, nil
	}
	if err := r.view.RemoveViewGraphic(ctx, r.overlay.ID); err != nil {
		return false, err
	}
	r.hidden, r.overlay = r.overlay, nil
	return true, nil
}

func (r *fakeResults) ShowOverlay(ctx context.Context) error {
	if r.hidden == nil {
		return nil
	}
	r.shown++
	r.overlay, r.hidden = r.hidden, nil
	return r.view.AddViewGraphic(ctx, r.overlay)
}

func TestRunSuppressed_RemovesLayerAndRegeneratesForCaption(t *testing.T) {
	ctx := context.Background()
	view := mapviewtest.New()
	results := newFakeResults(t, view)
	g := NewGuard(view, results, nil)

	got, err := RunSuppressed(ctx, g, RegenerateMarkers, func(ctx context.Context) (string, error) {
		assert.Empty(t, view.LayersTitled("search-results"), "layer must be gone during the screenshot")
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, results.detached)
	assert.Equal(t, 1, results.regenerate)
	assert.Len(t, view.LayersTitled("search-results"), 1)
}

func TestRunSuppressed_CaptureLeavesRemovedLayerRemoved(t *testing.T) {
	view := mapviewtest.New()
	results := newFakeResults(t, view)
	g := NewGuard(view, results, nil)

	_, err := RunSuppressed(context.Background(), g, RestoreVisibility, func(ctx context.Context) (int, error) {
		return 1, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 0, results.regenerate)
	assert.Empty(t, view.LayersTitled("search-results"))
}

func TestRunSuppressed_FallsBackToVisibilityAndRestoresOnError(t *testing.T) {
	view := mapviewtest.New()
	results := newFakeResults(t, view)
	results.detachErr = errors.New("layer locked")
	g := NewGuard(view, results, nil)
	opErr := errors.New("screenshot exploded")

	_, err := RunSuppressed(context.Background(), g, RestoreVisibility, func(ctx context.Context) (string, error) {
		layers, _ := view.Layers(ctx)
		require.Len(t, layers, 1)
		assert.False(t, layers[0].Visible)
		return "", opErr
	})

	assert.ErrorIs(t, err, opErr)
	layers, _ := view.Layers(context.Background())
	require.Len(t, layers, 1)
	assert.True(t, layers[0].Visible)
	assert.Equal(t, 2, view.Calls("setLayerVisible"), "hidden once, restored once")
}

func TestRunSuppressed_FallsBackToHider(t *testing.T) {
	view := mapviewtest.New()
	view.NoLayerVisibility = true
	results := newFakeResults(t, view)
	results.detachErr = errors.New("layer locked")
	g := NewGuard(view, results, nil)

	_, err := RunSuppressed(context.Background(), g, RestoreVisibility, func(ctx context.Context) (bool, error) {
		assert.True(t, view.Hidden("results-1"))
		return true, nil
	})

	require.NoError(t, err)
	assert.False(t, view.Hidden("results-1"))
	assert.Equal(t, 1, view.Calls("hideLayer"))
	assert.Equal(t, 1, view.Calls("showLayer"))
}

func TestRunSuppressed_RestoresExactlyOnceOnPanic(t *testing.T) {
	view := mapviewtest.New()
	view.PopupFake().Show("Result", "details")
	results := newFakeResults(t, view)
	g := NewGuard(view, results, nil)

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = RunSuppressed(context.Background(), g, RegenerateMarkers, func(ctx context.Context) (string, error) {
			panic("boom")
		})
	})

	assert.Equal(t, 1, results.regenerate)
	assert.Equal(t, 2, view.Calls("popup.setVisible"))
	open, visible, title, _, _ := view.PopupFake().Snapshot()
	assert.True(t, open)
	assert.True(t, visible)
	assert.Equal(t, "Result", title)
}

func TestRunSuppressed_ClosesPopupWithoutVisibilityFlag(t *testing.T) {
	view := mapviewtest.New()
	view.NoPopupVisibility = true
	view.PopupFake().Show("Result", "details")
	g := NewGuard(view, nil, nil)

	_, err := RunSuppressed(context.Background(), g, RestoreVisibility, func(ctx context.Context) (string, error) {
		open, _, _, _, _ := view.PopupFake().Snapshot()
		assert.False(t, open)
		return "", nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, view.Calls("popup.close"))
	open, _, _, _, _ := view.PopupFake().Snapshot()
	assert.False(t, open, "a closed popup is not reopened")
}

func TestRunSuppressed_NoOverlaysIsNoop(t *testing.T) {
	view := mapviewtest.New()
	g := NewGuard(view, &fakeResults{view: view}, nil)

	_, err := RunSuppressed(context.Background(), g, RegenerateMarkers, func(ctx context.Context) (string, error) {
		return "", nil
	})

	require.NoError(t, err)
	assert.Equal(t, 0, view.Calls("removeLayer"))
	assert.Equal(t, 0, view.Calls("popup.setVisible"))
	assert.Equal(t, 0, view.Calls("popup.close"))
}

func TestRunSuppressed_HidesOverlayUnderBothPolicies(t *testing.T) {
	for _, policy := range []RestorePolicy{RestoreVisibility, RegenerateMarkers} {
		view := mapviewtest.New()
		results := newFakeResults(t, view).withOverlay(t)
		g := NewGuard(view, results, nil)

		_, err := RunSuppressed(context.Background(), g, policy, func(ctx context.Context) (string, error) {
			assert.Empty(t, view.AllViewGraphics(), "overlay must be off the map during the screenshot")
			return "", nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, results.shown, "policy %d", policy)
		require.Len(t, view.AllViewGraphics(), 1)
		assert.Equal(t, "overlay:1", view.AllViewGraphics()[0].ID)
	}
}

func TestRunSuppressed_RestoresOverlayOnError(t *testing.T) {
	view := mapviewtest.New()
	results := newFakeResults(t, view).withOverlay(t)
	g := NewGuard(view, results, nil)
	opErr := errors.New("screenshot failed")

	_, err := RunSuppressed(context.Background(), g, RestoreVisibility, func(ctx context.Context) (string, error) {
		return "", opErr
	})

	assert.ErrorIs(t, err, opErr)
	assert.Len(t, view.AllViewGraphics(), 1)
}

func TestRunSuppressed_WithMarkerManager(t *testing.T) {
	ctx := context.Background()
	for _, policy := range []RestorePolicy{RestoreVisibility, RegenerateMarkers} {
		view := mapviewtest.New()
		m := markers.New(view, nil)
		require.NoError(t, m.SetAll(ctx, []geo.Result{
			{ID: "a", Name: "Alpha", Lat: 1, Lng: 1},
			{ID: "b", Name: "Beta", Lat: 2, Lng: 2, Thumbnail: "https://example.com/b.jpg"},
		}))
		m.SetSelected("b")
		require.NoError(t, m.SetOverlay(ctx, "b", "https://example.com/b.jpg"))
		g := NewGuard(view, m, nil)

		_, err := RunSuppressed(ctx, g, policy, func(ctx context.Context) (string, error) {
			for _, gr := range view.AllViewGraphics() {
				assert.NotEqual(t, markers.ResultsOwner, gr.Attr(markers.OwnerAttr), "owned graphic %s visible during capture", gr.ID)
			}
			assert.Empty(t, view.LayersTitled(markers.ResultsLayerTitle))
			return "", nil
		})

		require.NoError(t, err)
		assert.True(t, m.HasOverlay("b"), "policy %d", policy)
		assert.Len(t, view.AllViewGraphics(), 1)
		if policy == RegenerateMarkers {
			assert.Len(t, view.LayersTitled(markers.ResultsLayerTitle), 1)
		} else {
			assert.Empty(t, view.LayersTitled(markers.ResultsLayerTitle))
		}
	}
}
