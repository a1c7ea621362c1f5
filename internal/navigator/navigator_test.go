package navigator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/mapview"
	"geocapture-desktop/internal/mapview/mapviewtest"
	"geocapture-desktop/internal/markers"
)

type fixture struct {
	view    *mapviewtest.View
	markers *markers.Manager
	nav     *Navigator
	pauses  []time.Duration
}

func newFixture(t *testing.T, zoom float64) *fixture {
	view := mapviewtest.New()
	view.SetCamera(mapview.Camera{Center: geo.Point{Lat: 0, Lng: 0}, Zoom: zoom})
	m := markers.New(view, nil)
	require.NoError(t, m.SetAll(context.Background(), []geo.Result{
		{ID: "r1", Name: "Pier", Address: "Pier 17", Lat: 40.706, Lng: -74.003},
		{ID: "r2", Name: "Park", Lat: 40.78, Lng: -73.96, Thumbnail: "data:image/jpeg;base64,/9j/"},
	}))

	f := &fixture{view: view, markers: m}
	f.nav = New(view, m, DefaultConfig(), nil)
	f.nav.SetSleep(func(ctx context.Context, d time.Duration) error {
		f.pauses = append(f.pauses, d)
		return nil
	})
	return f
}

func (f *fixture) result(id string) geo.Result {
	r, _ := f.markers.Result(id)
	return r
}

func TestSelect_FromHighZoomFliesOutPansAndIn(t *testing.T) {
	f := newFixture(t, 18)

	trace, err := f.nav.Select(context.Background(), f.result("r1"))
	require.NoError(t, err)

	assert.Equal(t, []Stage{StageZoomingOut, StagePanning, StageZoomingIn, StageHighlighting, StageDone}, trace.Stages)
	assert.Empty(t, trace.Warnings)

	gotos := f.view.GoTos()
	require.Len(t, gotos, 3)
	assert.Equal(t, 10.0, *gotos[0].Target.Zoom, "18 - 8")
	assert.Nil(t, gotos[0].Target.Center)
	assert.Equal(t, geo.Point{Lat: 40.706, Lng: -74.003}, *gotos[1].Target.Center)
	assert.Nil(t, gotos[1].Target.Zoom, "pan keeps zoom")
	assert.Equal(t, 17.0, *gotos[2].Target.Zoom)
	assert.Equal(t, 800*time.Millisecond, gotos[0].Animation.Duration)

	cfg := DefaultConfig()
	assert.Equal(t, []time.Duration{cfg.StagePause, cfg.StagePause, cfg.SettleDelay}, f.pauses)
}

func TestSelect_FromLowZoomSkipsZoomOut(t *testing.T) {
	f := newFixture(t, 5)

	trace, err := f.nav.Select(context.Background(), f.result("r1"))
	require.NoError(t, err)

	assert.Equal(t, []Stage{StagePanning, StageZoomingIn, StageHighlighting, StageDone}, trace.Stages)
	gotos := f.view.GoTos()
	require.Len(t, gotos, 2)
	assert.Equal(t, 17.0, *gotos[1].Target.Zoom)
}

func TestIntermediateZoomFloorsAtMinZoom(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 6.0, cfg.IntermediateZoom(12))
	assert.Equal(t, 12.0, cfg.IntermediateZoom(20))
}

func TestSelect_HighlightsAndOverlays(t *testing.T) {
	f := newFixture(t, 12)

	_, err := f.nav.Select(context.Background(), f.result("r2"))
	require.NoError(t, err)

	assert.Equal(t, "r2", f.markers.Selected())
	assert.True(t, f.markers.HasOverlay("r2"))
	assert.Equal(t, 0, f.view.Calls("popup.open"), "overlay present, no popup")
}

func TestSelect_NoOverlayOpensInfoPopup(t *testing.T) {
	f := newFixture(t, 12)

	_, err := f.nav.Select(context.Background(), f.result("r1"))
	require.NoError(t, err)

	open, _, title, content, _ := f.view.PopupFake().Snapshot()
	assert.True(t, open)
	assert.Equal(t, "Pier", title)
	assert.Contains(t, content, "Pier 17")
}

func TestSelect_AnimationFailuresAreWarnings(t *testing.T) {
	f := newFixture(t, 18)
	f.view.Fail("goTo", errors.New("animation interrupted"))

	trace, err := f.nav.Select(context.Background(), f.result("r1"))
	require.NoError(t, err)

	assert.Equal(t, StageDone, trace.Stages[len(trace.Stages)-1])
	require.Len(t, trace.Warnings, 3)
	for _, w := range trace.Warnings {
		assert.True(t, apperr.Is(w, apperr.KindAnimationFailure))
	}
	assert.Equal(t, "r1", f.markers.Selected(), "highlight still applied")
}

func TestSelect_CancelledStopsEarly(t *testing.T) {
	f := newFixture(t, 18)
	ctx, cancel := context.WithCancel(context.Background())
	f.nav.SetSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})

	trace, err := f.nav.Select(ctx, f.result("r1"))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []Stage{StageZoomingOut}, trace.Stages)
}

func TestSelect_NoThumbnailClearsPreviousOverlay(t *testing.T) {
	f := newFixture(t, 12)
	ctx := context.Background()
	_, err := f.nav.Select(ctx, f.result("r2"))
	require.NoError(t, err)
	require.True(t, f.markers.HasOverlay("r2"))

	trace, err := f.nav.Select(ctx, f.result("r1"))
	require.NoError(t, err)

	assert.Empty(t, trace.Warnings)
	assert.Equal(t, "r1", f.markers.Selected())
	assert.False(t, f.markers.HasOverlay("r2"))
	for _, g := range f.view.AllViewGraphics() {
		assert.NotEqual(t, markers.KindOverlay, g.Attr(markers.KindAttr), "stale overlay %s", g.ID)
	}
	open, _, title, _, _ := f.view.PopupFake().Snapshot()
	assert.True(t, open)
	assert.Equal(t, "Pier", title)
}

func TestSelect_EscapesPopupTitle(t *testing.T) {
	f := newFixture(t, 12)
	ctx := context.Background()
	require.NoError(t, f.markers.SetAll(ctx, []geo.Result{
		{ID: "x", Name: "<script>alert(1)</script>", Address: "Somewhere", Lat: 1, Lng: 1},
	}))

	_, err := f.nav.Select(ctx, f.result("x"))
	require.NoError(t, err)

	_, _, title, _, _ := f.view.PopupFake().Snapshot()
	assert.Equal(t, "&lt;script&gt;alert(1)&lt;/script&gt;", title)
}

func TestSelect_ViewReplacedBetweenStagesStops(t *testing.T) {
	f := newFixture(t, 18)
	session := mapview.NewSession(f.view)
	nav := New(session, f.markers, DefaultConfig(), nil)
	nav.SetSleep(func(ctx context.Context, d time.Duration) error {
		session.Attach(mapviewtest.New())
		return nil
	})

	trace, err := nav.Select(context.Background(), f.result("r1"))

	assert.True(t, apperr.Is(err, apperr.KindCapabilityUnavailable))
	assert.Equal(t, []Stage{StageZoomingOut}, trace.Stages)
	assert.Len(t, f.view.GoTos(), 1)
	assert.Empty(t, f.markers.Selected(), "nothing highlighted on a torn-down view")
}

func TestSelect_StableSessionCompletes(t *testing.T) {
	f := newFixture(t, 18)
	session := mapview.NewSession(f.view)
	nav := New(session, f.markers, DefaultConfig(), nil)
	nav.SetSleep(func(ctx context.Context, d time.Duration) error { return nil })

	trace, err := nav.Select(context.Background(), f.result("r2"))

	require.NoError(t, err)
	assert.Equal(t, StageDone, trace.Stages[len(trace.Stages)-1])
	assert.True(t, f.markers.HasOverlay("r2"))
}
