// Package navigator animates the camera to a selected search result and
// highlights it. Every stage is best effort: a failed animation is recorded
// as a warning and the machine moves on.
package navigator

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/mapview"
	"geocapture-desktop/internal/markers"
)

// Stage is a step of the selection animation
type Stage int

const (
	StageIdle Stage = iota
	StageZoomingOut
	StagePanning
	StageZoomingIn
	StageHighlighting
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageZoomingOut:
		return "zooming_out"
	case StagePanning:
		return "panning"
	case StageZoomingIn:
		return "zooming_in"
	case StageHighlighting:
		return "highlighting"
	case StageDone:
		return "done"
	}
	return "unknown"
}

// Config holds the animation parameters
type Config struct {
	TargetZoom    float64       `json:"targetZoom" validate:"gt=0,lte=24"`
	MinZoom       float64       `json:"minZoom" validate:"gte=0,lte=24"`
	ZoomOutLevels float64       `json:"zoomOutLevels" validate:"gte=0"`
	ZoomOutTime   time.Duration `json:"zoomOutTime"`
	PanTime       time.Duration `json:"panTime"`
	ZoomInTime    time.Duration `json:"zoomInTime"`
	StagePause    time.Duration `json:"stagePause"`
	SettleDelay   time.Duration `json:"settleDelay"`
	Easing        string        `json:"easing"`
}

// DefaultConfig returns the standard fly-out, pan, fly-in timing
func DefaultConfig() Config {
	return Config{
		TargetZoom:    17,
		MinZoom:       6,
		ZoomOutLevels: 8,
		ZoomOutTime:   800 * time.Millisecond,
		PanTime:       1200 * time.Millisecond,
		ZoomInTime:    1000 * time.Millisecond,
		StagePause:    150 * time.Millisecond,
		SettleDelay:   300 * time.Millisecond,
		Easing:        "ease-in-out",
	}
}

// Markers is the slice of the marker manager the navigator drives
type Markers interface {
	SetSelected(id string)
	Highlight(ctx context.Context, id string) error
	SetOverlay(ctx context.Context, id, thumbnail string) error
	ClearOverlay(ctx context.Context) error
	HasOverlay(id string) bool
}

// generational views report a counter that changes when the underlying view
// is detached or replaced
type generational interface {
	Generation() uint64
}

var _ Markers = (*markers.Manager)(nil)

// Trace records what one Select run did
type Trace struct {
	Stages   []Stage
	Warnings []error
}

func (t *Trace) enter(s Stage) {
	t.Stages = append(t.Stages, s)
}

func (t *Trace) warn(err error) {
	t.Warnings = append(t.Warnings, err)
}

// Navigator runs the selection state machine
type Navigator struct {
	view    mapview.View
	markers Markers
	cfg     Config
	log     *logrus.Entry
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a navigator
func New(view mapview.View, m Markers, cfg Config, log *logrus.Entry) *Navigator {
	if log == nil {
		log = logging.Discard()
	}
	return &Navigator{view: view, markers: m, cfg: cfg, log: log, sleep: sleepCtx}
}

// SetSleep replaces the pause function, for tests
func (n *Navigator) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	n.sleep = sleep
}

// pause sleeps for d and then fails if the view was torn down meanwhile
func (n *Navigator) pause(ctx context.Context, d time.Duration, gen uint64) error {
	if err := n.sleep(ctx, d); err != nil {
		return err
	}
	if g, ok := n.view.(generational); ok && g.Generation() != gen {
		return apperr.CapabilityUnavailable("select")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IntermediateZoom is the zoom level the camera flies out to before panning
func (c Config) IntermediateZoom(current float64) float64 {
	return math.Max(c.MinZoom, current-c.ZoomOutLevels)
}

// Select flies the camera to r and highlights it. The returned error is only
// set when ctx is cancelled or the view goes away between stages; animation
// and overlay failures land in the Trace warnings.
func (n *Navigator) Select(ctx context.Context, r geo.Result) (*Trace, error) {
	trace := &Trace{}
	log := n.log.WithField("result", r.ID)
	target := r.Point()

	var gen uint64
	if g, ok := n.view.(generational); ok {
		gen = g.Generation()
	}

	zoom := n.cfg.TargetZoom
	if cam, err := n.view.Camera(ctx); err != nil {
		trace.warn(apperr.Animation("camera", err))
	} else if cam.Zoom >= n.cfg.TargetZoom {
		trace.enter(StageZoomingOut)
		out := n.cfg.IntermediateZoom(cam.Zoom)
		n.animate(ctx, trace, "zoom out", mapview.Target{Zoom: mapview.Float(out)}, n.cfg.ZoomOutTime)
		if err := n.pause(ctx, n.cfg.StagePause, gen); err != nil {
			return trace, err
		}
	}

	trace.enter(StagePanning)
	n.animate(ctx, trace, "pan", mapview.Target{Center: mapview.At(target)}, n.cfg.PanTime)
	if err := n.pause(ctx, n.cfg.StagePause, gen); err != nil {
		return trace, err
	}

	trace.enter(StageZoomingIn)
	n.animate(ctx, trace, "zoom in", mapview.Target{Center: mapview.At(target), Zoom: mapview.Float(zoom)}, n.cfg.ZoomInTime)

	trace.enter(StageHighlighting)
	n.markers.SetSelected(r.ID)
	if err := n.markers.Highlight(ctx, r.ID); err != nil {
		log.WithError(err).Warn("highlight failed")
		trace.warn(err)
	}
	if r.Thumbnail != "" {
		if err := n.markers.SetOverlay(ctx, r.ID, r.Thumbnail); err != nil {
			trace.warn(err)
		}
	} else if err := n.markers.ClearOverlay(ctx); err != nil {
		log.WithError(err).Warn("previous overlay not cleared")
		trace.warn(err)
	}

	if err := n.pause(ctx, n.cfg.SettleDelay, gen); err != nil {
		return trace, err
	}
	trace.enter(StageDone)
	if !n.markers.HasOverlay(r.ID) && (r.Address != "" || r.Thumbnail != "") {
		at := mapview.PopupLocation{Lat: r.Lat, Lng: r.Lng}
		if err := n.view.Popup().Open(ctx, markers.PopupTitle(r), markers.PopupContent(r), at); err != nil {
			log.WithError(err).Warn("info popup failed")
			trace.warn(err)
		}
	}

	log.WithFields(logrus.Fields{"stages": len(trace.Stages), "warnings": len(trace.Warnings)}).Info("selection finished")
	return trace, nil
}

func (n *Navigator) animate(ctx context.Context, trace *Trace, step string, target mapview.Target, d time.Duration) {
	err := n.view.GoTo(ctx, target, mapview.Animation{Duration: d, Easing: n.cfg.Easing})
	if err != nil {
		err = apperr.Animation(step, err)
		n.log.WithError(err).Warn("camera animation failed")
		trace.warn(err)
	}
}
