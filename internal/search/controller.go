package search

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/mapview"
)

// Searcher runs a location query
type Searcher interface {
	Search(ctx context.Context, query string) (*Response, error)
}

// Markers is the slice of the marker manager a search drives
type Markers interface {
	SetAll(ctx context.Context, results []geo.Result) error
	Reset(ctx context.Context) error
}

// Framing controls how the camera shows a fresh result set
type Framing struct {
	SingleResultZoom float64       `json:"singleResultZoom" validate:"gt=0,lte=24"`
	ExtentPadding    int           `json:"extentPadding" validate:"gt=0"`
	Duration         time.Duration `json:"duration"`
}

// DefaultFraming zooms to street level for one hit and pads multi-hit extents
func DefaultFraming() Framing {
	return Framing{SingleResultZoom: 15, ExtentPadding: 50, Duration: time.Second}
}

// Controller submits searches and puts their results on the map
type Controller struct {
	searcher Searcher
	view     mapview.View
	markers  Markers
	framing  Framing
	log      *logrus.Entry
}

// NewController creates a controller
func NewController(s Searcher, view mapview.View, m Markers, framing Framing, log *logrus.Entry) *Controller {
	if log == nil {
		log = logging.Discard()
	}
	if framing.ExtentPadding <= 0 {
		framing.ExtentPadding = DefaultFraming().ExtentPadding
	}
	return &Controller{searcher: s, view: view, markers: m, framing: framing, log: log}
}

// Submit runs query, replaces the result markers and frames the camera. A
// failed or empty search clears the markers and selection and returns a
// NetworkFailure; marker and framing errors after a successful search are
// logged only.
func (c *Controller) Submit(ctx context.Context, query string) ([]geo.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search", "query is empty")
	}
	log := c.log.WithField("query", query)

	resp, err := c.searcher.Search(ctx, query)
	if err == nil && len(resp.Results) == 0 {
		err = apperr.New(apperr.KindNetworkFailure, "search", "no results")
	}
	if err != nil {
		log.WithError(err).Warn("search failed")
		if rerr := c.markers.Reset(ctx); rerr != nil {
			log.WithError(rerr).Debug("marker reset incomplete")
		}
		return nil, err
	}

	if err := c.markers.SetAll(ctx, resp.Results); err != nil {
		log.WithError(err).Warn("failed to show result markers")
	}
	if err := c.Frame(ctx, resp.Results); err != nil {
		log.WithError(err).Warn("failed to frame results")
	}

	log.WithField("count", len(resp.Results)).Info("search finished")
	return resp.Results, nil
}

// Frame moves the camera to a single result or fits all of them
func (c *Controller) Frame(ctx context.Context, results []geo.Result) error {
	var target mapview.Target
	switch len(results) {
	case 0:
		return nil
	case 1:
		target = mapview.Target{
			Center: mapview.At(results[0].Point()),
			Zoom:   mapview.Float(c.framing.SingleResultZoom),
		}
	default:
		box, _ := geo.BoundsOf(geo.Points(results))
		target = mapview.Target{Extent: &box, Padding: c.framing.ExtentPadding}
	}
	if err := c.view.GoTo(ctx, target, mapview.Animation{Duration: c.framing.Duration}); err != nil {
		return apperr.Animation("frame", err)
	}
	return nil
}
