package queryproc

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/logging"
)

// Request is the body of POST /process_query. The image is accepted for
// compatibility and not used for search.
type Request struct {
	Query    string `json:"query" validate:"max=2000"`
	B64Image string `json:"b64_image"`
}

// Response carries the results twice: as parallel arrays for older clients
// and as a results list.
type Response struct {
	LatLongs     [][2]float64 `json:"lat_longs"`
	InputCaption string       `json:"input_caption"`
	Captions     []string     `json:"captions"`
	Thumbnails   []*string    `json:"thumbnails"`
	Results      []geo.Result `json:"results"`
}

func newResponse(caption string) *Response {
	return &Response{
		LatLongs:     [][2]float64{},
		InputCaption: caption,
		Captions:     []string{},
		Thumbnails:   []*string{},
		Results:      []geo.Result{},
	}
}

func (r *Response) add(t Tile) {
	i := len(r.Results)
	r.LatLongs = append(r.LatLongs, [2]float64{t.Point.Lat, t.Point.Lng})
	r.Captions = append(r.Captions, t.Caption)
	var thumb *string
	if t.Thumbnail != "" {
		s := t.Thumbnail
		thumb = &s
	}
	r.Thumbnails = append(r.Thumbnails, thumb)

	id := t.ID
	if id == "" {
		id = fmt.Sprintf("result-%d", i+1)
	}
	name := t.Caption
	if name == "" {
		name = fmt.Sprintf("Result %d", i+1)
	}
	r.Results = append(r.Results, geo.Result{
		ID:        id,
		Name:      name,
		Lat:       t.Point.Lat,
		Lng:       t.Point.Lng,
		Caption:   t.Caption,
		Thumbnail: t.Thumbnail,
	})
}

// TileSearcher is the geosearch backend
type TileSearcher interface {
	Search(ctx context.Context, q ParsedQuery) ([]byte, error)
}

// Service answers location queries
type Service struct {
	parser Parser
	tiles  TileSearcher
	log    *logrus.Entry
}

// NewService creates a service. A nil parser searches with the raw query; a
// nil tile searcher answers with a fixed grid of placeholder points.
func NewService(parser Parser, tiles TileSearcher, log *logrus.Entry) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{parser: parser, tiles: tiles, log: log}
}

// Process parses the query, runs the geosearch and normalizes the tiles.
// Geosearch status errors are returned as *StatusError; transport and
// decoding failures as NetworkFailure.
func (s *Service) Process(ctx context.Context, req Request) (*Response, error) {
	log := s.log.WithField("query", req.Query)

	q := ParsedQuery{Content: req.Query}
	if req.Query != "" {
		q = parseOrFallback(ctx, s.parser, req.Query, log)
	}
	if s.tiles == nil {
		return placeholderResponse(q.Content), nil
	}

	body, err := s.tiles.Search(ctx, q)
	if err != nil {
		log.WithError(err).Warn("geosearch failed")
		return nil, err
	}
	tiles, err := NormalizeTiles(body)
	if err != nil {
		return nil, apperr.Network("geosearch", err)
	}

	resp := newResponse(q.Content)
	for _, t := range tiles {
		resp.add(t)
	}
	log.WithFields(logrus.Fields{"tiles": len(tiles), "bbox": q.BBox != nil}).Info("query processed")
	return resp, nil
}

// placeholder grid around New York City, for running without a geosearch backend
const (
	placeholderLat = 40.7128
	placeholderLng = -74.0060
	placeholderN   = 10
)

func placeholderResponse(caption string) *Response {
	resp := newResponse(caption)
	for i := 0; i < placeholderN; i++ {
		row, col := i/5, i%5
		lat := placeholderLat + float64(row-1)*0.0125 + float64(i)*0.0001
		lng := placeholderLng + float64(col-2)*0.02 + float64(i)*0.0001
		resp.add(Tile{
			Point:   geo.Point{Lat: round6(lat), Lng: round6(lng)},
			Caption: fmt.Sprintf("Dummy location %d", i+1),
		})
	}
	return resp
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
