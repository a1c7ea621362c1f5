package queryproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/logging"
)

// DefaultGeoSearchTimeout bounds one geosearch call
const DefaultGeoSearchTimeout = 15 * time.Second

// StatusError is a non-200 geosearch reply; the service answers with the same status
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geosearch returned %d", e.Status)
}

// HTTPStatus returns the geosearch status
func (e *StatusError) HTTPStatus() int {
	return e.Status
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type bboxBody struct {
	BBox struct {
		Min point `json:"min"`
		Max point `json:"max"`
	} `json:"bbox"`
	SRID int `json:"srid"`
}

type searchPayload struct {
	Text string    `json:"text,omitempty"`
	BBox *bboxBody `json:"bbox,omitempty"`
}

func newPayload(q ParsedQuery) searchPayload {
	p := searchPayload{Text: q.Content}
	if len(q.BBox) == 4 {
		b := &bboxBody{SRID: 4326}
		b.BBox.Min = point{X: q.BBox[0], Y: q.BBox[1]}
		b.BBox.Max = point{X: q.BBox[2], Y: q.BBox[3]}
		p.BBox = b
	}
	return p
}

// GeoSearch calls the tile search endpoint
type GeoSearch struct {
	http *http.Client
	url  string
	log  *logrus.Entry
}

// NewGeoSearch creates a client for url (the full /tiles/search URL)
func NewGeoSearch(url string, timeout time.Duration, log *logrus.Entry) *GeoSearch {
	if timeout <= 0 {
		timeout = DefaultGeoSearchTimeout
	}
	if log == nil {
		log = logging.Discard()
	}
	return &GeoSearch{http: &http.Client{Timeout: timeout}, url: url, log: log}
}

// Search posts q and returns the raw reply body
func (g *GeoSearch) Search(ctx context.Context, q ParsedQuery) ([]byte, error) {
	payload, err := json.Marshal(newPayload(q))
	if err != nil {
		return nil, apperr.Network("geosearch", err)
	}
	g.log.WithField("payload", string(payload)).Debug("posting to geosearch")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Network("geosearch", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, apperr.Network("geosearch", fmt.Errorf("error contacting geosearch server: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Network("geosearch", err)
	}
	g.log.WithField("status", resp.StatusCode).Debug("geosearch response")
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode}
	}
	return body, nil
}
