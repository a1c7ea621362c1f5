package queryproc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/llm"
)

type stubGenerator struct {
	text string
	err  error
}

func (g stubGenerator) Generate(ctx context.Context, system, prompt string, images ...llm.Image) (string, error) {
	return g.text, g.err
}

func TestExtractJSON(t *testing.T) {
	doc, ok := ExtractJSON(`{"content":"parks"}`)
	require.True(t, ok)
	assert.Equal(t, "parks", doc.Get("content").String())

	doc, ok = ExtractJSON("Sure! Here you go:\n```json\n{\"content\": \"piers\", \"bbox\": [1,2,3,4]}\n```")
	require.True(t, ok)
	assert.Equal(t, "piers", doc.Get("content").String())

	_, ok = ExtractJSON("no json here")
	assert.False(t, ok)
	_, ok = ExtractJSON("} backwards {")
	assert.False(t, ok)
}

func TestGeminiParser(t *testing.T) {
	ctx := context.Background()

	q, err := NewGeminiParser(stubGenerator{text: `{"content":"marinas","location":"Lisbon","bbox":[-9.23,38.69,-9.09,38.80]}`}).Parse(ctx, "marinas in lisbon")
	require.NoError(t, err)
	assert.Equal(t, ParsedQuery{Content: "marinas", Location: "Lisbon", BBox: []float64{-9.23, 38.69, -9.09, 38.80}}, q)

	q, err = NewGeminiParser(stubGenerator{text: `{"query":"farms","bbox":[1,2]}`}).Parse(ctx, "farms")
	require.NoError(t, err)
	assert.Equal(t, "farms", q.Content)
	assert.Nil(t, q.BBox, "short bbox is dropped")

	q, err = NewGeminiParser(stubGenerator{text: "I cannot help with that"}).Parse(ctx, "raw input")
	require.NoError(t, err)
	assert.Equal(t, ParsedQuery{Content: "raw input"}, q)

	assert.Equal(t, ParsedQuery{Content: "raw input"},
		parseOrFallback(ctx, NewGeminiParser(stubGenerator{err: errors.New("quota")}), "raw input", nil))
	assert.Equal(t, ParsedQuery{Content: "raw input"}, parseOrFallback(ctx, nil, "raw input", nil))
}

func TestNormalizeTiles_Shapes(t *testing.T) {
	body := []byte(`{"tiles":[
		{"id":"list","metadata":{"bbox":[-74.0,40.0,-73.8,40.2],"caption":"marina"},"data":{"base64_data":"AAA","type":"image/png,base64"}},
		{"metadata":{"bbox":{"bbox":{"min":{"x":10,"y":50},"max":{"x":12,"y":52}}}},"data":{"base64_data":"BBB"}},
		{"metadata":{"bbox":{"xmin":0,"ymin":0,"xmax":2,"ymax":4}}},
		{"metadata":{"misc":{"bbox":{"left":-1,"bottom":-1,"right":1,"top":1}}}},
		{"metadata":{"latitude":"12.5","lng":7}},
		{"metadata":{"caption":"nowhere"},"data":{"base64_data":"CCC"}}
	]}`)

	tiles, err := NormalizeTiles(body)
	require.NoError(t, err)
	require.Len(t, tiles, 5)

	assert.Equal(t, "list", tiles[0].ID)
	assert.InDelta(t, 40.1, tiles[0].Point.Lat, 1e-9)
	assert.InDelta(t, -73.9, tiles[0].Point.Lng, 1e-9)
	assert.Equal(t, "marina", tiles[0].Caption)
	assert.Equal(t, "data:image/png;base64,AAA", tiles[0].Thumbnail)

	assert.Equal(t, geo.Point{Lat: 51, Lng: 11}, tiles[1].Point)
	assert.Equal(t, "data:image/jpeg;base64,BBB", tiles[1].Thumbnail)
	assert.Equal(t, geo.Point{Lat: 2, Lng: 1}, tiles[2].Point)
	assert.Equal(t, geo.Point{Lat: 0, Lng: 0}, tiles[3].Point)
	assert.Equal(t, geo.Point{Lat: 12.5, Lng: 7}, tiles[4].Point)
	assert.Empty(t, tiles[4].Thumbnail)

	_, err = NormalizeTiles([]byte(`<html>`))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestService_Process(t *testing.T) {
	var payload []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"tiles":[{"metadata":{"bbox":[-9.2,38.7,-9.1,38.8],"caption":"dock"}}]}`))
	}))
	defer srv.Close()

	parser := NewGeminiParser(stubGenerator{text: `{"content":"docks","bbox":[-9.3,38.6,-9.0,38.9]}`})
	svc := NewService(parser, NewGeoSearch(srv.URL, time.Second, nil), nil)

	resp, err := svc.Process(context.Background(), Request{Query: "docks in lisbon"})
	require.NoError(t, err)

	assert.Equal(t, "docks", gjson.GetBytes(payload, "text").String())
	assert.Equal(t, -9.3, gjson.GetBytes(payload, "bbox.bbox.min.x").Float())
	assert.Equal(t, 38.9, gjson.GetBytes(payload, "bbox.bbox.max.y").Float())
	assert.Equal(t, int64(4326), gjson.GetBytes(payload, "bbox.srid").Int())

	assert.Equal(t, "docks", resp.InputCaption)
	require.Len(t, resp.LatLongs, 1)
	assert.InDelta(t, 38.75, resp.LatLongs[0][0], 1e-9)
	assert.Equal(t, []string{"dock"}, resp.Captions)
	assert.Equal(t, []*string{nil}, resp.Thumbnails)
	assert.Equal(t, "result-1", resp.Results[0].ID)
	assert.Equal(t, "dock", resp.Results[0].Name)
}

func TestService_GeoSearchFailures(t *testing.T) {
	ctx := context.Background()

	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()
	_, err := NewService(nil, NewGeoSearch(notFound.URL, time.Second, nil), nil).Process(ctx, Request{Query: "x"})
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.HTTPStatus())

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer garbage.Close()
	_, err = NewService(nil, NewGeoSearch(garbage.URL, time.Second, nil), nil).Process(ctx, Request{Query: "x"})
	assert.True(t, apperr.Is(err, apperr.KindNetworkFailure))

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	_, err = NewService(nil, NewGeoSearch(url, time.Second, nil), nil).Process(ctx, Request{Query: "x"})
	assert.True(t, apperr.Is(err, apperr.KindNetworkFailure))
}

func TestService_PlaceholderGrid(t *testing.T) {
	resp, err := NewService(nil, nil, nil).Process(context.Background(), Request{Query: "anything"})
	require.NoError(t, err)

	require.Len(t, resp.LatLongs, 10)
	assert.Equal(t, [2]float64{40.7003, -74.046}, resp.LatLongs[0])
	assert.Equal(t, "Dummy location 10", resp.Captions[9])
	assert.Equal(t, "anything", resp.InputCaption)
}
