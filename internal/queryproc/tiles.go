package queryproc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"geocapture-desktop/internal/geo"
)

// ErrInvalidJSON means the geosearch body could not be parsed
var ErrInvalidJSON = errors.New("invalid JSON from geosearch")

const defaultThumbMime = "image/jpeg"

// Tile is one normalized geosearch hit
type Tile struct {
	ID        string
	Point     geo.Point
	Caption   string
	Thumbnail string // data URL, or "" when the tile has no image
}

// NormalizeTiles reads the "tiles" array of a geosearch reply. Tiles without
// a usable location are skipped.
func NormalizeTiles(body []byte) ([]Tile, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidJSON
	}
	var tiles []Tile
	for _, t := range gjson.GetBytes(body, "tiles").Array() {
		meta := t.Get("metadata")
		p, ok := centroid(tileBBox(meta))
		if !ok {
			p, ok = metadataPoint(meta)
		}
		if !ok {
			continue
		}
		tiles = append(tiles, Tile{
			ID:        t.Get("id").String(),
			Point:     p,
			Caption:   captionOf(meta),
			Thumbnail: thumbnailOf(t.Get("data")),
		})
	}
	return tiles, nil
}

// tileBBox finds the bbox in metadata.bbox, metadata.bbox.bbox or
// metadata.misc.bbox and reduces it to [minx, miny, maxx, maxy]
func tileBBox(meta gjson.Result) []float64 {
	raw := meta.Get("bbox")
	if !raw.Exists() || raw.Type == gjson.Null {
		raw = meta.Get("misc.bbox")
	}
	if raw.IsObject() {
		if inner := raw.Get("bbox"); inner.Exists() && !inner.IsArray() {
			raw = inner
		}
	}

	switch {
	case raw.IsArray():
		return numbers(raw.Array())
	case raw.IsObject():
		if lo, hi := raw.Get("min"), raw.Get("max"); lo.Exists() && hi.Exists() {
			return fields(lo.Get("x"), lo.Get("y"), hi.Get("x"), hi.Get("y"))
		}
		if box := fields(raw.Get("xmin"), raw.Get("ymin"), raw.Get("xmax"), raw.Get("ymax")); box != nil {
			return box
		}
		return fields(raw.Get("left"), raw.Get("bottom"), raw.Get("right"), raw.Get("top"))
	}
	return nil
}

func fields(vals ...gjson.Result) []float64 {
	for _, v := range vals {
		if !v.Exists() || v.Type == gjson.Null {
			return nil
		}
	}
	return numbers(vals)
}

// centroid returns the middle of a lon/lat box
func centroid(box []float64) (geo.Point, bool) {
	if len(box) != 4 {
		return geo.Point{}, false
	}
	p := geo.Point{Lat: (box[1] + box[3]) / 2, Lng: (box[0] + box[2]) / 2}
	return p, p.Valid()
}

func metadataPoint(meta gjson.Result) (geo.Point, bool) {
	lat, okLat := firstNumeric(meta, "lat", "latitude", "y")
	lng, okLng := firstNumeric(meta, "lon", "lng", "longitude", "x")
	if !okLat || !okLng {
		return geo.Point{}, false
	}
	p := geo.Point{Lat: lat, Lng: lng}
	return p, p.Valid()
}

func firstNumeric(doc gjson.Result, keys ...string) (float64, bool) {
	for _, k := range keys {
		v := doc.Get(k)
		switch v.Type {
		case gjson.Number:
			return v.Num, true
		case gjson.String:
			if gjson.Valid(v.Str) {
				return v.Float(), true
			}
		}
	}
	return 0, false
}

func captionOf(meta gjson.Result) string {
	c := meta.Get("caption")
	if !c.Exists() || c.Type == gjson.Null {
		return ""
	}
	return c.String()
}

// thumbnailOf builds a data URL from data.base64_data. data.type may carry
// "{mime},base64"; anything else means JPEG.
func thumbnailOf(data gjson.Result) string {
	payload := data.Get("base64_data").String()
	if payload == "" {
		return ""
	}
	mime := defaultThumbMime
	if t := data.Get("type").String(); strings.Contains(t, ",") {
		mime, _, _ = strings.Cut(t, ",")
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, payload)
}
