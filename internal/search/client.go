// Package search submits location queries to the query service, keeps the
// returned result set on the map and frames the camera around it.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/geo"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/ratelimit"
	"geocapture-desktop/internal/remote"
)

// DefaultCacheTTL keeps identical queries off the wire for a few minutes
const DefaultCacheTTL = 5 * time.Minute

// Response is a parsed query service reply
type Response struct {
	InputCaption string       `json:"inputCaption"`
	Results      []geo.Result `json:"results"`
}

// Client queries the query service, caching non-empty responses
type Client struct {
	remote *remote.Client
	url    string
	cache  *gocache.Cache
	log    *logrus.Entry
}

// NewClient creates a client. A zero ttl disables caching.
func NewClient(rc *remote.Client, url string, ttl time.Duration, log *logrus.Entry) *Client {
	if log == nil {
		log = logging.Discard()
	}
	c := &Client{remote: rc, url: url, log: log}
	if ttl > 0 {
		c.cache = gocache.New(ttl, 2*ttl)
	}
	return c
}

type queryRequest struct {
	Query string `json:"query"`
}

func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Search runs query against the query service
func (c *Client) Search(ctx context.Context, query string) (*Response, error) {
	key := cacheKey(query)
	if c.cache != nil {
		if cached, found := c.cache.Get(key); found {
			c.log.WithField("query", key).Debug("search cache hit")
			resp := cached.(*Response)
			return &Response{InputCaption: resp.InputCaption, Results: append([]geo.Result(nil), resp.Results...)}, nil
		}
	}

	var raw json.RawMessage
	if err := c.remote.PostJSON(ctx, ratelimit.ServiceQuery, c.url, queryRequest{Query: query}, &raw); err != nil {
		return nil, err
	}
	resp, err := ParseResponse(raw)
	if err != nil {
		return nil, apperr.Network("search", err)
	}

	if c.cache != nil && len(resp.Results) > 0 {
		c.cache.Set(key, &Response{InputCaption: resp.InputCaption, Results: append([]geo.Result(nil), resp.Results...)}, gocache.DefaultExpiration)
	}
	return resp, nil
}

// Flush empties the response cache
func (c *Client) Flush() {
	if c.cache != nil {
		c.cache.Flush()
	}
}

// ParseResponse reads the query service reply. The "results" array is
// preferred; older services only send the parallel lat_longs, captions and
// thumbnails arrays. Entries without valid coordinates are skipped.
func ParseResponse(body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON from query service")
	}
	doc := gjson.ParseBytes(body)
	resp := &Response{InputCaption: doc.Get("input_caption").String()}

	if results := doc.Get("results"); results.IsArray() && len(results.Array()) > 0 {
		for i, item := range results.Array() {
			lat, okLat := firstNumber(item, "lat", "latitude")
			lng, okLng := firstNumber(item, "lng", "lon", "longitude")
			if !okLat || !okLng {
				continue
			}
			add(resp, geo.Result{
				ID:        item.Get("id").String(),
				Name:      item.Get("name").String(),
				Address:   item.Get("address").String(),
				Lat:       lat,
				Lng:       lng,
				Caption:   item.Get("caption").String(),
				Thumbnail: item.Get("thumbnail").String(),
			}, i)
		}
		return resp, nil
	}

	captions := doc.Get("captions").Array()
	thumbnails := doc.Get("thumbnails").Array()
	for i, pair := range doc.Get("lat_longs").Array() {
		coords := pair.Array()
		if len(coords) < 2 {
			continue
		}
		r := geo.Result{Lat: coords[0].Float(), Lng: coords[1].Float()}
		if i < len(captions) {
			r.Caption = captions[i].String()
		}
		if i < len(thumbnails) && thumbnails[i].Type == gjson.String {
			r.Thumbnail = thumbnails[i].String()
		}
		add(resp, r, i)
	}
	return resp, nil
}

// add fills defaults and appends r when its point is valid
func add(resp *Response, r geo.Result, i int) {
	if !r.Point().Valid() {
		return
	}
	if r.ID == "" {
		r.ID = fmt.Sprintf("result-%d", i+1)
	}
	if r.Name == "" {
		r.Name = r.Caption
	}
	if r.Name == "" {
		r.Name = fmt.Sprintf("Result %d", i+1)
	}
	resp.Results = append(resp.Results, r)
}

func firstNumber(item gjson.Result, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() && v.Type != gjson.Null {
			return v.Float(), true
		}
	}
	return 0, false
}
