package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/caption"
	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/queryproc"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type failingCaptioner struct{}

func (failingCaptioner) Caption(ctx context.Context, img capture.EncodedImage) (string, error) {
	return "", errors.New("model unavailable")
}

type stubQueries struct {
	resp *queryproc.Response
	err  error
	got  queryproc.Request
}

func (q *stubQueries) Process(ctx context.Context, req queryproc.Request) (*queryproc.Response, error) {
	q.got = req
	return q.resp, q.err
}

func do(t *testing.T, router http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProcessCaption(t *testing.T) {
	router := New(caption.Placeholder{}, &stubQueries{}, nil).Router(Options{})

	w := do(t, router, http.MethodPost, "/process_caption", `{"image":"data:image/png;base64,iVBORw0KGgo="}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, caption.PlaceholderText, gjson.Get(w.Body.String(), "caption").String())

	w = do(t, router, http.MethodPost, "/process_caption", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing image in request", gjson.Get(w.Body.String(), "detail").String())

	w = do(t, router, http.MethodPost, "/process_caption", `{"image":"not a data url"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/process_caption", `{"image":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessCaption_InferenceFailure(t *testing.T) {
	router := New(failingCaptioner{}, &stubQueries{}, nil).Router(Options{})

	w := do(t, router, http.MethodPost, "/process_caption", `{"image":"data:image/png;base64,iVBORw0KGgo="}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "model unavailable", gjson.Get(w.Body.String(), "detail").String())
}

func TestProcessQuery(t *testing.T) {
	queries := &stubQueries{resp: &queryproc.Response{
		LatLongs:     [][2]float64{{40.7, -74.0}},
		InputCaption: "piers",
		Captions:     []string{"pier 17"},
		Thumbnails:   []*string{nil},
	}}
	router := New(caption.Placeholder{}, queries, nil).Router(Options{})

	w := do(t, router, http.MethodPost, "/process_query", `{"query":"piers in manhattan","b64_image":"data:image/png;base64,AA=="}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "piers in manhattan", queries.got.Query)
	body := w.Body.String()
	assert.Equal(t, 40.7, gjson.Get(body, "lat_longs.0.0").Float())
	assert.Equal(t, "piers", gjson.Get(body, "input_caption").String())
	assert.Equal(t, gjson.Null, gjson.Get(body, "thumbnails.0").Type)
}

func TestProcessQuery_ErrorStatuses(t *testing.T) {
	queries := &stubQueries{err: &queryproc.StatusError{Status: http.StatusServiceUnavailable}}
	router := New(caption.Placeholder{}, queries, nil).Router(Options{})

	w := do(t, router, http.MethodPost, "/process_query", `{"query":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "geosearch returned 503", gjson.Get(w.Body.String(), "detail").String())

	queries.err = apperr.Network("geosearch", errors.New("connection refused"))
	w = do(t, router, http.MethodPost, "/process_query", `{"query":"x"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCORS(t *testing.T) {
	router := New(caption.Placeholder{}, &stubQueries{}, nil).Router(Options{
		CORSOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
	})

	w := do(t, router, http.MethodOptions, "/process_caption", "",
		"Origin", "http://localhost:3000",
		"Access-Control-Request-Method", "POST")
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(t, router, http.MethodOptions, "/process_caption", "",
		"Origin", "http://evil.test",
		"Access-Control-Request-Method", "POST")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	router := New(caption.Placeholder{}, &stubQueries{}, nil).Router(Options{RateLimit: 1, RateBurst: 2})

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodGet, "/health", "").Code)
}
