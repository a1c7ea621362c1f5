package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/ratelimit"
)

const img = capture.EncodedImage("data:image/png;base64,iVBORw0KGgo=")

func TestUploader_SendsFilenameAndImage(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := NewUploader(NewClient(time.Second, nil, nil), srv.URL)
	require.NoError(t, u.Upload(context.Background(), "capture-1.png", img))

	assert.Equal(t, "capture-1.png", gjson.Get(body, "filename").String())
	assert.Equal(t, string(img), gjson.Get(body, "image").String())
}

func TestCaptioner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, string(img), gjson.GetBytes(b, "image").String())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"caption":"  Dense housing next to a canal "}`))
	}))
	defer srv.Close()

	c := NewCaptioner(NewClient(time.Second, nil, nil), srv.URL)
	text, err := c.Caption(context.Background(), img)

	require.NoError(t, err)
	assert.Equal(t, "Dense housing next to a canal", text)
}

func TestCaptioner_ErrorStatusIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Missing image in request"}`))
	}))
	defer srv.Close()

	_, err := NewCaptioner(NewClient(time.Second, nil, nil), srv.URL).Caption(context.Background(), img)

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNetworkFailure))
	assert.Contains(t, err.Error(), "Missing image in request")
}

func TestClient_RateLimitedServiceIsHeldBack(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	limiter := ratelimit.NewHandler(nil, nil)
	limiter.SetAutoRetry(false)
	defer limiter.Close()
	u := NewUploader(NewClient(time.Second, limiter, nil), srv.URL)

	assert.Error(t, u.Upload(context.Background(), "a.png", img))
	err := u.Upload(context.Background(), "b.png", img)

	assert.True(t, apperr.Is(err, apperr.KindNetworkFailure))
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, 1, hits, "second upload never reached the server")
}

func TestClient_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewUploader(NewClient(time.Second, nil, nil), url).Upload(context.Background(), "a.png", img)
	assert.True(t, apperr.Is(err, apperr.KindNetworkFailure))
}
