package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geocapture-desktop/internal/apperr"
)

func newTestHandler(now *time.Time) *Handler {
	h := NewHandler(&RetryStrategy{Intervals: []time.Duration{time.Minute, 5 * time.Minute}, MaxRetries: 3}, nil)
	h.SetAutoRetry(false)
	h.now = func() time.Time { return *now }
	return h
}

func TestHandler_BackoffAndRecovery(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := newTestHandler(&now)
	defer h.Close()

	assert.False(t, h.CheckResponse(ServiceCaption, &http.Response{StatusCode: http.StatusOK}))
	require.NoError(t, h.Allow(ServiceCaption))

	assert.True(t, h.CheckResponse(ServiceCaption, &http.Response{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, h.IsRateLimited(ServiceCaption))
	err := h.Allow(ServiceCaption)
	assert.True(t, apperr.Is(err, apperr.KindNetworkFailure))
	assert.NoError(t, h.Allow(ServiceUpload), "limits are per service")

	state := h.GetCurrentState(ServiceCaption)
	require.NotNil(t, state)
	assert.Equal(t, 0, state.RetryAttempt)
	assert.Equal(t, now.Add(time.Minute), state.NextRetryAt)

	// Window passed: one trial request is allowed, and a second 429 escalates
	now = now.Add(2 * time.Minute)
	assert.NoError(t, h.Allow(ServiceCaption))
	h.CheckResponse(ServiceCaption, &http.Response{StatusCode: http.StatusServiceUnavailable})
	state = h.GetCurrentState(ServiceCaption)
	assert.Equal(t, 1, state.RetryAttempt)
	assert.Equal(t, now.Add(5*time.Minute), state.NextRetryAt)

	h.CheckResponse(ServiceCaption, &http.Response{StatusCode: http.StatusOK})
	assert.False(t, h.IsRateLimited(ServiceCaption))
	assert.Nil(t, h.GetCurrentState(ServiceCaption))
}

func TestHandler_ManualRetryClears(t *testing.T) {
	now := time.Now()
	h := newTestHandler(&now)
	defer h.Close()

	h.CheckResponse(ServiceQuery, &http.Response{StatusCode: http.StatusTooManyRequests})
	require.Error(t, h.Allow(ServiceQuery))

	h.ManualRetry(ServiceQuery)
	assert.NoError(t, h.Allow(ServiceQuery))
}

func TestHandler_RecoveryCallback(t *testing.T) {
	now := time.Now()
	h := newTestHandler(&now)
	defer h.Close()

	recovered := make(chan string, 1)
	h.SetCallbacks(nil, nil, func(service string) { recovered <- service })

	h.CheckResponse(ServiceUpload, &http.Response{StatusCode: http.StatusTooManyRequests})
	h.CheckResponse(ServiceUpload, &http.Response{StatusCode: http.StatusCreated})

	select {
	case s := <-recovered:
		assert.Equal(t, ServiceUpload, s)
	case <-time.After(time.Second):
		t.Fatal("recovery callback not called")
	}
}
