// Package ratelimit tracks 429/503 responses from the upload, caption and
// query services and holds further requests to a service until its backoff
// expires.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/logging"
)

// Service names used as rate limit keys
const (
	ServiceUpload  = "upload"
	ServiceCaption = "caption"
	ServiceQuery   = "query"
)

// RetryStrategy defines the backoff intervals for rate limit retries
type RetryStrategy struct {
	Intervals  []time.Duration // e.g., [30s, 1min, 2min, 5min]
	MaxRetries int
}

// DefaultRetryStrategy returns the default stepped backoff strategy
func DefaultRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		Intervals: []time.Duration{
			30 * time.Second,
			1 * time.Minute,
			2 * time.Minute,
			5 * time.Minute,
		},
		MaxRetries: 10,
	}
}

// RateLimitEvent represents a rate limit occurrence
type RateLimitEvent struct {
	Timestamp    time.Time `json:"timestamp" ts_type:"string"`
	Service      string    `json:"service"`      // "upload", "caption" or "query"
	StatusCode   int       `json:"statusCode"`   // HTTP status code (429, 503)
	RetryAttempt int       `json:"retryAttempt"` // 0 = first occurrence
	NextRetryAt  time.Time `json:"nextRetryAt" ts_type:"string"`
	Message      string    `json:"message"`
}

// Handler manages rate limit detection and backoff
type Handler struct {
	mu               sync.RWMutex
	rateLimited      map[string]*RateLimitEvent // service -> current rate limit state
	strategy         *RetryStrategy
	onRateLimit      func(event RateLimitEvent)
	onRetry          func(event RateLimitEvent)
	onRecovered      func(service string)
	autoRetryEnabled bool
	log              *logrus.Entry
	now              func() time.Time
	ctx              context.Context
	cancel           context.CancelFunc
}

// NewHandler creates a new rate limit handler
func NewHandler(strategy *RetryStrategy, log *logrus.Entry) *Handler {
	if strategy == nil || len(strategy.Intervals) == 0 {
		strategy = DefaultRetryStrategy()
	}
	if log == nil {
		log = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Handler{
		rateLimited:      make(map[string]*RateLimitEvent),
		strategy:         strategy,
		autoRetryEnabled: true,
		log:              log,
		now:              time.Now,
		ctx:              ctx,
		cancel:           cancel,
	}
}

// SetCallbacks sets the UI notification callbacks. Any may be nil.
func (h *Handler) SetCallbacks(onRateLimit, onRetry func(event RateLimitEvent), onRecovered func(service string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRateLimit = onRateLimit
	h.onRetry = onRetry
	h.onRecovered = onRecovered
}

// IsRateLimited checks if a service is currently rate limited
func (h *Handler) IsRateLimited(service string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, limited := h.rateLimited[service]
	return limited
}

// Allow returns a NetworkFailure while service is inside its backoff window.
// Once the window passes, one request is let through to test recovery.
func (h *Handler) Allow(service string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	event, limited := h.rateLimited[service]
	if !limited || !h.now().Before(event.NextRetryAt) {
		return nil
	}
	return apperr.New(apperr.KindNetworkFailure, service,
		fmt.Sprintf("rate limited until %s", event.NextRetryAt.Format(time.RFC3339)))
}

// CheckResponse records a rate limit for 429 and 503 responses and clears an
// existing one on any other status. It reports whether resp was rate limited.
func (h *Handler) CheckResponse(service string, resp *http.Response) bool {
	isRateLimited := resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusServiceUnavailable

	if !isRateLimited {
		h.checkRecovery(service)
		return false
	}

	h.recordRateLimit(service, resp.StatusCode)
	return true
}

func (h *Handler) recordRateLimit(service string, statusCode int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	existing, exists := h.rateLimited[service]

	retryAttempt := 0
	if exists {
		retryAttempt = existing.RetryAttempt + 1
	}

	// Last interval repeats for all later attempts
	interval := h.strategy.Intervals[len(h.strategy.Intervals)-1]
	if retryAttempt < len(h.strategy.Intervals) {
		interval = h.strategy.Intervals[retryAttempt]
	}

	now := h.now()
	event := RateLimitEvent{
		Timestamp:    now,
		Service:      service,
		StatusCode:   statusCode,
		RetryAttempt: retryAttempt,
		NextRetryAt:  now.Add(interval),
		Message:      buildMessage(service, statusCode, retryAttempt, interval),
	}
	h.rateLimited[service] = &event

	h.log.WithFields(logrus.Fields{
		"service":     service,
		"status":      statusCode,
		"attempt":     retryAttempt,
		"nextRetryAt": event.NextRetryAt.Format(time.RFC3339),
	}).Warn("service rate limited")

	if h.onRateLimit != nil {
		go h.onRateLimit(event)
	}
	if h.autoRetryEnabled && retryAttempt < h.strategy.MaxRetries {
		go h.scheduleRetry(service, event)
	}
}

// scheduleRetry notifies the UI when the backoff window of event closes
func (h *Handler) scheduleRetry(service string, event RateLimitEvent) {
	timer := time.NewTimer(event.NextRetryAt.Sub(event.Timestamp))
	defer timer.Stop()

	select {
	case <-timer.C:
		h.mu.RLock()
		current, exists := h.rateLimited[service]
		stale := !exists || !current.Timestamp.Equal(event.Timestamp)
		onRetry := h.onRetry
		h.mu.RUnlock()
		if stale {
			return
		}

		h.log.WithField("service", service).Info("rate limit window closed")
		if onRetry != nil {
			onRetry(event)
		}
	case <-h.ctx.Done():
	}
}

func (h *Handler) checkRecovery(service string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.rateLimited[service]; exists {
		delete(h.rateLimited, service)
		h.log.WithField("service", service).Info("rate limit cleared")

		if h.onRecovered != nil {
			go h.onRecovered(service)
		}
	}
}

// ManualRetry clears the rate limit so the next request goes through
func (h *Handler) ManualRetry(service string) {
	h.mu.Lock()
	event, exists := h.rateLimited[service]
	if !exists {
		h.mu.Unlock()
		return
	}
	delete(h.rateLimited, service)
	onRetry := h.onRetry
	h.mu.Unlock()

	h.log.WithField("service", service).Info("manual retry requested")
	if onRetry != nil {
		go onRetry(*event)
	}
}

// SetAutoRetry enables or disables retry notifications
func (h *Handler) SetAutoRetry(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.autoRetryEnabled = enabled
}

// GetCurrentState returns a copy of the rate limit state for a service
func (h *Handler) GetCurrentState(service string) *RateLimitEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if event, exists := h.rateLimited[service]; exists {
		eventCopy := *event
		return &eventCopy
	}
	return nil
}

func buildMessage(service string, statusCode int, retryAttempt int, wait time.Duration) string {
	if retryAttempt == 0 {
		return fmt.Sprintf("The %s service is busy (HTTP %d). Requests paused for %s.",
			service, statusCode, wait.Round(time.Second))
	}
	return fmt.Sprintf("The %s service is still busy (attempt %d). Next try in %s.",
		service, retryAttempt+1, wait.Round(time.Second))
}

// Close stops pending retry timers
func (h *Handler) Close() {
	h.cancel()
}
