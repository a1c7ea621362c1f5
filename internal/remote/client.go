// Package remote holds the HTTP clients for the upload, caption and query
// services the desktop app talks to.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"geocapture-desktop/internal/apperr"
	"geocapture-desktop/internal/logging"
	"geocapture-desktop/internal/ratelimit"
)

// DefaultTimeout bounds a single request
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 4 << 10

// Client posts JSON to the backing services with per-service rate limit
// tracking
type Client struct {
	http    *http.Client
	limiter *ratelimit.Handler
	log     *logrus.Entry
}

// NewClient creates a client. limiter may be nil.
func NewClient(timeout time.Duration, limiter *ratelimit.Handler, log *logrus.Entry) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		log:     log,
	}
}

// PostJSON sends body to url and decodes a 2xx response into out (when
// non-nil). Every failure is a NetworkFailure.
func (c *Client) PostJSON(ctx context.Context, service, url string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Allow(service); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return apperr.Network(service, fmt.Errorf("failed to encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return apperr.Network(service, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Network(service, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"service":  service,
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("service response")

	if c.limiter != nil {
		c.limiter.CheckResponse(service, resp)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperr.Network(service, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errorDetail(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Network(service, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// errorDetail pulls the message out of FastAPI/gin style error bodies
func errorDetail(body []byte) string {
	for _, key := range []string{"detail", "error", "message"} {
		if v := gjson.GetBytes(body, key); v.Type == gjson.String {
			return v.String()
		}
	}
	return string(bytes.TrimSpace(body))
}
