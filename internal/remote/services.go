package remote

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"geocapture-desktop/internal/capture"
	"geocapture-desktop/internal/ratelimit"
)

// Uploader posts captures to the upload endpoint
type Uploader struct {
	client *Client
	url    string
}

var _ capture.Uploader = (*Uploader)(nil)

// NewUploader creates an uploader for url
func NewUploader(client *Client, url string) *Uploader {
	return &Uploader{client: client, url: url}
}

type uploadRequest struct {
	Filename string `json:"filename"`
	Image    string `json:"image"`
}

// Upload sends the capture as a data URL
func (u *Uploader) Upload(ctx context.Context, filename string, img capture.EncodedImage) error {
	return u.client.PostJSON(ctx, ratelimit.ServiceUpload, u.url, uploadRequest{
		Filename: filename,
		Image:    img.String(),
	}, nil)
}

// Captioner asks the caption service to describe a capture
type Captioner struct {
	client *Client
	url    string
}

var _ capture.Captioner = (*Captioner)(nil)

// NewCaptioner creates a captioner for url
func NewCaptioner(client *Client, url string) *Captioner {
	return &Captioner{client: client, url: url}
}

type captionRequest struct {
	Image string `json:"image"`
}

// Caption returns the service's caption, or "" when the response has none
func (c *Captioner) Caption(ctx context.Context, img capture.EncodedImage) (string, error) {
	var raw json.RawMessage
	if err := c.client.PostJSON(ctx, ratelimit.ServiceCaption, c.url, captionRequest{Image: img.String()}, &raw); err != nil {
		return "", err
	}
	return strings.TrimSpace(gjson.GetBytes(raw, "caption").String()), nil
}
