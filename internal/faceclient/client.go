package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"classroll/internal/apperr"
)

// ErrDisabled is returned when recognition is requested while the client
// runs in skip mode.
var ErrDisabled = apperr.Validation("image recognition is disabled, send facial_id instead")

// RecognizeResult is the recognition service's answer for one image.
type RecognizeResult struct {
	FacialID   string  `json:"facial_id"`
	Distance   float64 `json:"distance"`
	Recognized bool    `json:"recognized"`
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Recognize resolves the face in imageURL to an enrolled facial id. An
// image with no known face is a NotFound.
func (c *Client) Recognize(ctx context.Context, roomID, imageURL string) (*RecognizeResult, error) {
	if c.Skip {
		return nil, ErrDisabled
	}
	if imageURL == "" {
		return nil, apperr.Validation("image url required")
	}

	body, _ := json.Marshal(map[string]string{"image_url": imageURL, "room_id": roomID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/recognize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out RecognizeResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Recognized || out.FacialID == "" {
		return nil, apperr.NotFound("no enrolled face recognised in image")
	}
	return &out, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
