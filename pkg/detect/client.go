// Package detect is a client for a self-hosted object detection service
// (a YOLO model behind an HTTP endpoint) that accepts a multipart image and
// returns the detected classes with their confidence scores.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

type Client struct {
	client         *http.Client
	endpoint       string
	defaultTimeout time.Duration
}

type Box struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

type Response struct {
	Detections []Box `json:"detections"`
}

func NewClient(endpoint string, defaultTimeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		client:         httpClient,
		endpoint:       endpoint,
		defaultTimeout: defaultTimeout,
	}
}

func (c *Client) DetectFile(ctx context.Context, path string) (*Response, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	return c.Detect(ctx, filepath.Base(path), f)
}

func (c *Client) Detect(ctx context.Context, fileName string, image io.Reader) (*Response, error) {
	detectCtx, cancel := context.WithTimeout(ctx, c.defaultTimeout)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err = io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("failed to copy image content: %w", err)
	}

	if err = writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(detectCtx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var detectResp Response
	if err := json.NewDecoder(resp.Body).Decode(&detectResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &detectResp, nil
}
