// Package asr is a client for a self-hosted whisper ASR webservice
// (openai-whisper-asr-webservice compatible) that accepts a multipart
// upload and answers with JSON.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

type ASRClient struct {
	client         *http.Client
	endpoint       string
	defaultTimeout time.Duration
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type TranscriptionResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

func NewASRClient(endpoint string, defaultTimeout time.Duration, httpClient *http.Client) *ASRClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &ASRClient{
		client:         httpClient,
		endpoint:       endpoint,
		defaultTimeout: defaultTimeout,
	}
}

// TranscribeFile opens the audio file at path and transcribes it.
func (c *ASRClient) TranscribeFile(ctx context.Context, path string) (*TranscriptionResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	return c.Transcribe(ctx, filepath.Base(path), f)
}

func (c *ASRClient) Transcribe(ctx context.Context, fileName string, fileContent io.Reader) (*TranscriptionResponse, error) {
	transcribeCtx, cancel := context.WithTimeout(ctx, c.defaultTimeout)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	_, err = io.Copy(part, fileContent)
	if err != nil {
		return nil, fmt.Errorf("failed to copy file content: %w", err)
	}

	err = writer.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("task", "transcribe")
	q.Set("output", "json")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(transcribeCtx, http.MethodPost, endpoint.String(), &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

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

	var transcriptionResp TranscriptionResponse
	err = json.NewDecoder(resp.Body).Decode(&transcriptionResp)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &transcriptionResp, nil
}
