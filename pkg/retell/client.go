// Package retell is a minimal client for the Retell AI voice agent REST API:
// listing agents, placing outbound phone calls and retrieving call state,
// plus the one-off calls used to provision an agent and a phone number.
package retell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.retellai.com"

type Client struct {
	client         *http.Client
	baseURL        string
	apiKey         string
	defaultTimeout time.Duration
}

type Agent struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

type LLM struct {
	LLMID string `json:"llm_id"`
}

type ResponseEngine struct {
	LLMID string `json:"llm_id"`
	Type  string `json:"type"`
}

type CreateAgentRequest struct {
	AgentName      string         `json:"agent_name"`
	VoiceID        string         `json:"voice_id"`
	ResponseEngine ResponseEngine `json:"response_engine"`
	Language       string         `json:"language,omitempty"`
}

// UpdateAgentRequest is a partial update; nil fields are left unchanged.
type UpdateAgentRequest struct {
	AmbientSound       *string  `json:"ambient_sound,omitempty"`
	AmbientSoundVolume *float64 `json:"ambient_sound_volume,omitempty"`
	VoiceTemperature   *float64 `json:"voice_temperature,omitempty"`
}

type PhoneNumber struct {
	PhoneNumber string `json:"phone_number"`
}

type CreatePhoneCallRequest struct {
	FromNumber      string `json:"from_number"`
	ToNumber        string `json:"to_number"`
	OverrideAgentID string `json:"override_agent_id,omitempty"`
}

type Call struct {
	CallID         string `json:"call_id"`
	CallType       string `json:"call_type"`
	AgentID        string `json:"agent_id"`
	CallStatus     string `json:"call_status"`
	FromNumber     string `json:"from_number"`
	ToNumber       string `json:"to_number"`
	Transcript     string `json:"transcript"`
	RecordingURL   string `json:"recording_url"`
	StartTimestamp int64  `json:"start_timestamp"`
	EndTimestamp   int64  `json:"end_timestamp"`
}

// APIError is a non-2xx answer from the Retell API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("retell api returned status %d: %s", e.StatusCode, e.Message)
}

func NewClient(baseURL, apiKey string, defaultTimeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		client:         httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		defaultTimeout: defaultTimeout,
	}
}

func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := c.do(ctx, http.MethodGet, "/list-agents", nil, &agents); err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

func (c *Client) ListLLMs(ctx context.Context) ([]LLM, error) {
	var llms []LLM
	if err := c.do(ctx, http.MethodGet, "/list-retell-llms", nil, &llms); err != nil {
		return nil, fmt.Errorf("failed to list llms: %w", err)
	}
	return llms, nil
}

func (c *Client) CreateAgent(ctx context.Context, req CreateAgentRequest) (*Agent, error) {
	var agent Agent
	if err := c.do(ctx, http.MethodPost, "/create-agent", req, &agent); err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return &agent, nil
}

func (c *Client) UpdateAgent(ctx context.Context, agentID string, req UpdateAgentRequest) (*Agent, error) {
	var agent Agent
	if err := c.do(ctx, http.MethodPatch, "/update-agent/"+url.PathEscape(agentID), req, &agent); err != nil {
		return nil, fmt.Errorf("failed to update agent %s: %w", agentID, err)
	}
	return &agent, nil
}

// CreatePhoneNumber buys a new number and returns it in E.164 form.
func (c *Client) CreatePhoneNumber(ctx context.Context) (*PhoneNumber, error) {
	var number PhoneNumber
	if err := c.do(ctx, http.MethodPost, "/create-phone-number", struct{}{}, &number); err != nil {
		return nil, fmt.Errorf("failed to create phone number: %w", err)
	}
	return &number, nil
}

func (c *Client) CreatePhoneCall(ctx context.Context, req CreatePhoneCallRequest) (*Call, error) {
	var call Call
	if err := c.do(ctx, http.MethodPost, "/v2/create-phone-call", req, &call); err != nil {
		return nil, fmt.Errorf("failed to create phone call: %w", err)
	}
	return &call, nil
}

func (c *Client) GetCall(ctx context.Context, callID string) (*Call, error) {
	var call Call
	if err := c.do(ctx, http.MethodGet, "/v2/get-call/"+url.PathEscape(callID), nil, &call); err != nil {
		return nil, fmt.Errorf("failed to get call %s: %w", callID, err)
	}
	return &call, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.defaultTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
