package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

var ErrEmptyResponse = errors.New("no choices in chat completion response")

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(client *openai.Client, model string) *OpenAIClient {
	return &OpenAIClient{
		client: client,
		model:  model,
	}
}

// NewClientFromKey builds a client for any OpenAI compatible API (OpenAI,
// Cerebras, a local gateway).
func NewClientFromKey(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	openaiConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		openaiConfig.BaseURL = baseURL
	}
	openaiConfig.HTTPClient = &http.Client{Timeout: timeout}

	return NewOpenAIClient(openai.NewClientWithConfig(openaiConfig), model)
}

func (oc *OpenAIClient) Complete(ctx context.Context, req emergency.ChatRequest) (string, error) {
	resp, err := oc.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: oc.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: req.System,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: req.User,
				},
			},
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		},
	)
	if err != nil {
		return "", fmt.Errorf("chat completion error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

func (oc *OpenAIClient) DescribeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))

	resp, err := oc.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: oc.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{
							Type: openai.ChatMessagePartTypeText,
							Text: prompt,
						},
						{
							Type: openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{
								URL:    dataURL,
								Detail: openai.ImageURLDetailAuto,
							},
						},
					},
				},
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("vision completion error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

func (oc *OpenAIClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := oc.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    oc.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription error: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
