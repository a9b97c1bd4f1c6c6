package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	ollama "github.com/ollama/ollama/api"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

var ErrNoResponse = errors.New("no response received from Ollama")

type OllamaClient struct {
	client *ollama.Client
	model  string
}

func NewOllamaClient(baseUrl *url.URL, httpClient *http.Client, model string) (*OllamaClient, error) {
	return &OllamaClient{client: ollama.NewClient(baseUrl, httpClient), model: model}, nil
}

func (oc *OllamaClient) Complete(ctx context.Context, req emergency.ChatRequest) (string, error) {
	messages := []ollama.Message{
		{
			Role:    "system",
			Content: req.System,
		},
		{
			Role:    "user",
			Content: req.User,
		},
	}

	options := map[string]any{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	return oc.chat(ctx, &ollama.ChatRequest{
		Model:    oc.model,
		Messages: messages,
		Options:  options,
	})
}

func (oc *OllamaClient) DescribeImage(ctx context.Context, prompt string, image []byte, _ string) (string, error) {
	return oc.chat(ctx, &ollama.ChatRequest{
		Model: oc.model,
		Messages: []ollama.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []ollama.ImageData{image},
			},
		},
	})
}

func (oc *OllamaClient) chat(ctx context.Context, req *ollama.ChatRequest) (string, error) {
	req.Stream = func(b bool) *bool { return &b }(false)

	var result *string
	respFunc := func(resp ollama.ChatResponse) error {
		if !resp.Done {
			return nil // Continue processing until the response is complete
		}
		content := resp.Message.Content
		result = &content
		return nil
	}

	err := oc.client.Chat(ctx, req, respFunc)
	if err != nil {
		return "", err
	}

	if result == nil {
		return "", ErrNoResponse
	}

	return *result, nil
}
