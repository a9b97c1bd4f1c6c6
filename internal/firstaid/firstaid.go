package firstaid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/searchandrescuegg/firstaid/internal/config"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
	"github.com/searchandrescuegg/firstaid/internal/ollama"
	"github.com/searchandrescuegg/firstaid/internal/openai"
)

// FallbackInstructions is returned whenever the language model cannot
// produce an answer.
const FallbackInstructions = "Unable to generate first aid instructions. Please call emergency services immediately at 911."

const systemPrompt = "You are an emergency medical response assistant. Provide concise, accurate first aid instructions based on the emergency description."

const promptTemplate = `EMERGENCY SITUATION ASSESSMENT:

User's Emergency Call: "%s"

Scene Analysis: %s

Based on the emergency information above:
1. Identify the most critical injuries or emergency conditions
2. Provide clear, step-by-step first aid instructions
3. Include immediate actions to take while waiting for professional help
4. Mention any critical warnings or precautions

Format your response as clear instructions that could be read to someone at the scene.`

type Narrator struct {
	model       emergency.ChatModel
	temperature float32
	maxTokens   int
}

func NewNarrator(model emergency.ChatModel, temperature float32, maxTokens int) *Narrator {
	return &Narrator{model: model, temperature: temperature, maxTokens: maxTokens}
}

// NewChatModel builds the chat back end named by c.LLMProvider.
func NewChatModel(c *config.Config) (emergency.ChatModel, error) {
	switch strings.ToLower(c.LLMProvider) {
	case "openai":
		return openai.NewClientFromKey(c.LLMAPIKey, c.LLMBaseURL, c.LLMModel, c.LLMTimeout), nil
	case "ollama":
		return ollama.NewOllamaClient(&url.URL{Scheme: c.OllamaProtocol, Host: c.OllamaHost}, &http.Client{Timeout: c.LLMTimeout}, c.OllamaModel)
	default:
		return nil, emergency.Configuration("unknown llm provider %q", c.LLMProvider)
	}
}

func (n *Narrator) GenerateFirstAid(ctx context.Context, transcription string, imageResult map[string]any) string {
	answer, err := n.model.Complete(ctx, emergency.ChatRequest{
		System:      systemPrompt,
		User:        BuildPrompt(transcription, imageResult),
		Temperature: n.temperature,
		MaxTokens:   n.maxTokens,
	})
	if err != nil {
		slog.Error("failed to generate first aid instructions, using fallback", slog.String("error", err.Error()))
		return FallbackInstructions
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		slog.Warn("language model returned an empty answer, using fallback")
		return FallbackInstructions
	}

	return answer
}

// BuildPrompt renders the user prompt. The scene analysis is embedded as
// compact JSON; map keys are sorted by encoding/json.
func BuildPrompt(transcription string, imageResult map[string]any) string {
	if imageResult == nil {
		imageResult = map[string]any{}
	}

	scene, err := json.Marshal(imageResult)
	if err != nil {
		scene = []byte(fmt.Sprintf("%v", imageResult))
	}

	return fmt.Sprintf(promptTemplate, transcription, scene)
}
