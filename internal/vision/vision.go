// Package vision summarises a photo of an emergency scene. Two strategies
// implement emergency.Detector: an object detector with a class allow-list,
// and a vision LLM whose free-text answer is scanned for keywords.
package vision

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/searchandrescuegg/firstaid/internal/config"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
	"github.com/searchandrescuegg/firstaid/internal/ollama"
	"github.com/searchandrescuegg/firstaid/internal/openai"
	"github.com/searchandrescuegg/firstaid/pkg/detect"
)

const (
	StrategyDetector = "detector"
	StrategyLLM      = "llm"
)

// NewDetector builds the strategy named by c.VisionStrategy.
func NewDetector(c *config.Config) (emergency.Detector, error) {
	switch strings.ToLower(c.VisionStrategy) {
	case StrategyDetector:
		client := detect.NewClient(c.DetectorEndpoint, c.DetectorTimeout, &http.Client{})
		return NewObjectDetector(client, c.DetectorConfidenceThreshold), nil
	case StrategyLLM:
		model, err := newVisionModel(c)
		if err != nil {
			return nil, err
		}
		return NewLLMDetector(model, c.VisionFuzzyDistance), nil
	default:
		return nil, emergency.Configuration("unknown vision strategy %q", c.VisionStrategy)
	}
}

func newVisionModel(c *config.Config) (emergency.VisionModel, error) {
	switch strings.ToLower(c.VisionProvider) {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return nil, emergency.Configuration("OPENAI_API_KEY is not set")
		}
		return openai.NewClientFromKey(c.OpenAIAPIKey, c.OpenAIBaseURL, c.VisionModel, c.OpenAITimeout), nil
	case "ollama":
		return ollama.NewOllamaClient(&url.URL{Scheme: c.OllamaProtocol, Host: c.OllamaHost}, &http.Client{Timeout: c.LLMTimeout}, c.OllamaVisionModel)
	default:
		return nil, emergency.Configuration("unknown vision provider %q", c.VisionProvider)
	}
}

func classes(detections []emergency.Detection) []string {
	out := make([]string, 0, len(detections))
	for _, d := range detections {
		out = append(out, d.Class)
	}
	return out
}

func summaryString(s *emergency.DetectionSummary) string {
	return fmt.Sprintf("all=%v emergency=%v has_emergency=%t", classes(s.AllDetections), classes(s.EmergencyDetections), s.HasEmergency)
}
