package vision

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

// LLMKeywords are searched for in the vision model's answer.
var LLMKeywords = []string{"person", "car", "truck", "fire", "blood", "injury", "accident", "emergency"}

// highConfidenceWords is how far into the answer a keyword must appear to be
// labelled high confidence.
const highConfidenceWords = 20

const visionPrompt = `Analyze this image for an emergency response team.
Describe any people, vehicles, fire, smoke, blood, visible injuries, accidents or other hazards you can see.
Start with the most critical finding. Be factual and concise and do not speculate beyond what is visible.`

type LLMDetector struct {
	model         emergency.VisionModel
	fuzzyDistance int
}

// NewLLMDetector returns a detector backed by a vision model. A positive
// fuzzyDistance also accepts answer words within that Levenshtein distance
// of a keyword.
func NewLLMDetector(model emergency.VisionModel, fuzzyDistance int) *LLMDetector {
	return &LLMDetector{model: model, fuzzyDistance: fuzzyDistance}
}

func (d *LLMDetector) DetectEmergencyIndicators(ctx context.Context, imagePath string) (*emergency.DetectionSummary, error) {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	answer, err := d.model.DescribeImage(ctx, visionPrompt, image, imageMIMEType(imagePath, image))
	if err != nil {
		return nil, emergency.Upstream("vision model", err)
	}

	summary := summarizeAnswer(answer, d.fuzzyDistance)
	slog.Debug("vision analysis finished", slog.String("summary", summaryString(summary)))

	return summary, nil
}

func summarizeAnswer(answer string, fuzzyDistance int) *emergency.DetectionSummary {
	lower := strings.ToLower(answer)
	words := strings.Fields(lower)
	lead := strings.Join(words[:min(len(words), highConfidenceWords)], " ")

	detections := make([]emergency.Detection, 0, len(LLMKeywords))
	for _, keyword := range LLMKeywords {
		switch {
		case strings.Contains(lower, keyword):
			label := emergency.ConfidenceMedium
			if strings.Contains(lead, keyword) {
				label = emergency.ConfidenceHigh
			}
			detections = append(detections, emergency.Detection{Class: keyword, Confidence: emergency.LabelConfidence(label)})
		case fuzzyDistance > 0:
			if idx := fuzzyIndex(words, keyword, fuzzyDistance); idx >= 0 {
				label := emergency.ConfidenceMedium
				if idx < highConfidenceWords {
					label = emergency.ConfidenceHigh
				}
				detections = append(detections, emergency.Detection{Class: keyword, Confidence: emergency.LabelConfidence(label)})
			}
		}
	}

	return &emergency.DetectionSummary{
		AllDetections:       detections,
		EmergencyDetections: detections,
		HasEmergency:        len(detections) > 0,
		AnalysisText:        answer,
	}
}

// fuzzyIndex returns the position of the first word within distance of
// keyword, or -1.
func fuzzyIndex(words []string, keyword string, distance int) int {
	for i, word := range words {
		word = strings.Trim(word, ".,;:!?\"'()")
		if len(word) < 3 {
			continue
		}
		if levenshtein.ComputeDistance(word, keyword) <= distance {
			return i
		}
	}
	return -1
}

func imageMIMEType(path string, content []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return t
	}
	if t := http.DetectContentType(content); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}
