package emergency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Confidence is either a numeric detector score or a coarse label produced
// by the vision LLM heuristic. It marshals to a JSON number or string.
type Confidence struct {
	Score float64
	Label string
}

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
)

func ScoreConfidence(score float64) Confidence { return Confidence{Score: score} }

func LabelConfidence(label string) Confidence { return Confidence{Label: label} }

func (c Confidence) MarshalJSON() ([]byte, error) {
	if c.Label != "" {
		return json.Marshal(c.Label)
	}
	return json.Marshal(c.Score)
}

func (c *Confidence) UnmarshalJSON(b []byte) error {
	var score float64
	if err := json.Unmarshal(b, &score); err == nil {
		*c = Confidence{Score: score}
		return nil
	}

	var label string
	if err := json.Unmarshal(b, &label); err != nil {
		return fmt.Errorf("confidence must be a number or a string: %w", err)
	}
	*c = Confidence{Label: label}
	return nil
}

type Detection struct {
	Class      string     `json:"class"`
	Confidence Confidence `json:"confidence"`
}

type DetectionSummary struct {
	AllDetections       []Detection `json:"all_detections"`
	EmergencyDetections []Detection `json:"emergency_detections"`
	HasEmergency        bool        `json:"has_emergency"`
	AnalysisText        string      `json:"analysis_text,omitempty"`
}

type FirstAidRequest struct {
	Transcription *string        `json:"transcription"`
	ImageResult   map[string]any `json:"image_result"`
}

// Call statuses as reported by the voice vendor. Anything else is forwarded
// verbatim.
const (
	CallStatusInitiated  = "initiated"
	CallStatusRegistered = "registered"
	CallStatusOngoing    = "ongoing"
	CallStatusEnded      = "ended"
	CallStatusError      = "error"
)

// CallHandle mirrors an outbound call whose state is owned by the voice
// vendor. Transcript and RecordingURL are set only once the call has ended.
type CallHandle struct {
	CallID       string  `json:"call_id"`
	Status       string  `json:"status"`
	Transcript   *string `json:"transcript,omitempty"`
	RecordingURL *string `json:"recording_url,omitempty"`
}

func (h *CallHandle) Ended() bool {
	return h.Status == CallStatusEnded
}

type CallEvent struct {
	EventID      string    `json:"event_id"`
	CallID       string    `json:"call_id"`
	Status       string    `json:"status"`
	OccurredAt   time.Time `json:"occurred_at"`
	Transcript   string    `json:"transcript,omitempty"`
	RecordingURL string    `json:"recording_url,omitempty"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

type Detector interface {
	DetectEmergencyIndicators(ctx context.Context, imagePath string) (*DetectionSummary, error)
}

// Narrator never fails; it degrades to a fixed fallback instruction.
type Narrator interface {
	GenerateFirstAid(ctx context.Context, transcription string, imageResult map[string]any) string
}

type Caller interface {
	InitiateCall(ctx context.Context) (*CallHandle, error)
	GetCallStatusAndResults(ctx context.Context, callID string) (*CallHandle, error)
}

// ChatModel is a text completion back end used for narrative generation.
type ChatModel interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

type ChatRequest struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// VisionModel answers a prompt about an image.
type VisionModel interface {
	DescribeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}
