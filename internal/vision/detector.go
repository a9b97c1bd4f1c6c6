package vision

import (
	"context"
	"log/slog"
	"slices"

	"github.com/searchandrescuegg/firstaid/internal/emergency"
	"github.com/searchandrescuegg/firstaid/pkg/detect"
)

// DetectorKeywords are the detector classes treated as emergency indicators.
var DetectorKeywords = []string{"person", "car", "truck", "fire", "blood"}

type DetectClient interface {
	DetectFile(ctx context.Context, path string) (*detect.Response, error)
}

type ObjectDetector struct {
	client    DetectClient
	threshold float64
}

func NewObjectDetector(client DetectClient, threshold float64) *ObjectDetector {
	return &ObjectDetector{client: client, threshold: threshold}
}

func (d *ObjectDetector) DetectEmergencyIndicators(ctx context.Context, imagePath string) (*emergency.DetectionSummary, error) {
	resp, err := d.client.DetectFile(ctx, imagePath)
	if err != nil {
		return nil, emergency.Upstream("object detection", err)
	}

	summary := summarizeBoxes(resp.Detections, d.threshold)
	slog.Debug("object detection finished", slog.Int("boxes", len(resp.Detections)), slog.String("summary", summaryString(summary)))

	return summary, nil
}

func summarizeBoxes(boxes []detect.Box, threshold float64) *emergency.DetectionSummary {
	all := make([]emergency.Detection, 0, len(boxes))
	for _, b := range boxes {
		if b.Confidence > threshold {
			all = append(all, emergency.Detection{Class: b.Class, Confidence: emergency.ScoreConfidence(b.Confidence)})
		}
	}

	flagged := make([]emergency.Detection, 0, len(all))
	for _, d := range all {
		if slices.Contains(DetectorKeywords, d.Class) {
			flagged = append(flagged, d)
		}
	}

	return &emergency.DetectionSummary{
		AllDetections:       all,
		EmergencyDetections: flagged,
		HasEmergency:        len(flagged) > 0,
	}
}
